// Package pipeline runs ordered steps over a shared state value and runs
// one crawl per site with bounded concurrency.
//
// The crawler builds one Pipeline per announcement: fetch the detail page,
// extract content and attachments, persist the artifact, download files and
// commit the title. A failing or panicking step ends that announcement only.
package pipeline
