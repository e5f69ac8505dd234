// Package model defines the data structures shared by the crawl engine.
//
// This package contains the following main types:
//   - Announcement: one notice on a site's board, the unit of crawl work
//   - Attachment: a downloadable file referenced from an announcement
//   - DuplicateRecord: the persisted set of known title hashes for a site
//   - RunSummary: the outcome of one crawl run
//
// Models live in their own package so that the fetcher, the resolver, the
// downloader and the controller can share them without import cycles.
// Types that are persisted or reported carry JSON tags.
package model
