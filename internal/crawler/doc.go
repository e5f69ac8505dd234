// Package crawler drives one crawl run over a notice board.
//
// A Controller pages through a board's list, drops announcements whose
// titles are already known, and runs each new announcement through a
// per-item pipeline: fetch the detail page, extract content and
// attachments, write content.md, download the attachments and commit the
// title. A failing item never stops the run.
//
// Site specifics live behind the Adapter interface:
//
//	ctl := crawler.New("kiat", adapter, fetcher, tracker,
//		crawler.WithMaxPages(4),
//		crawler.WithResolver(resolver),
//		crawler.WithDownloader(downloader),
//	)
//	summary := ctl.Run(ctx)
package crawler
