// Package database provides durable stores for duplicate records.
//
// CrawlDB keeps records and a per-run history in a single SQLite file
// (modernc.org/sqlite, no CGO). RedisStore keeps records in Redis for
// deployments where several hosts crawl the same sites. Both implement
// dedup.Store, so the crawl controller does not know which one is in use.
package database
