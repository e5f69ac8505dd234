// Package dedup tracks which announcements a site has already produced.
//
// Boards expose no reliable "last page" signal, so a crawl stops when it
// meets a run of titles it has seen before. Titles are compared after
// Normalize and stored as MD5 hex digests; a title collision is treated as
// the same announcement.
//
// A Tracker is loaded from a Store at the start of a run, mutated by Commit
// while items are processed, and written back by Flush at the end. FileStore
// keeps the record as JSON next to the crawl output; the database package
// provides SQLite and Redis stores with the same interface.
package dedup
