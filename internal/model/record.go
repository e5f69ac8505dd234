package model

import "time"

// DuplicateRecord is the durable snapshot of a site's known title hashes.
// The JSON layout is shared with processed_titles_<site>.json files
// written by earlier crawler generations.
type DuplicateRecord struct {
	// Hashes are hex digests of normalized titles.
	Hashes []string `json:"title_hashes"`

	// LastUpdated is when the snapshot was written.
	LastUpdated time.Time `json:"last_updated"`

	// Count is len(Hashes) at write time.
	Count int `json:"total_count"`
}

// NewDuplicateRecord builds a snapshot stamped with now.
func NewDuplicateRecord(hashes []string, now time.Time) DuplicateRecord {
	return DuplicateRecord{
		Hashes:      hashes,
		LastUpdated: now,
		Count:       len(hashes),
	}
}
