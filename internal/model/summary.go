package model

import "time"

// RunStatus is the final state of one crawl run.
type RunStatus string

const (
	// StatusRunning is set while a run is in progress.
	StatusRunning RunStatus = "running"
	// StatusCompleted means pagination ended normally.
	StatusCompleted RunStatus = "completed"
	// StatusFailed means the first list page was empty or unparseable.
	StatusFailed RunStatus = "failed"
	// StatusInterrupted means the run was cancelled between items.
	StatusInterrupted RunStatus = "interrupted"
)

// Stop reasons recorded in RunSummary.StopReason.
const (
	StopPageLimit     = "page limit reached"
	StopEmptyPage     = "empty list page"
	StopDuplicates    = "duplicate threshold reached"
	StopNoNewItems    = "no new announcements"
	StopFetchFailed   = "list fetch failed"
	StopFirstPageFail = "first list page empty or unparseable"
	StopCancelled     = "cancelled"
)

// RunSummary is the outcome of one crawl run for one site.
type RunSummary struct {
	Site       string    `json:"site"`
	Status     RunStatus `json:"status"`
	StopReason string    `json:"stop_reason,omitempty"`

	// Pages is the number of list pages fetched.
	Pages int `json:"pages"`

	// Processed counts announcements fully handled this run.
	Processed int `json:"processed"`

	// Skipped counts announcements filtered as already known.
	Skipped int `json:"skipped"`

	// Failed counts announcements whose processing failed.
	Failed int `json:"failed"`

	// Attachments counts files saved to disk.
	Attachments int `json:"attachments"`

	// AttachmentFailures counts attachments whose every candidate failed.
	AttachmentFailures int `json:"attachment_failures"`

	// KnownTitles is the size of the duplicate record after flushing.
	KnownTitles int `json:"known_titles"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// Errors collects item level error messages for the report.
	Errors []string `json:"errors,omitempty"`
}

// NewRunSummary returns a running summary for site.
func NewRunSummary(site string, now time.Time) *RunSummary {
	return &RunSummary{
		Site:      site,
		Status:    StatusRunning,
		StartedAt: now,
	}
}

// AddError records an item level error message.
func (s *RunSummary) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// Total returns the number of announcements seen on list pages.
func (s *RunSummary) Total() int {
	return s.Processed + s.Skipped + s.Failed
}
