package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nao1215/noticescan/internal/model"
)

// DefaultThreshold is the number of consecutive known titles that ends
// pagination.
const DefaultThreshold = 3

// Tracker holds the known title hashes of one site for one run.
// It is owned by a single controller goroutine and is not safe for
// concurrent use.
type Tracker struct {
	site      string
	store     Store
	threshold int
	logger    *slog.Logger
	now       func() time.Time

	known map[string]struct{}

	// added counts hashes committed during this run.
	added int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithThreshold sets the consecutive-known stop threshold.
// Non-positive values keep the default.
func WithThreshold(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.threshold = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithClock overrides the timestamp source used by Flush.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates an empty tracker for site backed by store.
// Call Load before filtering.
func NewTracker(site string, store Store, opts ...Option) *Tracker {
	t := &Tracker{
		site:      site,
		store:     store,
		threshold: DefaultThreshold,
		known:     make(map[string]struct{}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Load reads the persisted record. A missing record yields an empty set.
func (t *Tracker) Load(ctx context.Context) error {
	rec, err := t.store.Load(ctx, t.site)
	if errors.Is(err, ErrRecordNotFound) {
		t.logger.Debug("no duplicate record yet", "site", t.site)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load duplicate record for %s: %w", t.site, err)
	}
	for _, h := range rec.Hashes {
		t.known[h] = struct{}{}
	}
	t.logger.Info("duplicate record loaded",
		"site", t.site,
		"known", len(t.known),
		"last_updated", rec.LastUpdated,
	)
	return nil
}

// Threshold returns the configured stop threshold.
func (t *Tracker) Threshold() int {
	return t.threshold
}

// Len returns the number of known hashes.
func (t *Tracker) Len() int {
	return len(t.known)
}

// Added returns the number of hashes committed this run.
func (t *Tracker) Added() int {
	return t.added
}

// IsKnown reports whether the normalized title was seen before.
func (t *Tracker) IsKnown(title string) bool {
	_, ok := t.known[Hash(title)]
	return ok
}

// Filter walks candidates in order and returns the unknown ones.
// When the number of consecutive known titles reaches the threshold, the
// walk stops and shouldStop is true; later candidates are not returned.
func (t *Tracker) Filter(candidates []model.Announcement) (accepted []model.Announcement, shouldStop bool) {
	accepted = make([]model.Announcement, 0, len(candidates))
	consecutive := 0

	for _, a := range candidates {
		if !t.IsKnown(a.Title) {
			consecutive = 0
			accepted = append(accepted, a)
			continue
		}

		consecutive++
		t.logger.Debug("known announcement skipped", "site", t.site, "title", a.Title)
		if consecutive >= t.threshold {
			t.logger.Info("duplicate threshold reached",
				"site", t.site,
				"consecutive", consecutive,
				"threshold", t.threshold,
			)
			return accepted, true
		}
	}

	return accepted, false
}

// Commit marks title as known in memory. Flush persists it.
func (t *Tracker) Commit(title string) {
	h := Hash(title)
	if _, ok := t.known[h]; ok {
		return
	}
	t.known[h] = struct{}{}
	t.added++
}

// Snapshot returns the current record with sorted hashes.
func (t *Tracker) Snapshot() model.DuplicateRecord {
	hashes := make([]string, 0, len(t.known))
	for h := range t.known {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	return model.NewDuplicateRecord(hashes, t.now())
}

// Flush writes the hash set, a timestamp and the count to the store,
// replacing the previous snapshot.
func (t *Tracker) Flush(ctx context.Context) error {
	rec := t.Snapshot()
	if err := t.store.Save(ctx, t.site, rec); err != nil {
		return fmt.Errorf("failed to save duplicate record for %s: %w", t.site, err)
	}
	t.logger.Info("duplicate record saved",
		"site", t.site,
		"count", rec.Count,
		"added", t.added,
	)
	return nil
}
