package dedup

import (
	"context"
	"errors"

	"github.com/nao1215/noticescan/internal/model"
)

// ErrRecordNotFound is returned by a Store when no snapshot exists for a site.
// Trackers treat it as an empty record.
var ErrRecordNotFound = errors.New("duplicate record not found")

// Store persists one DuplicateRecord per site.
// Save overwrites the previous snapshot.
type Store interface {
	Load(ctx context.Context, site string) (model.DuplicateRecord, error)
	Save(ctx context.Context, site string, rec model.DuplicateRecord) error
}
