package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
	"github.com/nao1215/noticescan/internal/model"
	"github.com/spf13/afero"
)

// unsafeSiteChars are replaced when a site code is used in a file name.
var unsafeSiteChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// FileStore keeps each site's record in dir/processed_titles_<site>.json.
type FileStore struct {
	fs  afero.Fs
	dir string
}

// NewFileStore returns a store rooted at dir on fs.
// A nil fs selects the OS filesystem.
func NewFileStore(fs afero.Fs, dir string) *FileStore {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileStore{fs: fs, dir: dir}
}

// Path returns the record file path for site.
func (s *FileStore) Path(site string) string {
	return filepath.Join(s.dir, "processed_titles_"+unsafeSiteChars.ReplaceAllString(site, "_")+".json")
}

// Load reads the record of site. It returns ErrRecordNotFound when the file
// does not exist.
func (s *FileStore) Load(_ context.Context, site string) (model.DuplicateRecord, error) {
	data, err := afero.ReadFile(s.fs, s.Path(site))
	if err != nil {
		if os.IsNotExist(err) {
			return model.DuplicateRecord{}, ErrRecordNotFound
		}
		return model.DuplicateRecord{}, fmt.Errorf("failed to read %s: %w", s.Path(site), err)
	}

	var rec model.DuplicateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.DuplicateRecord{}, fmt.Errorf("failed to parse %s: %w", s.Path(site), err)
	}
	return rec, nil
}

// Save writes the record through a temp file and rename so that a crash
// never leaves a half-written record behind.
func (s *FileStore) Save(_ context.Context, site string, rec model.DuplicateRecord) error {
	if err := s.fs.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	final := s.Path(site)
	tmp := filepath.Join(s.dir, "."+filepath.Base(final)+"."+uuid.NewString()+".tmp")
	if err := afero.WriteFile(s.fs, tmp, data, 0600); err != nil {
		_ = s.fs.Remove(tmp) //nolint:errcheck // best effort cleanup
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		_ = s.fs.Remove(tmp) //nolint:errcheck // best effort cleanup
		return fmt.Errorf("failed to replace record: %w", err)
	}
	return nil
}
