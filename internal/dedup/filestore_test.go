package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/noticescan/internal/model"
	"github.com/spf13/afero"
)

func TestFileStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("missing record", func(t *testing.T) {
		t.Parallel()

		store := NewFileStore(afero.NewMemMapFs(), "/data")
		_, err := store.Load(ctx, "none")
		if !errors.Is(err, ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}
	})

	t.Run("writes legacy json layout", func(t *testing.T) {
		t.Parallel()

		fs := afero.NewMemMapFs()
		store := NewFileStore(fs, "/data")
		rec := model.NewDuplicateRecord([]string{"abc", "def"}, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

		if err := store.Save(ctx, "djbea", rec); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		data, err := afero.ReadFile(fs, "/data/processed_titles_djbea.json")
		if err != nil {
			t.Fatalf("record file missing: %v", err)
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		for _, key := range []string{"title_hashes", "last_updated", "total_count"} {
			if _, ok := raw[key]; !ok {
				t.Errorf("missing key %q in %s", key, data)
			}
		}

		entries, err := afero.ReadDir(fs, "/data")
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".tmp") {
				t.Errorf("temp file left behind: %s", e.Name())
			}
		}
	})

	t.Run("overwrites previous snapshot", func(t *testing.T) {
		t.Parallel()

		store := NewFileStore(afero.NewMemMapFs(), "/data")
		_ = store.Save(ctx, "s", model.NewDuplicateRecord([]string{"a"}, time.Now()))
		if err := store.Save(ctx, "s", model.NewDuplicateRecord([]string{"a", "b", "c"}, time.Now())); err != nil {
			t.Fatal(err)
		}
		rec, err := store.Load(ctx, "s")
		if err != nil {
			t.Fatal(err)
		}
		if rec.Count != 3 {
			t.Errorf("expected 3, got %d", rec.Count)
		}
	})

	t.Run("site code is made file safe", func(t *testing.T) {
		t.Parallel()

		store := NewFileStore(afero.NewMemMapFs(), "/data")
		if got := store.Path("a/b c"); got != "/data/processed_titles_a_b_c.json" {
			t.Errorf("unexpected path %q", got)
		}
	})

	t.Run("corrupt file is an error", func(t *testing.T) {
		t.Parallel()

		fs := afero.NewMemMapFs()
		_ = afero.WriteFile(fs, "/data/processed_titles_x.json", []byte("{"), 0600)
		store := NewFileStore(fs, "/data")
		if _, err := store.Load(ctx, "x"); err == nil || errors.Is(err, ErrRecordNotFound) {
			t.Errorf("expected parse error, got %v", err)
		}
	})
}
