package sigen

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/sigenflux/sigenflux/pkg/log"
	"github.com/sigenflux/sigenflux/pkg/types"
)

// Store persists the latest TokenRecord to a local JSON file. Only the most
// recent record is retained; a new save supersedes the previous one. The
// store is only ever touched from the collector's single loop (or the one-off
// CLI), so there is no locking.
type Store struct {
	path string
}

// NewStore returns a Store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted record. A missing, unreadable or corrupt file is
// treated as "no credentials stored", never as a fatal error.
func (s *Store) Load(ctx context.Context) (types.TokenRecord, bool) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Ctx(ctx).WarnContext(ctx, "failed to read token file, treating as absent",
				slog.String("path", s.path), slog.Any("error", err))
		}
		return types.TokenRecord{}, false
	}

	var rec types.TokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "token file is not valid JSON, treating as absent",
			slog.String("path", s.path), slog.Any("error", err))
		return types.TokenRecord{}, false
	}
	if rec.AccessToken == "" || rec.RetrievedAt == 0 {
		log.Ctx(ctx).WarnContext(ctx, "token file is missing required fields, treating as absent",
			slog.String("path", s.path))
		return types.TokenRecord{}, false
	}
	return rec, true
}

// Save writes the record to disk, restricting the file to the owning user.
func (s *Store) Save(ctx context.Context, rec types.TokenRecord) error {
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return err
	}
	// WriteFile only applies the mode on creation; tighten an existing file too.
	if err := os.Chmod(s.path, 0o600); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "could not restrict token file permissions",
			slog.String("path", s.path), slog.Any("error", err))
	}
	log.Ctx(ctx).DebugContext(ctx, "token file updated", slog.String("path", s.path))
	return nil
}
