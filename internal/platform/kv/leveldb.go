// Package kv opens the embedded and networked key-value stores the patient
// gateways can run on.
package kv

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
)

// OpenLevelDB opens (or creates) the database at path. A corrupted manifest
// is recovered once before giving up.
func OpenLevelDB(path string, logger zerolog.Logger) (*leveldb.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create leveldb parent dir: %w", err)
	}

	db, err := leveldb.OpenFile(path, nil)
	if lerrors.IsCorrupted(err) {
		logger.Warn().Err(err).Str("path", path).Msg("leveldb corrupted, attempting recovery")
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	logger.Info().Str("path", path).Msg("leveldb opened")
	return db, nil
}
