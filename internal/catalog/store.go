// Package catalog persists the matchup catalog as a single versioned JSON
// document. The file is the boundary that lets the catalog and download
// stages run and resume independently.
package catalog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rionegro-oan/matchup-cli/internal/model"
	"github.com/rionegro-oan/matchup-cli/internal/resilience"
)

// ErrNotFound is returned by Load when no catalog file exists at the path.
var ErrNotFound = errors.New("catalog: not found")

// Load reads a catalog file. A missing file yields ErrNotFound; a file that
// exists but does not parse yields a CatalogCorruptError, which is fatal for
// download-only runs.
func Load(path string) (*model.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}

	var cat model.Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, &resilience.CatalogCorruptError{Path: path, Err: err}
	}
	if cat.Version == 0 || cat.Entries == nil {
		return nil, &resilience.CatalogCorruptError{
			Path: path,
			Err:  errors.New("missing version or entries"),
		}
	}

	return &cat, nil
}

// Save writes the catalog atomically: marshal to a temp file in the target
// directory, then rename over the final path. A crash mid-write never leaves
// a half-written catalog behind. Encoding is deterministic, so identical
// inputs produce byte-identical files.
func Save(cat *model.Catalog, path string) error {
	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return eris.Wrap(err, "catalog: marshal")
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".catalog-*.json")
	if err != nil {
		return eris.Wrapf(err, "catalog: create temp file in %s", dir)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "catalog: write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "catalog: close temp file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "catalog: place %s", path)
	}

	zap.L().Info("catalog saved",
		zap.String("path", path),
		zap.Int("entries", len(cat.Entries)),
	)
	return nil
}

// Merge folds a fresh run into an existing catalog. Fresh entries win per
// sample identity and keep the fresh input order; prior entries for samples
// absent from the fresh run are preserved and appended in their previous
// order, so an incremental re-run never discards already-resolved samples.
// Version, timestamps and query params come from the fresh catalog.
func Merge(existing, fresh *model.Catalog) *model.Catalog {
	if existing == nil {
		return fresh
	}

	out := *fresh
	out.Entries = make([]model.CatalogEntry, 0, len(fresh.Entries)+len(existing.Entries))
	out.Entries = append(out.Entries, fresh.Entries...)

	covered := make(map[string]bool, len(fresh.Entries))
	for _, e := range fresh.Entries {
		covered[e.Sample.Key()] = true
	}

	for _, e := range existing.Entries {
		if !covered[e.Sample.Key()] {
			out.Entries = append(out.Entries, e)
		}
	}
	return &out
}
