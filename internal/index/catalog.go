package index

import (
	"context"
	"fmt"

	"github.com/BurntSushi/toml"

	"callrec/internal/coord"
)

// Catalog is the TOML file format for bulk registration:
//
//	[[artifact]]
//	coordinate = "org.eclipse:swt:zip:3.7.0"
//	fingerprint = "3b1f..."
//	symbolic_name = "org.eclipse.swt"
type Catalog struct {
	Artifacts []CatalogEntry `toml:"artifact"`
}

// CatalogEntry is one [[artifact]] table.
type CatalogEntry struct {
	Coordinate   string `toml:"coordinate"`
	Fingerprint  string `toml:"fingerprint"`
	SymbolicName string `toml:"symbolic_name"`
}

// LoadCatalog parses a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	var cat Catalog
	md, err := toml.DecodeFile(path, &cat)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("catalog %s has unknown keys: %v", path, undecoded)
	}
	return &cat, nil
}

// ImportCatalog registers every entry of the catalog at path in a single
// transaction and returns the number of entries imported.
func (i *Index) ImportCatalog(ctx context.Context, path string) (int, error) {
	cat, err := LoadCatalog(path)
	if err != nil {
		return 0, err
	}

	entries := make([]Entry, 0, len(cat.Artifacts))
	for n, a := range cat.Artifacts {
		c, err := coord.ParseCoordinate(a.Coordinate)
		if err != nil {
			return 0, fmt.Errorf("catalog %s artifact %d: %w", path, n+1, err)
		}
		entries = append(entries, Entry{Coordinate: c, Fingerprint: a.Fingerprint, SymbolicName: a.SymbolicName})
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin import: %w", err)
	}
	for _, e := range entries {
		if err := addEntry(ctx, tx, e); err != nil {
			tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}

	i.logger.Info("Imported catalog", "path", path, "artifacts", len(entries))
	return len(entries), nil
}
