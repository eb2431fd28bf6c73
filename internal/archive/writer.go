package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"callrec/internal/errors"
	"callrec/internal/model"
)

// Write creates an archive at path holding the manifest and one entry per
// network. Manifest.Types and BuiltAt are filled in when empty. The file is
// written to a temporary name and renamed, so readers never see a partial
// archive.
func Write(path string, m Manifest, nets []*model.Network) error {
	seen := make(map[string]struct{}, len(nets))
	types := make([]string, 0, len(nets))
	for _, n := range nets {
		if _, dup := seen[n.TypeID()]; dup {
			return errors.Newf(errors.InvalidInput, "duplicate model for %s", n.TypeID())
		}
		seen[n.TypeID()] = struct{}{}
		types = append(types, n.TypeID())
	}
	sort.Strings(types)

	m.FormatVersion = FormatVersion
	if len(m.Types) == 0 {
		m.Types = types
	}
	if m.BuiltAt.IsZero() {
		m.BuiltAt = time.Now().UTC()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".archive-*")
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	zw := zip.NewWriter(tmp)
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())

	mw, err := zw.CreateHeader(&zip.FileHeader{Name: ManifestEntry, Method: zip.Deflate, Modified: m.BuiltAt})
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to add manifest: %w", err)
	}
	if err := writeManifest(mw, m); err != nil {
		tmp.Close()
		return err
	}

	for _, n := range nets {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     EntryName(n.TypeID()),
			Method:   zstd.ZipMethodWinZip,
			Modified: m.BuiltAt,
		})
		if err != nil {
			tmp.Close()
			return fmt.Errorf("failed to add model %s: %w", n.TypeID(), err)
		}
		if _, err := w.Write(model.Encode(n)); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write model %s: %w", n.TypeID(), err)
		}
	}

	if err := zw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	return os.Rename(tmpPath, path)
}
