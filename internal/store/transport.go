package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"callrec/internal/coord"
	"callrec/internal/errors"
)

// Transport makes the archive for a coordinate available as a local file.
type Transport interface {
	Fetch(ctx context.Context, c coord.Coordinate) (string, error)
}

// LocalRepository serves archives from a Maven-style directory tree:
//
//	<root>/<group path>/<artifact>/<version>/<artifact>-<version>[-<classifier>].<ext>
type LocalRepository struct {
	Root string
}

// Path returns where c lives in the repository.
func (r LocalRepository) Path(c coord.Coordinate) string {
	name := c.ArtifactID + "-" + c.Version.String()
	if c.Classifier != "" {
		name += "-" + c.Classifier
	}
	name += "." + c.Ext()

	groupPath := filepath.FromSlash(strings.ReplaceAll(c.GroupID, ".", "/"))
	return filepath.Join(r.Root, groupPath, c.ArtifactID, c.Version.String(), name)
}

// Fetch returns the path of c's archive if it exists.
func (r LocalRepository) Fetch(ctx context.Context, c coord.Coordinate) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.Version.IsUnknown() {
		return "", errors.Newf(errors.InvalidInput, "cannot fetch %s without a version", c.BaseKey())
	}

	path := r.Path(c)
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.New(errors.TransportFailed, fmt.Sprintf("archive %s is not in %s", c, r.Root), err)
	}
	if info.IsDir() {
		return "", errors.Newf(errors.TransportFailed, "archive path %s is a directory", path)
	}
	return path, nil
}

// Install copies the archive at src into the repository under c and
// returns its new path.
func (r LocalRepository) Install(c coord.Coordinate, src string) (string, error) {
	if c.Version.IsUnknown() {
		return "", errors.Newf(errors.InvalidInput, "cannot install %s without a version", c.BaseKey())
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", src, err)
	}

	dst := r.Path(c)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("failed to create repository directory: %w", err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", fmt.Errorf("failed to install %s: %w", c, err)
	}
	return dst, nil
}
