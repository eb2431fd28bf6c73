// Package resolve maps a dependency of the code under edit to the model
// archive best suited for it.
package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"callrec/internal/coord"
	"callrec/internal/errors"
	"callrec/internal/slogutil"
)

// Index looks up registered model archives.
type Index interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (coord.Coordinate, bool, error)
	FindBySymbolicName(ctx context.Context, name string) (coord.Coordinate, bool, error)
	Versions(ctx context.Context, base coord.Coordinate) ([]coord.Version, error)
}

// Resolver picks archive coordinates for dependencies.
type Resolver struct {
	index  Index
	logger *slog.Logger
}

// New creates a Resolver backed by idx.
func New(idx Index, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Resolver{index: idx, logger: logger}
}

// Resolve returns the full coordinate of the archive for dep.
//
// The base coordinate is found by fingerprint first, then by symbolic name.
// The version is then chosen by BestMatch. Errors carry NOT_FOUND or
// NO_COMPATIBLE_VERSION for the two expected misses.
func (r *Resolver) Resolve(ctx context.Context, dep coord.Dependency) (coord.Coordinate, error) {
	base, found, err := r.findBase(ctx, dep)
	if err != nil {
		return coord.Coordinate{}, err
	}
	if !found {
		return coord.Coordinate{}, errors.Newf(errors.NotFound, "no model archive registered for %s", dep)
	}

	versions, err := r.index.Versions(ctx, base)
	if err != nil {
		return coord.Coordinate{}, fmt.Errorf("failed to list versions of %s: %w", base.BaseKey(), err)
	}

	v, ok := BestMatch(dep.Version, versions)
	if !ok {
		return coord.Coordinate{}, errors.Newf(errors.NoCompatibleVersion,
			"no version of %s is compatible with %s", base.BaseKey(), dep.Version)
	}

	resolved := base.WithVersion(v)
	r.logger.Debug("Resolved dependency", "dependency", dep.String(), "coordinate", resolved.String())
	return resolved, nil
}

func (r *Resolver) findBase(ctx context.Context, dep coord.Dependency) (coord.Coordinate, bool, error) {
	if dep.Fingerprint != "" {
		base, ok, err := r.index.FindByFingerprint(ctx, dep.Fingerprint)
		if err != nil {
			return coord.Coordinate{}, false, fmt.Errorf("fingerprint lookup failed: %w", err)
		}
		if ok {
			return base, true, nil
		}
	}
	if dep.SymbolicName != "" {
		base, ok, err := r.index.FindBySymbolicName(ctx, dep.SymbolicName)
		if err != nil {
			return coord.Coordinate{}, false, fmt.Errorf("symbolic name lookup failed: %w", err)
		}
		return base, ok, nil
	}
	return coord.Coordinate{}, false, nil
}

// BestMatch chooses among available versions for a requested version.
//
// An unknown request takes the highest available version. Otherwise, with
// upper = (major, minor+1, 0), the highest version below upper wins; if
// there is none, the lowest version at or above upper.
func BestMatch(requested coord.Version, available []coord.Version) (coord.Version, bool) {
	var known []coord.Version
	for _, v := range available {
		if !v.IsUnknown() {
			known = append(known, v)
		}
	}
	if len(known) == 0 {
		return coord.UnknownVersion, false
	}

	if requested.IsUnknown() {
		return highest(known), true
	}

	upper := requested.NextMinor()

	var below, atOrAbove []coord.Version
	for _, v := range known {
		if v.Less(upper) {
			below = append(below, v)
		} else {
			atOrAbove = append(atOrAbove, v)
		}
	}
	if len(below) > 0 {
		return highest(below), true
	}
	return lowest(atOrAbove), true
}

func highest(vs []coord.Version) coord.Version {
	best := vs[0]
	for _, v := range vs[1:] {
		if best.Less(v) {
			best = v
		}
	}
	return best
}

func lowest(vs []coord.Version) coord.Version {
	best := vs[0]
	for _, v := range vs[1:] {
		if v.Less(best) {
			best = v
		}
	}
	return best
}
