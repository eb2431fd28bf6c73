package coord

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is a library or model archive version.
// The zero value is the unknown version.
type Version struct {
	sv  *semver.Version
	raw string
}

// UnknownVersion is used when a dependency does not declare a usable version.
var UnknownVersion = Version{}

// NewVersion creates a release version major.minor.patch.
func NewVersion(major, minor, patch uint64) Version {
	sv := semver.New(major, minor, patch, "", "")
	return Version{sv: sv, raw: sv.String()}
}

// ParseVersion parses a version string.
//
// Besides semantic versions it accepts OSGi-style versions whose fourth
// segment is a qualifier ("3.8.0.v20120912"); the qualifier is kept as
// build metadata and does not take part in ordering. An empty string or
// "unknown" yields UnknownVersion.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "unknown") {
		return UnknownVersion, nil
	}

	sv, err := semver.NewVersion(normalizeOSGi(s))
	if err != nil {
		return UnknownVersion, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return Version{sv: sv, raw: s}, nil
}

// MustParseVersion is ParseVersion for literals; it panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// normalizeOSGi turns "1.2.3.qualifier" into "1.2.3+qualifier".
func normalizeOSGi(s string) string {
	parts := strings.SplitN(s, ".", 4)
	if len(parts) < 4 {
		return s
	}
	for _, p := range parts[:3] {
		if p == "" || strings.Trim(p, "0123456789") != "" {
			return s
		}
	}
	qualifier := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '.':
			return r
		default:
			return '-'
		}
	}, parts[3])
	return parts[0] + "." + parts[1] + "." + parts[2] + "+" + qualifier
}

// IsUnknown reports whether v is the unknown version.
func (v Version) IsUnknown() bool {
	return v.sv == nil
}

// Major returns the major component (0 when unknown).
func (v Version) Major() uint64 {
	if v.sv == nil {
		return 0
	}
	return v.sv.Major()
}

// Minor returns the minor component (0 when unknown).
func (v Version) Minor() uint64 {
	if v.sv == nil {
		return 0
	}
	return v.sv.Minor()
}

// Patch returns the patch component (0 when unknown).
func (v Version) Patch() uint64 {
	if v.sv == nil {
		return 0
	}
	return v.sv.Patch()
}

// NextMinor returns (major, minor+1, 0), the exclusive upper bound of v's minor line.
func (v Version) NextMinor() Version {
	return NewVersion(v.Major(), v.Minor()+1, 0)
}

// Compare returns -1, 0 or +1. The unknown version sorts before every known one.
func (v Version) Compare(o Version) int {
	switch {
	case v.sv == nil && o.sv == nil:
		return 0
	case v.sv == nil:
		return -1
	case o.sv == nil:
		return 1
	}
	return v.sv.Compare(o.sv)
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// Equal reports whether v and o have the same precedence.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

// String returns the version as originally written, or "unknown".
func (v Version) String() string {
	if v.sv == nil {
		return "unknown"
	}
	return v.raw
}
