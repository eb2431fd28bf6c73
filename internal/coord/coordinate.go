// Package coord describes model archives and the dependencies they are trained for.
package coord

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultExtension is the file extension of model archives.
const DefaultExtension = "zip"

// Coordinate identifies one model archive: groupId:artifactId[:extension[:classifier]]:version.
type Coordinate struct {
	GroupID    string  `json:"groupId" toml:"group_id" yaml:"groupId"`
	ArtifactID string  `json:"artifactId" toml:"artifact_id" yaml:"artifactId"`
	Classifier string  `json:"classifier,omitempty" toml:"classifier" yaml:"classifier,omitempty"`
	Extension  string  `json:"extension,omitempty" toml:"extension" yaml:"extension,omitempty"`
	Version    Version `json:"-" toml:"-" yaml:"-"`
}

// ParseCoordinate parses g:a:v, g:a:ext:v or g:a:ext:classifier:v.
func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.Split(s, ":")
	var c Coordinate
	var version string
	switch len(parts) {
	case 3:
		c = Coordinate{GroupID: parts[0], ArtifactID: parts[1]}
		version = parts[2]
	case 4:
		c = Coordinate{GroupID: parts[0], ArtifactID: parts[1], Extension: parts[2]}
		version = parts[3]
	case 5:
		c = Coordinate{GroupID: parts[0], ArtifactID: parts[1], Extension: parts[2], Classifier: parts[3]}
		version = parts[4]
	default:
		return Coordinate{}, fmt.Errorf("invalid coordinate %q: want groupId:artifactId[:extension[:classifier]]:version", s)
	}
	if c.GroupID == "" || c.ArtifactID == "" {
		return Coordinate{}, fmt.Errorf("invalid coordinate %q: empty groupId or artifactId", s)
	}
	v, err := ParseVersion(version)
	if err != nil {
		return Coordinate{}, err
	}
	c.Version = v
	return c, nil
}

// Ext returns the extension, defaulting to DefaultExtension.
func (c Coordinate) Ext() string {
	if c.Extension == "" {
		return DefaultExtension
	}
	return c.Extension
}

// Base returns c without its version.
func (c Coordinate) Base() Coordinate {
	c.Version = UnknownVersion
	return c
}

// WithVersion returns c with version v.
func (c Coordinate) WithVersion(v Version) Coordinate {
	c.Version = v
	return c
}

// BaseKey identifies all versions of the same archive.
func (c Coordinate) BaseKey() string {
	return c.GroupID + ":" + c.ArtifactID + ":" + c.Ext() + ":" + c.Classifier
}

// String renders the full coordinate.
func (c Coordinate) String() string {
	var b strings.Builder
	b.WriteString(c.GroupID)
	b.WriteString(":")
	b.WriteString(c.ArtifactID)
	b.WriteString(":")
	b.WriteString(c.Ext())
	if c.Classifier != "" {
		b.WriteString(":")
		b.WriteString(c.Classifier)
	}
	b.WriteString(":")
	b.WriteString(c.Version.String())
	return b.String()
}

// Dependency describes the library the code under edit uses.
// At least one of Fingerprint and SymbolicName should be set.
type Dependency struct {
	Fingerprint  string  `json:"fingerprint,omitempty"`
	SymbolicName string  `json:"symbolicName,omitempty"`
	Version      Version `json:"-"`
}

// Key is a stable cache key for the dependency.
func (d Dependency) Key() string {
	return d.Fingerprint + "|" + d.SymbolicName + "|" + d.Version.String()
}

func (d Dependency) String() string {
	switch {
	case d.SymbolicName != "":
		return d.SymbolicName + "@" + d.Version.String()
	case d.Fingerprint != "":
		return d.Fingerprint
	default:
		return "<anonymous>"
	}
}

// FingerprintFile returns the hex SHA-1 of the file's content, the
// content hash under which artifacts are registered in the index.
func FingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
