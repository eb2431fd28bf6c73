package archive

import (
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ManifestEntry is the name of the manifest inside an archive.
	ManifestEntry = "manifest.yaml"
	// ModelSuffix is appended to every serialized model entry.
	ModelSuffix = ".model"
	// FormatVersion is the archive layout version written by Write.
	FormatVersion = 1
)

// Manifest describes an archive. It is read once when the archive is opened.
type Manifest struct {
	FormatVersion int       `yaml:"formatVersion" json:"formatVersion"`
	Coordinate    string    `yaml:"coordinate" json:"coordinate"`
	BuiltAt       time.Time `yaml:"builtAt" json:"builtAt"`
	Types         []string  `yaml:"types" json:"types"`
}

// EntryName returns the archive entry holding the model of typeID,
// e.g. "org/eclipse/swt/widgets/Button" -> "org.eclipse.swt.widgets.Button.model".
func EntryName(typeID string) string {
	return strings.ReplaceAll(typeID, "/", ".") + ModelSuffix
}

func readManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse %s: %w", ManifestEntry, err)
	}
	if m.FormatVersion != FormatVersion {
		return Manifest{}, fmt.Errorf("unsupported archive format version %d", m.FormatVersion)
	}
	return m, nil
}

func writeManifest(w io.Writer, m Manifest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return enc.Close()
}
