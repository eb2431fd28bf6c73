// Package index is the local artifact index: it maps content fingerprints
// and symbolic names of libraries to the model archives trained for them.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"callrec/internal/coord"
	"callrec/internal/slogutil"
)

const currentSchemaVersion = 1

const indexSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS artifacts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    group_id TEXT NOT NULL,
    artifact_id TEXT NOT NULL,
    extension TEXT NOT NULL DEFAULT 'zip',
    classifier TEXT NOT NULL DEFAULT '',
    version TEXT NOT NULL,
    major INTEGER NOT NULL,
    minor INTEGER NOT NULL,
    patch INTEGER NOT NULL,
    fingerprint TEXT,               -- hex SHA-1 of the library content
    symbolic_name TEXT,             -- e.g. bundle symbolic name
    added_at TEXT NOT NULL,
    UNIQUE(group_id, artifact_id, extension, classifier, version)
);
CREATE INDEX IF NOT EXISTS idx_artifacts_fingerprint ON artifacts(fingerprint);
CREATE INDEX IF NOT EXISTS idx_artifacts_symbolic ON artifacts(symbolic_name);
CREATE INDEX IF NOT EXISTS idx_artifacts_base ON artifacts(group_id, artifact_id, extension, classifier);
`

// Entry is one registered model archive.
type Entry struct {
	Coordinate   coord.Coordinate `json:"coordinate"`
	Fingerprint  string           `json:"fingerprint,omitempty"`
	SymbolicName string           `json:"symbolicName,omitempty"`
	AddedAt      time.Time        `json:"addedAt"`
}

// Index is the SQLite-backed artifact index.
type Index struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens or creates the index database at path.
func Open(path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("Opened artifact index", "path", path)
	return &Index{db: db, path: path, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("index schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (i *Index) Close() error {
	return i.db.Close()
}

// Path returns the database location.
func (i *Index) Path() string {
	return i.path
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Add registers an archive. Re-adding the same coordinate replaces its
// fingerprint and symbolic name.
func (i *Index) Add(ctx context.Context, e Entry) error {
	if err := addEntry(ctx, i.db, e); err != nil {
		return err
	}
	i.logger.Debug("Registered artifact", "coordinate", e.Coordinate.String())
	return nil
}

func addEntry(ctx context.Context, ex execer, e Entry) error {
	c := e.Coordinate
	if c.GroupID == "" || c.ArtifactID == "" {
		return fmt.Errorf("entry has no groupId or artifactId")
	}
	if c.Version.IsUnknown() {
		return fmt.Errorf("entry %s has no version", c.BaseKey())
	}
	if e.Fingerprint == "" && e.SymbolicName == "" {
		return fmt.Errorf("entry %s has neither fingerprint nor symbolic name", c)
	}
	if e.AddedAt.IsZero() {
		e.AddedAt = time.Now().UTC()
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO artifacts (group_id, artifact_id, extension, classifier, version, major, minor, patch, fingerprint, symbolic_name, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id, artifact_id, extension, classifier, version) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			symbolic_name = excluded.symbolic_name,
			added_at = excluded.added_at
	`, c.GroupID, c.ArtifactID, c.Ext(), c.Classifier, c.Version.String(),
		int64(c.Version.Major()), int64(c.Version.Minor()), int64(c.Version.Patch()),
		nullString(e.Fingerprint), nullString(e.SymbolicName), e.AddedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", c, err)
	}
	return nil
}

// Remove unregisters one archive version. It reports whether a row existed.
func (i *Index) Remove(ctx context.Context, c coord.Coordinate) (bool, error) {
	res, err := i.db.ExecContext(ctx, `
		DELETE FROM artifacts
		WHERE group_id = ? AND artifact_id = ? AND extension = ? AND classifier = ? AND version = ?
	`, c.GroupID, c.ArtifactID, c.Ext(), c.Classifier, c.Version.String())
	if err != nil {
		return false, fmt.Errorf("failed to remove %s: %w", c, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindByFingerprint returns the base coordinate of the archive registered
// for the library with the given content hash.
func (i *Index) FindByFingerprint(ctx context.Context, fingerprint string) (coord.Coordinate, bool, error) {
	return i.findBase(ctx, "fingerprint", fingerprint)
}

// FindBySymbolicName returns the base coordinate of the archive registered
// for the library with the given symbolic name.
func (i *Index) FindBySymbolicName(ctx context.Context, name string) (coord.Coordinate, bool, error) {
	return i.findBase(ctx, "symbolic_name", name)
}

func (i *Index) findBase(ctx context.Context, column, value string) (coord.Coordinate, bool, error) {
	if value == "" {
		return coord.Coordinate{}, false, nil
	}
	// column is one of two constants above.
	row := i.db.QueryRowContext(ctx, `
		SELECT group_id, artifact_id, extension, classifier
		FROM artifacts
		WHERE `+column+` = ?
		ORDER BY major DESC, minor DESC, patch DESC, id DESC
		LIMIT 1
	`, value)

	var c coord.Coordinate
	err := row.Scan(&c.GroupID, &c.ArtifactID, &c.Extension, &c.Classifier)
	if err == sql.ErrNoRows {
		return coord.Coordinate{}, false, nil
	}
	if err != nil {
		return coord.Coordinate{}, false, fmt.Errorf("failed to look up %s %q: %w", column, value, err)
	}
	return c, true, nil
}

// Versions returns every registered version of base, in ascending order.
func (i *Index) Versions(ctx context.Context, base coord.Coordinate) ([]coord.Version, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT version FROM artifacts
		WHERE group_id = ? AND artifact_id = ? AND extension = ? AND classifier = ?
	`, base.GroupID, base.ArtifactID, base.Ext(), base.Classifier)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions of %s: %w", base.BaseKey(), err)
	}
	defer rows.Close()

	var versions []coord.Version
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		v, err := coord.ParseVersion(s)
		if err != nil {
			i.logger.Warn("Skipping unparseable version in index", "coordinate", base.BaseKey(), "version", s)
			continue
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(versions, func(a, b int) bool { return versions[a].Less(versions[b]) })
	return versions, nil
}

// List returns every entry, ordered by coordinate.
func (i *Index) List(ctx context.Context) ([]Entry, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT group_id, artifact_id, extension, classifier, version, fingerprint, symbolic_name, added_at
		FROM artifacts
		ORDER BY group_id, artifact_id, extension, classifier, major, minor, patch
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			version, addedAt  string
			fingerprint, name sql.NullString
		)
		c := &e.Coordinate
		if err := rows.Scan(&c.GroupID, &c.ArtifactID, &c.Extension, &c.Classifier, &version, &fingerprint, &name, &addedAt); err != nil {
			return nil, err
		}
		if c.Version, err = coord.ParseVersion(version); err != nil {
			return nil, err
		}
		e.Fingerprint = fingerprint.String
		e.SymbolicName = name.String
		e.AddedAt, _ = time.Parse(time.RFC3339, addedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
