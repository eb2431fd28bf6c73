package archive

import (
	"sync/atomic"

	"callrec/internal/errors"
	"callrec/internal/model"
)

// Lease is a borrowed model instance. It is valid until released or until
// its archive is closed.
type Lease struct {
	id       string
	archive  *Archive
	typeID   string
	pool     *typePool
	slot     int
	model    *model.Model
	gen      uint64
	released atomic.Bool
}

// ID returns the unique lease id.
func (l *Lease) ID() string {
	return l.id
}

// TypeID returns the leased model's type.
func (l *Lease) TypeID() string {
	return l.typeID
}

// Archive returns the archive the lease came from.
func (l *Lease) Archive() *Archive {
	return l.archive
}

// Valid reports whether the lease may still be used.
func (l *Lease) Valid() bool {
	return !l.released.Load() && l.gen == l.archive.generation.Load()
}

// Model returns the leased instance.
func (l *Lease) Model() (*model.Model, error) {
	if l.released.Load() {
		return nil, errors.Newf(errors.NotBorrowed, "lease %s was released", l.id)
	}
	if l.gen != l.archive.generation.Load() {
		return nil, errors.Newf(errors.ArchiveClosed, "archive %s was closed", l.archive.path)
	}
	return l.model, nil
}
