// Package archive opens model archives and pools the models they contain.
//
// An archive is a zip file holding manifest.yaml and one serialized model
// per type. Models are loaded lazily, at most once per type, and handed
// out as leases. At most Capacity leases may be outstanding per archive;
// beyond that AcquireModel fails immediately with POOL_EXHAUSTED.
package archive

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"callrec/internal/errors"
	"callrec/internal/model"
	"callrec/internal/slogutil"
)

// DefaultCapacity is the default number of simultaneous leases per archive.
const DefaultCapacity = 100

// Options configures an Archive.
type Options struct {
	// Capacity limits simultaneously borrowed instances (default DefaultCapacity).
	Capacity int
	// Logger receives load and corruption events (default discards).
	Logger *slog.Logger
	// OnLoad, when set, is called after a type's model was deserialized.
	OnLoad func(typeID string, elapsed time.Duration)
}

// Archive is one opened model archive.
type Archive struct {
	path     string
	reader   *zip.ReadCloser
	manifest Manifest
	entries  map[string]*zip.File
	types    map[string]struct{}
	capacity int
	logger   *slog.Logger
	onLoad   func(string, time.Duration)

	sem   *semaphore.Weighted
	loads singleflight.Group

	mu         sync.RWMutex
	pools      map[string]*typePool
	closed     bool
	corruptErr error

	generation atomic.Uint64
}

// Open reads the manifest and entry index of the archive at path.
// No model is deserialized.
func Open(path string, opts Options) (*Archive, error) {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.New(errors.CorruptArchive, fmt.Sprintf("cannot open archive %s", path), err)
	}
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	entries := make(map[string]*zip.File, len(zr.File))
	var manifestFile *zip.File
	for _, f := range zr.File {
		if f.Name == ManifestEntry {
			manifestFile = f
			continue
		}
		entries[f.Name] = f
	}

	if manifestFile == nil {
		zr.Close()
		return nil, errors.Newf(errors.CorruptArchive, "archive %s has no %s", path, ManifestEntry)
	}
	manifest, err := readManifestFile(manifestFile)
	if err != nil {
		zr.Close()
		return nil, errors.New(errors.CorruptArchive, fmt.Sprintf("archive %s has an unreadable manifest", path), err)
	}
	types := make(map[string]struct{}, len(manifest.Types))
	for _, typeID := range manifest.Types {
		types[typeID] = struct{}{}
		if _, ok := entries[EntryName(typeID)]; !ok {
			zr.Close()
			return nil, errors.Newf(errors.CorruptArchive, "archive %s lists %s but has no %s entry", path, typeID, EntryName(typeID))
		}
	}

	logger.Debug("Opened model archive",
		"path", path,
		"coordinate", manifest.Coordinate,
		"types", len(manifest.Types),
	)

	return &Archive{
		path:     path,
		reader:   zr,
		manifest: manifest,
		entries:  entries,
		types:    types,
		capacity: capacity,
		logger:   logger,
		onLoad:   opts.OnLoad,
		sem:      semaphore.NewWeighted(int64(capacity)),
		pools:    make(map[string]*typePool),
	}, nil
}

func readManifestFile(f *zip.File) (Manifest, error) {
	rc, err := f.Open()
	if err != nil {
		return Manifest{}, err
	}
	defer rc.Close()
	return readManifest(rc)
}

// Path returns the archive location.
func (a *Archive) Path() string {
	return a.path
}

// Manifest returns the manifest read at open time.
func (a *Archive) Manifest() Manifest {
	return a.manifest
}

// Types returns the types listed in the manifest.
func (a *Archive) Types() []string {
	return append([]string(nil), a.manifest.Types...)
}

// Capacity returns the maximum number of simultaneous leases.
func (a *Archive) Capacity() int {
	return a.capacity
}

// HasModel reports whether the manifest lists a model for typeID.
// It never loads anything.
func (a *Archive) HasModel(typeID string) bool {
	_, ok := a.types[typeID]
	return ok
}

// AcquireModel lends out an instance of typeID's model with empty evidence.
func (a *Archive) AcquireModel(typeID string) (*Lease, error) {
	// Read before the usability check so a concurrent Close invalidates the lease.
	gen := a.generation.Load()
	if err := a.usable(); err != nil {
		return nil, err
	}
	if !a.HasModel(typeID) {
		return nil, errors.Newf(errors.NoSuchModel, "archive %s has no model for %s", a.path, typeID)
	}
	if !a.sem.TryAcquire(1) {
		return nil, errors.Newf(errors.PoolExhausted, "archive %s has %d models borrowed", a.path, a.capacity)
	}

	pool, err := a.pool(typeID)
	if err != nil {
		a.sem.Release(1)
		return nil, err
	}

	id := uuid.NewString()
	idx, m := pool.borrow(id)

	return &Lease{
		id:      id,
		archive: a,
		typeID:  typeID,
		pool:    pool,
		slot:    idx,
		model:   m,
		gen:     gen,
	}, nil
}

// ReleaseModel returns a lease's instance to the idle pool. The instance is
// not reset here; activation on the next acquire does that.
func (a *Archive) ReleaseModel(l *Lease) error {
	if l == nil || l.archive != a {
		return errors.Newf(errors.NotBorrowed, "lease does not belong to archive %s", a.path)
	}
	if l.gen != a.generation.Load() {
		return errors.Newf(errors.ArchiveClosed, "archive %s was closed", a.path)
	}
	if !l.released.CompareAndSwap(false, true) {
		return errors.Newf(errors.NotBorrowed, "lease %s was already released", l.id)
	}
	if !l.pool.giveBack(l.slot, l.id) {
		return errors.Newf(errors.NotBorrowed, "lease %s is not borrowed", l.id)
	}
	a.sem.Release(1)
	return nil
}

// Close releases the archive file. Outstanding leases become invalid.
func (a *Archive) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.generation.Add(1)
	a.pools = make(map[string]*typePool)
	a.mu.Unlock()

	a.logger.Debug("Closed model archive", "path", a.path)
	return a.reader.Close()
}

// Corrupt reports whether a model entry failed to load.
func (a *Archive) Corrupt() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.corruptErr != nil
}

func (a *Archive) usable() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return errors.Newf(errors.ArchiveClosed, "archive %s is closed", a.path)
	}
	if a.corruptErr != nil {
		return errors.New(errors.CorruptArchive, fmt.Sprintf("archive %s is unusable", a.path), a.corruptErr)
	}
	return nil
}

// pool returns typeID's pool, loading the model on first use. Concurrent
// first acquisitions share a single load.
func (a *Archive) pool(typeID string) (*typePool, error) {
	a.mu.RLock()
	p, ok := a.pools[typeID]
	a.mu.RUnlock()
	if ok {
		return p, nil
	}

	v, err, _ := a.loads.Do(typeID, func() (interface{}, error) {
		a.mu.RLock()
		p, ok := a.pools[typeID]
		a.mu.RUnlock()
		if ok {
			return p, nil
		}

		start := time.Now()
		net, err := a.load(typeID)
		if err != nil {
			return nil, err
		}

		a.mu.Lock()
		defer a.mu.Unlock()
		if a.closed {
			return nil, errors.Newf(errors.ArchiveClosed, "archive %s is closed", a.path)
		}
		p = newTypePool(net)
		a.pools[typeID] = p

		elapsed := time.Since(start)
		a.logger.Debug("Loaded model", "type", typeID, "methods", len(net.Methods()), "duration", elapsed)
		if a.onLoad != nil {
			a.onLoad(typeID, elapsed)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*typePool), nil
}

// load deserializes typeID's model. Failures mark the archive unusable.
func (a *Archive) load(typeID string) (*model.Network, error) {
	f := a.entries[EntryName(typeID)]

	net, err := decodeEntry(f)
	if err == nil && net.TypeID() != typeID {
		err = fmt.Errorf("entry %s holds model for %s", f.Name, net.TypeID())
	}
	if err != nil {
		a.mu.Lock()
		if a.corruptErr == nil {
			a.corruptErr = err
		}
		a.mu.Unlock()
		a.logger.Error("Model archive is corrupt", "path", a.path, "type", typeID, "error", err.Error())
		return nil, errors.New(errors.CorruptArchive, fmt.Sprintf("cannot load %s from %s", typeID, a.path), err)
	}
	return net, nil
}

func decodeEntry(f *zip.File) (*model.Network, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return model.Decode(data)
}

// Stats describes the current pool state of an archive.
type Stats struct {
	Capacity    int            `json:"capacity"`
	LoadedTypes int            `json:"loadedTypes"`
	Borrowed    int            `json:"borrowed"`
	Idle        int            `json:"idle"`
	PerType     map[string]int `json:"borrowedPerType,omitempty"`
}

// Stats returns a snapshot of pool usage.
func (a *Archive) Stats() Stats {
	a.mu.RLock()
	pools := make(map[string]*typePool, len(a.pools))
	for k, v := range a.pools {
		pools[k] = v
	}
	a.mu.RUnlock()

	s := Stats{Capacity: a.capacity, LoadedTypes: len(pools), PerType: make(map[string]int, len(pools))}
	for typeID, p := range pools {
		borrowed, idle := p.counts()
		s.Borrowed += borrowed
		s.Idle += idle
		s.PerType[typeID] = borrowed
	}
	return s
}
