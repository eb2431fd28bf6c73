// Package store is the single entry point for obtaining usage models.
//
// It resolves a dependency to an archive coordinate, makes the archive
// available through a Transport, keeps one open Archive per coordinate and
// tracks which archive every outstanding lease came from.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"callrec/internal/archive"
	"callrec/internal/coord"
	"callrec/internal/errors"
	"callrec/internal/metrics"
	"callrec/internal/model"
	"callrec/internal/slogutil"
)

// Defaults for Options.
const (
	DefaultMaxResolutions = 1024
	DefaultResolutionTTL  = time.Hour
)

// Resolver maps dependencies to archive coordinates.
type Resolver interface {
	Resolve(ctx context.Context, dep coord.Dependency) (coord.Coordinate, error)
}

// LookupKey names the model wanted: a type within a dependency.
type LookupKey struct {
	TypeID     string           `json:"typeId"`
	Dependency coord.Dependency `json:"dependency"`
}

func (k LookupKey) String() string {
	return k.TypeID + " in " + k.Dependency.String()
}

// Options configures a Store.
type Options struct {
	// Capacity is the per-archive borrow limit (default archive.DefaultCapacity).
	Capacity int
	// MaxResolutions bounds the resolution cache (default DefaultMaxResolutions).
	MaxResolutions int
	// ResolutionTTL expires cached resolutions (default DefaultResolutionTTL).
	ResolutionTTL time.Duration
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// Borrowed is a model handed out by the store.
type Borrowed struct {
	Key        LookupKey
	Coordinate coord.Coordinate
	lease      *archive.Lease
}

// Model returns the borrowed instance.
func (b *Borrowed) Model() (*model.Model, error) {
	return b.lease.Model()
}

// LeaseID returns the id of the underlying lease.
func (b *Borrowed) LeaseID() string {
	return b.lease.ID()
}

// resolution is a cached Resolve result; err is set for cached misses.
type resolution struct {
	coordinate coord.Coordinate
	err        error
}

// Store owns open archives and the resolution cache.
type Store struct {
	resolver  Resolver
	transport Transport
	capacity  int
	logger    *slog.Logger
	metrics   *metrics.Metrics

	resolutions *expirable.LRU[string, resolution]
	opens       singleflight.Group

	mu       sync.Mutex
	archives map[string]*archive.Archive
	broken   map[string]error
	closed   bool

	leasesMu sync.Mutex
	leases   map[string]*archive.Archive
}

// New creates a Store.
func New(resolver Resolver, transport Transport, opts Options) *Store {
	if opts.Capacity <= 0 {
		opts.Capacity = archive.DefaultCapacity
	}
	if opts.MaxResolutions <= 0 {
		opts.MaxResolutions = DefaultMaxResolutions
	}
	if opts.ResolutionTTL <= 0 {
		opts.ResolutionTTL = DefaultResolutionTTL
	}
	if opts.Logger == nil {
		opts.Logger = slogutil.NewDiscardLogger()
	}

	return &Store{
		resolver:    resolver,
		transport:   transport,
		capacity:    opts.Capacity,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		resolutions: expirable.NewLRU[string, resolution](opts.MaxResolutions, nil, opts.ResolutionTTL),
		archives:    make(map[string]*archive.Archive),
		broken:      make(map[string]error),
		leases:      make(map[string]*archive.Archive),
	}
}

// Acquire borrows the model for key. Every failure carries an error code;
// errors.IsUnavailable distinguishes "no model" outcomes from real faults.
func (s *Store) Acquire(ctx context.Context, key LookupKey) (*Borrowed, error) {
	b, err := s.acquire(ctx, key)
	s.metrics.RecordAcquisition(outcome(err))
	return b, err
}

func (s *Store) acquire(ctx context.Context, key LookupKey) (*Borrowed, error) {
	if key.TypeID == "" {
		return nil, errors.Newf(errors.InvalidInput, "lookup key has no type")
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	c, err := s.resolve(ctx, key.Dependency)
	if err != nil {
		return nil, err
	}

	a, err := s.archive(ctx, c)
	if err != nil {
		return nil, err
	}

	lease, err := a.AcquireModel(key.TypeID)
	if err != nil {
		if errors.HasCode(err, errors.CorruptArchive) {
			s.markBroken(c, err)
		}
		return nil, err
	}

	s.leasesMu.Lock()
	s.leases[lease.ID()] = a
	s.leasesMu.Unlock()

	return &Borrowed{Key: key, Coordinate: c, lease: lease}, nil
}

// TryAcquire is Acquire for callers that only care whether a model is
// available. Expected misses are logged at debug level, pool exhaustion as
// a warning and corrupt archives as errors; none of them reach the caller.
func (s *Store) TryAcquire(ctx context.Context, key LookupKey) (*Borrowed, bool) {
	b, err := s.Acquire(ctx, key)
	if err == nil {
		return b, true
	}

	switch errors.CodeOf(err) {
	case errors.PoolExhausted:
		s.logger.Warn("Model pool exhausted", "key", key.String(), "error", err.Error())
	case errors.CorruptArchive:
		s.logger.Error("Model archive is unusable", "key", key.String(), "error", err.Error())
	case errors.NotFound, errors.NoCompatibleVersion, errors.NoSuchModel, errors.TransportFailed, errors.ArchiveClosed:
		s.logger.Debug("No model available", "key", key.String(), "reason", string(errors.CodeOf(err)))
	default:
		s.logger.Error("Model acquisition failed", "key", key.String(), "error", err.Error())
	}
	return nil, false
}

// Release returns a borrowed model. Releasing something the store is not
// tracking is a no-op.
func (s *Store) Release(b *Borrowed) error {
	if b == nil || b.lease == nil {
		return nil
	}

	s.leasesMu.Lock()
	a, ok := s.leases[b.lease.ID()]
	delete(s.leases, b.lease.ID())
	s.leasesMu.Unlock()

	if !ok {
		s.logger.Warn("Ignoring release of untracked model", "lease", b.lease.ID(), "key", b.Key.String())
		return nil
	}
	if err := a.ReleaseModel(b.lease); err != nil {
		return err
	}
	s.metrics.RecordRelease()
	return nil
}

// Close closes every archive and empties all caches. Outstanding borrows
// become invalid.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	archives := s.archives
	s.archives = make(map[string]*archive.Archive)
	s.broken = make(map[string]error)
	s.mu.Unlock()

	s.leasesMu.Lock()
	orphaned := len(s.leases)
	s.leases = make(map[string]*archive.Archive)
	s.leasesMu.Unlock()

	s.resolutions.Purge()

	var firstErr error
	for key, a := range archives {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close archive %s: %w", key, err)
		}
	}
	s.metrics.RecordArchivesClosed(len(archives), orphaned)
	s.logger.Debug("Closed model store", "archives", len(archives), "orphanedLeases", orphaned)
	return firstErr
}

// Stats describes the store's current state.
type Stats struct {
	OpenArchives      int                      `json:"openArchives"`
	BrokenArchives    []string                 `json:"brokenArchives,omitempty"`
	Borrowed          int                      `json:"borrowed"`
	CachedResolutions int                      `json:"cachedResolutions"`
	Archives          map[string]archive.Stats `json:"archives,omitempty"`
}

// Stats returns a snapshot of the store.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		OpenArchives: len(s.archives),
		Archives:     make(map[string]archive.Stats, len(s.archives)),
	}
	archives := make(map[string]*archive.Archive, len(s.archives))
	for k, a := range s.archives {
		archives[k] = a
	}
	for k := range s.broken {
		st.BrokenArchives = append(st.BrokenArchives, k)
	}
	s.mu.Unlock()

	for k, a := range archives {
		st.Archives[k] = a.Stats()
	}

	s.leasesMu.Lock()
	st.Borrowed = len(s.leases)
	s.leasesMu.Unlock()

	st.CachedResolutions = s.resolutions.Len()
	return st
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Newf(errors.ArchiveClosed, "model store is closed")
	}
	return nil
}

// resolve consults the resolution cache before the resolver. Expected
// misses are cached as well as hits.
func (s *Store) resolve(ctx context.Context, dep coord.Dependency) (coord.Coordinate, error) {
	key := dep.Key()
	if r, ok := s.resolutions.Get(key); ok {
		s.metrics.RecordResolutionCache(true)
		return r.coordinate, r.err
	}
	s.metrics.RecordResolutionCache(false)

	c, err := s.resolver.Resolve(ctx, dep)
	if err != nil {
		if errors.HasCode(err, errors.NotFound) || errors.HasCode(err, errors.NoCompatibleVersion) {
			s.resolutions.Add(key, resolution{err: err})
		}
		return coord.Coordinate{}, err
	}
	s.resolutions.Add(key, resolution{coordinate: c})
	return c, nil
}

// archive returns the open archive for c, opening it once.
func (s *Store) archive(ctx context.Context, c coord.Coordinate) (*archive.Archive, error) {
	key := c.String()

	s.mu.Lock()
	if err, ok := s.broken[key]; ok {
		s.mu.Unlock()
		return nil, errors.New(errors.CorruptArchive, fmt.Sprintf("archive %s is marked unusable", key), err)
	}
	if a, ok := s.archives[key]; ok {
		s.mu.Unlock()
		return a, nil
	}
	s.mu.Unlock()

	v, err, _ := s.opens.Do(key, func() (interface{}, error) {
		s.mu.Lock()
		if a, ok := s.archives[key]; ok {
			s.mu.Unlock()
			return a, nil
		}
		s.mu.Unlock()

		// Shared by every waiter: one caller's cancellation must not fail the others.
		path, err := s.transport.Fetch(context.WithoutCancel(ctx), c)
		if err != nil {
			if errors.CodeOf(err) == errors.InternalError {
				err = errors.New(errors.TransportFailed, fmt.Sprintf("cannot fetch %s", key), err)
			}
			return nil, err
		}

		a, err := archive.Open(path, archive.Options{
			Capacity: s.capacity,
			Logger:   s.logger,
			OnLoad: func(typeID string, d time.Duration) {
				s.metrics.RecordModelLoad(key, d)
			},
		})
		s.metrics.RecordArchiveOpen(err)
		if err != nil {
			s.markBroken(c, err)
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			a.Close()
			s.metrics.RecordArchivesClosed(1, 0)
			return nil, errors.Newf(errors.ArchiveClosed, "model store is closed")
		}
		s.archives[key] = a
		s.logger.Info("Opened model archive", "coordinate", key, "path", path, "types", len(a.Types()))
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*archive.Archive), nil
}

// markBroken makes c unusable for the lifetime of the store.
func (s *Store) markBroken(c coord.Coordinate, err error) {
	key := c.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.broken[key]; ok {
		return
	}
	s.broken[key] = err
	s.logger.Error("Marked model archive unusable", "coordinate", key, "error", err.Error())
}

func outcome(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	switch errors.CodeOf(err) {
	case errors.NotFound:
		return metrics.OutcomeNotFound
	case errors.NoCompatibleVersion:
		return metrics.OutcomeNoVersion
	case errors.NoSuchModel:
		return metrics.OutcomeNoSuchModel
	case errors.PoolExhausted:
		return metrics.OutcomeExhausted
	case errors.CorruptArchive:
		return metrics.OutcomeCorrupt
	case errors.TransportFailed:
		return metrics.OutcomeTransport
	default:
		return metrics.OutcomeError
	}
}
