package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"callrec/internal/archive"
	"callrec/internal/coord"
	"callrec/internal/errors"
	"callrec/internal/metrics"
	"callrec/internal/model"
)

const typeComposite = "org/eclipse/swt/widgets/Composite"

// mapResolver resolves symbolic names from a fixed table and counts calls.
type mapResolver struct {
	table map[string]coord.Coordinate
	calls atomic.Int32
}

func (r *mapResolver) Resolve(_ context.Context, dep coord.Dependency) (coord.Coordinate, error) {
	r.calls.Add(1)
	c, ok := r.table[dep.SymbolicName]
	if !ok {
		return coord.Coordinate{}, errors.Newf(errors.NotFound, "no archive for %s", dep)
	}
	return c, nil
}

type fixture struct {
	repo     LocalRepository
	resolver *mapResolver
	coord    coord.Coordinate
	key      LookupKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := LocalRepository{Root: t.TempDir()}
	c := coord.Coordinate{GroupID: "org.eclipse", ArtifactID: "swt", Version: coord.NewVersion(1, 0, 0)}

	net, err := model.Build(typeComposite, []model.Observation{
		{Methods: []string{"A", "B"}, Frequency: 3},
		{Methods: []string{"A"}, Frequency: 1},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := archive.Write(repo.Path(c), archive.Manifest{Coordinate: c.String()}, []*model.Network{net}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	return &fixture{
		repo:     repo,
		resolver: &mapResolver{table: map[string]coord.Coordinate{"org.eclipse.swt": c}},
		coord:    c,
		key: LookupKey{
			TypeID:     typeComposite,
			Dependency: coord.Dependency{SymbolicName: "org.eclipse.swt", Version: coord.NewVersion(1, 0, 5)},
		},
	}
}

func (f *fixture) store(t *testing.T, opts Options) *Store {
	t.Helper()
	s := New(f.resolver, f.repo, opts)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AcquireAndRecommend(t *testing.T) {
	f := newFixture(t)
	s := f.store(t, Options{})

	b, err := s.Acquire(context.Background(), f.key)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if b.Coordinate.String() != f.coord.String() {
		t.Errorf("Coordinate = %s, want %s", b.Coordinate, f.coord)
	}

	m, err := b.Model()
	if err != nil {
		t.Fatalf("Model failed: %v", err)
	}
	m.SetObservedMethod("A")
	recs := m.Recommend()
	if len(recs) != 1 || recs[0].Method != "B" || recs[0].Probability <= 0.5 {
		t.Errorf("Recommend = %+v, want B above 0.5", recs)
	}

	if st := s.Stats(); st.Borrowed != 1 || st.OpenArchives != 1 {
		t.Errorf("Stats = %+v, want 1 borrowed in 1 archive", st)
	}
	if err := s.Release(b); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if st := s.Stats(); st.Borrowed != 0 {
		t.Errorf("Borrowed = %d after release", st.Borrowed)
	}
}

func TestStore_ResolutionCache(t *testing.T) {
	f := newFixture(t)
	s := f.store(t, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b, err := s.Acquire(ctx, f.key)
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		s.Release(b)
	}

	miss := LookupKey{TypeID: typeComposite, Dependency: coord.Dependency{SymbolicName: "com.example.none"}}
	for i := 0; i < 3; i++ {
		if _, err := s.Acquire(ctx, miss); !errors.HasCode(err, errors.NotFound) {
			t.Fatalf("Acquire error = %v, want %s", err, errors.NotFound)
		}
	}

	if got := f.resolver.calls.Load(); got != 2 {
		t.Errorf("resolver called %d times, want 2 (one hit, one miss)", got)
	}
	if got := s.Stats().CachedResolutions; got != 2 {
		t.Errorf("CachedResolutions = %d, want 2", got)
	}
}

func TestStore_Misses(t *testing.T) {
	f := newFixture(t)
	s := f.store(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name string
		key  LookupKey
		code errors.ErrorCode
	}{
		{"unknown dependency", LookupKey{TypeID: typeComposite, Dependency: coord.Dependency{SymbolicName: "x"}}, errors.NotFound},
		{"type not in archive", LookupKey{TypeID: "java/lang/Object", Dependency: f.key.Dependency}, errors.NoSuchModel},
		{"no type", LookupKey{Dependency: f.key.Dependency}, errors.InvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Acquire(ctx, tt.key)
			if !errors.HasCode(err, tt.code) {
				t.Errorf("Acquire error = %v, want %s", err, tt.code)
			}
			if _, ok := s.TryAcquire(ctx, tt.key); ok {
				t.Error("TryAcquire should report no model")
			}
		})
	}
}

func TestStore_TransportFailure(t *testing.T) {
	f := newFixture(t)
	f.resolver.table["org.eclipse.swt"] = f.coord.WithVersion(coord.NewVersion(9, 9, 9))
	s := f.store(t, Options{})

	_, err := s.Acquire(context.Background(), f.key)
	if !errors.HasCode(err, errors.TransportFailed) {
		t.Errorf("Acquire error = %v, want %s", err, errors.TransportFailed)
	}
}

func TestStore_FetchIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t)
	s := f.store(t, Options{})

	// The archive open is shared between callers, so it runs detached from
	// the cancellation of whichever caller started it.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b, err := s.Acquire(ctx, f.key)
	if err != nil {
		t.Fatalf("Acquire error = %v, want success", err)
	}
	if err := s.Release(b); err != nil {
		t.Errorf("Release failed: %v", err)
	}
}

func TestStore_PoolExhausted(t *testing.T) {
	f := newFixture(t)
	s := f.store(t, Options{Capacity: 1})
	ctx := context.Background()

	b, ok := s.TryAcquire(ctx, f.key)
	if !ok {
		t.Fatal("first TryAcquire should succeed")
	}
	if _, ok := s.TryAcquire(ctx, f.key); ok {
		t.Fatal("second TryAcquire should fail with capacity 1")
	}
	if _, err := s.Acquire(ctx, f.key); !errors.HasCode(err, errors.PoolExhausted) {
		t.Errorf("Acquire error = %v, want %s", err, errors.PoolExhausted)
	}

	s.Release(b)
	b, ok = s.TryAcquire(ctx, f.key)
	if !ok {
		t.Fatal("TryAcquire after release should succeed")
	}
	s.Release(b)
}

func TestStore_CorruptArchiveMarkedUnusable(t *testing.T) {
	f := newFixture(t)
	// Overwrite the archive with bytes that are not a zip.
	if err := os.WriteFile(f.repo.Path(f.coord), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	s := f.store(t, Options{})
	ctx := context.Background()

	if _, err := s.Acquire(ctx, f.key); !errors.HasCode(err, errors.CorruptArchive) {
		t.Fatalf("Acquire error = %v, want %s", err, errors.CorruptArchive)
	}
	if _, ok := s.TryAcquire(ctx, f.key); ok {
		t.Error("TryAcquire should fail for a corrupt archive")
	}
	if got := s.Stats().BrokenArchives; len(got) != 1 || got[0] != f.coord.String() {
		t.Errorf("BrokenArchives = %v", got)
	}
}

func TestStore_ReleaseUntracked(t *testing.T) {
	f := newFixture(t)
	s := f.store(t, Options{})
	other := f.store(t, Options{})

	b, err := other.Acquire(context.Background(), f.key)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := s.Release(b); err != nil {
		t.Errorf("untracked Release should be a no-op, got %v", err)
	}
	if err := s.Release(nil); err != nil {
		t.Errorf("nil Release should be a no-op, got %v", err)
	}
	// The owner still tracks the borrow.
	if err := other.Release(b); err != nil {
		t.Errorf("Release failed: %v", err)
	}
	if err := other.Release(b); err != nil {
		t.Errorf("second Release should be a no-op, got %v", err)
	}
}

func TestStore_Close(t *testing.T) {
	f := newFixture(t)
	s := New(f.resolver, f.repo, Options{})
	ctx := context.Background()

	b, err := s.Acquire(ctx, f.key)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := b.Model(); !errors.HasCode(err, errors.ArchiveClosed) {
		t.Errorf("Model after close error = %v, want %s", err, errors.ArchiveClosed)
	}
	if err := s.Release(b); err != nil {
		t.Errorf("Release after close should be a no-op, got %v", err)
	}
	if _, err := s.Acquire(ctx, f.key); !errors.HasCode(err, errors.ArchiveClosed) {
		t.Errorf("Acquire after close error = %v, want %s", err, errors.ArchiveClosed)
	}
	if st := s.Stats(); st.OpenArchives != 0 || st.CachedResolutions != 0 {
		t.Errorf("Stats after close = %+v", st)
	}
}

func TestStore_ConcurrentAcquireOpensOnce(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	s := f.store(t, Options{Capacity: 64, Metrics: metrics.New(reg)})
	ctx := context.Background()

	var wg sync.WaitGroup
	borrowed := make(chan *Borrowed, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := s.Acquire(ctx, f.key)
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			borrowed <- b
		}()
	}
	wg.Wait()
	close(borrowed)

	for b := range borrowed {
		if err := s.Release(b); err != nil {
			t.Errorf("Release failed: %v", err)
		}
	}

	if st := s.Stats(); st.OpenArchives != 1 {
		t.Errorf("OpenArchives = %d, want 1", st.OpenArchives)
	}

	count, err := testutil.GatherAndCount(reg, "callrec_store_archive_opens_total")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("archive open series = %d, want 1", count)
	}
	count, err = testutil.GatherAndCount(reg, "callrec_store_acquisitions_total")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("acquisition outcome series = %d, want only ok", count)
	}
}

func TestLocalRepository_Path(t *testing.T) {
	repo := LocalRepository{Root: "/repo"}
	tests := []struct {
		coordinate string
		want       string
	}{
		{"org.eclipse:swt:1.0.0", "/repo/org/eclipse/swt/1.0.0/swt-1.0.0.zip"},
		{"org.eclipse:swt:zip:call:3.7.0", "/repo/org/eclipse/swt/3.7.0/swt-3.7.0-call.zip"},
		{"g:a:jar:2.0.0", "/repo/g/a/2.0.0/a-2.0.0.jar"},
	}
	for _, tt := range tests {
		t.Run(tt.coordinate, func(t *testing.T) {
			c, err := coord.ParseCoordinate(tt.coordinate)
			if err != nil {
				t.Fatal(err)
			}
			if got := repo.Path(c); got != filepath.FromSlash(tt.want) {
				t.Errorf("Path = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLocalRepository_Install(t *testing.T) {
	f := newFixture(t)
	dst := LocalRepository{Root: t.TempDir()}

	path, err := dst.Install(f.coord, f.repo.Path(f.coord))
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	fetched, err := dst.Fetch(context.Background(), f.coord)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if fetched != path {
		t.Errorf("Fetch = %s, want %s", fetched, path)
	}

	if _, err := dst.Fetch(context.Background(), f.coord.Base()); !errors.HasCode(err, errors.InvalidInput) {
		t.Errorf("Fetch without version error = %v, want %s", err, errors.InvalidInput)
	}
}
