package identity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sw33tLie/emuchievements/pkg/cache"
	"github.com/sw33tLie/emuchievements/pkg/library"
)

type memDocs struct {
	mu  sync.Mutex
	doc []byte
}

func (m *memDocs) ReadDocument(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc, nil
}

func (m *memDocs) WriteDocument(_ context.Context, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = doc
	return nil
}

type fakeSource struct {
	hashes      map[string]int
	single      map[string]int
	dirErr      error
	dirCalls    int32
	lookupCalls int32
}

func (f *fakeSource) FetchHashDirectory(context.Context) (map[string]int, error) {
	atomic.AddInt32(&f.dirCalls, 1)
	if f.dirErr != nil {
		return nil, f.dirErr
	}
	out := make(map[string]int, len(f.hashes))
	for k, v := range f.hashes {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSource) LookupGameIDByHash(_ context.Context, hash string) (int, bool, error) {
	atomic.AddInt32(&f.lookupCalls, 1)
	id, ok := f.single[hash]
	return id, ok, nil
}

type memSnapshot struct {
	hashes map[string]int
}

func (m *memSnapshot) SaveHashDirectory(_ context.Context, hashes map[string]int) error {
	m.hashes = hashes
	return nil
}

func (m *memSnapshot) LoadHashDirectory(context.Context) (map[string]int, error) {
	return m.hashes, nil
}

type countingHasher struct {
	result string
	calls  int32
	paths  []string
}

func (h *countingHasher) Hash(_ context.Context, path string) (string, error) {
	atomic.AddInt32(&h.calls, 1)
	h.paths = append(h.paths, path)
	return h.result, nil
}

func newTestResolver(t *testing.T, src *fakeSource, hasher Hasher) (*Resolver, *cache.Store) {
	t.Helper()
	store := cache.NewStore(cache.NewChunkedBackend(&memDocs{}), cache.Options{})
	require.NoError(t, store.Load(context.Background()))
	return NewResolver(store, hasher, NewDirectory(src, nil, nil), nil), store
}

var chronoTrigger = library.Application{
	AppID: 100,
	Name:  "Chrono Trigger",
	Exe:   "/home/deck/roms/snes/Chrono Trigger.sfc",
}

func TestResolveFromDirectory(t *testing.T) {
	src := &fakeSource{hashes: map[string]int{"abc123": 1234}}
	hasher := &countingHasher{result: "abc123"}
	r, store := newTestResolver(t, src, hasher)

	ident, err := r.Resolve(context.Background(), chronoTrigger)
	require.NoError(t, err)
	require.NotNil(t, ident.GameID)
	assert.Equal(t, 1234, *ident.GameID)
	assert.Equal(t, "abc123", ident.Hash)
	assert.Equal(t, []string{"/home/deck/roms/snes/Chrono Trigger.sfc"}, hasher.paths)

	cached, ok := store.Identity(100)
	require.True(t, ok)
	assert.Equal(t, 1234, *cached.GameID)

	// A cached positive answer does not hash again.
	_, err = r.Resolve(context.Background(), chronoTrigger)
	require.NoError(t, err)
	assert.EqualValues(t, 1, hasher.calls)
	assert.EqualValues(t, 1, src.dirCalls)
}

func TestResolveNegativeResultIsStable(t *testing.T) {
	src := &fakeSource{hashes: map[string]int{}}
	hasher := &countingHasher{result: "ffff"}
	r, _ := newTestResolver(t, src, hasher)

	for i := 0; i < 3; i++ {
		ident, err := r.Resolve(context.Background(), chronoTrigger)
		assert.True(t, errors.Is(err, ErrNoMatch))
		assert.Nil(t, ident.GameID)
	}
	assert.EqualValues(t, 1, hasher.calls)
	assert.EqualValues(t, 1, src.lookupCalls)
	assert.EqualValues(t, 1, src.dirCalls)
}

func TestResolveOverrideChangesNegativeResult(t *testing.T) {
	src := &fakeSource{hashes: map[string]int{"aaa": 55, "bbb": 55}}
	hasher := &countingHasher{result: ""}
	r, store := newTestResolver(t, src, hasher)
	ctx := context.Background()

	_, err := r.Resolve(ctx, chronoTrigger)
	require.ErrorIs(t, err, ErrNoMatch)

	require.NoError(t, store.SetOverride(ctx, 100, cache.Override{Name: "Chrono Trigger", GameID: cache.GameIDPtr(55)}))
	ident, err := r.Resolve(ctx, chronoTrigger)
	require.NoError(t, err)
	assert.Equal(t, 55, *ident.GameID)
	assert.Equal(t, "aaa", ident.Hash, "hash is back-filled from the directory")
	assert.EqualValues(t, 1, hasher.calls, "overrides skip hashing")

	o, ok := store.Override(100)
	require.True(t, ok)
	assert.Equal(t, "aaa", o.Hash)
}

func TestResolveOverrideNoMatch(t *testing.T) {
	src := &fakeSource{hashes: map[string]int{"abc123": 1234}}
	hasher := &countingHasher{result: "abc123"}
	r, store := newTestResolver(t, src, hasher)
	ctx := context.Background()

	require.NoError(t, store.SetOverride(ctx, 100, cache.Override{Name: "Chrono Trigger"}))
	_, err := r.Resolve(ctx, chronoTrigger)
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.EqualValues(t, 0, hasher.calls)
	assert.EqualValues(t, 0, src.dirCalls)
}

func TestResolveWithoutROM(t *testing.T) {
	hasher := &countingHasher{result: "abc"}
	r, store := newTestResolver(t, &fakeSource{}, hasher)

	app := library.Application{AppID: 7, Exe: "/usr/bin/steam-game"}
	_, err := r.Resolve(context.Background(), app)
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.EqualValues(t, 0, hasher.calls)

	ident, ok := store.Identity(7)
	require.True(t, ok)
	assert.Nil(t, ident.GameID)
}

func TestResolvePerHashFallback(t *testing.T) {
	src := &fakeSource{hashes: map[string]int{}, single: map[string]int{"abc123": 99}}
	r, _ := newTestResolver(t, src, &countingHasher{result: "ABC123"})

	ident, err := r.Resolve(context.Background(), chronoTrigger)
	require.NoError(t, err)
	assert.Equal(t, 99, *ident.GameID)
	assert.Equal(t, 1, r.Directory().Len())
}

func TestResolveHasherError(t *testing.T) {
	failing := HasherFunc(func(context.Context, string) (string, error) {
		return "", errors.New("hash binary missing")
	})
	r, store := newTestResolver(t, &fakeSource{}, failing)

	_, err := r.Resolve(context.Background(), chronoTrigger)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoMatch))
	_, ok := store.Identity(100)
	assert.False(t, ok, "transient failures are not cached")
}

func TestDirectorySnapshotFallback(t *testing.T) {
	snap := &memSnapshot{}
	online := NewDirectory(&fakeSource{hashes: map[string]int{"ABC": 1}}, snap, nil)
	require.NoError(t, online.Load(context.Background()))
	assert.Equal(t, map[string]int{"ABC": 1}, snap.hashes)

	offline := NewDirectory(&fakeSource{dirErr: errors.New("boom")}, snap, nil)
	id, ok, err := offline.Lookup(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, id)

	none := NewDirectory(&fakeSource{dirErr: errors.New("boom")}, nil, nil)
	_, _, err = none.Lookup(context.Background(), "abc")
	assert.Error(t, err)
}
