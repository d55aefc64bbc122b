package cache

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sw33tLie/emuchievements/pkg/achievements"
	"github.com/sw33tLie/emuchievements/pkg/retroachievements"
)

type memDocStore struct {
	mu  sync.Mutex
	doc []byte
}

func (m *memDocStore) ReadDocument(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.doc...), nil
}

func (m *memDocStore) WriteDocument(_ context.Context, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = append([]byte(nil), doc...)
	return nil
}

// countingTransport records how many packets each write announced.
type countingTransport struct {
	*ChunkedBackend
	mu     sync.Mutex
	writes []int
}

func (c *countingTransport) StartWrite(ctx context.Context, length, packetSize int) error {
	c.mu.Lock()
	c.writes = append(c.writes, length)
	c.mu.Unlock()
	return c.ChunkedBackend.StartWrite(ctx, length, packetSize)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, title+": "+body)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func newTestStore(t *testing.T, doc string, packetSize int) (*Store, *memDocStore, *recordingNotifier) {
	t.Helper()
	docs := &memDocStore{doc: []byte(doc)}
	notifier := &recordingNotifier{}
	s := NewStore(NewChunkedBackend(docs), Options{PacketSize: packetSize, Notifier: notifier})
	require.NoError(t, s.Load(context.Background()))
	return s, docs, notifier
}

func TestLoadFreshInstall(t *testing.T) {
	s, docs, notifier := newTestStore(t, "", 0)

	assert.Equal(t, 0, notifier.count())
	assert.True(t, s.General().ShowAchievedStatePrefixes)
	assert.Contains(t, string(docs.doc), `"config_version": 2`)
	assert.Contains(t, string(docs.doc), "\t", "document is stored tab-indented")
}

func TestLoadVersionMismatch(t *testing.T) {
	old := `{
		"config_version": 1,
		"retroachievements": {"username": "alice", "api_key": "secret"},
		"cache": {"ids": {"100": 1234, "200": null}},
		"general": {"show_achieved_state_prefixes": false}
	}`
	s, _, notifier := newTestStore(t, old, 0)

	assert.Equal(t, 1, notifier.count(), "exactly one reset notification")
	assert.Equal(t, retroachievements.Credentials{Username: "alice", APIKey: "secret"}, s.Credentials())
	_, ok := s.Identity(100)
	assert.False(t, ok, "identities are discarded")
	assert.True(t, s.General().ShowAchievedStatePrefixes, "general settings are reset")

	// The reset document is persisted, so a second load is quiet.
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, 1, notifier.count())
}

func TestLoadLegacyDocument(t *testing.T) {
	legacy := `{"username": "bob", "api_key": "key", "cache": {"ids": {}}, "hidden": false}`
	s, docs, notifier := newTestStore(t, legacy, 0)

	assert.Equal(t, 1, notifier.count())
	assert.Equal(t, "bob", s.Credentials().Username)
	assert.NotContains(t, string(docs.doc), "hidden")
}

func TestLoadCorruptDocument(t *testing.T) {
	docs := &memDocStore{doc: []byte(`not json`)}
	s := NewStore(NewChunkedBackend(docs), Options{})
	assert.Error(t, s.Load(context.Background()), "the backend refuses to serve a corrupt file")

	doc, err := decodeDocument(`["not", "an", "object"]`)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Equal(t, DefaultDocument(), doc)
}

func TestMigrateLegacyWithCurrentVersion(t *testing.T) {
	doc := `{"config_version": 2, "username": "carol", "api_key": "k", "hidden": true, "cache": {"ids": {"5": 9}}}`
	s, _, notifier := newTestStore(t, doc, 0)

	assert.Equal(t, 0, notifier.count())
	assert.Equal(t, retroachievements.Credentials{Username: "carol", APIKey: "k"}, s.Credentials())
	ident, ok := s.Identity(5)
	require.True(t, ok)
	assert.Equal(t, 9, *ident.GameID)
}

func TestChunkedRoundTrip(t *testing.T) {
	docs := &memDocStore{}
	transport := &countingTransport{ChunkedBackend: NewChunkedBackend(docs)}
	s := NewStore(transport, Options{PacketSize: 16})
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	require.NoError(t, s.SetCredentials(ctx, retroachievements.Credentials{Username: "ゲーマー", APIKey: "secret"}))
	require.NoError(t, s.SetIdentity(ctx, 100, GameIDPtr(1234), "abc123"))
	require.NoError(t, s.SetIdentity(ctx, -200, nil, ""))
	require.NoError(t, s.SetOverride(ctx, 300, Override{Name: "Zelda", GameID: GameIDPtr(1)}))

	transport.mu.Lock()
	last := transport.writes[len(transport.writes)-1]
	transport.mu.Unlock()
	assert.Greater(t, last, 1, "document should span several packets")

	reloaded := NewStore(NewChunkedBackend(docs), Options{PacketSize: 7})
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, s.Document(), reloaded.Document())

	ident, ok := reloaded.Identity(100)
	require.True(t, ok)
	assert.True(t, ident.Matched())
	assert.Equal(t, "abc123", ident.Hash)

	ident, ok = reloaded.Identity(-200)
	require.True(t, ok)
	assert.Nil(t, ident.GameID)
	assert.False(t, ident.Matched())
}

func TestConcurrentUpdatesThroughChunkedBackend(t *testing.T) {
	s, docs, _ := newTestStore(t, "", 16)
	ctx := context.Background()

	const apps = 25
	var wg sync.WaitGroup
	for i := 1; i <= apps; i++ {
		wg.Add(1)
		go func(appID int) {
			defer wg.Done()
			assert.NoError(t, s.SetIdentity(ctx, appID, GameIDPtr(appID*10), "hash"))
		}(i)
		if i%5 == 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Load(ctx))
			}()
		}
	}
	wg.Wait()

	for i := 1; i <= apps; i++ {
		id, ok := s.Identity(i)
		require.True(t, ok, "app %d missing in memory", i)
		assert.Equal(t, i*10, *id.GameID)
	}

	reloaded := NewStore(NewChunkedBackend(docs), Options{PacketSize: 7})
	require.NoError(t, reloaded.Load(ctx))
	for i := 1; i <= apps; i++ {
		id, ok := reloaded.Identity(i)
		require.True(t, ok, "app %d missing after reload", i)
		assert.Equal(t, i*10, *id.GameID)
	}
}

func TestSplitPackets(t *testing.T) {
	s := strings.Repeat("é", 5) // 10 bytes
	packets := splitPackets(s, 3)
	assert.Equal(t, s, strings.Join(packets, ""))
	for _, p := range packets {
		assert.LessOrEqual(t, len(p), 3)
		assert.True(t, strings.ToValidUTF8(p, "?") == p, "packet %q splits a rune", p)
	}
	assert.Empty(t, splitPackets("", 3))
}

func TestClearKeepsCredentials(t *testing.T) {
	s, _, _ := newTestStore(t, "", 0)
	ctx := context.Background()
	creds := retroachievements.Credentials{Username: "alice", APIKey: "secret"}

	require.NoError(t, s.SetCredentials(ctx, creds))
	require.NoError(t, s.SetIdentity(ctx, 1, GameIDPtr(10), "h1"))
	require.NoError(t, s.SetOverride(ctx, 2, Override{Name: "x", GameID: nil}))
	require.NoError(t, s.Clear(ctx))

	_, ok := s.Identity(1)
	assert.False(t, ok)
	_, ok = s.Override(2)
	assert.False(t, ok)
	assert.Equal(t, creds, s.Credentials())
}

func TestClearForApp(t *testing.T) {
	s, _, _ := newTestStore(t, "", 0)
	ctx := context.Background()

	require.NoError(t, s.SetIdentity(ctx, 1, GameIDPtr(10), "h1"))
	require.NoError(t, s.SetIdentity(ctx, 2, GameIDPtr(20), "h2"))
	require.NoError(t, s.ClearForApp(ctx, 1))

	_, ok := s.Identity(1)
	assert.False(t, ok)
	_, ok = s.Identity(2)
	assert.True(t, ok)
}

func TestSetOverrideResetsIdentity(t *testing.T) {
	s, _, _ := newTestStore(t, "", 0)
	ctx := context.Background()

	require.NoError(t, s.SetIdentity(ctx, 1, nil, ""))
	require.NoError(t, s.SetOverride(ctx, 1, Override{Name: "Game", GameID: GameIDPtr(55)}))

	_, ok := s.Identity(1)
	assert.False(t, ok, "a new override invalidates the cached negative result")

	o, ok := s.Override(1)
	require.True(t, ok)
	assert.Equal(t, 55, *o.GameID)

	// Back-filling the hash of the same override keeps the identity.
	require.NoError(t, s.SetIdentity(ctx, 1, GameIDPtr(55), "h"))
	o.Hash = "h"
	require.NoError(t, s.SetOverride(ctx, 1, o))
	ident, ok := s.Identity(1)
	require.True(t, ok)
	assert.Equal(t, "h", ident.Override.Hash)
}

func TestPrune(t *testing.T) {
	s, _, _ := newTestStore(t, "", 0)
	ctx := context.Background()

	require.NoError(t, s.SetIdentity(ctx, 1, GameIDPtr(10), ""))
	require.NoError(t, s.SetIdentity(ctx, 2, nil, ""))
	require.NoError(t, s.SetOverride(ctx, 3, Override{Name: "gone", GameID: GameIDPtr(30)}))

	removed, err := s.Prune(ctx, func(appID int) bool { return appID == 1 })
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok := s.Identity(1)
	assert.True(t, ok)
	_, ok = s.Identity(2)
	assert.False(t, ok)
	_, ok = s.Override(3)
	assert.False(t, ok)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	fs, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	raw, err := fs.ReadDocument(ctx)
	require.NoError(t, err)
	assert.Empty(t, raw)

	s := NewStore(NewChunkedBackend(fs), Options{})
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.SetIdentity(ctx, 7, GameIDPtr(70), "hash"))

	again := NewStore(NewChunkedBackend(fs), Options{})
	require.NoError(t, again.Load(ctx))
	ident, ok := again.Identity(7)
	require.True(t, ok)
	assert.Equal(t, 70, *ident.GameID)
}

func TestPayloadCache(t *testing.T) {
	c := NewPayloadCache(2, 50*time.Millisecond)
	set := &achievements.GameAchievementSet{GameID: 1}

	c.Add(1, set)
	got, ok := c.Get(1)
	require.True(t, ok)
	assert.Same(t, set, got)

	c.Remove(1)
	_, ok = c.Get(1)
	assert.False(t, ok)

	c.Add(2, set)
	time.Sleep(100 * time.Millisecond)
	_, ok = c.Get(2)
	assert.False(t, ok, "expired entries are stale")

	c.Add(3, set)
	c.Purge()
	assert.Equal(t, 0, c.Len())
}
