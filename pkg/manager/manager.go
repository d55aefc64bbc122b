// Package manager resolves, fetches and caches achievements per application
// and drives library-wide refreshes.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sw33tLie/emuchievements/pkg/achievements"
	"github.com/sw33tLie/emuchievements/pkg/cache"
	"github.com/sw33tLie/emuchievements/pkg/connectivity"
	"github.com/sw33tLie/emuchievements/pkg/identity"
	"github.com/sw33tLie/emuchievements/pkg/library"
	"github.com/sw33tLie/emuchievements/pkg/logging"
	"github.com/sw33tLie/emuchievements/pkg/retroachievements"
	"github.com/sw33tLie/emuchievements/pkg/throttle"
)

// DefaultConcurrency bounds in-flight fetches during RefreshAll.
const DefaultConcurrency = 8

// AppState is the lifecycle of one application's achievements.
type AppState int

const (
	Unresolved AppState = iota
	Loading
	Ready
	Empty
	Failed
)

func (s AppState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Empty:
		return "empty"
	case Failed:
		return "failed"
	default:
		return "unresolved"
	}
}

func (s AppState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is what a fetch call observes.
type Result struct {
	State AppState                         `json:"state"`
	Set   *achievements.GameAchievementSet `json:"data,omitempty"`
	Err   error                            `json:"-"`
}

// Client fetches game payloads.
type Client interface {
	FetchGameWithUserProgress(ctx context.Context, gameID int, creds retroachievements.Credentials) (*retroachievements.Game, error)
}

// Resolver maps applications to game identities.
type Resolver interface {
	Resolve(ctx context.Context, app library.Application) (cache.Identity, error)
}

// Store is the persisted part of the cache the manager uses.
type Store interface {
	Credentials() retroachievements.Credentials
	General() cache.General
	Identity(appID int) (cache.Identity, bool)
	Override(appID int) (cache.Override, bool)
	SetOverride(ctx context.Context, appID int, o cache.Override) error
	RemoveOverride(ctx context.Context, appID int) error
	Clear(ctx context.Context) error
	ClearForApp(ctx context.Context, appID int) error
	Prune(ctx context.Context, keep func(appID int) bool) (int, error)
}

// Publisher receives every freshly fetched set, for pushing into a UI.
type Publisher interface {
	OnAchievementsResolved(appID int, set *achievements.GameAchievementSet)
}

// Notifier shows one-shot user facing messages.
type Notifier interface {
	Notify(title, body string)
}

// Config wires a Manager. Library, Resolver, Client and Store are required.
type Config struct {
	Library  library.Library
	Resolver Resolver
	Client   Client
	Store    Store

	Payloads *cache.PayloadCache // nil = default size and ttl
	Throttle *throttle.Throttle  // nil = 4 per second
	Online   connectivity.Checker

	Concurrency int // defaults to DefaultConcurrency if <= 0
	MediaURL    string

	Publisher Publisher
	Notifier  Notifier
	Log       logging.Logger

	// OnAppDone is called from worker goroutines after each application of a
	// refresh cycle. Nil = no callback.
	OnAppDone func(app library.Application, res Result)

	Now func() time.Time
}

type entry struct {
	loading bool
	done    chan struct{}
	state   AppState
	err     error
	// res is set before done is closed.
	res Result
}

// Manager owns the per-application fetch state. It is safe for concurrent use.
type Manager struct {
	lib       library.Library
	resolver  Resolver
	client    Client
	store     Store
	payloads  *cache.PayloadCache
	throttle  *throttle.Throttle
	online    connectivity.Checker
	workers   int
	mediaURL  string
	publisher Publisher
	notifier  Notifier
	log       logging.Logger
	onAppDone func(library.Application, Result)
	now       func() time.Time

	state *StateStore

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[int]*entry
}

// New creates a Manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Library == nil || cfg.Resolver == nil || cfg.Client == nil || cfg.Store == nil {
		return nil, errors.New("manager: library, resolver, client and store are required")
	}
	m := &Manager{
		lib:       cfg.Library,
		resolver:  cfg.Resolver,
		client:    cfg.Client,
		store:     cfg.Store,
		payloads:  cfg.Payloads,
		throttle:  cfg.Throttle,
		online:    cfg.Online,
		workers:   cfg.Concurrency,
		mediaURL:  cfg.MediaURL,
		publisher: cfg.Publisher,
		notifier:  cfg.Notifier,
		log:       logging.OrNop(cfg.Log),
		onAppDone: cfg.OnAppDone,
		now:       cfg.Now,
		state:     newStateStore(),
		entries:   make(map[int]*entry),
	}
	if m.payloads == nil {
		m.payloads = cache.NewPayloadCache(0, 0)
	}
	if m.throttle == nil {
		m.throttle = throttle.New(throttle.Config{Rate: throttle.DefaultRate, Window: throttle.DefaultWindow})
	}
	if m.workers <= 0 {
		m.workers = DefaultConcurrency
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

// Close cancels background fetches and waits for them to settle.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

// State exposes the library-wide loading state.
func (m *Manager) State() *StateStore {
	return m.state
}

// FetchAchievements never blocks. The first call for an application starts
// a background fetch and reports Loading, as do all calls until it settles.
func (m *Manager) FetchAchievements(appID int) Result {
	m.mu.Lock()
	if res, ok := m.cachedLocked(appID); ok {
		m.mu.Unlock()
		return res
	}
	e := m.beginLocked(appID)
	m.mu.Unlock()

	m.start(appID, nil, e)
	return Result{State: Loading}
}

// FetchAchievementsAsync is FetchAchievements for callers that can wait.
// It joins a fetch already in flight instead of starting another one.
// Cancelling ctx stops the wait, not the fetch.
func (m *Manager) FetchAchievementsAsync(ctx context.Context, appID int) (Result, error) {
	return m.fetchAsync(ctx, appID, nil)
}

func (m *Manager) fetchAsync(ctx context.Context, appID int, app *library.Application) (Result, error) {
	m.mu.Lock()
	if e, ok := m.entries[appID]; ok && e.loading {
		m.mu.Unlock()
		return m.wait(ctx, e)
	}
	if res, ok := m.cachedLocked(appID); ok {
		m.mu.Unlock()
		return res, res.Err
	}
	e := m.beginLocked(appID)
	m.mu.Unlock()

	m.start(appID, app, e)
	return m.wait(ctx, e)
}

// start runs the fetch for e under the manager's context, so no caller can
// abort it halfway.
func (m *Manager) start(appID int, app *library.Application, e *entry) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(m.ctx, appID, app, e)
	}()
}

func (m *Manager) wait(ctx context.Context, e *entry) (Result, error) {
	select {
	case <-e.done:
		return e.res, e.res.Err
	case <-ctx.Done():
		return Result{State: Loading}, ctx.Err()
	}
}

// cachedLocked answers from memory when possible.
func (m *Manager) cachedLocked(appID int) (Result, bool) {
	e, ok := m.entries[appID]
	if ok && e.loading {
		return Result{State: Loading}, true
	}
	if set, found := m.payloads.Get(appID); found {
		return Result{State: stateOf(set), Set: set}, true
	}
	if ok && (e.state == Empty || e.state == Failed) {
		return Result{State: e.state, Err: e.err}, true
	}
	return Result{State: Unresolved}, false
}

// beginLocked marks appID as loading. Check and set happen under m.mu so
// concurrent callers cannot both start a fetch.
func (m *Manager) beginLocked(appID int) *entry {
	e := &entry{loading: true, done: make(chan struct{}), state: Loading}
	m.entries[appID] = e
	return e
}

func (m *Manager) run(ctx context.Context, appID int, app *library.Application, e *entry) Result {
	set, err := m.fetch(ctx, appID, app)

	res := Result{State: Failed, Err: err}
	switch {
	case err == nil:
		res = Result{State: stateOf(set), Set: set}
	case errors.Is(err, identity.ErrNoMatch):
		res = Result{State: Empty}
	}
	if err != nil && res.State == Failed {
		m.log.Warnf("[%d] failed to fetch achievements: %v", appID, err)
	}

	m.mu.Lock()
	current := m.entries[appID] == e
	if current && set != nil {
		m.payloads.Add(appID, set)
	}
	if current && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		// A cancelled or timed out fetch is not a result; the next call fetches again.
		delete(m.entries, appID)
	}
	e.loading = false
	e.state = res.State
	e.err = res.Err
	e.res = res
	close(e.done)
	m.mu.Unlock()

	if current && set != nil && m.publisher != nil {
		m.publisher.OnAchievementsResolved(appID, set)
	}
	return res
}

func (m *Manager) fetch(ctx context.Context, appID int, app *library.Application) (*achievements.GameAchievementSet, error) {
	if app == nil {
		found, ok, err := library.Find(ctx, m.lib, appID)
		if err != nil {
			return nil, fmt.Errorf("failed to list applications: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownApplication, appID)
		}
		app = &found
	}

	var set *achievements.GameAchievementSet
	err := m.throttle.Do(ctx, func(ctx context.Context) error {
		creds := m.store.Credentials()
		if !creds.Valid() {
			return retroachievements.ErrNotAuthenticated
		}

		ident, err := m.resolver.Resolve(ctx, *app)
		if err != nil {
			return err
		}
		if !ident.Matched() {
			return identity.ErrNoMatch
		}
		game, err := m.client.FetchGameWithUserProgress(ctx, *ident.GameID, creds)
		if err != nil {
			return err
		}
		m.log.Debugf("[%d] fetched game %d with %d achievements", appID, game.ID, len(game.Achievements))

		set = achievements.Normalize(game, achievements.Options{
			ShowPrefixes: m.store.General().ShowAchievedStatePrefixes,
			MediaURL:     m.mediaURL,
			FetchedAt:    m.now(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

func stateOf(set *achievements.GameAchievementSet) AppState {
	if set.Len() == 0 {
		return Empty
	}
	return Ready
}

// IsReady reports whether a set is cached and no fetch is running.
func (m *Manager) IsReady(appID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[appID]; ok && e.loading {
		return false
	}
	_, ok := m.payloads.Get(appID)
	return ok
}

// Progress summarizes a cached set.
func (m *Manager) Progress(appID int) (achievements.Progress, bool) {
	set, ok := m.payloads.Get(appID)
	if !ok {
		return achievements.Progress{}, false
	}
	return set.Progress(), true
}

// ClearCacheForApp forgets everything known about one application.
func (m *Manager) ClearCacheForApp(ctx context.Context, appID int) error {
	m.clearRuntimeForApp(appID)
	return m.store.ClearForApp(ctx, appID)
}

// ClearCache forgets everything except credentials and settings.
func (m *Manager) ClearCache(ctx context.Context) error {
	m.clearRuntime()
	return m.store.Clear(ctx)
}

// SetOverride pins appID to gameID, or to "no match" when gameID is nil.
func (m *Manager) SetOverride(ctx context.Context, appID int, gameID *int) error {
	app, ok, err := library.Find(ctx, m.lib, appID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownApplication, appID)
	}
	if gameID != nil && *gameID <= 0 {
		return fmt.Errorf("invalid game id %d", *gameID)
	}
	o := cache.Override{Name: app.Name, GameID: gameID}
	if prev, had := m.store.Override(appID); had && sameGame(prev.GameID, gameID) {
		o.Hash = prev.Hash
	}
	m.clearRuntimeForApp(appID)
	return m.store.SetOverride(ctx, appID, o)
}

// RemoveOverride goes back to hash based detection for appID.
func (m *Manager) RemoveOverride(ctx context.Context, appID int) error {
	m.clearRuntimeForApp(appID)
	return m.store.RemoveOverride(ctx, appID)
}

func (m *Manager) clearRuntimeForApp(appID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, appID)
	m.payloads.Remove(appID)
}

func (m *Manager) clearRuntime() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[int]*entry)
	m.payloads.Purge()
}

// resetForRefresh is clearRuntime for a refresh cycle: fetches still in
// flight are kept so the cycle joins them instead of fetching twice.
func (m *Manager) resetForRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for appID, e := range m.entries {
		if !e.loading {
			delete(m.entries, appID)
		}
	}
	m.payloads.Purge()
}

func sameGame(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
