package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/sw33tLie/emuchievements/pkg/logging"
	"github.com/sw33tLie/emuchievements/pkg/retroachievements"
)

// Notifier receives one-shot user facing messages.
type Notifier interface {
	Notify(title, body string)
}

// Options configure a Store.
type Options struct {
	PacketSize int
	Notifier   Notifier
	Log        logging.Logger
}

// Store is the in-memory view of the settings document. Every mutation is
// written back through the transport before it returns.
type Store struct {
	transport  Transport
	packetSize int
	notifier   Notifier
	log        logging.Logger

	// io is held for a whole chunked read or write sequence.
	io sync.Mutex

	mu  sync.RWMutex
	doc Document
}

// NewStore creates a Store backed by t. Call Load before use.
func NewStore(t Transport, opts Options) *Store {
	packetSize := opts.PacketSize
	if packetSize <= 0 {
		packetSize = DefaultPacketSize
	}
	return &Store{
		transport:  t,
		packetSize: packetSize,
		notifier:   opts.Notifier,
		log:        logging.OrNop(opts.Log),
		doc:        DefaultDocument(),
	}
}

// Load reads the document. A document from another schema version is
// replaced by defaults, keeping credentials when they can be found, and the
// user is told once.
func (s *Store) Load(ctx context.Context) error {
	s.io.Lock()
	defer s.io.Unlock()

	raw, err := readAll(ctx, s.transport, s.packetSize)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	doc, err := decodeDocument(raw)
	switch {
	case err == nil:
	case errors.Is(err, ErrSchemaMismatch):
		s.log.Warnf("Settings reset: %v", err)
		if s.notifier != nil {
			s.notifier.Notify("Emuchievements", "Settings were reset because they were written by an incompatible version")
		}
	default:
		return err
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return s.saveLocked(ctx)
}

// decodeDocument parses raw into a Document. An empty raw document yields
// defaults without error; any other unusable document yields defaults plus
// ErrSchemaMismatch.
func decodeDocument(raw string) (Document, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultDocument(), nil
	}
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return DefaultDocument(), fmt.Errorf("%w: document is not a JSON object", ErrSchemaMismatch)
	}

	root := gjson.Parse(migrateLegacy(gjson.Parse(raw)))
	version := root.Get("config_version")
	if version.Int() != CurrentVersion {
		doc := DefaultDocument()
		doc.RetroAchievements = recoverCredentials(root)
		return doc, fmt.Errorf("%w: found %q, want %d", ErrSchemaMismatch, version.Raw, CurrentVersion)
	}

	var doc Document
	if err := json.Unmarshal([]byte(root.Raw), &doc); err != nil {
		doc = DefaultDocument()
		doc.RetroAchievements = recoverCredentials(root)
		return doc, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	doc.fillDefaults()
	return doc, nil
}

// recoverCredentials looks for credentials in the current and in the legacy
// top-level layout.
func recoverCredentials(root gjson.Result) retroachievements.Credentials {
	for _, prefix := range []string{"retroachievements.", ""} {
		user := root.Get(prefix + "username")
		key := root.Get(prefix + "api_key")
		if user.Type == gjson.String && key.Type == gjson.String && user.Str != "" {
			return retroachievements.Credentials{Username: user.Str, APIKey: key.Str}
		}
	}
	return retroachievements.Credentials{}
}

// migrateLegacy moves top-level credentials under "retroachievements" and
// drops the obsolete "hidden" key.
func migrateLegacy(root gjson.Result) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(root.Raw), &fields); err != nil {
		return root.Raw
	}
	user, hasUser := fields["username"]
	key, hasKey := fields["api_key"]
	_, hasHidden := fields["hidden"]
	if !(hasUser && hasKey) && !hasHidden {
		return root.Raw
	}
	if hasUser && hasKey {
		creds, _ := json.Marshal(map[string]json.RawMessage{"username": user, "api_key": key})
		fields["retroachievements"] = creds
		delete(fields, "username")
		delete(fields, "api_key")
	}
	delete(fields, "hidden")
	out, err := json.Marshal(fields)
	if err != nil {
		return root.Raw
	}
	return string(out)
}

// Save writes the current document through the transport.
func (s *Store) Save(ctx context.Context) error {
	s.io.Lock()
	defer s.io.Unlock()
	return s.saveLocked(ctx)
}

// saveLocked is Save for callers already holding s.io.
func (s *Store) saveLocked(ctx context.Context) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.doc, "", "\t")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := writeAll(ctx, s.transport, s.packetSize, string(data)); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// update applies fn and writes the result. s.io is held throughout, so a
// concurrent Load cannot replace the document between the change and the
// write.
func (s *Store) update(ctx context.Context, fn func(d *Document)) error {
	s.io.Lock()
	defer s.io.Unlock()

	s.mu.Lock()
	fn(&s.doc)
	s.mu.Unlock()
	return s.saveLocked(ctx)
}

// Document returns a deep copy of the current document.
func (s *Store) Document() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.doc
	out.Cache = CacheData{
		IDs:       make(map[int]*int, len(s.doc.Cache.IDs)),
		Hashes:    make(map[int]string, len(s.doc.Cache.Hashes)),
		Overrides: make(map[int]Override, len(s.doc.Cache.Overrides)),
	}
	for k, v := range s.doc.Cache.IDs {
		out.Cache.IDs[k] = copyID(v)
	}
	for k, v := range s.doc.Cache.Hashes {
		out.Cache.Hashes[k] = v
	}
	for k, v := range s.doc.Cache.Overrides {
		v.GameID = copyID(v.GameID)
		out.Cache.Overrides[k] = v
	}
	return out
}

// Identity returns the cached resolution of appID. ok is false when the
// application was never resolved.
func (s *Store) Identity(appID int) (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.doc.Cache.IDs[appID]
	if !ok {
		return Identity{}, false
	}
	ident := Identity{AppID: appID, GameID: copyID(id), Hash: s.doc.Cache.Hashes[appID]}
	if o, ok := s.doc.Cache.Overrides[appID]; ok {
		o.GameID = copyID(o.GameID)
		ident.Override = &o
	}
	return ident, true
}

// SetIdentity records a resolution result. A nil gameID records "no match".
func (s *Store) SetIdentity(ctx context.Context, appID int, gameID *int, hash string) error {
	return s.update(ctx, func(d *Document) {
		d.Cache.IDs[appID] = copyID(gameID)
		if hash != "" {
			d.Cache.Hashes[appID] = hash
		} else {
			delete(d.Cache.Hashes, appID)
		}
	})
}

// Override returns the manual override of appID.
func (s *Store) Override(appID int) (Override, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.doc.Cache.Overrides[appID]
	o.GameID = copyID(o.GameID)
	return o, ok
}

// SetOverride stores o and forgets the previous resolution of appID.
func (s *Store) SetOverride(ctx context.Context, appID int, o Override) error {
	o.GameID = copyID(o.GameID)
	return s.update(ctx, func(d *Document) {
		prev, had := d.Cache.Overrides[appID]
		d.Cache.Overrides[appID] = o
		if !had || !sameID(prev.GameID, o.GameID) {
			delete(d.Cache.IDs, appID)
			delete(d.Cache.Hashes, appID)
		}
	})
}

// RemoveOverride deletes the override and the resolution it produced.
func (s *Store) RemoveOverride(ctx context.Context, appID int) error {
	return s.update(ctx, func(d *Document) {
		delete(d.Cache.Overrides, appID)
		delete(d.Cache.IDs, appID)
		delete(d.Cache.Hashes, appID)
	})
}

// Clear drops every identity and override. Credentials and general settings
// are kept.
func (s *Store) Clear(ctx context.Context) error {
	return s.update(ctx, func(d *Document) {
		d.Cache = CacheData{}
		d.fillDefaults()
	})
}

// ClearForApp drops the identity and override of a single application.
func (s *Store) ClearForApp(ctx context.Context, appID int) error {
	return s.RemoveOverride(ctx, appID)
}

// Prune drops identities and overrides of applications for which keep
// returns false, and reports how many applications were removed.
func (s *Store) Prune(ctx context.Context, keep func(appID int) bool) (int, error) {
	s.io.Lock()
	defer s.io.Unlock()

	removed := make(map[int]struct{})
	s.mu.Lock()
	for appID := range s.doc.Cache.IDs {
		if !keep(appID) {
			removed[appID] = struct{}{}
		}
	}
	for appID := range s.doc.Cache.Overrides {
		if !keep(appID) {
			removed[appID] = struct{}{}
		}
	}
	for appID := range removed {
		delete(s.doc.Cache.IDs, appID)
		delete(s.doc.Cache.Hashes, appID)
		delete(s.doc.Cache.Overrides, appID)
	}
	s.mu.Unlock()

	if len(removed) == 0 {
		return 0, nil
	}
	return len(removed), s.saveLocked(ctx)
}

// Credentials returns the stored RetroAchievements credentials.
func (s *Store) Credentials() retroachievements.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.RetroAchievements
}

// SetCredentials replaces the stored credentials.
func (s *Store) SetCredentials(ctx context.Context, creds retroachievements.Credentials) error {
	return s.update(ctx, func(d *Document) {
		d.RetroAchievements = creds
	})
}

// General returns the presentation toggles.
func (s *Store) General() General {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.General
}

// SetGeneral replaces the presentation toggles.
func (s *Store) SetGeneral(ctx context.Context, g General) error {
	return s.update(ctx, func(d *Document) {
		d.General = g
	})
}

func copyID(id *int) *int {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func sameID(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
