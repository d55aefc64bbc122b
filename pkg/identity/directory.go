package identity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sw33tLie/emuchievements/pkg/logging"
)

// Source is the remote side of hash resolution.
type Source interface {
	FetchHashDirectory(ctx context.Context) (map[string]int, error)
	LookupGameIDByHash(ctx context.Context, hash string) (int, bool, error)
}

// Snapshot persists the last downloaded hash directory so resolution keeps
// working when the directory endpoint is unavailable.
type Snapshot interface {
	SaveHashDirectory(ctx context.Context, hashes map[string]int) error
	LoadHashDirectory(ctx context.Context) (map[string]int, error)
}

// Directory is the session hash map. The bulk directory is downloaded once
// per session; hashes missing from it are looked up one by one and the
// answers, positive or negative, are remembered.
type Directory struct {
	source   Source
	snapshot Snapshot
	log      logging.Logger

	mu     sync.Mutex
	loaded bool
	hashes map[string]int
	misses map[string]bool
}

// NewDirectory creates a Directory. snapshot may be nil.
func NewDirectory(source Source, snapshot Snapshot, log logging.Logger) *Directory {
	return &Directory{
		source:   source,
		snapshot: snapshot,
		log:      logging.OrNop(log),
		hashes:   make(map[string]int),
		misses:   make(map[string]bool),
	}
}

// Load downloads the bulk directory unless it is already loaded.
func (d *Directory) Load(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadLocked(ctx)
}

func (d *Directory) loadLocked(ctx context.Context) error {
	if d.loaded {
		return nil
	}

	hashes, err := d.source.FetchHashDirectory(ctx)
	if err != nil {
		if d.snapshot == nil {
			return fmt.Errorf("failed to load hash directory: %w", err)
		}
		saved, snapErr := d.snapshot.LoadHashDirectory(ctx)
		if snapErr != nil || len(saved) == 0 {
			return fmt.Errorf("failed to load hash directory: %w", err)
		}
		d.log.Warnf("Hash directory unavailable (%v), using %d saved hashes", err, len(saved))
		hashes = saved
	} else if d.snapshot != nil {
		if err := d.snapshot.SaveHashDirectory(ctx, hashes); err != nil {
			d.log.Warnf("Could not save hash directory: %v", err)
		}
	}

	for h, id := range hashes {
		d.hashes[strings.ToLower(h)] = id
	}
	d.loaded = true
	return nil
}

// Lookup resolves a content hash to a game id.
func (d *Directory) Lookup(ctx context.Context, hash string) (int, bool, error) {
	hash = strings.ToLower(hash)

	d.mu.Lock()
	if err := d.loadLocked(ctx); err != nil {
		d.mu.Unlock()
		return 0, false, err
	}
	if id, ok := d.hashes[hash]; ok {
		d.mu.Unlock()
		return id, true, nil
	}
	if d.misses[hash] {
		d.mu.Unlock()
		return 0, false, nil
	}
	d.mu.Unlock()

	id, ok, err := d.source.LookupGameIDByHash(ctx, hash)
	if err != nil {
		return 0, false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if ok {
		d.hashes[hash] = id
	} else {
		d.misses[hash] = true
	}
	return id, ok, nil
}

// HashFor returns a known hash of gameID. With several candidates the
// smallest one is returned so the answer is stable.
func (d *Directory) HashFor(ctx context.Context, gameID int) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.loadLocked(ctx); err != nil {
		return "", false, err
	}

	var found []string
	for h, id := range d.hashes {
		if id == gameID {
			found = append(found, h)
		}
	}
	if len(found) == 0 {
		return "", false, nil
	}
	sort.Strings(found)
	return found[0], true, nil
}

// Reset forgets everything so the next lookup downloads the directory again.
func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = false
	d.hashes = make(map[string]int)
	d.misses = make(map[string]bool)
}

// Len is the number of known hashes.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.hashes)
}
