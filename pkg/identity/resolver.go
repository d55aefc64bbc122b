package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/sw33tLie/emuchievements/pkg/cache"
	"github.com/sw33tLie/emuchievements/pkg/library"
	"github.com/sw33tLie/emuchievements/pkg/logging"
)

// ErrNoMatch is returned with an identity that was resolved to "no remote
// game". It is a final answer and is cached as such.
var ErrNoMatch = errors.New("no matching game")

// Hasher computes the content hash of a ROM file. An empty hash means the
// file cannot be identified.
type Hasher interface {
	Hash(ctx context.Context, path string) (string, error)
}

// HasherFunc adapts a function to the Hasher interface.
type HasherFunc func(ctx context.Context, path string) (string, error)

func (f HasherFunc) Hash(ctx context.Context, path string) (string, error) { return f(ctx, path) }

// Store is the subset of cache.Store the resolver needs.
type Store interface {
	Identity(appID int) (cache.Identity, bool)
	SetIdentity(ctx context.Context, appID int, gameID *int, hash string) error
	Override(appID int) (cache.Override, bool)
	SetOverride(ctx context.Context, appID int, o cache.Override) error
}

// Resolver turns applications into game identities.
type Resolver struct {
	store     Store
	hasher    Hasher
	directory *Directory
	log       logging.Logger
}

// NewResolver creates a Resolver.
func NewResolver(store Store, hasher Hasher, directory *Directory, log logging.Logger) *Resolver {
	return &Resolver{
		store:     store,
		hasher:    hasher,
		directory: directory,
		log:       logging.OrNop(log),
	}
}

// Resolve returns the identity of app. Negative answers come back as an
// identity with a nil GameID together with ErrNoMatch; other errors are
// transient and nothing is cached for them.
func (r *Resolver) Resolve(ctx context.Context, app library.Application) (cache.Identity, error) {
	appID := app.AppID

	if o, ok := r.store.Override(appID); ok {
		if o.GameID == nil {
			r.log.Debugf("[%d] override pins no match", appID)
			return cache.Identity{AppID: appID, Override: &o}, ErrNoMatch
		}
		if *o.GameID > 0 {
			return r.resolveOverride(ctx, appID, o)
		}
	}

	if ident, ok := r.store.Identity(appID); ok {
		if ident.GameID == nil {
			return ident, ErrNoMatch
		}
		if ident.Matched() {
			return ident, nil
		}
	}

	rom := ExtractROMPath(app.LaunchCommand())
	r.log.Debugf("[%d] rom: %q", appID, rom)
	if rom == "" {
		return r.recordNoMatch(ctx, appID, "")
	}

	hash, err := r.hasher.Hash(ctx, rom)
	if err != nil {
		return cache.Identity{AppID: appID}, fmt.Errorf("failed to hash %s: %w", rom, err)
	}
	r.log.Debugf("[%d] hash: %q", appID, hash)
	if hash == "" {
		return r.recordNoMatch(ctx, appID, "")
	}

	gameID, ok, err := r.directory.Lookup(ctx, hash)
	if err != nil {
		return cache.Identity{AppID: appID, Hash: hash}, err
	}
	if !ok || gameID <= 0 {
		return r.recordNoMatch(ctx, appID, hash)
	}

	ident := cache.Identity{AppID: appID, GameID: cache.GameIDPtr(gameID), Hash: hash}
	if err := r.store.SetIdentity(ctx, appID, ident.GameID, hash); err != nil {
		return ident, err
	}
	return ident, nil
}

// resolveOverride uses the override's game id without hashing. When the
// override has no hash yet, a known hash of the game is stored on it.
func (r *Resolver) resolveOverride(ctx context.Context, appID int, o cache.Override) (cache.Identity, error) {
	if cached, ok := r.store.Identity(appID); ok && cached.Matched() && *cached.GameID == *o.GameID && o.Hash != "" {
		return cached, nil
	}

	hash := o.Hash
	if hash == "" {
		found, ok, err := r.directory.HashFor(ctx, *o.GameID)
		if err != nil {
			r.log.Warnf("[%d] could not back-fill override hash: %v", appID, err)
		} else if ok {
			hash = found
			o.Hash = found
			if err := r.store.SetOverride(ctx, appID, o); err != nil {
				return cache.Identity{}, err
			}
		}
	}

	ident := cache.Identity{AppID: appID, GameID: cache.GameIDPtr(*o.GameID), Hash: hash, Override: &o}
	if err := r.store.SetIdentity(ctx, appID, ident.GameID, hash); err != nil {
		return ident, err
	}
	return ident, nil
}

func (r *Resolver) recordNoMatch(ctx context.Context, appID int, hash string) (cache.Identity, error) {
	ident := cache.Identity{AppID: appID, Hash: hash}
	if err := r.store.SetIdentity(ctx, appID, nil, hash); err != nil {
		return ident, err
	}
	return ident, ErrNoMatch
}

// Directory exposes the session hash map.
func (r *Resolver) Directory() *Directory {
	return r.directory
}
