// Package cache persists resolved game identities and manual overrides in the
// versioned settings document, and keeps fetched achievement sets in memory
// for the rest of the session.
package cache

import (
	"github.com/sw33tLie/emuchievements/pkg/retroachievements"
)

// CurrentVersion is bumped whenever the document layout changes incompatibly.
const CurrentVersion = 2

// Document is the self-describing settings document shared with the host.
type Document struct {
	ConfigVersion     int                           `json:"config_version"`
	RetroAchievements retroachievements.Credentials `json:"retroachievements"`
	Cache             CacheData                     `json:"cache"`
	General           General                       `json:"general"`
}

// CacheData holds per-application resolution results. A nil id means the
// application was checked and has no match.
type CacheData struct {
	IDs       map[int]*int     `json:"ids"`
	Hashes    map[int]string   `json:"hashes"`
	Overrides map[int]Override `json:"custom_ids_overrides"`
}

// Override is a user supplied mapping. A nil GameID pins the application to
// "no match".
type Override struct {
	Name   string `json:"name"`
	GameID *int   `json:"retro_achivement_game_id"`
	Hash   string `json:"hash,omitempty"`
}

// General holds presentation toggles.
type General struct {
	ShowAchievedStatePrefixes bool `json:"show_achieved_state_prefixes"`
	GamePage                  bool `json:"game_page"`
	StoreCategory             bool `json:"store_category"`
}

// Identity is the resolved mapping of one application.
type Identity struct {
	AppID    int       `json:"app_id"`
	GameID   *int      `json:"game_id"`
	Hash     string    `json:"hash,omitempty"`
	Override *Override `json:"override,omitempty"`
}

// Matched reports whether the identity points at a remote game.
func (i Identity) Matched() bool {
	return i.GameID != nil && *i.GameID > 0
}

// GameIDPtr is a convenience for building identities and overrides.
func GameIDPtr(id int) *int {
	return &id
}

// DefaultDocument is the document of a fresh install.
func DefaultDocument() Document {
	return Document{
		ConfigVersion: CurrentVersion,
		Cache: CacheData{
			IDs:       make(map[int]*int),
			Hashes:    make(map[int]string),
			Overrides: make(map[int]Override),
		},
		General: General{
			ShowAchievedStatePrefixes: true,
			GamePage:                  true,
			StoreCategory:             true,
		},
	}
}

func (d *Document) fillDefaults() {
	if d.Cache.IDs == nil {
		d.Cache.IDs = make(map[int]*int)
	}
	if d.Cache.Hashes == nil {
		d.Cache.Hashes = make(map[int]string)
	}
	if d.Cache.Overrides == nil {
		d.Cache.Overrides = make(map[int]Override)
	}
}
