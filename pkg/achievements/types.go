// Package achievements converts RetroAchievements game payloads into the
// achieved/unachieved sets the host UI consumes.
package achievements

import "time"

// Record is one normalized achievement. Records are never modified after
// Normalize returns them.
type Record struct {
	ID                     string  `json:"id"`
	RawID                  int     `json:"raw_id"`
	Title                  string  `json:"title"`
	DisplayName            string  `json:"display_name"`
	Description            string  `json:"description"`
	Points                 int     `json:"points"`
	Achieved               bool    `json:"achieved"`
	AchievedHardcore       bool    `json:"achieved_hardcore"`
	Missable               bool    `json:"missable"`
	UnlockTimestamp        int64   `json:"unlock_timestamp"`
	BadgeURL               string  `json:"badge_url"`
	GlobalUnlockPercentage float64 `json:"global_unlock_percentage"`
}

// GameAchievementSet is the per-application bundle. An id is present in
// exactly one of Achieved and Unachieved.
type GameAchievementSet struct {
	GameID     int               `json:"game_id"`
	GameTitle  string            `json:"game_title"`
	Achieved   map[string]Record `json:"achieved"`
	Unachieved map[string]Record `json:"unachieved"`
	// Order lists every id in display order.
	Order     []string  `json:"order"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Len is the total number of achievements in the set.
func (s *GameAchievementSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Achieved) + len(s.Unachieved)
}

// Lookup finds a record in either partition.
func (s *GameAchievementSet) Lookup(id string) (Record, bool) {
	if s == nil {
		return Record{}, false
	}
	if r, ok := s.Achieved[id]; ok {
		return r, true
	}
	r, ok := s.Unachieved[id]
	return r, ok
}

// Progress summarizes how far the user got in a game.
type Progress struct {
	Achieved   int     `json:"achieved"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Progress computes the completion summary of the set.
func (s *GameAchievementSet) Progress() Progress {
	total := s.Len()
	if total == 0 {
		return Progress{}
	}
	achieved := len(s.Achieved)
	return Progress{
		Achieved:   achieved,
		Total:      total,
		Percentage: float64(achieved) / float64(total) * 100,
	}
}
