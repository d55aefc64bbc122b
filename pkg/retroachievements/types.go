package retroachievements

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Credentials authenticate the user against the web API.
type Credentials struct {
	Username string `json:"username"`
	APIKey   string `json:"api_key"`
}

// Valid reports whether both halves of the credentials are present.
func (c Credentials) Valid() bool {
	return c.Username != "" && c.APIKey != ""
}

// Game is the camelCased API_GetGameInfoAndUserProgress payload.
type Game struct {
	ID                         int            `json:"id"`
	Title                      string         `json:"title"`
	ConsoleID                  int            `json:"consoleId"`
	ConsoleName                string         `json:"consoleName"`
	ImageIcon                  string         `json:"imageIcon"`
	ImageBoxArt                string         `json:"imageBoxArt"`
	Publisher                  string         `json:"publisher"`
	Developer                  string         `json:"developer"`
	Genre                      string         `json:"genre"`
	NumDistinctPlayersCasual   int            `json:"numDistinctPlayersCasual"`
	NumDistinctPlayersHardcore int            `json:"numDistinctPlayersHardcore"`
	NumAchievements            int            `json:"numAchievements"`
	NumAwardedToUser           int            `json:"numAwardedToUser"`
	NumAwardedToUserHardcore   int            `json:"numAwardedToUserHardcore"`
	UserCompletion             string         `json:"userCompletion"`
	UserCompletionHardcore     string         `json:"userCompletionHardcore"`
	Achievements               AchievementMap `json:"achievements"`
}

// Achievement is one entry of Game.Achievements, with the user's unlock dates.
type Achievement struct {
	ID                 int     `json:"id"`
	NumAwarded         int     `json:"numAwarded"`
	NumAwardedHardcore int     `json:"numAwardedHardcore"`
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	Points             int     `json:"points"`
	TrueRatio          float64 `json:"trueRatio"`
	Author             string  `json:"author"`
	BadgeName          string  `json:"badgeName"`
	DisplayOrder       int     `json:"displayOrder"`
	DateEarned         string  `json:"dateEarned"`
	DateEarnedHardcore string  `json:"dateEarnedHardcore"`
}

// AchievementMap is keyed by the achievement id as sent by the service.
// The service sends an empty JSON array instead of an empty object.
type AchievementMap map[string]Achievement

func (m *AchievementMap) UnmarshalJSON(data []byte) error {
	var list []Achievement
	if err := json.Unmarshal(data, &list); err == nil {
		out := make(AchievementMap, len(list))
		for _, a := range list {
			out[strconv.Itoa(a.ID)] = a
		}
		*m = out
		return nil
	}
	var obj map[string]Achievement
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*m = obj
	return nil
}

// Sorted returns the achievements in display order, falling back to id.
func (m AchievementMap) Sorted() []Achievement {
	out := make([]Achievement, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}
