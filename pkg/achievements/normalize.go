package achievements

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sw33tLie/emuchievements/pkg/retroachievements"
)

const (
	DefaultMediaURL = "https://media.retroachievements.org"

	// missableMarker tags achievements that can be permanently missed.
	missableMarker = "[m]"

	dateLayout = "2006-01-02 15:04:05"
)

// idStripper removes the characters dropped from titles when deriving ids.
var idStripper = strings.NewReplacer(
	" ", "",
	"-", "",
	"'", "",
	":", "",
	"\"", "",
	"?", "",
	".", "",
)

// Options controls presentation details of Normalize.
type Options struct {
	// ShowPrefixes enables the [HARDCORE]/[ACHIEVED]/[NOT ACHIEVED] title prefixes.
	ShowPrefixes bool
	// MediaURL is the base of badge images. Empty uses DefaultMediaURL.
	MediaURL string
	// FetchedAt stamps the resulting set. Zero uses time.Now.
	FetchedAt time.Time
}

// Normalize maps a game payload to a GameAchievementSet. With a fixed
// FetchedAt the output depends only on its inputs.
func Normalize(game *retroachievements.Game, opts Options) *GameAchievementSet {
	fetchedAt := opts.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	mediaURL := strings.TrimRight(opts.MediaURL, "/")
	if mediaURL == "" {
		mediaURL = DefaultMediaURL
	}

	set := &GameAchievementSet{
		Achieved:   make(map[string]Record),
		Unachieved: make(map[string]Record),
		FetchedAt:  fetchedAt,
	}
	if game == nil {
		return set
	}
	set.GameID = game.ID
	set.GameTitle = game.Title

	players := game.NumDistinctPlayersCasual
	if players < 1 {
		players = 1
	}

	for _, a := range game.Achievements.Sorted() {
		rec := Record{
			ID:                     DeriveID(a.Title),
			RawID:                  a.ID,
			Title:                  strings.TrimSpace(strings.ReplaceAll(a.Title, missableMarker, "")),
			Description:            a.Description,
			Points:                 a.Points,
			Achieved:               a.DateEarned != "",
			AchievedHardcore:       a.DateEarnedHardcore != "",
			Missable:               strings.Contains(a.Title, missableMarker),
			UnlockTimestamp:        unlockTimestamp(a),
			GlobalUnlockPercentage: float64(a.NumAwarded) / float64(players) * 100,
		}
		rec.DisplayName = DisplayName(a.Title, rec.Achieved, rec.AchievedHardcore, opts.ShowPrefixes)
		rec.BadgeURL = BadgeURL(mediaURL, a.BadgeName, rec.Achieved)

		rec.ID = uniqueID(set, rec.ID, a.ID)
		if rec.Achieved {
			set.Achieved[rec.ID] = rec
		} else {
			set.Unachieved[rec.ID] = rec
		}
		set.Order = append(set.Order, rec.ID)
	}
	return set
}

// uniqueID returns id, or id suffixed with the raw id when another record of
// the set already uses it. A suffixed id that is taken too gets a counter.
func uniqueID(set *GameAchievementSet, id string, rawID int) string {
	if _, taken := set.Lookup(id); !taken {
		return id
	}
	base := fmt.Sprintf("%s_%d", id, rawID)
	candidate := base
	for n := 2; ; n++ {
		if _, taken := set.Lookup(candidate); !taken {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", base, n)
	}
}

// DeriveID builds the stable achievement id from its title.
func DeriveID(title string) string {
	return idStripper.Replace(strings.ToUpper(title))
}

// DisplayName decorates a raw title with state prefixes and the missable tag.
func DisplayName(title string, achieved, hardcore, showPrefixes bool) string {
	var parts []string
	if showPrefixes {
		switch {
		case hardcore:
			parts = append(parts, "[HARDCORE]")
		case achieved:
			parts = append(parts, "[ACHIEVED]")
		default:
			parts = append(parts, "[NOT ACHIEVED]")
		}
	}
	if strings.Contains(title, missableMarker) {
		parts = append(parts, "[MISSABLE]")
	}
	parts = append(parts, strings.ReplaceAll(title, missableMarker, ""))
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// BadgeURL picks the unlocked or locked badge image.
func BadgeURL(mediaURL, badgeName string, achieved bool) string {
	if badgeName == "" {
		badgeName = "0"
	}
	if achieved {
		return mediaURL + "/Badge/" + badgeName + ".png"
	}
	return mediaURL + "/Badge/" + badgeName + "_lock.png"
}

// unlockTimestamp prefers the hardcore unlock date. Dates are UTC.
func unlockTimestamp(a retroachievements.Achievement) int64 {
	for _, raw := range []string{a.DateEarnedHardcore, a.DateEarned} {
		if raw == "" {
			continue
		}
		if t, err := time.ParseInLocation(dateLayout, raw, time.UTC); err == nil {
			return t.Unix()
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
