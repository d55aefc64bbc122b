package retroachievements

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// numericFields arrive as strings from some endpoints and are coerced to
// numbers while the keys are camelCased.
var numericFields = map[string]bool{
	"ID":                         true,
	"GameID":                     true,
	"ConsoleID":                  true,
	"NumAwarded":                 true,
	"NumAwardedHardcore":         true,
	"Points":                     true,
	"TrueRatio":                  true,
	"DisplayOrder":               true,
	"NumAchievements":            true,
	"NumDistinctPlayersCasual":   true,
	"NumDistinctPlayersHardcore": true,
	"NumAwardedToUser":           true,
	"NumAwardedToUserHardcore":   true,
}

// CamelCase converts a PascalCase API key to the internal convention:
// "ID" -> "id", "GameID" -> "gameId", "BadgeURL" -> "badgeUrl".
func CamelCase(key string) string {
	if strings.ToUpper(key) == key {
		return strings.ToLower(key)
	}
	out := strings.ToLower(key[:1]) + key[1:]
	out = strings.ReplaceAll(out, "ID", "Id")
	out = strings.ReplaceAll(out, "URL", "Url")
	out = strings.ReplaceAll(out, "rA", "ra")
	out = strings.ReplaceAll(out, "visibleUserawards", "visibleUserAwards")
	return out
}

// Camelize walks a parsed JSON document, renaming every object key with
// CamelCase and coercing numericFields to numbers. Unparseable numbers
// become null.
func Camelize(r gjson.Result) interface{} {
	switch {
	case r.IsObject():
		out := make(map[string]interface{})
		r.ForEach(func(k, v gjson.Result) bool {
			key := k.String()
			if numericFields[key] {
				out[CamelCase(key)] = toNumber(v)
			} else {
				out[CamelCase(key)] = Camelize(v)
			}
			return true
		})
		return out
	case r.IsArray():
		out := make([]interface{}, 0)
		r.ForEach(func(_, v gjson.Result) bool {
			out = append(out, Camelize(v))
			return true
		})
		return out
	default:
		return r.Value()
	}
}

func toNumber(v gjson.Result) interface{} {
	switch v.Type {
	case gjson.Number:
		return v.Num
	case gjson.String:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return nil
		}
		return n
	case gjson.True:
		return 1
	case gjson.False:
		return 0
	default:
		return nil
	}
}

// ParseGame converts a raw API_GetGameInfoAndUserProgress body into a Game.
func ParseGame(body []byte) (*Game, error) {
	if !gjson.ValidBytes(body) {
		return nil, &ProtocolError{Endpoint: endpointGameProgress, Err: errInvalidJSON}
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, &ProtocolError{Endpoint: endpointGameProgress, Err: errInvalidJSON}
	}

	data, err := json.Marshal(Camelize(root))
	if err != nil {
		return nil, &ProtocolError{Endpoint: endpointGameProgress, Err: err}
	}
	var game Game
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, &ProtocolError{Endpoint: endpointGameProgress, Err: err}
	}
	if game.Achievements == nil {
		game.Achievements = AchievementMap{}
	}
	return &game, nil
}
