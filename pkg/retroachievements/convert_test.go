package retroachievements

import "testing"

func TestCamelCase(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ID", "id"},
		{"GameID", "gameId"},
		{"ConsoleID", "consoleId"},
		{"BadgeURL", "badgeUrl"},
		{"NumAwardedHardcore", "numAwardedHardcore"},
		{"RAUserName", "raUserName"},
		{"VisibleUserawards", "visibleUserAwards"},
		{"title", "title"},
	}

	for _, tt := range tests {
		if got := CamelCase(tt.input); got != tt.want {
			t.Errorf("CamelCase(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseGameCoercesNumbers(t *testing.T) {
	body := []byte(`{
		"ID": "1234",
		"Title": "Chrono Trigger",
		"ConsoleID": 3,
		"NumDistinctPlayersCasual": "200",
		"NumAchievements": 2,
		"Achievements": {
			"9": {"ID": "9", "Title": "Beat The Boss", "NumAwarded": "50", "Points": "10", "TrueRatio": "12.5", "BadgeName": "00001", "DisplayOrder": "2", "DateEarned": "2023-05-01 12:00:00"},
			"3": {"ID": 3, "Title": "First Steps", "NumAwarded": "not a number", "DisplayOrder": 1}
		}
	}`)

	game, err := ParseGame(body)
	if err != nil {
		t.Fatalf("ParseGame failed: %v", err)
	}
	if game.ID != 1234 || game.ConsoleID != 3 || game.NumDistinctPlayersCasual != 200 {
		t.Errorf("unexpected game header: %+v", game)
	}

	sorted := game.Achievements.Sorted()
	if len(sorted) != 2 {
		t.Fatalf("Expected 2 achievements, got %d", len(sorted))
	}
	if sorted[0].Title != "First Steps" || sorted[0].NumAwarded != 0 {
		t.Errorf("unparseable number should coerce to zero value: %+v", sorted[0])
	}
	boss := sorted[1]
	if boss.ID != 9 || boss.NumAwarded != 50 || boss.Points != 10 || boss.TrueRatio != 12.5 {
		t.Errorf("unexpected achievement: %+v", boss)
	}
	if boss.DateEarned != "2023-05-01 12:00:00" {
		t.Errorf("unexpected DateEarned %q", boss.DateEarned)
	}
}

func TestParseGameEmptyAchievementArray(t *testing.T) {
	game, err := ParseGame([]byte(`{"ID":1,"Achievements":[]}`))
	if err != nil {
		t.Fatalf("ParseGame failed: %v", err)
	}
	if game.Achievements == nil || len(game.Achievements) != 0 {
		t.Errorf("Expected empty achievement map, got %v", game.Achievements)
	}
}

func TestParseGameRejectsNonObject(t *testing.T) {
	for _, body := range []string{`[]`, `"x"`, `{`, ``} {
		if _, err := ParseGame([]byte(body)); err == nil {
			t.Errorf("ParseGame(%q) expected error", body)
		}
	}
}
