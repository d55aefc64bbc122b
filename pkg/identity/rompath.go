// Package identity maps local shortcuts to RetroAchievements games by
// hashing the ROM their launch command points at.
package identity

import (
	"regexp"
	"strings"
)

// romExtensions are tried in order; longer extensions sharing a prefix come
// first so ".gbc" is not cut to ".gb".
var romExtensions = []string{
	"zip", "7z", "iso", "bin", "chd", "cue", "img", "a26", "lnx", "ngp", "ngc",
	"elf", "n64", "ndd", "u1", "v64", "z64", "nds", "dmg", "gbc", "gba", "gb",
	"ciso", "cso", "rom", "nes", "fds", "unif", "unf", "32x", "cdi", "gdi",
	"m3u", "gg", "gen", "smd", "sms", "ecm", "mds", "pbp", "dump", "gz", "mdf",
	"mrg", "prx", "bs", "fig", "sfc", "smc", "swx", "pc2", "wsc", "ws", "md",
}

var romPattern = buildROMPattern()

const launcherSuffix = ".appimage"

func buildROMPattern() *regexp.Regexp {
	exts := make([]string, len(romExtensions))
	for i, e := range romExtensions {
		exts[i] = regexp.QuoteMeta("." + e)
	}
	return regexp.MustCompile(`(?i)(/[^/"]+)+(` + strings.Join(exts, "|") + `)`)
}

// ExtractROMPath returns the first ROM-looking path in a launch command, or
// "" when there is none. A match that starts inside an AppImage launcher
// path is re-scanned from the first path after the launcher.
func ExtractROMPath(launchCommand string) string {
	s := launchCommand
	for {
		loc := romPattern.FindStringIndex(s)
		if loc == nil {
			return ""
		}
		match := s[loc[0]:loc[1]]
		i := strings.Index(strings.ToLower(match), launcherSuffix)
		if i < 0 {
			return match
		}
		rest := loc[0] + i + len(launcherSuffix)
		next := strings.Index(s[rest:], "/")
		if next < 0 {
			return ""
		}
		s = s[rest+next:]
	}
}
