// Package steam locates game installations and Proton prefixes by
// reading the Steam client's library metadata. Everything here is
// best-effort discovery: a nil result means "not found", not an error.
package steam

import (
	"os"
	"path/filepath"
	"regexp"
)

// appIDs maps game domains to Steam app ids.
var appIDs = map[string]string{
	"starfield":             "1716740",
	"skyrimspecialedition":  "489830",
	"fallout4":              "377160",
	"falloutnewvegas":       "22380",
	"fallout3":              "22300",
	"oblivion":              "22330",
	"morrowind":             "22320",
	"enderal":               "933480",
	"enderalspecialedition": "976620",
}

var (
	pathValueRe       = regexp.MustCompile(`"path"\s+"([^"]+)"`)
	installDirValueRe = regexp.MustCompile(`"installdir"\s+"([^"]+)"`)
)

// steamRootCandidates lists the usual client install locations on Linux.
func steamRootCandidates() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return []string{
		filepath.Join(home, ".steam", "debian-installation"),
		filepath.Join(home, ".steam", "steam"),
		filepath.Join(home, ".local", "share", "Steam"),
		"/usr/share/steam",
	}
}

// FindRoot locates the Steam client root, or "" when none is installed.
func FindRoot() string {
	for _, candidate := range steamRootCandidates() {
		vdf := filepath.Join(candidate, "config", "libraryfolders.vdf")
		if _, err := os.Stat(vdf); err == nil {
			return candidate
		}
	}
	return ""
}

// Libraries parses libraryfolders.vdf and returns every existing
// library path. The file is Valve's KV1 text format; the "path" values
// are all this needs.
func Libraries(steamRoot string) []string {
	data, err := os.ReadFile(filepath.Join(steamRoot, "config", "libraryfolders.vdf"))
	if err != nil {
		return nil
	}

	var libs []string
	for _, m := range pathValueRe.FindAllStringSubmatch(string(data), -1) {
		if _, err := os.Stat(m[1]); err == nil {
			libs = append(libs, m[1])
		}
	}
	return libs
}

// FindGameDir locates the install directory for a game domain by
// scanning each library's app manifest. Returns "" when the game is
// unknown or not installed.
func FindGameDir(gameDomain string) string {
	appID, ok := appIDs[gameDomain]
	if !ok {
		return ""
	}
	root := FindRoot()
	if root == "" {
		return ""
	}

	for _, lib := range Libraries(root) {
		manifest := filepath.Join(lib, "steamapps", "appmanifest_"+appID+".acf")
		data, err := os.ReadFile(manifest)
		if err != nil {
			continue
		}
		m := installDirValueRe.FindStringSubmatch(string(data))
		if m == nil {
			continue
		}
		gameDir := filepath.Join(lib, "steamapps", "common", m[1])
		if _, err := os.Stat(gameDir); err == nil {
			return gameDir
		}
	}
	return ""
}

// FindProtonPrefix locates the Proton compatdata prefix for a game,
// where its Documents and AppData trees live under Linux.
func FindProtonPrefix(gameDomain string) string {
	appID, ok := appIDs[gameDomain]
	if !ok {
		return ""
	}
	root := FindRoot()
	if root == "" {
		return ""
	}

	for _, lib := range Libraries(root) {
		prefix := filepath.Join(lib, "steamapps", "compatdata", appID, "pfx")
		if _, err := os.Stat(prefix); err == nil {
			return prefix
		}
	}
	return ""
}
