// Package deploy materializes staged mod files into a game directory
// and reverses that exactly, driven by a persisted deployment record.
package deploy

import (
	"path"
	"regexp"
	"strings"
)

// FileRole is the closed classification of one staged file. It decides
// whether the file is placed, and where.
type FileRole string

const (
	// RoleSkip excludes documentation and packaging metadata.
	RoleSkip FileRole = "skip"
	// RolePlugin is a game plugin or archive that lives in the data dir.
	RolePlugin FileRole = "plugin"
	// RoleAsset is game content under the data dir.
	RoleAsset FileRole = "asset"
	// RoleLoader is a script-extender or injector binary in the game root.
	RoleLoader FileRole = "loader"
	// RoleConfigOverlay is a config file merged at the game root.
	RoleConfigOverlay FileRole = "config-overlay"
)

// Classification is the outcome for one staged file: its role and the
// destination path relative to the role's base (data dir for plugins
// and assets, game root for loaders and config overlays).
type Classification struct {
	Role    FileRole
	RelDest string
}

var pluginExtensions = map[string]bool{
	".esm": true, ".esp": true, ".esl": true, ".ba2": true, ".bsa": true,
}

var assetDirs = map[string]bool{
	"geometries": true, "textures": true, "meshes": true, "scripts": true,
	"sound": true, "materials": true, "interface": true, "video": true,
	"terrain": true, "strings": true, "music": true, "shadersfx": true,
	"vis": true, "seq": true, "lodsettings": true, "grass": true,
	"facegen": true, "dialogueviews": true, "source": true,
}

var skipNames = map[string]bool{
	"fomod": true, "load-order.txt": true, "plugins.txt": true,
	"__folder_managed_by_vortex": true,
}

var skipExtensions = map[string]bool{
	".txt": true, ".md": true, ".jpg": true, ".jpeg": true, ".png": true,
	".gif": true, ".pdf": true, ".log": true,
}

var (
	// Installer option folders like "00 - Base" or "01_Main Files".
	numberedOptionRe = regexp.MustCompile(`^\d{2,3}\s*[-_]\s*`)
	// Versioned loader directories like "sfse_0_2_18".
	loaderVersionDirRe = regexp.MustCompile(`(?i)^(sfse|skse|skse64|f4se)_[\d_]+$`)
	// Loader binaries like sfse_loader.exe or skse64_1_6_1170.dll.
	loaderBinaryRe = regexp.MustCompile(`(?i)^(sfse|skse|skse64|f4se)_`)
)

// Classify maps one staged file path (relative to its mod's staging
// directory) to a role and destination. It is a pure function; the same
// path always classifies the same way.
//
// Wrapper directories that installers add (numbered option folders,
// versioned loader dirs) are stripped before matching, so "00 - Core/
// Data/foo.esp" and "Data/foo.esp" land in the same place.
func Classify(relPath string) Classification {
	parts := splitClean(relPath)
	for len(parts) > 0 && (numberedOptionRe.MatchString(parts[0]) || loaderVersionDirRe.MatchString(parts[0])) {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return Classification{Role: RoleSkip}
	}

	name := parts[len(parts)-1]
	nameLower := strings.ToLower(name)
	ext := strings.ToLower(path.Ext(name))

	if skipNames[nameLower] || strings.HasPrefix(nameLower, "readme") || strings.HasPrefix(nameLower, ".") {
		return Classification{Role: RoleSkip}
	}
	for _, p := range parts[:len(parts)-1] {
		if skipNames[strings.ToLower(p)] {
			return Classification{Role: RoleSkip}
		}
	}
	if skipExtensions[ext] && !pluginExtensions[ext] {
		return Classification{Role: RoleSkip}
	}

	// Script-extender binaries go to the game root.
	if loaderBinaryRe.MatchString(nameLower) && (ext == ".exe" || ext == ".dll") {
		return Classification{Role: RoleLoader, RelDest: name}
	}

	lower := make([]string, len(parts))
	for i, p := range parts {
		lower[i] = strings.ToLower(p)
	}

	// A script-extender plugin tree (SFSE/Plugins/...) belongs under the
	// data dir from the extender dir down, wherever it is nested.
	for i, p := range lower {
		if p == "sfse" || p == "skse" || p == "f4se" {
			return Classification{Role: RoleAsset, RelDest: path.Join(parts[i:]...)}
		}
	}

	// Explicit data prefix.
	if lower[0] == "data" && len(parts) > 1 {
		rest := path.Join(parts[1:]...)
		return classifyInData(rest, strings.ToLower(path.Ext(rest)))
	}

	// Loose plugin at the top level.
	if len(parts) == 1 && pluginExtensions[ext] {
		return Classification{Role: RolePlugin, RelDest: name}
	}

	// Known asset directory at any depth: keep the tree from there down.
	for i, p := range lower {
		if assetDirs[p] {
			return Classification{Role: RoleAsset, RelDest: path.Join(parts[i:]...)}
		}
	}

	// Top-level DLLs are injector plugins; top-level INIs are config.
	if len(parts) == 1 && ext == ".dll" {
		return Classification{Role: RoleLoader, RelDest: name}
	}
	if len(parts) == 1 && ext == ".ini" {
		return Classification{Role: RoleConfigOverlay, RelDest: name}
	}

	// Everything else is content under the data dir.
	return classifyInData(path.Join(parts...), ext)
}

func classifyInData(rel, ext string) Classification {
	if pluginExtensions[ext] {
		return Classification{Role: RolePlugin, RelDest: rel}
	}
	return Classification{Role: RoleAsset, RelDest: rel}
}

func splitClean(rel string) []string {
	rel = path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	if rel == "." || rel == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(rel, "/"), "/")
}
