// Package paths provides centralized path handling for modstage.
// It implements XDG Base Directory specification compliance and
// provides a consistent API for all path operations in the codebase.
package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// Environment variable names
const (
	// EnvDataDir overrides the XDG data directory for modstage
	EnvDataDir = "MODSTAGE_DATA_DIR"

	// EnvConfigDir overrides the XDG config directory for modstage
	EnvConfigDir = "MODSTAGE_CONFIG_DIR"

	// EnvCacheDir overrides the XDG cache directory for modstage
	EnvCacheDir = "MODSTAGE_CACHE_DIR"
)

// File and directory names.
// IMPORTANT: These constants define modstage's on-disk layout and are NOT
// user-configurable. They must remain consistent across installations so
// that a staging directory written by one version is readable by another.
const (
	// AppDirName is the directory name for modstage-specific files
	AppDirName = "modstage"

	// StateFileName is the per-staging-directory state document
	StateFileName = ".modstage-state.json"

	// LoadOrderFileName is the mod-level load order output
	LoadOrderFileName = "load-order.txt"

	// PluginsFileName is the plugin-level load order output
	PluginsFileName = "plugins.txt"

	// MasterlistDirName is the cache subdirectory for ordering masterlists
	MasterlistDirName = "masterlists"

	// ConfigFileName is the user configuration file
	ConfigFileName = "config.toml"

	// LogFileName is the name of the log file
	LogFileName = "modstage.log"

	// DownloadPrefix marks in-flight downloads in the staging directory
	DownloadPrefix = ".downloading_"
)

// Paths provides centralized path management for modstage
type Paths interface {
	DataDir() string
	ConfigDir() string
	CacheDir() string
	StateDir() string
	ConfigFilePath() string
	LogFilePath() string
	MasterlistPath(gameDomain string) string
	StateFilePath(stagingDir string) string
	LoadOrderPath(stagingDir string) string
	PluginsPath(stagingDir string) string
}

type paths struct {
	xdgData   string
	xdgConfig string
	xdgCache  string
	xdgState  string
}

// New creates a Paths instance, honoring the MODSTAGE_* environment
// overrides before falling back to the XDG base directories.
func New() Paths {
	p := &paths{
		xdgData:   filepath.Join(xdg.DataHome, AppDirName),
		xdgConfig: filepath.Join(xdg.ConfigHome, AppDirName),
		xdgCache:  filepath.Join(xdg.CacheHome, AppDirName),
		xdgState:  filepath.Join(xdg.StateHome, AppDirName),
	}
	if dir := os.Getenv(EnvDataDir); dir != "" {
		p.xdgData = dir
	}
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		p.xdgConfig = dir
	}
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		p.xdgCache = dir
	}
	return p
}

func (p *paths) DataDir() string   { return p.xdgData }
func (p *paths) ConfigDir() string { return p.xdgConfig }
func (p *paths) CacheDir() string  { return p.xdgCache }
func (p *paths) StateDir() string  { return p.xdgState }

func (p *paths) ConfigFilePath() string {
	return filepath.Join(p.xdgConfig, ConfigFileName)
}

func (p *paths) LogFilePath() string {
	return filepath.Join(p.xdgState, LogFileName)
}

// MasterlistPath returns the cache path for a game's ordering masterlist.
func (p *paths) MasterlistPath(gameDomain string) string {
	return filepath.Join(p.xdgCache, MasterlistDirName, gameDomain+".yaml")
}

// StateFilePath returns the state document path for a staging directory.
func (p *paths) StateFilePath(stagingDir string) string {
	return filepath.Join(stagingDir, StateFileName)
}

// LoadOrderPath returns the mod-level load order file for a staging directory.
func (p *paths) LoadOrderPath(stagingDir string) string {
	return filepath.Join(stagingDir, LoadOrderFileName)
}

// PluginsPath returns the plugin-level load order file for a staging directory.
func (p *paths) PluginsPath(stagingDir string) string {
	return filepath.Join(stagingDir, PluginsFileName)
}
