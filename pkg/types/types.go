package types

import (
	"time"
)

// PhaseManual is the sentinel phase assigned to manually-added mods.
// It sorts after every author-assigned collection phase.
const PhaseManual = 999

// Mod is a single collection member tracked in the state store.
// Remote mods carry their Nexus numeric id; manually-registered local
// mods use locally-generated negative ids.
type Mod struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	FileID       int64     `json:"file_id"`
	Version      string    `json:"version"`
	Filename     string    `json:"filename"`
	InstalledAt  time.Time `json:"installed_at"`
	Optional     bool      `json:"optional"`
	Phase        int       `json:"phase"`
	Manual       bool      `json:"manual"`
	Requirements []int64   `json:"requirements,omitempty"`

	// StagedFiles are the paths this mod contributed to the staging
	// directory, relative to the staging root.
	StagedFiles []string `json:"staged_files,omitempty"`

	// PluginFiles are the mod's declared plugin files (esp/esm/esl) in
	// declaration order.
	PluginFiles []string `json:"plugin_files,omitempty"`
}

// RuleKind is the kind of an ordering constraint between two mods.
type RuleKind string

const (
	RuleBefore   RuleKind = "before"
	RuleAfter    RuleKind = "after"
	RuleRequires RuleKind = "requires"
)

// Rule is a directed ordering constraint between two mods.
// requires implies an after edge plus a presence check on Target.
type Rule struct {
	Kind   RuleKind `json:"kind"`
	Source int64    `json:"source"`
	Target int64    `json:"target"`
}

// ManifestMod is one member of a fetched collection manifest.
type ManifestMod struct {
	ModID        int64   `json:"mod_id"`
	Name         string  `json:"name"`
	FileID       int64   `json:"file_id"`
	Filename     string  `json:"filename"`
	Version      string  `json:"version"`
	SizeBytes    int64   `json:"size_bytes"`
	Optional     bool    `json:"optional"`
	Phase        int     `json:"phase"`
	Requirements []int64 `json:"requirements,omitempty"`
	PluginFiles  []string `json:"plugin_files,omitempty"`
}

// ManifestPlugin is a plugin entry from the collection author's load order.
type ManifestPlugin struct {
	Filename string `json:"filename"`
	Enabled  bool   `json:"enabled"`
}

// Manifest is the immutable in-memory representation of a fetched
// collection description. Declaration order of Mods and Rules is
// significant: it is the resolver's tie-break and cycle-break key.
type Manifest struct {
	Slug         string           `json:"slug"`
	Name         string           `json:"name"`
	GameDomain   string           `json:"game_domain"`
	Revision     int              `json:"revision"`
	DownloadLink string           `json:"download_link,omitempty"`
	Mods         []ManifestMod    `json:"mods"`
	Rules        []Rule           `json:"rules,omitempty"`
	Plugins      []ManifestPlugin `json:"plugins,omitempty"`
}

// Mod returns the manifest entry for the given mod id, or nil.
func (m *Manifest) Mod(id int64) *ManifestMod {
	for i := range m.Mods {
		if m.Mods[i].ModID == id {
			return &m.Mods[i]
		}
	}
	return nil
}

// LoadOrderEntry is one position in the resolved mod-level order.
type LoadOrderEntry struct {
	ModID    int64  `json:"mod_id"`
	Position int    `json:"position"`
	Name     string `json:"name"`
	Phase    int    `json:"phase"`
}

// PluginOrderEntry is one position in the resolved plugin-level order.
type PluginOrderEntry struct {
	Filename string `json:"filename"`
	Position int    `json:"position"`
	Enabled  bool   `json:"enabled"`
}

// PlacementKind is how a file was materialized into the target tree.
type PlacementKind string

const (
	PlacementLink PlacementKind = "link"
	PlacementCopy PlacementKind = "copy"
)

// Placement records a single file the deployment engine created.
type Placement struct {
	Source      string        `json:"src"`
	Destination string        `json:"dest"`
	Kind        PlacementKind `json:"kind"`
}

// DeploymentRecord is the durable inventory of everything the last deploy
// placed into the target tree. It is the sole input to undeploy.
type DeploymentRecord struct {
	TargetRoot string      `json:"target_root"`
	DeployedAt time.Time   `json:"deployed_at"`
	Placements []Placement `json:"placements"`
}

// Diagnostic is a non-fatal condition reported alongside an operation's
// result, tagged with its taxonomy kind.
type Diagnostic struct {
	Kind    string `json:"kind"`
	ModID   int64  `json:"mod_id,omitempty"`
	Message string `json:"message"`
}

// Diagnostic kinds.
const (
	DiagCycleBroken   = "cycle-broken"
	DiagPhaseConflict = "phase-conflict"
	DiagOrphaned      = "orphaned"
	DiagFetchFailed   = "fetch-failed"
	DiagRateLimited   = "rate-limited"
	DiagEntitlement   = "entitlement"
	DiagNotFound      = "not-found"
	DiagLocalIO       = "local-io"
	DiagCorrupt       = "corrupt"
	DiagConflict      = "file-conflict"
)

// ProgressFunc receives incremental progress for long-running operations.
// pct is in [0, 1].
type ProgressFunc func(pct float64, message string)

// NoopProgress is a ProgressFunc that discards updates.
func NoopProgress(float64, string) {}
