// Package state owns the persisted record of a local install: installed
// mods, their provenance, the cached manifest, and the deployment record.
// One state document lives in each staging directory and is the single
// source of truth across process invocations.
package state

import (
	"encoding/json"
	"time"

	"github.com/modstage/modstage/pkg/types"
)

// CollectionState is the root of the persisted state for one staging
// directory. Mutating operations load it, mutate in memory, and persist
// the whole structure atomically before the command exits successfully.
type CollectionState struct {
	CollectionURL    string                  `json:"collection_url"`
	CollectionSlug   string                  `json:"collection_slug"`
	CollectionName   string                  `json:"collection_name"`
	Revision         int                     `json:"revision"`
	GameDomain       string                  `json:"game_domain"`
	Mods             map[int64]*types.Mod    `json:"-"`
	Rules            []types.Rule            `json:"rules,omitempty"`
	Manifest         *types.Manifest         `json:"manifest,omitempty"`
	Deployment       *types.DeploymentRecord `json:"deployment,omitempty"`
	GameDir          string                  `json:"game_dir,omitempty"`
	CompatPrefix     string                  `json:"compat_prefix,omitempty"`
	TrackSyncEnabled bool                    `json:"track_sync_enabled"`

	// extra holds top-level fields written by a newer version of the
	// tool; they are carried through unchanged on the next save.
	extra map[string]json.RawMessage

	// modExtra holds unknown per-mod fields, keyed by mod id.
	modExtra map[int64]map[string]json.RawMessage
}

// NewCollectionState returns an empty state for a staging directory.
func NewCollectionState() *CollectionState {
	return &CollectionState{
		Mods: make(map[int64]*types.Mod),
	}
}

// SetCollectionInfo records the collection's identity after a fetch.
func (cs *CollectionState) SetCollectionInfo(url, slug, name, gameDomain string, revision int) {
	cs.CollectionURL = url
	cs.CollectionSlug = slug
	cs.CollectionName = name
	cs.GameDomain = gameDomain
	cs.Revision = revision
}

// AddMod inserts or replaces a mod entry.
func (cs *CollectionState) AddMod(mod *types.Mod) {
	if mod.InstalledAt.IsZero() {
		mod.InstalledAt = time.Now().UTC()
	}
	if cs.Mods == nil {
		cs.Mods = make(map[int64]*types.Mod)
	}
	cs.Mods[mod.ID] = mod
}

// RemoveMod deletes a mod entry; absent ids are not an error.
func (cs *CollectionState) RemoveMod(id int64) {
	delete(cs.Mods, id)
	delete(cs.modExtra, id)
}

// Mod returns the entry for id, or nil.
func (cs *CollectionState) Mod(id int64) *types.Mod {
	return cs.Mods[id]
}

// NextLocalID returns an unused negative id for a manually-registered
// local mod.
func (cs *CollectionState) NextLocalID() int64 {
	id := int64(-1)
	for {
		if _, taken := cs.Mods[id]; !taken {
			return id
		}
		id--
	}
}

// ModIDs returns all mod ids in unspecified order.
func (cs *CollectionState) ModIDs() []int64 {
	ids := make([]int64, 0, len(cs.Mods))
	for id := range cs.Mods {
		ids = append(ids, id)
	}
	return ids
}
