package service

import (
	"context"

	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/loadorder"
	"github.com/modstage/modstage/pkg/pluginsort"
	"github.com/modstage/modstage/pkg/types"
)

// LoadOrderResult carries the resolved orders and the files written.
type LoadOrderResult struct {
	Order       []types.LoadOrderEntry   `json:"order"`
	Plugins     []types.PluginOrderEntry `json:"plugins,omitempty"`
	Files       []string                 `json:"files,omitempty"`
	Diagnostics []types.Diagnostic       `json:"diagnostics,omitempty"`
}

// LoadOrder resolves the staging directory's mod and plugin orders and
// writes load-order.txt (and plugins.txt when any plugins exist).
func (s *Service) LoadOrder(stagingDir string) (*LoadOrderResult, error) {
	cs, _, err := s.loadState(stagingDir)
	if err != nil {
		return nil, err
	}
	if cs.Manifest == nil {
		return nil, errors.New(errors.ErrManifestMissing, "state has no cached manifest; run sync first")
	}

	res, err := loadorder.Resolve(resolverInput(cs.Manifest, cs), cs.Manifest.Rules)
	if err != nil {
		return nil, err
	}

	result := &LoadOrderResult{
		Order:       res.Order,
		Diagnostics: res.Diagnostics,
	}

	loPath := s.paths.LoadOrderPath(stagingDir)
	if err := loadorder.WriteLoadOrder(s.fs, loPath, res.Order); err != nil {
		return nil, errors.Wrapf(err, errors.ErrLocalIO, "failed to write %s", loPath)
	}
	result.Files = append(result.Files, loPath)

	strategy := pluginsort.NewMasterlistStrategy(s.paths.MasterlistPath(cs.GameDomain))
	plugins := loadorder.PluginOrder(res.Order, cs.Mods, cs.Manifest.Plugins, strategy)
	if len(plugins) > 0 {
		result.Plugins = plugins
		plPath := s.paths.PluginsPath(stagingDir)
		if err := loadorder.WritePlugins(s.fs, plPath, plugins); err != nil {
			return nil, errors.Wrapf(err, errors.ErrLocalIO, "failed to write %s", plPath)
		}
		result.Files = append(result.Files, plPath)
	}

	return result, nil
}

// Status is a read-only summary of a staging directory.
type Status struct {
	CollectionName  string             `json:"collection_name"`
	CollectionURL   string             `json:"collection_url"`
	GameDomain      string             `json:"game_domain"`
	Revision        int                `json:"revision"`
	LatestRevision  int                `json:"latest_revision,omitempty"`
	UpdateAvailable bool               `json:"update_available"`
	Mods            int                `json:"mods"`
	ManualMods      int                `json:"manual_mods"`
	Deployed        bool               `json:"deployed"`
	DeployTarget    string             `json:"deploy_target,omitempty"`
	PlacedFiles     int                `json:"placed_files,omitempty"`
	TrackSync       bool               `json:"track_sync"`
	Diagnostics     []types.Diagnostic `json:"diagnostics,omitempty"`
}

// GetStatus reports the staging directory's current state. The latest
// remote revision is looked up best-effort: when the API is unreachable
// the summary degrades to the local view. Orphaned mods surface as
// diagnostics.
func (s *Service) GetStatus(ctx context.Context, stagingDir string) (*Status, error) {
	cs, _, err := s.loadState(stagingDir)
	if err != nil {
		return nil, err
	}

	st := &Status{
		CollectionName: cs.CollectionName,
		CollectionURL:  cs.CollectionURL,
		GameDomain:     cs.GameDomain,
		Revision:       cs.Revision,
		TrackSync:      cs.TrackSyncEnabled,
	}

	inManifest := make(map[int64]bool)
	if cs.Manifest != nil {
		for _, mm := range cs.Manifest.Mods {
			inManifest[mm.ModID] = true
		}
	}
	for _, id := range cs.ModIDs() {
		mod := cs.Mod(id)
		st.Mods++
		if mod.Manual {
			st.ManualMods++
			continue
		}
		if cs.Manifest != nil && !inManifest[id] {
			st.Diagnostics = append(st.Diagnostics, types.Diagnostic{
				Kind:    types.DiagOrphaned,
				ModID:   id,
				Message: mod.Name + " is installed but no longer in the collection",
			})
		}
	}

	if cs.Deployment != nil {
		st.Deployed = true
		st.DeployTarget = cs.Deployment.TargetRoot
		st.PlacedFiles = len(cs.Deployment.Placements)
	}

	if cs.CollectionSlug != "" {
		// Single attempt, no retry loop; status should stay snappy.
		rev, err := s.client.CollectionRevision(ctx, cs.GameDomain, cs.CollectionSlug, 0)
		if err == nil {
			st.LatestRevision = rev.Revision
			st.UpdateAvailable = rev.Revision > cs.Revision
		}
	}

	return st, nil
}
