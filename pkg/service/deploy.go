package service

import (
	"path/filepath"

	"github.com/modstage/modstage/pkg/deploy"
	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/loadorder"
	"github.com/modstage/modstage/pkg/logging"
	"github.com/modstage/modstage/pkg/state"
	"github.com/modstage/modstage/pkg/steam"
	"github.com/modstage/modstage/pkg/types"
)

// DeployOptions tune a deployment.
type DeployOptions struct {
	// GameDir overrides Steam discovery.
	GameDir string
	// Copy forces copy placement regardless of configured mode.
	Copy bool
	// DryRun plans and reports without touching the game directory.
	DryRun bool
}

// DeployResult reports what a deployment did or would do.
type DeployResult struct {
	TargetRoot  string             `json:"target_root"`
	Placed      int                `json:"placed"`
	Skipped     int                `json:"skipped"`
	DryRun      bool               `json:"dry_run"`
	PluginsFile string             `json:"plugins_file,omitempty"`
	GameINI     string             `json:"game_ini,omitempty"`
	Diagnostics []types.Diagnostic `json:"diagnostics,omitempty"`
}

// Deploy places every staged file into the game directory in resolved
// load order, records each placement, and finishes the Proton-side
// wiring (plugins.txt and the mod-support INI) when a prefix is found.
// Re-deploying replaces prior placements; deploy is idempotent.
func (s *Service) Deploy(stagingDir string, opts DeployOptions) (*DeployResult, error) {
	logger := logging.GetLogger("service")

	cs, store, err := s.loadState(stagingDir)
	if err != nil {
		return nil, err
	}
	if cs.Manifest == nil {
		return nil, errors.New(errors.ErrManifestMissing, "state has no cached manifest; run sync first")
	}

	gameDir := opts.GameDir
	if gameDir == "" {
		gameDir = cs.GameDir
	}
	if gameDir == "" {
		gameDir = steam.FindGameDir(cs.GameDomain)
	}
	if gameDir == "" {
		return nil, errors.Newf(errors.ErrTargetMissing,
			"could not locate the %s install directory; pass --game-dir", cs.GameDomain)
	}
	if _, err := s.fs.Stat(gameDir); err != nil {
		return nil, errors.Newf(errors.ErrTargetMissing, "game directory does not exist: %s", gameDir)
	}

	res, err := loadorder.Resolve(resolverInput(cs.Manifest, cs), cs.Manifest.Rules)
	if err != nil {
		return nil, err
	}

	mode := types.PlacementKind(s.cfg.DeployMode)
	if opts.Copy {
		mode = types.PlacementCopy
	}
	engine := deploy.NewEngine(s.fs, mode)
	plan := engine.BuildPlan(stagingDir, gameDir, res.Order, cs.Mods)

	result := &DeployResult{
		TargetRoot:  gameDir,
		Skipped:     plan.Skipped,
		DryRun:      opts.DryRun,
		Diagnostics: append(res.Diagnostics, plan.Diagnostics...),
	}

	if opts.DryRun {
		result.Placed = len(plan.Placements)
		return result, nil
	}

	// A previous deployment is reversed first so renamed or removed
	// files don't linger in the game tree.
	if cs.Deployment != nil {
		if _, err := engine.Undeploy(cs, store); err != nil {
			return nil, err
		}
	}

	cs.GameDir = gameDir
	record, diags, err := engine.Deploy(cs, store, plan, false)
	if err != nil {
		return nil, err
	}
	result.Placed = len(record.Placements)
	result.Diagnostics = append(result.Diagnostics, diags...)

	s.finishProtonWiring(stagingDir, cs, store, result)

	logger.Info().Int("placed", result.Placed).Str("target", gameDir).Msg("Deployed collection")
	return result, nil
}

// finishProtonWiring copies plugins.txt into the game's AppData path
// and merges the mod-support INI, when a Proton prefix can be found.
// All of this is best-effort: failures become diagnostics.
func (s *Service) finishProtonWiring(stagingDir string, cs *state.CollectionState, store *state.Store, result *DeployResult) {
	logger := logging.GetLogger("service")

	prefix := cs.CompatPrefix
	if prefix == "" {
		prefix = steam.FindProtonPrefix(cs.GameDomain)
	}
	if prefix == "" {
		return
	}
	cs.CompatPrefix = prefix
	if err := store.Save(cs); err != nil {
		logger.Warn().Err(err).Msg("Failed to persist compat prefix")
	}

	if dest := deploy.PluginsDest(prefix, cs.GameDomain); dest != "" {
		src := s.paths.PluginsPath(stagingDir)
		if data, err := s.fs.ReadFile(src); err == nil {
			if err := s.fs.MkdirAll(filepath.Dir(dest), 0755); err == nil {
				if err := s.fs.WriteFile(dest, data, 0644); err == nil {
					result.PluginsFile = dest
				}
			}
		}
	}

	if iniPath := deploy.GameINIPath(prefix, cs.GameDomain); iniPath != "" {
		if applied, err := deploy.ApplyGameINI(iniPath, cs.GameDomain); err != nil {
			result.Diagnostics = append(result.Diagnostics, types.Diagnostic{
				Kind:    types.DiagLocalIO,
				Message: "failed to update game INI: " + err.Error(),
			})
		} else if applied {
			result.GameINI = iniPath
		}
	}
}

// UndeployResult reports a reversal.
type UndeployResult struct {
	Removed int `json:"removed"`
}

// Undeploy removes exactly what the deployment record lists and clears
// it. A never-deployed staging directory undeploys to a no-op.
func (s *Service) Undeploy(stagingDir string) (*UndeployResult, error) {
	cs, store, err := s.loadState(stagingDir)
	if err != nil {
		return nil, err
	}

	engine := deploy.NewEngine(s.fs, types.PlacementKind(s.cfg.DeployMode))
	removed, err := engine.Undeploy(cs, store)
	if err != nil {
		return nil, err
	}
	return &UndeployResult{Removed: removed}, nil
}
