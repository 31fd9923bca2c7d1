package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/logging"
	"github.com/modstage/modstage/pkg/state"
	"github.com/modstage/modstage/pkg/types"
)

// DataDirName is the content directory inside the game root.
const DataDirName = "Data"

// Engine places staged files into a game directory and reverses that.
type Engine struct {
	fs   types.FS
	mode types.PlacementKind
}

// NewEngine returns an Engine placing files via mode (link or copy).
func NewEngine(fs types.FS, mode types.PlacementKind) *Engine {
	return &Engine{fs: fs, mode: mode}
}

// Plan is the computed set of placements for one deploy, plus what was
// skipped and which destinations were contested.
type Plan struct {
	TargetRoot  string
	Placements  []types.Placement
	Skipped     int
	Diagnostics []types.Diagnostic
}

// BuildPlan classifies every staged file of every mod, walking mods in
// resolved load order so that a later mod's file wins any destination
// both want. Winning is deterministic: same order in, same plan out.
func (e *Engine) BuildPlan(stagingDir, gameDir string, order []types.LoadOrderEntry, mods map[int64]*types.Mod) *Plan {
	plan := &Plan{TargetRoot: gameDir}
	dataDir := filepath.Join(gameDir, DataDirName)

	type claim struct {
		index int
		modID int64
	}
	claimed := make(map[string]claim)

	for _, entry := range order {
		mod := mods[entry.ModID]
		if mod == nil {
			continue
		}
		for _, staged := range mod.StagedFiles {
			inMod := stripModDir(staged)
			c := Classify(inMod)

			var dest string
			switch c.Role {
			case RoleSkip:
				plan.Skipped++
				continue
			case RoleLoader, RoleConfigOverlay:
				dest = filepath.Join(gameDir, filepath.FromSlash(c.RelDest))
			default:
				dest = filepath.Join(dataDir, filepath.FromSlash(c.RelDest))
			}

			placement := types.Placement{
				Source:      filepath.Join(stagingDir, staged),
				Destination: dest,
				Kind:        e.mode,
			}

			if prev, contested := claimed[dest]; contested {
				plan.Diagnostics = append(plan.Diagnostics, types.Diagnostic{
					Kind:  types.DiagConflict,
					ModID: entry.ModID,
					Message: fmt.Sprintf("%s: mod %d overrides mod %d (later in load order wins)",
						c.RelDest, entry.ModID, prev.modID),
				})
				plan.Placements[prev.index] = placement
				claimed[dest] = claim{index: prev.index, modID: entry.ModID}
				continue
			}

			claimed[dest] = claim{index: len(plan.Placements), modID: entry.ModID}
			plan.Placements = append(plan.Placements, placement)
		}
	}

	return plan
}

// Deploy executes a plan. The full intended record is persisted before
// any file is placed, so after a crash the record is a superset of what
// exists and undeploy stays safe. The first placement failure stops the
// pass; afterwards the record is trimmed to what actually succeeded and
// persisted again.
func (e *Engine) Deploy(cs *state.CollectionState, store *state.Store, plan *Plan, dryRun bool) (*types.DeploymentRecord, []types.Diagnostic, error) {
	logger := logging.GetLogger("deploy")

	if dryRun {
		return &types.DeploymentRecord{
			TargetRoot: plan.TargetRoot,
			Placements: plan.Placements,
		}, nil, nil
	}

	intended := &types.DeploymentRecord{
		TargetRoot: plan.TargetRoot,
		DeployedAt: time.Now().UTC(),
		Placements: plan.Placements,
	}
	cs.Deployment = intended
	if err := store.Save(cs); err != nil {
		return nil, nil, err
	}

	var placed []types.Placement
	var diags []types.Diagnostic
	for _, p := range plan.Placements {
		if err := e.place(p); err != nil {
			// A placement failure is usually systemic (read-only target,
			// full disk), so the rest of the pass is abandoned rather
			// than attempted file by file.
			diags = append(diags, types.Diagnostic{
				Kind:    types.DiagLocalIO,
				Message: fmt.Sprintf("failed to place %s: %v", p.Destination, err),
			})
			break
		}
		placed = append(placed, p)
	}

	final := &types.DeploymentRecord{
		TargetRoot: plan.TargetRoot,
		DeployedAt: intended.DeployedAt,
		Placements: placed,
	}
	cs.Deployment = final
	if err := store.Save(cs); err != nil {
		return nil, diags, err
	}

	logger.Info().
		Int("placed", len(placed)).
		Int("failed", len(plan.Placements)-len(placed)).
		Str("target", plan.TargetRoot).
		Msg("Deployment complete")
	return final, diags, nil
}

// place materializes one file, replacing whatever already occupies the
// destination.
func (e *Engine) place(p types.Placement) error {
	if err := e.fs.MkdirAll(filepath.Dir(p.Destination), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDeployPlacement, "failed to create parent of %s", p.Destination)
	}

	if _, err := e.fs.Lstat(p.Destination); err == nil {
		if err := e.fs.Remove(p.Destination); err != nil {
			return errors.Wrapf(err, errors.ErrDeployPlacement, "failed to replace %s", p.Destination)
		}
	}

	switch p.Kind {
	case types.PlacementLink:
		src, err := filepath.Abs(p.Source)
		if err != nil {
			return errors.Wrapf(err, errors.ErrDeployPlacement, "failed to resolve %s", p.Source)
		}
		if err := e.fs.Symlink(src, p.Destination); err != nil {
			return errors.Wrapf(err, errors.ErrDeployPlacement, "failed to link %s", p.Destination)
		}
	case types.PlacementCopy:
		data, err := e.fs.ReadFile(p.Source)
		if err != nil {
			return errors.Wrapf(err, errors.ErrDeployPlacement, "failed to read %s", p.Source)
		}
		if err := e.fs.WriteFile(p.Destination, data, 0644); err != nil {
			return errors.Wrapf(err, errors.ErrDeployPlacement, "failed to write %s", p.Destination)
		}
	default:
		return errors.Newf(errors.ErrInternal, "unknown placement kind %q", p.Kind)
	}
	return nil
}

// Undeploy removes exactly the recorded placements, never anything
// else. Already-absent destinations are fine; directories emptied by
// the removals are pruned up to the target root. The cleared record is
// persisted before returning.
func (e *Engine) Undeploy(cs *state.CollectionState, store *state.Store) (int, error) {
	logger := logging.GetLogger("deploy")

	record := cs.Deployment
	if record == nil || len(record.Placements) == 0 {
		cs.Deployment = nil
		return 0, store.Save(cs)
	}

	removed := 0
	parents := make(map[string]bool)
	for _, p := range record.Placements {
		if _, err := e.fs.Lstat(p.Destination); err != nil {
			continue
		}
		if err := e.fs.Remove(p.Destination); err != nil {
			return removed, errors.Wrapf(err, errors.ErrLocalIO, "failed to remove %s", p.Destination)
		}
		removed++
		parents[filepath.Dir(p.Destination)] = true
	}

	pruneEmptyDirs(e.fs, parents, record.TargetRoot)

	cs.Deployment = nil
	if err := store.Save(cs); err != nil {
		return removed, err
	}

	logger.Info().Int("removed", removed).Str("target", record.TargetRoot).Msg("Undeploy complete")
	return removed, nil
}

// pruneEmptyDirs removes now-empty directories, walking each parent
// chain upward but never past root.
func pruneEmptyDirs(fs types.FS, parents map[string]bool, root string) {
	root = filepath.Clean(root)
	for dir := range parents {
		for {
			dir = filepath.Clean(dir)
			if dir == root || !strings.HasPrefix(dir, root+string(os.PathSeparator)) {
				break
			}
			entries, err := fs.ReadDir(dir)
			if err != nil || len(entries) > 0 {
				break
			}
			if err := fs.Remove(dir); err != nil {
				break
			}
			dir = filepath.Dir(dir)
		}
	}
}

// stripModDir drops the leading per-mod staging directory component.
func stripModDir(staged string) string {
	parts := strings.SplitN(filepath.ToSlash(staged), "/", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return parts[0]
}
