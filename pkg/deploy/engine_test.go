package deploy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/filesystem"
	"github.com/modstage/modstage/pkg/paths"
	"github.com/modstage/modstage/pkg/state"
	"github.com/modstage/modstage/pkg/types"
)

func writeStaged(t *testing.T, stagingDir, rel, content string) {
	t.Helper()
	full := filepath.Join(stagingDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func testStore(t *testing.T, stagingDir string) (*state.CollectionState, *state.Store) {
	t.Helper()
	cs := state.NewCollectionState()
	store := state.NewStore(filesystem.NewOS(), paths.New(), stagingDir)
	return cs, store
}

func TestBuildPlan_RoutesByRole(t *testing.T) {
	staging := t.TempDir()
	game := t.TempDir()

	mods := map[int64]*types.Mod{
		1: {ID: 1, StagedFiles: []string{
			"1_base/base.esp",
			"1_base/textures/rock.dds",
			"1_base/readme.txt",
			"1_base/sfse_loader.exe",
		}},
	}
	order := []types.LoadOrderEntry{{ModID: 1, Position: 0}}

	engine := NewEngine(filesystem.NewOS(), types.PlacementLink)
	plan := engine.BuildPlan(staging, game, order, mods)

	assert.Equal(t, game, plan.TargetRoot)
	assert.Equal(t, 1, plan.Skipped)
	require.Len(t, plan.Placements, 3)

	dests := make(map[string]bool)
	for _, p := range plan.Placements {
		dests[p.Destination] = true
	}
	assert.True(t, dests[filepath.Join(game, "Data", "base.esp")])
	assert.True(t, dests[filepath.Join(game, "Data", "textures", "rock.dds")])
	assert.True(t, dests[filepath.Join(game, "sfse_loader.exe")])
}

func TestBuildPlan_LaterModWinsConflicts(t *testing.T) {
	staging := t.TempDir()
	game := t.TempDir()

	mods := map[int64]*types.Mod{
		1: {ID: 1, StagedFiles: []string{"1_first/textures/shared.dds"}},
		2: {ID: 2, StagedFiles: []string{"2_second/textures/shared.dds"}},
	}
	order := []types.LoadOrderEntry{
		{ModID: 1, Position: 0},
		{ModID: 2, Position: 1},
	}

	engine := NewEngine(filesystem.NewOS(), types.PlacementLink)
	plan := engine.BuildPlan(staging, game, order, mods)

	require.Len(t, plan.Placements, 1)
	assert.Equal(t, filepath.Join(staging, "2_second", "textures", "shared.dds"), plan.Placements[0].Source)

	require.Len(t, plan.Diagnostics, 1)
	assert.Equal(t, types.DiagConflict, plan.Diagnostics[0].Kind)
	assert.EqualValues(t, 2, plan.Diagnostics[0].ModID)
}

func TestDeployUndeploy_LinkRoundTrip(t *testing.T) {
	staging := t.TempDir()
	game := t.TempDir()

	writeStaged(t, staging, "1_mod/mod.esp", "plugin bytes")
	writeStaged(t, staging, "1_mod/textures/a.dds", "texture bytes")

	mods := map[int64]*types.Mod{
		1: {ID: 1, StagedFiles: []string{"1_mod/mod.esp", "1_mod/textures/a.dds"}},
	}
	order := []types.LoadOrderEntry{{ModID: 1, Position: 0}}

	cs, store := testStore(t, staging)
	engine := NewEngine(filesystem.NewOS(), types.PlacementLink)
	plan := engine.BuildPlan(staging, game, order, mods)

	record, diags, err := engine.Deploy(cs, store, plan, false)
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, record.Placements, 2)

	// Placed as symlinks resolving to staged content.
	esp := filepath.Join(game, "Data", "mod.esp")
	info, err := os.Lstat(esp)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)
	content, err := os.ReadFile(esp)
	require.NoError(t, err)
	assert.Equal(t, "plugin bytes", string(content))

	// Record survives a reload.
	reloaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, reloaded.Deployment)
	assert.Len(t, reloaded.Deployment.Placements, 2)

	// Undeploy removes everything it placed, prunes emptied dirs, and
	// clears the record.
	removed, err := engine.Undeploy(reloaded, store)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = os.Lstat(esp)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(game, "Data", "textures"))
	assert.True(t, os.IsNotExist(err))
	// The game root itself is never removed.
	_, err = os.Stat(game)
	assert.NoError(t, err)

	final, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, final.Deployment)
}

func TestDeploy_CopyMode(t *testing.T) {
	staging := t.TempDir()
	game := t.TempDir()

	writeStaged(t, staging, "1_mod/mod.esp", "copied bytes")
	mods := map[int64]*types.Mod{
		1: {ID: 1, StagedFiles: []string{"1_mod/mod.esp"}},
	}
	order := []types.LoadOrderEntry{{ModID: 1, Position: 0}}

	cs, store := testStore(t, staging)
	engine := NewEngine(filesystem.NewOS(), types.PlacementCopy)
	plan := engine.BuildPlan(staging, game, order, mods)

	_, diags, err := engine.Deploy(cs, store, plan, false)
	require.NoError(t, err)
	assert.Empty(t, diags)

	esp := filepath.Join(game, "Data", "mod.esp")
	info, err := os.Lstat(esp)
	require.NoError(t, err)
	assert.Zero(t, info.Mode()&os.ModeSymlink, "copy mode must not symlink")
	content, err := os.ReadFile(esp)
	require.NoError(t, err)
	assert.Equal(t, "copied bytes", string(content))
}

// brokenLinkFS fails symlink creation for one destination basename,
// standing in for a target tree that stops accepting writes mid-pass.
type brokenLinkFS struct {
	types.FS
	failBase string
}

func (f *brokenLinkFS) Symlink(oldname, newname string) error {
	if filepath.Base(newname) == f.failBase {
		return errors.New(errors.ErrLocalIO, "read-only file system")
	}
	return f.FS.Symlink(oldname, newname)
}

func TestDeploy_PlacementFailureAbortsPass(t *testing.T) {
	staging := t.TempDir()
	game := t.TempDir()

	writeStaged(t, staging, "1_mod/first.esp", "bytes")
	writeStaged(t, staging, "1_mod/second.esp", "bytes")
	writeStaged(t, staging, "1_mod/third.esp", "bytes")
	mods := map[int64]*types.Mod{
		1: {ID: 1, StagedFiles: []string{"1_mod/first.esp", "1_mod/second.esp", "1_mod/third.esp"}},
	}
	order := []types.LoadOrderEntry{{ModID: 1, Position: 0}}

	cs, store := testStore(t, staging)
	fs := &brokenLinkFS{FS: filesystem.NewOS(), failBase: "second.esp"}
	engine := NewEngine(fs, types.PlacementLink)
	plan := engine.BuildPlan(staging, game, order, mods)
	require.Len(t, plan.Placements, 3)

	record, diags, err := engine.Deploy(cs, store, plan, false)
	require.NoError(t, err)

	require.Len(t, diags, 1)
	assert.Equal(t, types.DiagLocalIO, diags[0].Kind)
	assert.Contains(t, diags[0].Message, "second.esp")

	// Only the file placed before the failure; the rest of the pass was
	// not attempted.
	require.Len(t, record.Placements, 1)
	assert.Equal(t, filepath.Join(game, "Data", "first.esp"), record.Placements[0].Destination)
	_, statErr := os.Lstat(filepath.Join(game, "Data", "third.esp"))
	assert.True(t, os.IsNotExist(statErr))

	// The persisted record matches what actually landed, so undeploy
	// stays safe.
	reloaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, reloaded.Deployment)
	assert.Len(t, reloaded.Deployment.Placements, 1)
}

func TestDeploy_DryRunTouchesNothing(t *testing.T) {
	staging := t.TempDir()
	game := t.TempDir()

	writeStaged(t, staging, "1_mod/mod.esp", "bytes")
	mods := map[int64]*types.Mod{
		1: {ID: 1, StagedFiles: []string{"1_mod/mod.esp"}},
	}
	order := []types.LoadOrderEntry{{ModID: 1, Position: 0}}

	cs, store := testStore(t, staging)
	engine := NewEngine(filesystem.NewOS(), types.PlacementLink)
	plan := engine.BuildPlan(staging, game, order, mods)

	record, _, err := engine.Deploy(cs, store, plan, true)
	require.NoError(t, err)
	assert.Len(t, record.Placements, 1)

	_, err = os.Lstat(filepath.Join(game, "Data", "mod.esp"))
	assert.True(t, os.IsNotExist(err))
	assert.False(t, store.Exists(), "dry run must not persist state")
}

func TestDeploy_Idempotent(t *testing.T) {
	staging := t.TempDir()
	game := t.TempDir()

	writeStaged(t, staging, "1_mod/mod.esp", "bytes")
	mods := map[int64]*types.Mod{
		1: {ID: 1, StagedFiles: []string{"1_mod/mod.esp"}},
	}
	order := []types.LoadOrderEntry{{ModID: 1, Position: 0}}

	cs, store := testStore(t, staging)
	engine := NewEngine(filesystem.NewOS(), types.PlacementLink)

	for i := 0; i < 2; i++ {
		plan := engine.BuildPlan(staging, game, order, mods)
		record, diags, err := engine.Deploy(cs, store, plan, false)
		require.NoError(t, err)
		assert.Empty(t, diags)
		assert.Len(t, record.Placements, 1)
	}

	content, err := os.ReadFile(filepath.Join(game, "Data", "mod.esp"))
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(content))
}

func TestUndeploy_NeverDeployedIsNoop(t *testing.T) {
	staging := t.TempDir()

	cs, store := testStore(t, staging)
	engine := NewEngine(filesystem.NewOS(), types.PlacementLink)

	removed, err := engine.Undeploy(cs, store)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestUndeploy_ToleratesMissingFiles(t *testing.T) {
	staging := t.TempDir()
	game := t.TempDir()

	writeStaged(t, staging, "1_mod/mod.esp", "bytes")
	mods := map[int64]*types.Mod{
		1: {ID: 1, StagedFiles: []string{"1_mod/mod.esp"}},
	}
	order := []types.LoadOrderEntry{{ModID: 1, Position: 0}}

	cs, store := testStore(t, staging)
	engine := NewEngine(filesystem.NewOS(), types.PlacementLink)
	plan := engine.BuildPlan(staging, game, order, mods)
	_, _, err := engine.Deploy(cs, store, plan, false)
	require.NoError(t, err)

	// Someone deleted the file behind our back.
	require.NoError(t, os.Remove(filepath.Join(game, "Data", "mod.esp")))

	removed, err := engine.Undeploy(cs, store)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Nil(t, cs.Deployment)
}
