package reconcile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modstage/modstage/pkg/state"
	"github.com/modstage/modstage/pkg/types"
)

func planManifest() *types.Manifest {
	return &types.Manifest{
		Slug: "test", GameDomain: "starfield", Revision: 3,
		Mods: []types.ManifestMod{
			{ModID: 1, Name: "Fresh", FileID: 11},
			{ModID: 2, Name: "Stale", FileID: 22},
			{ModID: 3, Name: "Current", FileID: 33},
			{ModID: 4, Name: "Extra", FileID: 44, Optional: true},
		},
	}
}

func TestPlan_DecisionTable(t *testing.T) {
	cs := state.NewCollectionState()
	cs.AddMod(&types.Mod{ID: 2, Name: "Stale", FileID: 21})   // outdated file
	cs.AddMod(&types.Mod{ID: 3, Name: "Current", FileID: 33}) // up to date

	actions, diags := Plan(planManifest(), cs, Options{})

	require.Len(t, actions, 4)
	assert.Equal(t, ActionInstall, actions[0].Kind)
	assert.Nil(t, actions[0].Current)
	assert.Equal(t, ActionUpdate, actions[1].Kind)
	require.NotNil(t, actions[1].Current)
	assert.EqualValues(t, 21, actions[1].Current.FileID)
	assert.Equal(t, ActionSkip, actions[2].Kind)
	assert.Equal(t, ActionInstall, actions[3].Kind)
	assert.Empty(t, diags)
}

func TestPlan_SkipOptional(t *testing.T) {
	cs := state.NewCollectionState()

	actions, _ := Plan(planManifest(), cs, Options{SkipOptional: true})

	require.Len(t, actions, 3)
	for _, a := range actions {
		assert.False(t, a.Manifest.Optional)
	}
}

func TestPlan_SkipOptionalKeepsInstalledOptional(t *testing.T) {
	cs := state.NewCollectionState()
	// Mod 4 is optional in the manifest and already installed from an
	// earlier run without the skip flag.
	cs.AddMod(&types.Mod{ID: 4, Name: "Extra", FileID: 44})

	actions, diags := Plan(planManifest(), cs, Options{SkipOptional: true})

	// Still a manifest member, so it is neither acted on nor an orphan.
	for _, a := range actions {
		assert.NotEqualValues(t, 4, a.Manifest.ModID)
	}
	assert.Empty(t, diags)
	assert.NotNil(t, cs.Mod(4))
}

func TestPlan_ManualModsAreImmune(t *testing.T) {
	cs := state.NewCollectionState()
	// A manual entry shadowing a manifest id must never be updated even
	// when the file ids differ.
	cs.AddMod(&types.Mod{ID: 2, Name: "Hand-picked", FileID: 999, Manual: true})
	// Manual local mods are never orphans.
	cs.AddMod(&types.Mod{ID: -1, Name: "Local Fix", Manual: true})

	actions, diags := Plan(planManifest(), cs, Options{})

	var forMod2 *Action
	for i := range actions {
		if actions[i].Manifest.ModID == 2 {
			forMod2 = &actions[i]
		}
	}
	require.NotNil(t, forMod2)
	assert.Equal(t, ActionSkip, forMod2.Kind)
	assert.Empty(t, diags)
}

func TestPlan_OrphansFlaggedNotDeleted(t *testing.T) {
	cs := state.NewCollectionState()
	cs.AddMod(&types.Mod{ID: 77, Name: "Removed From Collection", FileID: 70})
	cs.AddMod(&types.Mod{ID: 55, Name: "Also Removed", FileID: 50})

	actions, diags := Plan(planManifest(), cs, Options{})

	// Orphans never produce delete actions.
	for _, a := range actions {
		assert.NotContains(t, []int64{55, 77}, a.Manifest.ModID)
	}

	require.Len(t, diags, 2)
	assert.Equal(t, types.DiagOrphaned, diags[0].Kind)
	// Deterministic order by mod id.
	assert.EqualValues(t, 55, diags[0].ModID)
	assert.EqualValues(t, 77, diags[1].ModID)

	// The state still holds both mods.
	assert.NotNil(t, cs.Mod(55))
	assert.NotNil(t, cs.Mod(77))
}

func TestPluginFiles(t *testing.T) {
	staged := []string{
		filepath.Join("100-Mod", "base.esm"),
		filepath.Join("100-Mod", "patch.esp"),
		filepath.Join("100-Mod", "optional", "patch.esp"),
		filepath.Join("100-Mod", "Mixed.Esp"),
		filepath.Join("100-Mod", "LIGHT.ESL"),
		filepath.Join("100-Mod", "textures", "rock.dds"),
		filepath.Join("100-Mod", "readme.txt"),
	}

	got := PluginFiles(staged)
	assert.Equal(t, []string{"base.esm", "patch.esp", "Mixed.Esp", "LIGHT.ESL"}, got)
}

func TestPluginFiles_NoPlugins(t *testing.T) {
	assert.Empty(t, PluginFiles([]string{"meshes/a.nif", "readme.txt"}))
	assert.Empty(t, PluginFiles(nil))
}

func TestModDirName(t *testing.T) {
	tests := []struct {
		id   int64
		name string
		want string
	}{
		{100, "Simple Mod", "100-Simple_Mod"},
		{100, "We/ird: Name!", "100-We_ird_Name"},
		{-3, "Local", "-3-Local"},
		{42, "///", "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ModDirName(tt.id, tt.name))
		})
	}
}
