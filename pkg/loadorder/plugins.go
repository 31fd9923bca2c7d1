package loadorder

import (
	"github.com/modstage/modstage/pkg/pluginsort"
	"github.com/modstage/modstage/pkg/types"
)

// PluginOrder derives the plugin-level order from a resolved mod order.
//
// The baseline is the mods' plugin files flattened in mod order, each
// mod's own plugins keeping their declared order. A sorting strategy may
// then refine the baseline; when the strategy is nil or reports itself
// unavailable, the baseline stands. Enabled flags always come from the
// manifest's plugin list (absent entries default to enabled) and are
// never changed by a strategy.
func PluginOrder(order []types.LoadOrderEntry, mods map[int64]*types.Mod, manifestPlugins []types.ManifestPlugin, strategy pluginsort.Strategy) []types.PluginOrderEntry {
	var baseline []string
	seen := make(map[string]bool)
	for _, entry := range order {
		mod := mods[entry.ModID]
		if mod == nil {
			continue
		}
		for _, plugin := range mod.PluginFiles {
			if seen[plugin] {
				continue
			}
			seen[plugin] = true
			baseline = append(baseline, plugin)
		}
	}

	enabled := make(map[string]bool, len(manifestPlugins))
	known := make(map[string]bool, len(manifestPlugins))
	for _, p := range manifestPlugins {
		enabled[p.Filename] = p.Enabled
		known[p.Filename] = true
	}

	sorted := baseline
	if strategy != nil {
		if refined, err := strategy.Sort(baseline); err == nil {
			sorted = refined
		}
	}

	entries := make([]types.PluginOrderEntry, 0, len(sorted))
	for i, filename := range sorted {
		on := true
		if known[filename] {
			on = enabled[filename]
		}
		entries = append(entries, types.PluginOrderEntry{
			Filename: filename,
			Position: i,
			Enabled:  on,
		})
	}
	return entries
}
