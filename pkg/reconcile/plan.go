// Package reconcile brings a staging directory in line with a collection
// manifest: it diffs manifest against local state, fetches what is
// missing or stale, and leaves everything else alone. Manually-added
// mods are never touched, and local mods absent from the manifest are
// flagged, not deleted.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/modstage/modstage/pkg/state"
	"github.com/modstage/modstage/pkg/types"
)

// ActionKind classifies one planned step.
type ActionKind string

const (
	// ActionInstall fetches a mod not present locally.
	ActionInstall ActionKind = "install"
	// ActionUpdate re-fetches a mod whose manifest file differs from
	// the installed one.
	ActionUpdate ActionKind = "update"
	// ActionSkip leaves an up-to-date mod untouched.
	ActionSkip ActionKind = "skip"
)

// Action is one planned reconciliation step for a single mod.
type Action struct {
	Kind     ActionKind
	Manifest types.ManifestMod
	// Current is the installed entry for updates and skips, nil for
	// fresh installs.
	Current *types.Mod
}

// Options tune a reconciliation run.
type Options struct {
	// SkipOptional excludes manifest mods flagged optional.
	SkipOptional bool
	// ExtractArchives unpacks fetched archives into per-mod staging
	// directories; when false the archives are kept as-is.
	ExtractArchives bool
	// DryRun plans and reports without fetching or writing state.
	DryRun bool
	// Concurrency bounds the parallel fetch workers.
	Concurrency int
}

// Plan diffs the manifest against local state and returns the actions
// in manifest declaration order, plus orphan diagnostics for local mods
// the manifest no longer lists.
func Plan(m *types.Manifest, cs *state.CollectionState, opts Options) ([]Action, []types.Diagnostic) {
	var actions []Action
	inManifest := make(map[int64]bool, len(m.Mods))

	for _, mm := range m.Mods {
		// Skipped optional mods are still manifest members; they must
		// not read as orphans below.
		inManifest[mm.ModID] = true
		if opts.SkipOptional && mm.Optional {
			continue
		}

		current := cs.Mod(mm.ModID)
		switch {
		case current == nil:
			actions = append(actions, Action{Kind: ActionInstall, Manifest: mm})
		case current.Manual:
			// A manually-registered entry shadowing a manifest id is
			// still the user's: leave it alone.
			actions = append(actions, Action{Kind: ActionSkip, Manifest: mm, Current: current})
		case current.FileID != mm.FileID:
			actions = append(actions, Action{Kind: ActionUpdate, Manifest: mm, Current: current})
		default:
			actions = append(actions, Action{Kind: ActionSkip, Manifest: mm, Current: current})
		}
	}

	var diags []types.Diagnostic
	orphans := make([]int64, 0)
	for _, id := range cs.ModIDs() {
		mod := cs.Mod(id)
		if mod.Manual || inManifest[id] {
			continue
		}
		orphans = append(orphans, id)
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i] < orphans[j] })
	for _, id := range orphans {
		diags = append(diags, types.Diagnostic{
			Kind:    types.DiagOrphaned,
			ModID:   id,
			Message: fmt.Sprintf("mod %d (%s) is installed but no longer in the collection", id, cs.Mod(id).Name),
		})
	}

	return actions, diags
}
