// Package loadorder turns author-declared phases, explicit ordering rules,
// and inferred dependency edges into a deterministic total order over a
// collection's mods, plus a derived plugin-level order for games that
// have a plugin concept.
package loadorder

import (
	"fmt"
	"sort"

	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/logging"
	"github.com/modstage/modstage/pkg/types"
)

// Result is the outcome of a resolve call.
type Result struct {
	Order       []types.LoadOrderEntry
	Diagnostics []types.Diagnostic
}

// edge is a directed ordering constraint derived from a rule.
// declIndex is the rule's position in manifest declaration order; it is
// the key for cycle breaking (the last-declared edge in a cycle loses).
type edge struct {
	from, to  int64
	declIndex int
}

// Resolve produces a total order over mods. It is a pure function:
// given identical mods, rules, and phase assignments it produces
// byte-identical output across invocations.
//
// Phase is the primary sort key: every mod in phase k precedes every mod
// in phase k+1, and a rule edge that would cross a phase barrier in the
// wrong direction is ignored with a diagnostic. Within a phase, rule
// edges order mods and ties break by manifest declaration order. A cycle
// among rule edges is broken by dropping the last-declared edge involved,
// with one diagnostic per dropped edge; resolution always terminates.
//
// The mods slice order is the manifest declaration order. Manual mods
// must carry types.PhaseManual so they bucket after all collection phases.
func Resolve(mods []types.ManifestMod, rules []types.Rule) (*Result, error) {
	logger := logging.GetLogger("loadorder")

	byID := make(map[int64]*types.ManifestMod, len(mods))
	declIndex := make(map[int64]int, len(mods))
	for i := range mods {
		m := &mods[i]
		byID[m.ModID] = m
		declIndex[m.ModID] = i
	}

	result := &Result{}

	edges, err := buildEdges(mods, rules, byID, result)
	if err != nil {
		return nil, err
	}

	// Partition into phase buckets. Forward cross-phase edges are
	// satisfied by the bucket ordering itself, so the per-phase sort
	// only needs intra-phase edges.
	buckets := make(map[int][]int64)
	for _, m := range mods {
		buckets[m.Phase] = append(buckets[m.Phase], m.ModID)
	}
	phases := make([]int, 0, len(buckets))
	for phase := range buckets {
		phases = append(phases, phase)
	}
	sort.Ints(phases)

	for _, phase := range phases {
		members := buckets[phase]
		intra := intraPhaseEdges(edges, members, byID)
		ordered := sortPhase(members, intra, declIndex, result)
		for _, id := range ordered {
			m := byID[id]
			result.Order = append(result.Order, types.LoadOrderEntry{
				ModID:    id,
				Position: len(result.Order),
				Name:     m.Name,
				Phase:    m.Phase,
			})
		}
	}

	logger.Debug().
		Int("mods", len(mods)).
		Int("rules", len(rules)).
		Int("diagnostics", len(result.Diagnostics)).
		Msg("Load order resolved")

	return result, nil
}

// buildEdges translates rules into directed edges, enforcing the
// requires presence check and dropping edges that fight a phase barrier.
func buildEdges(mods []types.ManifestMod, rules []types.Rule, byID map[int64]*types.ManifestMod, result *Result) ([]edge, error) {
	var edges []edge

	for i, rule := range rules {
		src, srcOK := byID[rule.Source]
		_, tgtOK := byID[rule.Target]

		if rule.Kind == types.RuleRequires && !tgtOK {
			if srcOK && !src.Optional {
				return nil, errors.Newf(errors.ErrRequirementMissing,
					"mod %d (%s) requires mod %d, which is not in the collection",
					rule.Source, src.Name, rule.Target)
			}
			continue
		}
		if !srcOK || !tgtOK {
			continue
		}

		var e edge
		switch rule.Kind {
		case types.RuleBefore:
			e = edge{from: rule.Source, to: rule.Target, declIndex: i}
		case types.RuleAfter, types.RuleRequires:
			e = edge{from: rule.Target, to: rule.Source, declIndex: i}
		default:
			continue
		}

		// Phase wins: an edge pointing from a later phase into an
		// earlier one is recorded as a diagnostic and ignored.
		if byID[e.from].Phase > byID[e.to].Phase {
			result.Diagnostics = append(result.Diagnostics, types.Diagnostic{
				Kind:  types.DiagPhaseConflict,
				ModID: e.from,
				Message: fmt.Sprintf("rule %s between mods %d and %d crosses a phase barrier and was ignored",
					rule.Kind, rule.Source, rule.Target),
			})
			continue
		}

		edges = append(edges, e)
	}

	return edges, nil
}

// intraPhaseEdges filters edges down to those fully inside one bucket.
func intraPhaseEdges(edges []edge, members []int64, byID map[int64]*types.ManifestMod) []edge {
	inBucket := make(map[int64]bool, len(members))
	for _, id := range members {
		inBucket[id] = true
	}
	var intra []edge
	for _, e := range edges {
		if inBucket[e.from] && inBucket[e.to] {
			intra = append(intra, e)
		}
	}
	return intra
}

// sortPhase topologically sorts one phase bucket. Ties break by
// declaration order; cycles are broken by dropping the last-declared
// edge in the cycle until the sort can proceed.
func sortPhase(members []int64, edges []edge, declIndex map[int64]int, result *Result) []int64 {
	for {
		ordered, ok := kahn(members, edges, declIndex)
		if ok {
			return ordered
		}

		dropped, rest := dropCycleEdge(members, edges, declIndex)
		if dropped == nil {
			// No cycle found despite an incomplete sort; should not
			// happen, but never loop forever on a resolver bug.
			return fallbackOrder(members, declIndex)
		}
		result.Diagnostics = append(result.Diagnostics, types.Diagnostic{
			Kind:  types.DiagCycleBroken,
			ModID: dropped.from,
			Message: fmt.Sprintf("ordering cycle between mods %d and %d; dropped the last-declared rule",
				dropped.from, dropped.to),
		})
		edges = rest
	}
}

// kahn runs a deterministic Kahn's algorithm: among ready nodes, the one
// with the smallest declaration index is emitted first. Returns ok=false
// when a cycle prevents completion.
func kahn(members []int64, edges []edge, declIndex map[int64]int) ([]int64, bool) {
	indegree := make(map[int64]int, len(members))
	successors := make(map[int64][]int64, len(members))
	for _, id := range members {
		indegree[id] = 0
	}
	for _, e := range edges {
		successors[e.from] = append(successors[e.from], e.to)
		indegree[e.to]++
	}

	ready := make([]int64, 0, len(members))
	for _, id := range members {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sortByDecl(ready, declIndex)

	ordered := make([]int64, 0, len(members))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		ordered = append(ordered, id)

		released := false
		for _, next := range successors[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
				released = true
			}
		}
		if released {
			sortByDecl(ready, declIndex)
		}
	}

	return ordered, len(ordered) == len(members)
}

// dropCycleEdge finds one cycle among the given edges and returns the
// edge with the highest declaration index in it, plus the remaining
// edge set with that edge removed.
func dropCycleEdge(members []int64, edges []edge, declIndex map[int64]int) (*edge, []edge) {
	successors := make(map[int64][]edge)
	for _, e := range edges {
		successors[e.from] = append(successors[e.from], e)
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	stateOf := make(map[int64]int, len(members))
	var stack []edge
	var cycle []edge

	var visit func(id int64) bool
	visit = func(id int64) bool {
		stateOf[id] = inStack
		for _, e := range successors[id] {
			switch stateOf[e.to] {
			case inStack:
				// Unwind the stack back to e.to to recover the cycle.
				cycle = append([]edge{}, e)
				for i := len(stack) - 1; i >= 0; i-- {
					cycle = append(cycle, stack[i])
					if stack[i].from == e.to {
						break
					}
				}
				return true
			case unvisited:
				stack = append(stack, e)
				if visit(e.to) {
					return true
				}
				stack = stack[:len(stack)-1]
			}
		}
		stateOf[id] = done
		return false
	}

	// Deterministic scan order.
	scan := append([]int64{}, members...)
	sortByDecl(scan, declIndex)
	for _, id := range scan {
		if stateOf[id] == unvisited {
			stack = stack[:0]
			if visit(id) {
				break
			}
		}
	}

	if len(cycle) == 0 {
		return nil, edges
	}

	victim := cycle[0]
	for _, e := range cycle[1:] {
		if e.declIndex > victim.declIndex {
			victim = e
		}
	}

	rest := make([]edge, 0, len(edges)-1)
	for _, e := range edges {
		if e == victim {
			continue
		}
		rest = append(rest, e)
	}
	return &victim, rest
}

func fallbackOrder(members []int64, declIndex map[int64]int) []int64 {
	ordered := append([]int64{}, members...)
	sortByDecl(ordered, declIndex)
	return ordered
}

func sortByDecl(ids []int64, declIndex map[int64]int) {
	sort.Slice(ids, func(i, j int) bool {
		return declIndex[ids[i]] < declIndex[ids[j]]
	})
}
