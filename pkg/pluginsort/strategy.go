// Package pluginsort refines a baseline plugin order using game-specific
// knowledge. Strategies are best-effort: when the knowledge source is
// missing the caller keeps its baseline order.
package pluginsort

import (
	"github.com/modstage/modstage/pkg/errors"
)

// ErrUnavailable signals that a strategy cannot run in this environment
// (for example, no masterlist has been fetched for the game). Callers
// treat it as "keep the baseline", not as a failure.
var ErrUnavailable = errors.New(errors.ErrUnsupported, "plugin sorting strategy unavailable")

// Strategy reorders a plugin list. Implementations must return a
// permutation of the input: no additions, no removals. Enabled state is
// not a strategy concern.
type Strategy interface {
	Sort(plugins []string) ([]string, error)
}
