package loadorder

import (
	"fmt"
	"strings"

	"github.com/modstage/modstage/pkg/types"
)

// FormatLoadOrder renders the mod-level order as the load-order.txt
// payload: one mod per line, grouped under phase headers. The output is
// a pure function of the input, so identical orders render identically.
func FormatLoadOrder(order []types.LoadOrderEntry) string {
	var b strings.Builder
	b.WriteString("# Generated by modstage. Do not edit; re-run 'modstage load-order'.\n")

	lastPhase := -1
	first := true
	for _, entry := range order {
		if first || entry.Phase != lastPhase {
			if entry.Phase == types.PhaseManual {
				b.WriteString("\n## Manual\n")
			} else {
				fmt.Fprintf(&b, "\n## Phase %d\n", entry.Phase)
			}
			lastPhase = entry.Phase
			first = false
		}
		fmt.Fprintf(&b, "%s\n", entry.Name)
	}
	return b.String()
}

// FormatPlugins renders the plugin-level order as a plugins.txt payload:
// one plugin per line, enabled entries prefixed with '*' in the style
// game launchers expect.
func FormatPlugins(entries []types.PluginOrderEntry) string {
	var b strings.Builder
	for _, entry := range entries {
		if entry.Enabled {
			b.WriteString("*")
		}
		b.WriteString(entry.Filename)
		b.WriteString("\n")
	}
	return b.String()
}

// WriteLoadOrder persists the formatted mod-level order to path.
func WriteLoadOrder(fs types.FS, path string, order []types.LoadOrderEntry) error {
	return fs.WriteFile(path, []byte(FormatLoadOrder(order)), 0644)
}

// WritePlugins persists the formatted plugin order to path.
func WritePlugins(fs types.FS, path string, entries []types.PluginOrderEntry) error {
	return fs.WriteFile(path, []byte(FormatPlugins(entries)), 0644)
}
