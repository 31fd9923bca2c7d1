package modstage

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/modstage/modstage/pkg/types"
)

var diagStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

// isTTY reports whether stdout is a terminal worth decorating.
func isTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// formatBold returns the string formatted as bold using pterm
func formatBold(s string) string {
	if !isTTY() {
		return s
	}
	return pterm.Bold.Sprint(s)
}

// formatUpper returns the string in uppercase
func formatUpper(s string) string {
	return strings.ToUpper(s)
}

// formatBoldUpper returns the string in uppercase and bold
func formatBoldUpper(s string) string {
	upper := strings.ToUpper(s)
	if !isTTY() {
		return upper
	}
	return pterm.Bold.Sprint(upper)
}

// initTemplateFormatting adds custom formatting functions to Cobra templates
func initTemplateFormatting() {
	cobra.AddTemplateFuncs(template.FuncMap{
		"bold":      formatBold,
		"upper":     formatUpper,
		"boldUpper": formatBoldUpper,
	})
}

// newProgress returns a progress callback rendering a pterm bar on a
// terminal, and a finish func. Off-terminal it is silent; the log file
// still carries the detail.
func newProgress(title string) (types.ProgressFunc, func()) {
	if !isTTY() {
		return types.NoopProgress, func() {}
	}

	bar, err := pterm.DefaultProgressbar.WithTotal(100).WithTitle(title).Start()
	if err != nil {
		return types.NoopProgress, func() {}
	}

	last := 0
	progress := func(pct float64, msg string) {
		target := int(pct * 100)
		if target > 100 {
			target = 100
		}
		if msg != "" {
			bar.UpdateTitle(msg)
		}
		if target > last {
			bar.Add(target - last)
			last = target
		}
	}
	finish := func() {
		if last < 100 {
			bar.Add(100 - last)
		}
		bar.Stop()
	}
	return progress, finish
}

// printDiagnostics lists an operation's diagnostics, if any.
func printDiagnostics(diags []types.Diagnostic) {
	for _, d := range diags {
		line := fmt.Sprintf(MsgDiagnostic, d.Kind, d.Message)
		if isTTY() {
			line = diagStyle.Render(strings.TrimRight(line, "\n")) + "\n"
		}
		fmt.Print(line)
	}
}
