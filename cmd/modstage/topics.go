package modstage

import (
	"embed"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/modstage/modstage/pkg/cobrax/topics"
)

//go:embed help
var helpFiles embed.FS

// initTopics wires the embedded documentation into the help system.
func initTopics() {
	sub, err := fs.Sub(helpFiles, "help")
	if err != nil {
		return
	}
	opts := topics.Options{
		Extensions: []string{".txt", ".md"},
		Renderer:   topics.NewGlamourRenderer(),
	}
	// Rendering degrades to plain Cobra help when this fails.
	_ = topics.InitializeWithOptions(rootCmd, sub, opts)
}

func newTopicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: MsgTopicsShort,
		Long:  MsgTopicsLong,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, helpCmd := range rootCmd.Commands() {
				if helpCmd.Name() != "help" {
					continue
				}
				if helpCmd.RunE != nil {
					return helpCmd.RunE(helpCmd, []string{"topics"})
				}
				if helpCmd.Run != nil {
					helpCmd.Run(helpCmd, []string{"topics"})
				}
				return nil
			}
			return cmd.Help()
		},
	}
}
