package modstage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/modstage/modstage/pkg/config"
	"github.com/modstage/modstage/pkg/filesystem"
	"github.com/modstage/modstage/pkg/logging"
	"github.com/modstage/modstage/pkg/paths"
	"github.com/modstage/modstage/pkg/service"
)

var (
	version = "dev"

	verbosity  int
	stagingDir string

	rootCmd = &cobra.Command{
		Use:   "modstage",
		Short: MsgRootShort,
		Long:  MsgRootLong,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command. Called from main.
func Execute() error {
	initTemplateFormatting()
	initTopics()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().StringVarP(&stagingDir, "dir", "d", ".", "Staging directory")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(manCmd)
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newDeployCmd())
	rootCmd.AddCommand(newUndeployCmd())
	rootCmd.AddCommand(newLoadOrderCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newAddLocalCmd())
	rootCmd.AddCommand(newFilesCmd())
	rootCmd.AddCommand(newTrackSyncCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newGenConfigCmd())
	rootCmd.AddCommand(newTopicsCmd())
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("modstage %s\n", version)
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Args:  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{
		"bash", "zsh", "fish", "powershell",
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return nil
	},
}

var manCmd = &cobra.Command{
	Use:    "man [directory]",
	Short:  "Generate man pages",
	Hidden: true,
	Args:   cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		header := &doc.GenManHeader{Title: "MODSTAGE", Section: "1"}
		return doc.GenManTree(rootCmd, header, dir)
	},
}

// newService builds the operations layer from configuration and the
// real filesystem.
func newService() (*service.Service, error) {
	p := paths.New()
	cfg, err := config.Load(p)
	if err != nil {
		return nil, fmt.Errorf(MsgErrConfig, err)
	}
	return service.New(cfg, p, filesystem.NewOS()), nil
}

// resolveStaging returns the absolute staging directory from the --dir
// flag.
func resolveStaging() (string, error) {
	abs, err := filepath.Abs(stagingDir)
	if err != nil {
		return "", fmt.Errorf(MsgErrStaging, err)
	}
	return abs, nil
}
