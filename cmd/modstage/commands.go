package modstage

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/modstage/modstage/pkg/config"
	"github.com/modstage/modstage/pkg/paths"
	"github.com/modstage/modstage/pkg/service"
	"github.com/modstage/modstage/pkg/web"
)

func newSyncCmd() *cobra.Command {
	var opts service.SyncOptions

	cmd := &cobra.Command{
		Use:   "sync <collection-url>",
		Short: MsgSyncShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			dir, err := resolveStaging()
			if err != nil {
				return err
			}

			progress, finish := newProgress("Syncing collection")
			res, err := svc.Sync(cmd.Context(), dir, args[0], opts, progress)
			finish()
			if err != nil {
				return err
			}
			printSyncResult(res, opts.DryRun)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.SkipOptional, "skip-optional", false, "Skip optional mods")
	cmd.Flags().BoolVar(&opts.NoExtract, "no-extract", false, "Keep archives instead of extracting them")
	cmd.Flags().BoolVar(&opts.NoLoadOrder, "no-load-order", false, "Skip load order generation")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Plan without downloading or writing state")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var opts service.SyncOptions

	cmd := &cobra.Command{
		Use:   "update",
		Short: MsgUpdateShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			dir, err := resolveStaging()
			if err != nil {
				return err
			}

			progress, finish := newProgress("Updating collection")
			res, err := svc.Update(cmd.Context(), dir, opts, progress)
			finish()
			if err != nil {
				return err
			}
			printSyncResult(res, opts.DryRun)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.SkipOptional, "skip-optional", false, "Skip optional mods")
	cmd.Flags().BoolVar(&opts.NoExtract, "no-extract", false, "Keep archives instead of extracting them")
	cmd.Flags().BoolVar(&opts.NoLoadOrder, "no-load-order", false, "Skip load order generation")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Plan without downloading or writing state")
	return cmd
}

func printSyncResult(res *service.SyncResult, dryRun bool) {
	fmt.Printf(MsgSyncedFormat, res.CollectionName, res.Revision, res.Installed, res.Updated, res.Skipped)
	if res.Failed > 0 {
		fmt.Printf(MsgFailedFormat, res.Failed)
	}
	printDiagnostics(res.Diagnostics)
	for _, f := range res.LoadOrderFiles {
		fmt.Printf(MsgOrderFormat, f)
	}
	if dryRun {
		fmt.Println(MsgDryRunNotice)
	}
}

func newDeployCmd() *cobra.Command {
	var opts service.DeployOptions

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: MsgDeployShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			dir, err := resolveStaging()
			if err != nil {
				return err
			}

			res, err := svc.Deploy(dir, opts)
			if err != nil {
				return err
			}
			fmt.Printf(MsgDeployedFormat, res.Placed, res.TargetRoot, res.Skipped)
			if res.PluginsFile != "" {
				fmt.Printf(MsgOrderFormat, res.PluginsFile)
			}
			if res.GameINI != "" {
				fmt.Printf(MsgOrderFormat, res.GameINI)
			}
			printDiagnostics(res.Diagnostics)
			if opts.DryRun {
				fmt.Println(MsgDryRunNotice)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.GameDir, "game-dir", "", "Game directory (default: Steam auto-detection)")
	cmd.Flags().BoolVar(&opts.Copy, "copy", false, "Copy files instead of symlinking")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Plan without touching the game directory")
	return cmd
}

func newUndeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undeploy",
		Short: MsgUndeployShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			dir, err := resolveStaging()
			if err != nil {
				return err
			}

			res, err := svc.Undeploy(dir)
			if err != nil {
				return err
			}
			fmt.Printf(MsgUndeployFormat, res.Removed)
			return nil
		},
	}
}

func newLoadOrderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load-order",
		Short: MsgLoadOrderShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			dir, err := resolveStaging()
			if err != nil {
				return err
			}

			res, err := svc.LoadOrder(dir)
			if err != nil {
				return err
			}
			for _, f := range res.Files {
				fmt.Printf(MsgOrderFormat, f)
			}
			printDiagnostics(res.Diagnostics)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: MsgStatusShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			dir, err := resolveStaging()
			if err != nil {
				return err
			}

			st, err := svc.GetStatus(cmd.Context(), dir)
			if err != nil {
				return err
			}

			fmt.Printf("%s\n", formatBold(st.CollectionName))
			fmt.Printf("  URL:      %s\n", st.CollectionURL)
			fmt.Printf("  Game:     %s\n", st.GameDomain)
			if st.UpdateAvailable {
				fmt.Printf("  Revision: %d (revision %d available)\n", st.Revision, st.LatestRevision)
			} else {
				fmt.Printf("  Revision: %d\n", st.Revision)
			}
			fmt.Printf("  Mods:     %d (%d manual)\n", st.Mods, st.ManualMods)
			if st.Deployed {
				fmt.Printf("  Deployed: %d file(s) -> %s\n", st.PlacedFiles, st.DeployTarget)
			} else {
				fmt.Printf("  Deployed: no\n")
			}
			fmt.Printf("  Tracking: %v\n", st.TrackSync)
			printDiagnostics(st.Diagnostics)
			return nil
		},
	}
}

func newAddCmd() *cobra.Command {
	var fileID int64

	cmd := &cobra.Command{
		Use:   "add <mod-url>",
		Short: MsgAddShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			dir, err := resolveStaging()
			if err != nil {
				return err
			}

			progress, finish := newProgress("Adding mod")
			res, err := svc.Add(cmd.Context(), dir, args[0], fileID, progress)
			finish()
			if err != nil {
				return err
			}
			fmt.Printf(MsgAddedFormat, res.Name, res.FileName, res.Files)
			return nil
		},
	}

	cmd.Flags().Int64Var(&fileID, "file-id", 0, "Download a specific file instead of the newest main file")
	return cmd
}

func newAddLocalCmd() *cobra.Command {
	var subdir string

	cmd := &cobra.Command{
		Use:   "add-local <name>",
		Short: MsgAddLocalShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			dir, err := resolveStaging()
			if err != nil {
				return err
			}

			id, err := svc.AddLocal(dir, args[0], subdir)
			if err != nil {
				return err
			}
			fmt.Printf(MsgAddLocalFormat, args[0], id)
			return nil
		},
	}

	cmd.Flags().StringVar(&subdir, "from", "", "Subdirectory of the staging dir holding the mod's files")
	return cmd
}

func newFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files <mod-url>",
		Short: MsgFilesShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}

			files, err := svc.ModFiles(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			table := pterm.TableData{{"File ID", "Name", "Version", "Category"}}
			for _, f := range files {
				table = append(table, []string{
					fmt.Sprintf("%d", f.FileID), f.Name, f.Version, f.Category,
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
		},
	}
}

func newTrackSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track-sync",
		Short: MsgTrackShort,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "enable",
		Short: "Enable track sync and push the current mod set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			dir, err := resolveStaging()
			if err != nil {
				return err
			}
			res, err := svc.TrackSyncEnable(cmd.Context(), dir)
			if err != nil {
				return err
			}
			fmt.Printf(MsgTrackedFormat, res.Tracked, res.AlreadyOK)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "disable",
		Short: "Disable track sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			dir, err := resolveStaging()
			if err != nil {
				return err
			}
			return svc.TrackSyncDisable(dir)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "push",
		Short: "Push the current mod set once, regardless of the enable flag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			dir, err := resolveStaging()
			if err != nil {
				return err
			}
			res, err := svc.TrackSyncPush(cmd.Context(), dir)
			if err != nil {
				return err
			}
			fmt.Printf(MsgTrackedFormat, res.Tracked, res.AlreadyOK)
			return nil
		},
	})

	return cmd
}

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: MsgServeShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			dir, err := resolveStaging()
			if err != nil {
				return err
			}

			if listen == "" {
				p := paths.New()
				cfg, err := config.Load(p)
				if err != nil {
					return fmt.Errorf(MsgErrConfig, err)
				}
				listen = cfg.ListenAddr
			}

			server := web.NewServer(svc, dir)
			return server.ListenAndServe(cmd.Context(), listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config)")
	return cmd
}

func newGenConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genconfig",
		Short: MsgGenConfigShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := paths.New()
			path := p.ConfigFilePath()
			if err := config.WriteStarter(path); err != nil {
				return err
			}
			fmt.Printf(MsgConfigWritten, path)
			return nil
		},
	}
}
