package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/frontbuild/internal/pipeline"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild on change without serving",
	Long: `Run the workflow once and then rebuild the affected part of the site
whenever a source file changes. Nothing is served; use this next to your
own web server.

Examples:
  frontbuild watch
  frontbuild watch --native`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Bool("native", false, "Keep the native development copy up to date")
	watchCmd.Flags().Bool("no-build", false, "Skip the initial build")
}

func runWatch(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	p, err := pipeline.New(rt.cfg, rt.logger, rt.recorder, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode := modeFrom(cmd)
	if noBuild, _ := cmd.Flags().GetBool("no-build"); !noBuild {
		report := p.Run(ctx, mode)
		if err := printReport(cmd.OutOrStdout(), report, "text"); err != nil {
			return err
		}
	}

	rt.logger.Info(ctx, "Watching for changes", "source", rt.cfg.Paths.Source, "mode", string(mode))
	return p.Watch(ctx, pipeline.WatchOptions{Mode: mode})
}
