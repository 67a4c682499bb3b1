package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/frontbuild/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server", "start"},
	Short:   "Build and serve the site with live reload",
	Long: `Build the site, serve the output directory and rebuild whenever a
source file changes. Connected browsers reload automatically; stylesheet
changes are injected without a full page reload. Build errors are shown
as an overlay on every served page until they are fixed.

Examples:
  frontbuild serve                  # Production build, serve on :3000
  frontbuild serve --native         # Unbundled ES module development
  frontbuild serve -p 8080 --open   # Custom port and open the browser
  frontbuild serve --no-build       # Serve the existing output as is`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	addServerFlags(serveCmd)
	serveCmd.Flags().Bool("native", false, "Serve the native development copy instead of the production build")
}

func runServe(cmd *cobra.Command, args []string) error {
	if noBuild, _ := cmd.Flags().GetBool("no-build"); noBuild {
		viper.Set("server.build_on_start", false)
	}

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

	return p.Serve(ctx, modeFrom(cmd))
}

func modeFrom(cmd *cobra.Command) pipeline.Mode {
	if native, _ := cmd.Flags().GetBool("native"); native {
		return pipeline.ModeNative
	}
	return pipeline.ModeBuild
}
