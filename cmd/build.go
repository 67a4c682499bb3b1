package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/frontbuild/internal/pipeline"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"all"},
	Short:   "Build the production site into the output directory",
	Long: `Build the whole site for production. The output directory is cleaned,
HTML includes are expanded, the stylesheet is bundled and minified, the
scripts are bundled with esbuild, images are optimized and fonts are copied.

A failing step is reported and the remaining steps still run.

Examples:
  frontbuild build                  # Build into dist/
  frontbuild build --precompress    # Also write .br files
  frontbuild build --strict         # Exit non-zero when any step fails
  frontbuild build --format json    # Machine readable report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflow(cmd, pipeline.ModeBuild)
	},
}

var nativeCmd = &cobra.Command{
	Use:   "native",
	Short: "Copy the site unbundled for native ES module development",
	Long: `Produce a development copy of the site that relies on the browser's
native ES module support. Scripts and stylesheets are copied as they are,
bare node_modules imports are rewritten and vendored into the output, and
pages load their scripts with type="module".

Examples:
  frontbuild native
  frontbuild native --strict`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflow(cmd, pipeline.ModeNative)
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(nativeCmd)

	for _, c := range []*cobra.Command{buildCmd, nativeCmd} {
		addReportFlags(c)
	}
	buildCmd.Flags().Bool("precompress", false, "Write brotli compressed copies of text assets")
	bindFlag(buildCmd, "build.precompress", "precompress")
}

func runWorkflow(cmd *cobra.Command, mode pipeline.Mode) error {
	opts, err := reportOptionsFrom(cmd)
	if err != nil {
		return err
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

	report := p.Run(ctx, mode)
	if err := printReport(cmd.OutOrStdout(), report, opts.Format); err != nil {
		return err
	}

	if ctx.Err() == context.Canceled {
		return fmt.Errorf("%s interrupted", mode)
	}
	if opts.Strict && !report.OK() {
		return fmt.Errorf("%s finished with %d failed step(s)", mode, len(report.Failed()))
	}
	return nil
}

func printReport(w io.Writer, report *pipeline.Report, format string) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tRESULT\tFILES\tDURATION\tERROR")
	for _, step := range report.Steps {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			step.Name, step.Outcome, step.Files, step.Duration.Round(time.Millisecond), step.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	status := "ok"
	if !report.OK() {
		status = fmt.Sprintf("%d failed", len(report.Failed()))
	}
	_, err := fmt.Fprintf(w, "\n%s %s in %s (%s)\n", report.Mode, status, report.Duration.Round(time.Millisecond), report.ID)
	return err
}
