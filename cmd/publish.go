package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/frontbuild/internal/pipeline"
	"github.com/conneroisu/frontbuild/internal/publish"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Build the site and upload it to an S3 compatible bucket",
	Long: `Run a production build and upload the output directory to the bucket
named by publish.bucket. Credentials come from the standard AWS_* variables,
which may be placed in a .env file.

The upload is refused when the build has failed steps.

Examples:
  frontbuild publish
  FRONTBUILD_PUBLISH_BUCKET=my-site frontbuild publish --prefix v2
  frontbuild publish --skip-build`,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().String("bucket", "", "Destination bucket")
	publishCmd.Flags().String("prefix", "", "Key prefix inside the bucket")
	publishCmd.Flags().Bool("skip-build", false, "Upload the existing output directory as is")
	bindFlag(publishCmd, "publish.bucket", "bucket")
	bindFlag(publishCmd, "publish.prefix", "prefix")
}

func runPublish(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := publish.NewS3Client(rt.cfg.Publish)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if skip, _ := cmd.Flags().GetBool("skip-build"); !skip {
		p, err := pipeline.New(rt.cfg, rt.logger, rt.recorder, nil)
		if err != nil {
			return err
		}
		report := p.Build(ctx)
		if err := printReport(out, report, "text"); err != nil {
			return err
		}
		if !report.OK() {
			return fmt.Errorf("build failed, nothing was published")
		}
	}

	publisher := publish.New(client, rt.cfg.Publish.Bucket, rt.cfg.Publish.Prefix, rt.logger)
	stats, err := publisher.Publish(ctx, rt.cfg.Abs(rt.cfg.Paths.Output))
	fmt.Fprintf(out, "uploaded %d file(s), %d byte(s) to s3://%s/%s\n",
		stats.Uploaded, stats.Bytes, rt.cfg.Publish.Bucket, publisher.Prefix)
	return err
}
