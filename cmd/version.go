package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/frontbuild/internal/version"
)

var (
	versionFormat string
	versionShort  bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for frontbuild including:

- Semantic version number
- Git commit hash
- Build timestamp
- Go version and target platform
- Versions of the bundled asset toolchain (esbuild, minify)

Examples:
  frontbuild version               # Show version
  frontbuild version --short       # Version number only
  frontbuild version --detailed    # Include the toolchain
  frontbuild version --format json # Output as JSON`,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
	versionCmd.Flags().Bool("detailed", false, "Show detailed version information")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	detailed, _ := cmd.Flags().GetBool("detailed")
	out := cmd.OutOrStdout()

	switch versionFormat {
	case "json":
		return outputVersionJSON(out)
	case "text":
		if versionShort {
			_, err := fmt.Fprintln(out, version.GetShortVersion())
			return err
		}
		return outputVersionText(out, detailed)
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", versionFormat)
	}
}

func outputVersionText(out io.Writer, detailed bool) error {
	if detailed {
		fmt.Fprintln(out, version.GetDetailedVersion())
		if version.IsRelease() {
			fmt.Fprintln(out, "Build type: release")
		} else {
			fmt.Fprintln(out, "Build type: development")
		}
		return nil
	}

	info := version.GetBuildInfo()

	fmt.Fprintf(out, "frontbuild %s", info.Version)
	if info.GitCommit != "unknown" && len(info.GitCommit) >= 7 {
		fmt.Fprintf(out, " (%s)", info.GitCommit[:7])
	}
	fmt.Fprintln(out)

	if info.BuildTime != "" && info.BuildTime != "unknown" {
		fmt.Fprintf(out, "Built: %s\n", info.BuildTime)
	}
	fmt.Fprintf(out, "Go: %s\n", info.GoVersion)
	_, err := fmt.Fprintf(out, "Platform: %s\n", info.Platform)
	return err
}

func outputVersionJSON(out io.Writer) error {
	info := version.GetBuildInfo()

	jsonInfo := map[string]interface{}{
		"version":    info.Version,
		"git_commit": info.GitCommit,
		"build_time": info.BuildTime,
		"go_version": info.GoVersion,
		"platform":   info.Platform,
		"toolchain":  info.Toolchain,
		"is_release": version.IsRelease(),
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonInfo)
}
