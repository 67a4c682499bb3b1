package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// reportOptions are the output flags shared by the workflow commands.
type reportOptions struct {
	Format string
	Strict bool
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", "text", "Report format (text, json)")
	cmd.Flags().Bool("strict", false, "Exit non-zero when any step fails")
}

func reportOptionsFrom(cmd *cobra.Command) (reportOptions, error) {
	format, _ := cmd.Flags().GetString("format")
	strict, _ := cmd.Flags().GetBool("strict")
	if err := validateFormat(format, "text", "json"); err != nil {
		return reportOptions{}, err
	}
	return reportOptions{Format: format, Strict: strict}, nil
}

// addServerFlags registers the dev server flags and binds them to their
// configuration keys.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("port", "p", 3000, "Port to serve on")
	cmd.Flags().String("host", "localhost", "Host to bind to")
	cmd.Flags().Bool("open", false, "Open the browser once the server is listening")
	cmd.Flags().Bool("no-build", false, "Skip the initial build")

	bindFlag(cmd, "server.port", "port")
	bindFlag(cmd, "server.host", "host")
	bindFlag(cmd, "server.open", "open")
}

// bindFlag binds a flag to a viper key; only a flag the user set overrides
// the file and environment.
func bindFlag(cmd *cobra.Command, key, name string) {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		panic(fmt.Sprintf("flag %q is not defined on %s", name, cmd.Name()))
	}
	_ = viper.BindPFlag(key, flag)
}

func validateFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("unsupported format: %s (supported: %v)", format, allowed)
}

// validateArgument rejects path arguments that cannot name a directory.
func validateArgument(arg string) error {
	if strings.TrimSpace(arg) == "" {
		return fmt.Errorf("argument is empty")
	}
	if strings.ContainsRune(arg, 0) {
		return fmt.Errorf("argument contains a NUL byte")
	}
	if strings.ContainsAny(arg, "\n\r") {
		return fmt.Errorf("argument contains a line break")
	}
	return nil
}
