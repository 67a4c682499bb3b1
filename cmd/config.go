package cmd

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/frontbuild/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate the configuration",
	Long: `Inspect and validate frontbuild configuration.

Examples:
  frontbuild config show                   # Effective configuration as YAML
  frontbuild config show --format json     # ... or as JSON
  frontbuild config validate               # Validate .frontbuild.yml
  frontbuild config validate --file other.yml`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Print the configuration resolved from every source: flags, FRONTBUILD_*
environment variables, the configuration file and the defaults.`,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configFormat string
	configFile   string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "Output format (yaml, json)")
	configValidateCmd.Flags().StringVar(&configFile, "file", "", "Configuration file to validate (default .frontbuild.yml)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if err := validateFormat(configFormat, "yaml", "json"); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	data, err := encodeConfig(cfg, configFormat)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	target := configFile
	if target == "" {
		target = ".frontbuild.yml"
	}
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("configuration file %s not found; run 'frontbuild init' to create one", target)
	}

	v := viper.New()
	v.SetConfigFile(target)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	if _, err := config.LoadFrom(v); err != nil {
		var verr *config.ValidationError
		if stderrors.As(err, &verr) {
			fmt.Fprintf(out, "%s: %s (value %v)\n", verr.Field, verr.Message, verr.Value)
			for _, s := range verr.Suggestions {
				fmt.Fprintf(out, "  hint: %s\n", s)
			}
		}
		return fmt.Errorf("%s is invalid: %w", target, err)
	}

	fmt.Fprintf(out, "%s is valid\n", target)
	return nil
}

func encodeConfig(cfg *config.Config, format string) ([]byte, error) {
	if format == "json" {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}

	var buf bytes.Buffer
	buf.WriteString("# frontbuild configuration\n")
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
