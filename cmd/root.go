package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/frontbuild/internal/config"
	"github.com/conneroisu/frontbuild/internal/logging"
	"github.com/conneroisu/frontbuild/internal/metrics"
)

const envPrefix = "FRONTBUILD"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "frontbuild",
	Short: "Build, bundle and serve a static site front end",
	Long: `frontbuild compiles the stylesheets, bundles the scripts, expands HTML
includes, optimizes images and copies fonts and libraries of a static site.
It also runs a development server that reloads the browser on change.

Quick Start:
  frontbuild init                 Scaffold the app/ layout
  frontbuild build                Production build into dist/
  frontbuild native               Unbundled development copy into dist/
  frontbuild serve                Build, serve and rebuild on change

Command Aliases:
  build (all), serve (server, start)`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .frontbuild.yml, can also use FRONTBUILD_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("root", ".", "project root directory")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("paths.root", rootCmd.PersistentFlags().Lookup("root"))
}

// initConfig wires the configuration sources into the global viper instance.
func initConfig() {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(envPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".frontbuild")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// runtime is what every workflow command needs.
type runtime struct {
	cfg      *config.Config
	logger   logging.Logger
	recorder *metrics.Recorder
}

func loadRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	var recorder *metrics.Recorder
	if cfg.Server.Metrics {
		recorder = metrics.NewRecorder(nil)
	}

	return &runtime{cfg: cfg, logger: logger, recorder: recorder}, nil
}
