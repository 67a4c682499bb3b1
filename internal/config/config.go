// Package config provides configuration management for frontbuild using Viper
// for flexible configuration loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports YAML files, environment variable overrides
// with the FRONTBUILD_ prefix, defaults, and validation. It describes the
// source/output layout of a static site, the style, script and image
// pipelines, the watch lists, the optional CSS framework compiler and the
// development server.
//
// A loaded Config is treated as an immutable value: builders copy the fields
// they need at construction time and never consult viper themselves.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Paths     PathsConfig     `mapstructure:"paths" yaml:"paths" json:"paths"`
	Styles    StylesConfig    `mapstructure:"styles" yaml:"styles" json:"styles"`
	Scripts   ScriptsConfig   `mapstructure:"scripts" yaml:"scripts" json:"scripts"`
	Images    ImagesConfig    `mapstructure:"images" yaml:"images" json:"images"`
	Watch     WatchConfig     `mapstructure:"watch" yaml:"watch" json:"watch"`
	Framework FrameworkConfig `mapstructure:"framework" yaml:"framework" json:"framework"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server" json:"server"`
	Build     BuildConfig     `mapstructure:"build" yaml:"build" json:"build"`
	Publish   PublishConfig   `mapstructure:"publish" yaml:"publish" json:"publish"`
	Log       LogConfig       `mapstructure:"log" yaml:"log" json:"log"`
}

// PathsConfig is the fixed source/output layout of the site.
type PathsConfig struct {
	Root         string `mapstructure:"root" yaml:"root" json:"root"`
	Source       string `mapstructure:"source" yaml:"source" json:"source"`
	Output       string `mapstructure:"output" yaml:"output" json:"output"`
	StylesEntry  string `mapstructure:"styles_entry" yaml:"styles_entry" json:"styles_entry"`
	ScriptsEntry string `mapstructure:"scripts_entry" yaml:"scripts_entry" json:"scripts_entry"`
	Fonts        string `mapstructure:"fonts" yaml:"fonts" json:"fonts"`
	Images       string `mapstructure:"images" yaml:"images" json:"images"`
	Libs         string `mapstructure:"libs" yaml:"libs" json:"libs"`
	Parts        string `mapstructure:"parts" yaml:"parts" json:"parts"`
	NodeModules  string `mapstructure:"node_modules" yaml:"node_modules" json:"node_modules"`
	VendorDir    string `mapstructure:"vendor_dir" yaml:"vendor_dir" json:"vendor_dir"`
	CacheDir     string `mapstructure:"cache_dir" yaml:"cache_dir" json:"cache_dir"`
}

type StylesConfig struct {
	Output  string   `mapstructure:"output" yaml:"output" json:"output"`
	Minify  bool     `mapstructure:"minify" yaml:"minify" json:"minify"`
	Targets []string `mapstructure:"targets" yaml:"targets" json:"targets"`
}

type ScriptsConfig struct {
	Output string `mapstructure:"output" yaml:"output" json:"output"`
	Minify bool   `mapstructure:"minify" yaml:"minify" json:"minify"`
	Target string `mapstructure:"target" yaml:"target" json:"target"`
}

type ImagesConfig struct {
	Minify        bool     `mapstructure:"minify" yaml:"minify" json:"minify"`
	Extensions    []string `mapstructure:"extensions" yaml:"extensions" json:"extensions"`
	JPEGQuality   int      `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
	PNGQualityMin float64  `mapstructure:"png_quality_min" yaml:"png_quality_min" json:"png_quality_min"`
	PNGQualityMax float64  `mapstructure:"png_quality_max" yaml:"png_quality_max" json:"png_quality_max"`
	Workers       int      `mapstructure:"workers" yaml:"workers" json:"workers"`
}

type WatchConfig struct {
	Files    []string      `mapstructure:"files" yaml:"files" json:"files"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
}

// FrameworkConfig selects an optional CSS framework compiler that runs
// before the style pipeline.
type FrameworkConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Name    string `mapstructure:"name" yaml:"name" json:"name"`
	Binary  string `mapstructure:"binary" yaml:"binary" json:"binary"`
	Input   string `mapstructure:"input" yaml:"input" json:"input"`
	Output  string `mapstructure:"output" yaml:"output" json:"output"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host" yaml:"host" json:"host"`
	Port         int    `mapstructure:"port" yaml:"port" json:"port"`
	Root         string `mapstructure:"root" yaml:"root" json:"root"`
	Open         bool   `mapstructure:"open" yaml:"open" json:"open"`
	CSSInjection bool   `mapstructure:"css_injection" yaml:"css_injection" json:"css_injection"`
	BuildOnStart bool   `mapstructure:"build_on_start" yaml:"build_on_start" json:"build_on_start"`
	Metrics      bool   `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

type BuildConfig struct {
	Precompress   bool `mapstructure:"precompress" yaml:"precompress" json:"precompress"`
	StripComments bool `mapstructure:"strip_comments" yaml:"strip_comments" json:"strip_comments"`
}

type PublishConfig struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix" json:"prefix"`
	Region    string `mapstructure:"region" yaml:"region" json:"region"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	PathStyle bool   `mapstructure:"path_style" yaml:"path_style" json:"path_style"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// SetDefaults registers the default value of every option on v. Values that
// are already set (file, env, flag) take precedence over these.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths.root", ".")
	v.SetDefault("paths.source", "app")
	v.SetDefault("paths.output", "dist")
	v.SetDefault("paths.styles_entry", "app/css/index.css")
	v.SetDefault("paths.scripts_entry", "app/js/app.js")
	v.SetDefault("paths.fonts", "app/fonts")
	v.SetDefault("paths.images", "app/img")
	v.SetDefault("paths.libs", "app/libs")
	v.SetDefault("paths.parts", "app/parts")
	v.SetDefault("paths.node_modules", "node_modules")
	v.SetDefault("paths.vendor_dir", "dist/node_modules")
	v.SetDefault("paths.cache_dir", ".frontbuild/cache")

	v.SetDefault("styles.output", "dist/css/index.css")
	v.SetDefault("styles.minify", true)
	v.SetDefault("styles.targets", []string{"chrome100", "firefox100", "safari15"})

	v.SetDefault("scripts.output", "dist/js/app.js")
	v.SetDefault("scripts.minify", true)
	v.SetDefault("scripts.target", "es2020")

	v.SetDefault("images.minify", true)
	v.SetDefault("images.extensions", []string{"jpg", "jpeg", "png", "svg", "gif", "webp"})
	v.SetDefault("images.jpeg_quality", 90)
	v.SetDefault("images.png_quality_min", 0.6)
	v.SetDefault("images.png_quality_max", 0.8)
	v.SetDefault("images.workers", 4)

	v.SetDefault("watch.files", []string{"html", "htm", "txt", "json", "md", "woff2"})
	v.SetDefault("watch.debounce", 300*time.Millisecond)

	v.SetDefault("framework.enabled", false)
	v.SetDefault("framework.name", "tailwind")
	v.SetDefault("framework.binary", "")
	v.SetDefault("framework.input", "app/css/index.css")
	v.SetDefault("framework.output", ".frontbuild/cache/framework.css")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.root", "dist")
	v.SetDefault("server.open", false)
	v.SetDefault("server.css_injection", true)
	v.SetDefault("server.build_on_start", true)
	v.SetDefault("server.metrics", true)

	v.SetDefault("build.precompress", false)
	v.SetDefault("build.strip_comments", true)

	v.SetDefault("publish.region", "us-east-1")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load builds a Config from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom builds a Config from v, applying defaults and validation.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Viper returns comma separated env values as a single element.
	config.Images.Extensions = splitList(config.Images.Extensions)
	config.Watch.Files = splitList(config.Watch.Files)
	config.Styles.Targets = splitList(config.Styles.Targets)

	for i, ext := range config.Images.Extensions {
		config.Images.Extensions[i] = strings.ToLower(strings.TrimPrefix(ext, "."))
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Abs resolves a configured relative path against the project root.
func (c *Config) Abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.Paths.Root, path)
}

// Addr returns the dev server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
