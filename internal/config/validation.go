package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validatePathsConfig(&config.Paths); err != nil {
		return fmt.Errorf("paths config: %w", err)
	}

	if err := validateImagesConfig(&config.Images); err != nil {
		return fmt.Errorf("images config: %w", err)
	}

	if config.Framework.Enabled && config.Framework.Name != "tailwind" {
		return &ValidationError{
			Field:       "framework.name",
			Value:       config.Framework.Name,
			Message:     "unsupported CSS framework",
			Suggestions: []string{"use framework.name: tailwind", "set framework.enabled: false"},
		}
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return &ValidationError{
			Field:   "log.format",
			Value:   config.Log.Format,
			Message: "must be text or json",
		}
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

func validatePathsConfig(config *PathsConfig) error {
	fields := map[string]string{
		"source":        config.Source,
		"output":        config.Output,
		"styles_entry":  config.StylesEntry,
		"scripts_entry": config.ScriptsEntry,
		"fonts":         config.Fonts,
		"images":        config.Images,
		"libs":          config.Libs,
		"parts":         config.Parts,
		"node_modules":  config.NodeModules,
		"vendor_dir":    config.VendorDir,
		"cache_dir":     config.CacheDir,
	}

	for name, path := range fields {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, path, err)
		}
	}

	// The output tree is deleted on every full build.
	out := filepath.Clean(config.Output)
	if out == "." || within(out, config.Source) || within(config.Source, out) {
		return &ValidationError{
			Field:       "paths.output",
			Value:       config.Output,
			Message:     "output must be a dedicated directory distinct from the source tree",
			Suggestions: []string{"use paths.output: dist"},
		}
	}

	return nil
}

// within reports whether path equals dir or lies below it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func validateImagesConfig(config *ImagesConfig) error {
	if len(config.Extensions) == 0 {
		return fmt.Errorf("extensions must not be empty")
	}
	if config.JPEGQuality < 1 || config.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality %d is not in valid range 1-100", config.JPEGQuality)
	}
	if config.PNGQualityMin < 0 || config.PNGQualityMax > 1 || config.PNGQualityMin > config.PNGQualityMax {
		return fmt.Errorf("png quality band [%.2f, %.2f] must satisfy 0 <= min <= max <= 1",
			config.PNGQualityMin, config.PNGQualityMax)
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	return nil
}

// validatePath validates a project relative file path
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	if filepath.IsAbs(cleanPath) {
		return fmt.Errorf("path should be relative to the project root: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
