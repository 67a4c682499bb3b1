// Package version reports the frontbuild release and the versions of the
// bundled asset toolchain.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// These variables are set at build time using -ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// toolchain lists the modules whose versions decide the produced output.
var toolchain = []string{
	"github.com/evanw/esbuild",
	"github.com/tdewolff/minify/v2",
	"golang.org/x/net",
}

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string            `json:"version" yaml:"version"`
	GitCommit string            `json:"git_commit" yaml:"git_commit"`
	BuildTime string            `json:"build_time" yaml:"build_time"`
	GoVersion string            `json:"go_version" yaml:"go_version"`
	Platform  string            `json:"platform" yaml:"platform"`
	Toolchain map[string]string `json:"toolchain,omitempty" yaml:"toolchain,omitempty"`
}

// GetBuildInfo returns the version of this binary and its asset toolchain.
func GetBuildInfo() *BuildInfo {
	info := &BuildInfo{
		Version:   GetVersion(),
		GitCommit: GetGitCommit(),
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		Toolchain: map[string]string{},
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range bi.Deps {
			for _, path := range toolchain {
				if dep.Path == path {
					info.Toolchain[path] = dep.Version
				}
			}
		}
	}

	return info
}

// GetVersion returns the application version
func GetVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
				return "dev-" + setting.Value[:7]
			}
		}
	}

	return "dev"
}

// GetGitCommit returns the git commit hash
func GetGitCommit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				return setting.Value
			}
		}
	}

	return "unknown"
}

// GetShortVersion returns a short version string suitable for display
func GetShortVersion() string {
	version := GetVersion()
	commit := GetGitCommit()

	if commit != "unknown" && len(commit) >= 7 && version != "dev" && !strings.HasPrefix(version, "dev-") {
		return fmt.Sprintf("%s (%s)", version, commit[:7])
	}

	return version
}

// GetDetailedVersion returns a detailed version string with all build info
func GetDetailedVersion() string {
	info := GetBuildInfo()

	parts := []string{fmt.Sprintf("Version: %s", info.Version)}
	if info.GitCommit != "unknown" {
		parts = append(parts, fmt.Sprintf("Commit: %s", info.GitCommit))
	}
	if info.BuildTime != "unknown" && info.BuildTime != "" {
		parts = append(parts, fmt.Sprintf("Built: %s", info.BuildTime))
	}
	parts = append(parts, fmt.Sprintf("Go: %s", info.GoVersion))
	parts = append(parts, fmt.Sprintf("Platform: %s", info.Platform))
	for _, path := range toolchain {
		if v, ok := info.Toolchain[path]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", path, v))
		}
	}

	return strings.Join(parts, "\n")
}

// IsRelease returns true if this is a release build (not dev)
func IsRelease() bool {
	version := GetVersion()
	return version != "dev" && !strings.HasPrefix(version, "dev-")
}
