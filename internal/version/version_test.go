package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLdflagsVersionWins(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = oldVersion, oldCommit })

	Version = "v1.4.0"
	GitCommit = "0123456789abcdef"

	assert.Equal(t, "v1.4.0", GetVersion())
	assert.Equal(t, "v1.4.0 (0123456)", GetShortVersion())
	assert.True(t, IsRelease())

	detailed := GetDetailedVersion()
	assert.Contains(t, detailed, "Version: v1.4.0")
	assert.Contains(t, detailed, "Commit: 0123456789abcdef")
}

func TestBuildInfoPlatform(t *testing.T) {
	info := GetBuildInfo()
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
	assert.NotNil(t, info.Toolchain)
}
