// Package cmd provides the command-line interface for frontbuild.
//
// Configuration System:
//
//	Options are read from several sources with clear precedence:
//	1. Command-line flags (--config, --port, etc.) - highest priority
//	2. Individual environment variables (FRONTBUILD_SERVER_PORT, etc.)
//	3. The configuration file (--config, FRONTBUILD_CONFIG_FILE or .frontbuild.yml)
//	4. Built-in defaults - lowest priority
//
// A .env file in the working directory is loaded before anything else, so
// FRONTBUILD_* and AWS_* variables can live there during development.
//
// # Available Commands
//
//   - init: Scaffold the app/ layout and a .frontbuild.yml
//   - build: Production build (styles, scripts, pages, images, fonts)
//   - native: Unbundled copy for native ES module development
//   - serve: Build, serve with live reload and rebuild on change
//   - watch: Rebuild on change without serving
//   - publish: Build and upload the output to an S3 compatible bucket
//   - config: Show or validate the configuration
//   - version: Show version information
//
// # Command Examples
//
//	// Start a new site
//	frontbuild init my-site
//
//	// Develop against native ES modules on another port
//	frontbuild serve --native --port 8080
//
//	// CI build that fails on any broken step
//	frontbuild build --strict --format json
//
// # Error Handling
//
// A failing step never aborts a workflow: the remaining steps run and the
// failure is printed in the step report. With --strict the command exits
// non-zero when the report contains a failed step. Interrupts (Ctrl+C)
// cancel the remaining steps and shut the dev server down gracefully.
package cmd
