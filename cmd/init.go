package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/frontbuild/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Scaffold the source layout and a configuration file",
	Long: `Create the app/ source layout with a sample page, partial, stylesheet and
script, plus a .frontbuild.yml holding the default configuration. If no
directory is given the current directory is used. Existing files are never
overwritten.

Examples:
  frontbuild init
  frontbuild init my-site
  frontbuild init --minimal        # Directories and configuration only`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var initMinimal bool

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initMinimal, "minimal", false, "Create directories and configuration without sample files")
}

var scaffoldDirs = []string{
	"app/css",
	"app/js",
	"app/fonts",
	"app/img",
	"app/libs",
	"app/parts",
}

var scaffoldFiles = map[string]string{
	"app/index.html": `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>frontbuild</title>
  <link rel="stylesheet" href="css/index.css">
</head>
<body>
  <!--#include file="parts/header.html" -->
  <main>
    <h1>It works</h1>
  </main>
  <script src="js/app.js"></script>
</body>
</html>
`,
	"app/parts/header.html": `<header>
  <nav><a href="/">Home</a></nav>
</header>
`,
	"app/css/index.css": `@import "./base.css";

main {
  max-width: 60rem;
  margin: 0 auto;
}
`,
	"app/css/base.css": `*, *::before, *::after {
  box-sizing: border-box;
}

body {
  margin: 0;
  font-family: system-ui, sans-serif;
}
`,
	"app/js/app.js": `import { greet } from "./greet.js";

greet(document.querySelector("h1"));
`,
	"app/js/greet.js": `export function greet(el) {
  if (el) {
    el.dataset.ready = "true";
  }
}
`,
}

func runInit(cmd *cobra.Command, args []string) error {
	projectDir := "."
	if len(args) == 1 {
		projectDir = args[0]
	}
	if err := validateArgument(projectDir); err != nil {
		return fmt.Errorf("invalid directory: %w", err)
	}

	for _, dir := range scaffoldDirs {
		if err := os.MkdirAll(filepath.Join(projectDir, dir), 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	files := map[string]string{}
	if !initMinimal {
		for name, content := range scaffoldFiles {
			files[name] = content
		}
	}

	defaults, err := config.LoadFrom(viper.New())
	if err != nil {
		return err
	}
	data, err := encodeConfig(defaults, "yaml")
	if err != nil {
		return err
	}
	files[".frontbuild.yml"] = string(data)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	out := cmd.OutOrStdout()
	for _, name := range names {
		content := files[name]
		path := filepath.Join(projectDir, name)
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(out, "skip    %s (exists)\n", name)
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		fmt.Fprintf(out, "create  %s\n", name)
	}

	fmt.Fprintf(out, "\nProject ready in %s. Run 'frontbuild serve' to start developing.\n", projectDir)
	return nil
}
