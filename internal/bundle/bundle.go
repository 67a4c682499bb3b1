// Package bundle wraps the esbuild API for the style and script builders.
package bundle

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/frontbuild/internal/errors"
)

// Options describes one single-entry esbuild run.
type Options struct {
	Entry    string
	Outfile  string
	Minify   bool
	Format   api.Format
	Target   api.Target
	Engines  []api.Engine
	External []string
	Loaders  map[string]api.Loader
}

// Result holds the bundled output and any warnings esbuild reported.
type Result struct {
	Contents []byte
	Warnings []errors.Diagnostic
}

// Error is returned when esbuild reports errors. It carries one diagnostic
// per esbuild message so the error overlay can list them all.
type Error struct {
	Step     string
	Messages []errors.Diagnostic
}

func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return e.Step + ": bundling failed"
	}
	first := e.Messages[0]
	if len(e.Messages) == 1 {
		return first.Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", first.Error(), len(e.Messages)-1)
}

// Diagnostics returns the esbuild messages as diagnostics.
func (e *Error) Diagnostics() []errors.Diagnostic {
	return e.Messages
}

// Run bundles opts.Entry in memory and returns the contents destined for
// opts.Outfile. Nothing is written to disk.
func Run(step string, opts Options) (Result, error) {
	outfile, err := filepath.Abs(opts.Outfile)
	if err != nil {
		return Result{}, errors.NewInternalError(errors.ErrCodeInvalidPath, "cannot resolve output path", err)
	}

	result := api.Build(api.BuildOptions{
		EntryPoints:       []string{opts.Entry},
		Outfile:           outfile,
		Bundle:            true,
		Write:             false,
		Format:            opts.Format,
		Target:            opts.Target,
		Engines:           opts.Engines,
		External:          opts.External,
		Loader:            opts.Loaders,
		MinifyWhitespace:  opts.Minify,
		MinifySyntax:      opts.Minify,
		MinifyIdentifiers: opts.Minify,
		LegalComments:     api.LegalCommentsNone,
		LogLevel:          api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return Result{}, &Error{Step: step, Messages: Diagnostics(step, result.Errors, errors.ErrorSeverityError)}
	}

	for _, f := range result.OutputFiles {
		if f.Path == outfile {
			return Result{
				Contents: f.Contents,
				Warnings: Diagnostics(step, result.Warnings, errors.ErrorSeverityWarning),
			}, nil
		}
	}

	return Result{}, errors.NewBuildError(errors.ErrCodeBuildFailed, "esbuild produced no output for "+opts.Entry, nil).
		WithStep(step)
}

// Diagnostics converts esbuild messages into diagnostics of step.
func Diagnostics(step string, msgs []api.Message, severity errors.ErrorSeverity) []errors.Diagnostic {
	out := make([]errors.Diagnostic, 0, len(msgs))
	for _, m := range msgs {
		d := errors.Diagnostic{
			Step:     step,
			Message:  m.Text,
			Severity: severity,
		}
		if m.Location != nil {
			d.File = m.Location.File
			d.Line = m.Location.Line
			d.Column = m.Location.Column
			d.Detail = m.Location.LineText
		}
		for _, note := range m.Notes {
			if note.Text != "" {
				d.Detail = strings.TrimSpace(d.Detail + "\n" + note.Text)
			}
		}
		out = append(out, d)
	}
	return out
}

var engineTarget = regexp.MustCompile(`^([a-z]+)([0-9][0-9.]*)$`)

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// ParseEngines converts browser targets such as "chrome100" or "safari15.4"
// into esbuild engines.
func ParseEngines(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))
	for _, target := range targets {
		m := engineTarget.FindStringSubmatch(strings.ToLower(strings.TrimSpace(target)))
		if m == nil {
			return nil, errors.ConfigurationError("styles.targets", fmt.Sprintf("invalid browser target %q", target), target)
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return nil, errors.ConfigurationError("styles.targets", fmt.Sprintf("unknown browser %q", m[1]), target)
		}
		engines = append(engines, api.Engine{Name: name, Version: m[2]})
	}
	return engines, nil
}

var esTargets = map[string]api.Target{
	"esnext": api.ESNext,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
}

// ParseTarget converts a language target such as "es2020" into an esbuild
// target.
func ParseTarget(name string) (api.Target, error) {
	if name == "" {
		return api.ES2020, nil
	}
	target, ok := esTargets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return api.DefaultTarget, errors.ConfigurationError("scripts.target", fmt.Sprintf("unknown language target %q", name), name)
	}
	return target, nil
}
