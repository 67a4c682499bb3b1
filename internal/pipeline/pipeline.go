// Package pipeline sequences the builders into the build, native and serve
// workflows.
//
// Every step is timed, traced and recorded in the error collector. A failed
// step is logged and the workflow carries on with the next one; callers
// inspect the returned Report to find out what went wrong.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/conneroisu/frontbuild/internal/assets"
	"github.com/conneroisu/frontbuild/internal/config"
	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/framework"
	"github.com/conneroisu/frontbuild/internal/images"
	"github.com/conneroisu/frontbuild/internal/logging"
	"github.com/conneroisu/frontbuild/internal/metrics"
	"github.com/conneroisu/frontbuild/internal/pages"
	"github.com/conneroisu/frontbuild/internal/precompress"
	"github.com/conneroisu/frontbuild/internal/rewrite"
	"github.com/conneroisu/frontbuild/internal/scripts"
	"github.com/conneroisu/frontbuild/internal/styles"
)

const tracerName = "github.com/conneroisu/frontbuild/internal/pipeline"

// Step names that have no builder package of their own.
const (
	StepClean     = "clean"
	StepFonts     = "fonts"
	StepLibs      = "libs"
	StepDevAssets = "dev-assets"
	StepFramework = "framework"
)

// errSkipped marks a step whose input does not exist.
var errSkipped = stderrors.New("step skipped")

// diagnoser is implemented by errors that carry one diagnostic per problem.
type diagnoser interface {
	Diagnostics() []errors.Diagnostic
}

type stepFunc func(ctx context.Context) (int64, error)

// Pipeline owns the builders of one project.
type Pipeline struct {
	cfg       *config.Config
	base      logging.Logger
	logger    logging.Logger
	recorder  *metrics.Recorder
	collector *errors.ErrorCollector
	framework framework.Compiler
	tracer    trace.Tracer

	copier  *assets.Copier
	styles  *styles.Builder
	scripts *scripts.Builder
	images  *images.Builder

	// runMu serializes whole workflows; single steps started by the watcher
	// are serialized per group instead.
	runMu sync.Mutex
}

// New creates a pipeline for cfg. recorder may be nil. A nil collector gets
// a fresh one.
func New(cfg *config.Config, logger logging.Logger, recorder *metrics.Recorder, collector *errors.ErrorCollector) (*Pipeline, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if collector == nil {
		collector = errors.NewErrorCollector()
	}

	// Work on a copy with an absolute root so every derived path is absolute.
	local := *cfg
	root, err := filepath.Abs(cfg.Paths.Root)
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidPath, "invalid project root").WithContext("root", cfg.Paths.Root)
	}
	local.Paths.Root = root

	compiler, err := framework.New(local.Framework, root, logger)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       &local,
		base:      logger,
		logger:    logger.WithComponent("pipeline"),
		recorder:  recorder,
		collector: collector,
		tracer:    otel.Tracer(tracerName),
		copier:    assets.NewCopier(logger),
	}
	if err := p.configure(compiler); err != nil {
		return nil, err
	}
	return p, nil
}

// configure creates the builders. A nil compiler disables the framework step.
func (p *Pipeline) configure(compiler framework.Compiler) error {
	cfg, logger := p.cfg, p.base

	styleOpts := styles.Options{
		Entry:   cfg.Abs(cfg.Paths.StylesEntry),
		Output:  cfg.Abs(cfg.Styles.Output),
		Minify:  cfg.Styles.Minify,
		Targets: cfg.Styles.Targets,
	}
	if compiler != nil {
		styleOpts.Framework = compiler
		styleOpts.FrameworkInput = cfg.Abs(cfg.Framework.Input)
		styleOpts.FrameworkOutput = cfg.Abs(cfg.Framework.Output)
	}
	styleBuilder, err := styles.New(styleOpts, logger)
	if err != nil {
		return err
	}

	scriptBuilder, err := scripts.New(scripts.Options{
		Entry:   cfg.Abs(cfg.Paths.ScriptsEntry),
		Output:  cfg.Abs(cfg.Scripts.Output),
		Minify:  cfg.Scripts.Minify,
		Target:  cfg.Scripts.Target,
		HTMLDir: p.output(),
	}, logger)
	if err != nil {
		return err
	}

	p.framework = compiler
	p.styles = styleBuilder
	p.scripts = scriptBuilder
	p.images = images.New(images.Options{
		Source:        cfg.Abs(cfg.Paths.Images),
		Output:        p.mirror(cfg.Paths.Images),
		Extensions:    cfg.Images.Extensions,
		Minify:        cfg.Images.Minify,
		JPEGQuality:   cfg.Images.JPEGQuality,
		PNGQualityMin: cfg.Images.PNGQualityMin,
		PNGQualityMax: cfg.Images.PNGQualityMax,
		Workers:       cfg.Images.Workers,
	}, logger)
	return nil
}

// Collector returns the collector the steps report to.
func (p *Pipeline) Collector() *errors.ErrorCollector {
	return p.collector
}

// Build runs the production workflow: clean, pages, styles, scripts, images,
// fonts and, when enabled, precompression. Scripts run after pages so the
// emitted HTML is switched to deferred loading.
func (p *Pipeline) Build(ctx context.Context) *Report {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	report := p.newReport(ModeBuild)
	ctx, span := p.tracer.Start(ctx, "frontbuild.build", trace.WithAttributes(
		attribute.String("build.id", report.ID),
		attribute.String("build.mode", string(report.Mode)),
	))
	defer span.End()

	p.step(ctx, report, StepClean, p.clean)
	p.step(ctx, report, pages.Step, p.pagesStep(false))
	p.step(ctx, report, styles.Step, p.stylesStep)
	p.step(ctx, report, scripts.Step, p.scriptsStep)
	p.step(ctx, report, images.Step, p.imagesStep)
	p.step(ctx, report, StepFonts, p.fontsStep)
	if p.cfg.Build.Precompress {
		p.step(ctx, report, precompress.Step, p.precompressStep)
	}

	return p.finish(ctx, report)
}

// Native runs the unbundled development workflow: clean, pages with module
// scripts, the path rewriting copy of the stylesheets and scripts, the
// framework compile, then verbatim copies of fonts, images and libs.
func (p *Pipeline) Native(ctx context.Context) *Report {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	report := p.newReport(ModeNative)
	ctx, span := p.tracer.Start(ctx, "frontbuild.native", trace.WithAttributes(
		attribute.String("build.id", report.ID),
		attribute.String("build.mode", string(report.Mode)),
	))
	defer span.End()

	p.step(ctx, report, StepClean, p.clean)
	p.step(ctx, report, pages.Step, p.pagesStep(true))
	p.step(ctx, report, StepDevAssets, p.devAssetsStep(p.styleDir(), p.scriptDir()))
	if p.framework != nil {
		p.step(ctx, report, StepFramework, p.frameworkStep)
	}
	p.step(ctx, report, StepFonts, p.fontsStep)
	p.step(ctx, report, images.Step, p.copyStep(p.cfg.Paths.Images))
	p.step(ctx, report, StepLibs, p.copyStep(p.cfg.Paths.Libs))

	return p.finish(ctx, report)
}

// Run runs the workflow of mode.
func (p *Pipeline) Run(ctx context.Context, mode Mode) *Report {
	if mode == ModeNative {
		return p.Native(ctx)
	}
	return p.Build(ctx)
}

// Styles rebuilds the stylesheet.
func (p *Pipeline) Styles(ctx context.Context) error {
	return p.step(ctx, nil, styles.Step, p.stylesStep).Err()
}

// Scripts rebuilds the script bundle and defers the emitted pages.
func (p *Pipeline) Scripts(ctx context.Context) error {
	return p.step(ctx, nil, scripts.Step, p.scriptsStep).Err()
}

// Pages renders the HTML. In build mode the pages are deferred again
// afterwards, since rendering restores the module tags of the source.
func (p *Pipeline) Pages(ctx context.Context, native bool) error {
	res := p.step(ctx, nil, pages.Step, p.pagesStep(native))
	if !native && res.Outcome != OutcomeCanceled {
		if err := p.scripts.DeferPages(ctx); err != nil {
			p.logger.Warn(ctx, err, "Failed to defer page scripts")
		}
	}
	return res.Err()
}

// Images optimizes or copies the images.
func (p *Pipeline) Images(ctx context.Context) error {
	return p.step(ctx, nil, images.Step, p.imagesStep).Err()
}

// Fonts copies the fonts.
func (p *Pipeline) Fonts(ctx context.Context) error {
	return p.step(ctx, nil, StepFonts, p.fontsStep).Err()
}

// Libs copies the third party libraries.
func (p *Pipeline) Libs(ctx context.Context) error {
	return p.step(ctx, nil, StepLibs, p.copyStep(p.cfg.Paths.Libs)).Err()
}

// DevAssets copies the given source directories with path rewriting. All
// directories share one vendor registry, so each package is vendored once.
func (p *Pipeline) DevAssets(ctx context.Context, dirs ...string) error {
	return p.step(ctx, nil, StepDevAssets, p.devAssetsStep(dirs...)).Err()
}

// Framework compiles the framework stylesheet to its native output path.
func (p *Pipeline) Framework(ctx context.Context) error {
	if p.framework == nil {
		return nil
	}
	return p.step(ctx, nil, StepFramework, p.frameworkStep).Err()
}

// Precompress writes brotli siblings for the output.
func (p *Pipeline) Precompress(ctx context.Context) error {
	return p.step(ctx, nil, precompress.Step, p.precompressStep).Err()
}

func (p *Pipeline) newReport(mode Mode) *Report {
	return &Report{
		ID:      uuid.NewString(),
		Mode:    mode,
		Started: time.Now(),
	}
}

func (p *Pipeline) finish(ctx context.Context, report *Report) *Report {
	report.Duration = time.Since(report.Started)

	failed := report.Failed()
	if len(failed) > 0 {
		names := make([]string, len(failed))
		for i, s := range failed {
			names[i] = s.Name
		}
		p.logger.Warn(ctx, nil, "Finished with errors",
			"mode", report.Mode,
			"build_id", report.ID,
			"failed", names,
			"duration", report.Duration)
		return report
	}

	p.logger.Info(ctx, "Finished",
		"mode", report.Mode,
		"build_id", report.ID,
		"steps", len(report.Steps),
		"duration", report.Duration)
	return report
}

// step runs fn as the named step. The step's previous diagnostics are
// cleared first; a failure is logged, recorded and swallowed.
func (p *Pipeline) step(ctx context.Context, report *Report, name string, fn stepFunc) StepResult {
	res := StepResult{Name: name}
	defer func() {
		if report != nil {
			report.Steps = append(report.Steps, res)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Outcome = OutcomeCanceled
		res.err = err
		res.Error = err.Error()
		p.recorder.IncStepResult(name, metrics.ResultCanceled)
		return res
	}

	ctx, span := p.tracer.Start(ctx, "frontbuild.step."+name, trace.WithAttributes(
		attribute.String("step", name),
	))
	defer span.End()

	p.collector.ClearStep(name)

	op := logging.StartOperation(p.logger, name)
	files, err := fn(ctx)
	res.Duration = op.Elapsed()
	res.Files = files

	p.recorder.ObserveStepDuration(name, res.Duration)
	p.recorder.AddFilesProcessed(name, files)
	span.SetAttributes(attribute.Int64("files", files))

	switch {
	case err == nil:
		res.Outcome = OutcomeSuccess
		p.recorder.IncStepResult(name, metrics.ResultSuccess)
		span.SetStatus(codes.Ok, "")
		op.End(ctx, "step", name, "files", files)

	case stderrors.Is(err, errSkipped):
		res.Outcome = OutcomeSkipped
		p.logger.Debug(ctx, "Step skipped", "step", name)

	case ctx.Err() != nil:
		res.Outcome = OutcomeCanceled
		res.err = err
		res.Error = err.Error()
		p.recorder.IncStepResult(name, metrics.ResultCanceled)
		span.SetStatus(codes.Error, "canceled")

	default:
		res.Outcome = OutcomeFailed
		res.err = err
		res.Error = err.Error()
		p.record(name, err)
		p.recorder.IncStepResult(name, metrics.ResultFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		op.EndWithError(ctx, err, "step", name)
	}
	return res
}

func (p *Pipeline) record(step string, err error) {
	var d diagnoser
	if stderrors.As(err, &d) {
		diags := d.Diagnostics()
		if len(diags) > 0 {
			for _, diag := range diags {
				diag.Step = step
				p.collector.Add(diag)
			}
			return
		}
	}
	p.collector.AddError(step, err)
}

func (p *Pipeline) clean(ctx context.Context) (int64, error) {
	out := p.output()
	if err := os.RemoveAll(out); err != nil {
		return 0, errors.FileOperationError("remove", out, "failed to clean output directory", err)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return 0, errors.FileOperationError("mkdir", out, "failed to create output directory", err)
	}
	return 0, nil
}

func (p *Pipeline) pagesStep(native bool) stepFunc {
	return func(ctx context.Context) (int64, error) {
		builder := pages.New(pages.Options{
			Source:   p.source(),
			Output:   p.output(),
			PartsDir: p.cfg.Abs(p.cfg.Paths.Parts),
			Native:   native,
		}, p.base)
		return 0, builder.Build(ctx)
	}
}

func (p *Pipeline) stylesStep(ctx context.Context) (int64, error) {
	if err := p.styles.Build(ctx); err != nil {
		return 0, err
	}
	return 1, nil
}

func (p *Pipeline) scriptsStep(ctx context.Context) (int64, error) {
	if err := p.scripts.Build(ctx); err != nil {
		return 0, err
	}
	return 1, nil
}

func (p *Pipeline) imagesStep(ctx context.Context) (int64, error) {
	if !exists(p.cfg.Abs(p.cfg.Paths.Images)) {
		return 0, errSkipped
	}
	stats, err := p.images.Build(ctx)
	if err != nil {
		return stats.Processed, err
	}
	return stats.Processed, partialFailure(images.Step, stats.Failed)
}

func (p *Pipeline) fontsStep(ctx context.Context) (int64, error) {
	return p.copyStep(p.cfg.Paths.Fonts)(ctx)
}

// copyStep mirrors a source directory into the output verbatim. A missing
// directory skips the step.
func (p *Pipeline) copyStep(dir string) stepFunc {
	return func(ctx context.Context) (int64, error) {
		src := p.cfg.Abs(dir)
		if !exists(src) {
			return 0, errSkipped
		}
		stats, err := p.copier.CopyTree(ctx, src, p.mirror(dir))
		if err != nil {
			return stats.Copied, err
		}
		return stats.Copied, partialFailure(dir, stats.Failed)
	}
}

func (p *Pipeline) devAssetsStep(dirs ...string) stepFunc {
	return func(ctx context.Context) (int64, error) {
		rw := rewrite.New(rewrite.Options{
			NodeModules:   p.cfg.Abs(p.cfg.Paths.NodeModules),
			VendorDir:     p.cfg.Abs(p.cfg.Paths.VendorDir),
			StripComments: p.cfg.Build.StripComments,
			Workers:       p.cfg.Images.Workers,
		}, p.base)

		var files, failed int64
		for _, dir := range dirs {
			if !exists(dir) {
				continue
			}
			stats := rw.CopyDevAssets(ctx, dir, p.mirrorAbs(dir))
			files += stats.Files
			failed += stats.Failed
		}
		if err := ctx.Err(); err != nil {
			return files, err
		}
		if vendored := rw.Registry().Vendored(); len(vendored) > 0 {
			p.logger.Info(ctx, "Vendored packages", "packages", vendored)
		}
		return files, partialFailure(StepDevAssets, failed)
	}
}

// frameworkStep compiles the framework input straight to its mirrored
// output path, replacing the raw copy made by the dev asset step.
func (p *Pipeline) frameworkStep(ctx context.Context) (int64, error) {
	in := p.cfg.Abs(p.cfg.Framework.Input)
	if err := p.framework.Compile(ctx, in, p.mirrorAbs(in)); err != nil {
		return 0, err
	}
	return 1, nil
}

func (p *Pipeline) precompressStep(ctx context.Context) (int64, error) {
	stats, err := precompress.New(p.cfg.Images.Workers, p.base).Dir(ctx, p.output())
	if err != nil {
		return stats.Files, err
	}
	return stats.Files, partialFailure(precompress.Step, stats.Failed)
}

func (p *Pipeline) source() string {
	return p.cfg.Abs(p.cfg.Paths.Source)
}

func (p *Pipeline) output() string {
	return p.cfg.Abs(p.cfg.Paths.Output)
}

func (p *Pipeline) styleDir() string {
	return filepath.Dir(p.cfg.Abs(p.cfg.Paths.StylesEntry))
}

func (p *Pipeline) scriptDir() string {
	return filepath.Dir(p.cfg.Abs(p.cfg.Paths.ScriptsEntry))
}

// mirror maps a configured source path to the same relative location under
// the output directory: app/fonts becomes dist/fonts.
func (p *Pipeline) mirror(path string) string {
	return p.mirrorAbs(p.cfg.Abs(path))
}

func (p *Pipeline) mirrorAbs(abs string) string {
	rel, err := filepath.Rel(p.source(), abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Join(p.output(), filepath.Base(abs))
	}
	return filepath.Join(p.output(), rel)
}

func partialFailure(what string, failed int64) error {
	if failed == 0 {
		return nil
	}
	return errors.NewIOError(errors.ErrCodeCopyFailed, fmt.Sprintf("%d file(s) of %s failed", failed, what), nil)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
