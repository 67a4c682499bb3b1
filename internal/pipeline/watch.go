package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/images"
	"github.com/conneroisu/frontbuild/internal/watcher"
)

// Reloader is the part of the dev server the watcher talks to.
type Reloader interface {
	Reload(target string)
	InjectCSS(urlPath string)
}

type nopReloader struct{}

func (nopReloader) Reload(string)    {}
func (nopReloader) InjectCSS(string) {}

// WatchOptions configures Watch.
type WatchOptions struct {
	Mode Mode
	// Reloader is told about every rebuild. Nil means no browser is attached.
	Reloader Reloader
	// ServeRoot is the directory the dev server serves; URL paths sent to
	// the browser are relative to it.
	ServeRoot string
}

// Watch rebuilds on source changes until ctx is cancelled.
func (p *Pipeline) Watch(ctx context.Context, opts WatchOptions) error {
	if opts.Reloader == nil {
		opts.Reloader = nopReloader{}
	}
	if opts.ServeRoot == "" {
		opts.ServeRoot = p.output()
	}

	root := p.cfg.Paths.Root
	fw, err := watcher.NewFileWatcher(p.cfg.Watch.Debounce, p.base)
	if err != nil {
		return err
	}
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(watcher.NoNodeModulesFilter)

	if err := fw.AddRecursive(p.source()); err != nil {
		_ = fw.Stop()
		return errors.NewIOError(errors.ErrCodeWatchFailed, "failed to watch source directory", err).WithLocation(p.source(), 0, 0)
	}

	groups := p.Groups(opts)
	if opts.Mode == ModeNative && p.framework != nil {
		// The framework watcher writes the compiled stylesheet into the
		// output; watch that file so the browser picks it up.
		out := p.mirrorAbs(p.cfg.Abs(p.cfg.Framework.Input))
		if err := fw.AddPath(filepath.Dir(out)); err != nil {
			p.logger.Warn(ctx, err, "Cannot watch framework output", "path", out)
		} else {
			groups = append(groups, &watcher.Group{
				Name:    StepFramework,
				Include: []string{p.rel(root, out)},
				Action: func(ctx context.Context, _ []watcher.ChangeEvent) error {
					opts.Reloader.InjectCSS(urlPath(opts.ServeRoot, out))
					return nil
				},
			})
			go func() {
				if err := p.framework.Watch(ctx, p.cfg.Abs(p.cfg.Framework.Input), out); err != nil && ctx.Err() == nil {
					p.logger.Error(ctx, err, "Framework watch stopped", "framework", p.framework.Name())
				}
			}()
		}
	}

	dispatcher := watcher.NewDispatcher(root, p.base, groups...)
	fw.AddHandler(dispatcher.Handle)

	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return err
	}
	p.logger.Info(ctx, "Watching for changes", "mode", opts.Mode, "dirs", len(fw.WatchList()))

	<-ctx.Done()
	err = fw.Stop()
	dispatcher.Wait()
	return err
}

// Groups returns the watch groups of mode: which source globs trigger which
// rebuild and what the browser is told afterwards.
func (p *Pipeline) Groups(opts WatchOptions) []*watcher.Group {
	if opts.Reloader == nil {
		opts.Reloader = nopReloader{}
	}
	if opts.ServeRoot == "" {
		opts.ServeRoot = p.output()
	}

	root := p.cfg.Paths.Root
	native := opts.Mode == ModeNative
	reload := opts.Reloader

	src := p.rel(root, p.source())
	styleDir := p.rel(root, p.styleDir())
	scriptDir := p.rel(root, p.scriptDir())
	parts := p.rel(root, p.cfg.Abs(p.cfg.Paths.Parts))
	fonts := p.rel(root, p.cfg.Abs(p.cfg.Paths.Fonts))
	imgs := p.rel(root, p.cfg.Abs(p.cfg.Paths.Images))

	htmlGlobs := []string{src + "/**/*.{html,htm}", parts + "/**/*"}

	stylesOut := p.cfg.Abs(p.cfg.Styles.Output)
	if native {
		stylesOut = p.mirrorAbs(p.cfg.Abs(p.cfg.Paths.StylesEntry))
	}
	cssURL := urlPath(opts.ServeRoot, stylesOut)

	afterCSS := func(err error) {
		if err != nil || !p.cfg.Server.CSSInjection {
			reload.Reload(cssURL)
			return
		}
		reload.InjectCSS(cssURL)
	}
	reloadAfter := func(err error) error {
		reload.Reload("")
		return err
	}

	rebuildStyles := func(ctx context.Context) error {
		if !native {
			return p.Styles(ctx)
		}
		if err := p.DevAssets(ctx, p.styleDir()); err != nil {
			return err
		}
		return p.Framework(ctx)
	}

	groups := []*watcher.Group{
		{
			Name:    "styles",
			Include: []string{styleDir + "/**/*.css"},
			Exclude: []string{"**/*.min.css"},
			Action: func(ctx context.Context, _ []watcher.ChangeEvent) error {
				err := rebuildStyles(ctx)
				afterCSS(err)
				return err
			},
		},
		{
			Name:    "html",
			Include: htmlGlobs,
			Action: func(ctx context.Context, _ []watcher.ChangeEvent) error {
				return reloadAfter(p.Pages(ctx, native))
			},
		},
		{
			Name:    "scripts",
			Include: []string{scriptDir + "/**/*.{js,mjs}"},
			Action: func(ctx context.Context, _ []watcher.ChangeEvent) error {
				if native {
					return reloadAfter(p.DevAssets(ctx, p.scriptDir()))
				}
				return reloadAfter(p.Scripts(ctx))
			},
		},
		{
			Name:    "fonts",
			Include: []string{fonts + "/**/*"},
			Action: func(ctx context.Context, _ []watcher.ChangeEvent) error {
				return reloadAfter(p.Fonts(ctx))
			},
		},
		{
			Name:    "images",
			Include: []string{imgs + "/**/*"},
			Action: func(ctx context.Context, _ []watcher.ChangeEvent) error {
				if native {
					return reloadAfter(p.step(ctx, nil, images.Step, p.copyStep(p.cfg.Paths.Images)).Err())
				}
				return reloadAfter(p.Images(ctx))
			},
		},
	}

	if exts := p.cfg.Watch.Files; len(exts) > 0 {
		groups = append(groups, &watcher.Group{
			Name:    "content",
			Include: []string{src + "/**/*." + braces(exts)},
			Exclude: append(append([]string{}, htmlGlobs...), fonts+"/**/*", imgs+"/**/*"),
			Action: func(ctx context.Context, _ []watcher.ChangeEvent) error {
				var err error
				if p.framework != nil {
					err = rebuildStyles(ctx)
				}
				reload.Reload("")
				return err
			},
		})
	}

	return groups
}

func (p *Pipeline) rel(root, abs string) string {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// urlPath maps a file below the served root to the path a browser requests.
func urlPath(serveRoot, file string) string {
	rel, err := filepath.Rel(serveRoot, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "/" + filepath.Base(file)
	}
	return "/" + filepath.ToSlash(rel)
}

func braces(items []string) string {
	if len(items) == 1 {
		return items[0]
	}
	return "{" + strings.Join(items, ",") + "}"
}
