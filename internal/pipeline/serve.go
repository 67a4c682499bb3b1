package pipeline

import (
	"context"
	"time"

	"github.com/conneroisu/frontbuild/internal/server"
)

const shutdownTimeout = 5 * time.Second

// Serve optionally builds the site, then serves it with live reload and
// rebuilds on change. It blocks until ctx is cancelled and then shuts the
// server down.
func (p *Pipeline) Serve(ctx context.Context, mode Mode) error {
	if p.cfg.Server.BuildOnStart {
		p.Run(ctx, mode)
	}

	srv := server.New(server.Options{
		Host:    p.cfg.Server.Host,
		Port:    p.cfg.Server.Port,
		Root:    p.cfg.Abs(p.cfg.Server.Root),
		Open:    p.cfg.Server.Open,
		Metrics: p.cfg.Server.Metrics,
	}, p.collector, p.recorder, p.base)
	if err := srv.Listen(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- srv.Start(ctx)
	}()
	go func() {
		errCh <- p.Watch(ctx, WatchOptions{
			Mode:      mode,
			Reloader:  srv,
			ServeRoot: p.cfg.Abs(p.cfg.Server.Root),
		})
	}()

	running := 2
	var firstErr error
	select {
	case <-ctx.Done():
	case firstErr = <-errCh:
		running--
		if firstErr != nil {
			p.logger.Error(ctx, firstErr, "Dev server stopped unexpectedly")
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	for ; running > 0; running-- {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
