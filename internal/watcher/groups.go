package watcher

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/logging"
)

// Action rebuilds whatever a group is responsible for.
type Action func(ctx context.Context, events []ChangeEvent) error

// Group binds a set of glob patterns, relative to the watched root, to an
// action.
type Group struct {
	Name    string
	Include []string
	Exclude []string
	Action  Action
}

// Matches reports whether rel, a slash separated path relative to the root,
// belongs to the group.
func (g *Group) Matches(rel string) bool {
	for _, pattern := range g.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return false
		}
	}
	for _, pattern := range g.Include {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

type groupState struct {
	group   *Group
	mu      sync.Mutex
	running bool
	pending []ChangeEvent
}

// Dispatcher routes debounced batches to groups. A group's action never runs
// concurrently with itself: changes arriving while it runs are merged into a
// single follow-up run. Different groups run in parallel.
type Dispatcher struct {
	root    string
	groups  []*groupState
	logger  logging.Logger
	handler *errors.ErrorHandler
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher for paths below root.
func NewDispatcher(root string, logger logging.Logger, groups ...*Group) *Dispatcher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("watcher")
	d := &Dispatcher{root: root, logger: logger, handler: errors.NewErrorHandler(logger)}
	for _, g := range groups {
		d.groups = append(d.groups, &groupState{group: g})
	}
	return d
}

// Handle is a ChangeHandler. It returns once the matching groups have been
// scheduled.
func (d *Dispatcher) Handle(ctx context.Context, events []ChangeEvent) error {
	for _, gs := range d.groups {
		var matched []ChangeEvent
		for _, ev := range events {
			rel, err := filepath.Rel(d.root, ev.Path)
			if err != nil {
				continue
			}
			if gs.group.Matches(filepath.ToSlash(rel)) {
				matched = append(matched, ev)
			}
		}
		if len(matched) > 0 {
			d.schedule(ctx, gs, matched)
		}
	}
	return nil
}

// Wait blocks until every scheduled action has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) schedule(ctx context.Context, gs *groupState, events []ChangeEvent) {
	gs.mu.Lock()
	if gs.running {
		gs.pending = append(gs.pending, events...)
		gs.mu.Unlock()
		return
	}
	gs.running = true
	gs.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			if ctx.Err() != nil {
				gs.mu.Lock()
				gs.running = false
				gs.pending = nil
				gs.mu.Unlock()
				return
			}

			d.logger.Debug(ctx, "Change detected", "group", gs.group.Name, "files", len(events))
			if err := gs.group.Action(ctx, events); err != nil {
				d.handler.Handle(ctx, err, "group", gs.group.Name)
			}

			gs.mu.Lock()
			if len(gs.pending) == 0 {
				gs.running = false
				gs.mu.Unlock()
				return
			}
			events = gs.pending
			gs.pending = nil
			gs.mu.Unlock()
		}
	}()
}
