// Package server is the development HTTP server: it serves the output tree,
// injects the live reload client and pushes reload messages over WebSocket.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/logging"
	"github.com/conneroisu/frontbuild/internal/markup"
	"github.com/conneroisu/frontbuild/internal/metrics"
	"github.com/conneroisu/frontbuild/internal/version"
)

// Options configures the dev server.
type Options struct {
	Host    string
	Port    int
	Root    string
	Open    bool
	Metrics bool
}

// Server serves the site with live reload capability
type Server struct {
	opts      Options
	router    *chi.Mux
	hub       *Hub
	collector *errors.ErrorCollector
	recorder  *metrics.Recorder
	logger    logging.Logger

	serverMutex sync.RWMutex
	httpServer  *http.Server
	listener    net.Listener
	cancelHub   context.CancelFunc

	shutdownOnce sync.Once
}

// New creates a dev server. collector and recorder may be nil.
func New(opts Options, collector *errors.ErrorCollector, recorder *metrics.Recorder, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("server")

	origins := []string{"localhost:*", "127.0.0.1:*", "[::1]:*"}
	if opts.Host != "" {
		origins = append(origins, opts.Host+":*")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:      opts,
		router:    chi.NewRouter(),
		hub:       NewHub(origins, logger, recorder),
		collector: collector,
		recorder:  recorder,
		logger:    logger,
		cancelHub: cancel,
	}
	go s.hub.Run(ctx)

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)

	s.router.Get(wsPath, s.hub.ServeHTTP)
	s.router.Get(clientPath, s.handleClient)
	s.router.Get("/healthz", s.handleHealth)
	if s.opts.Metrics && s.recorder != nil {
		s.router.Method(http.MethodGet, "/metrics", s.recorder.Handler())
	}
	s.router.Get("/*", s.handleStatic)
	s.router.Head("/*", s.handleStatic)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds the listening socket. It is separate from Serve so callers
// know the address before serving starts.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.opts.Host, fmt.Sprint(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.NewNetworkError(errors.ErrCodeServerFailed, "failed to listen on "+addr, err)
	}

	s.serverMutex.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serverMutex.Unlock()
	return nil
}

// URL returns the base URL of a listening server.
func (s *Server) URL() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String()
}

// Start listens and serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.serverMutex.RLock()
	listening := s.listener != nil
	s.serverMutex.RUnlock()
	if !listening {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.serverMutex.RLock()
	server, ln := s.httpServer, s.listener
	s.serverMutex.RUnlock()

	s.logger.Info(ctx, "Dev server listening", "url", s.URL(), "root", s.opts.Root)
	if s.opts.Open {
		go s.openBrowser(ctx, s.URL())
	}

	if err := server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.NewNetworkError(errors.ErrCodeServerFailed, "server error", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and closes all live clients.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cancelHub()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()
		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
		s.logger.Info(ctx, "Dev server stopped")
	})
	return shutdownErr
}

// Reload tells every browser to reload the page.
func (s *Server) Reload(target string) {
	s.hub.Broadcast(Message{Type: MessageReload, Target: target})
	s.recorder.IncReload(metrics.ReloadFull)
}

// InjectCSS tells every browser to refetch the stylesheet at urlPath without
// reloading the page.
func (s *Server) InjectCSS(urlPath string) {
	s.hub.Broadcast(Message{Type: MessageCSS, Target: urlPath})
	s.recorder.IncReload(metrics.ReloadCSS)
}

// Clients returns the number of connected browsers.
func (s *Server) Clients() int {
	return s.hub.Count()
}

func (s *Server) handleClient(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(clientScript))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	var problems int
	if s.collector != nil && s.collector.HasErrors() {
		status = "degraded"
		problems = len(s.collector.Diagnostics())
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"errors":    problems,
		"clients":   s.hub.Count(),
		"version":   version.GetShortVersion(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name, ok := s.resolve(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	info, err := os.Stat(name)
	if err == nil && info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
			return
		}
		name = filepath.Join(name, "index.html")
		info, err = os.Stat(name)
	}
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "no-store")

	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".html" && ext != ".htm" {
		http.ServeFile(w, r, name)
		return
	}

	data, err := os.ReadFile(name)
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to read page", "file", name)
		http.Error(w, "failed to read page", http.StatusInternalServerError)
		return
	}

	snippet := []byte(clientSnippet)
	if s.collector != nil && s.collector.HasErrors() {
		overlay, err := renderOverlay(r.Context(), s.collector.Diagnostics())
		if err != nil {
			s.logger.Warn(r.Context(), err, "Failed to render error overlay")
		} else {
			snippet = append(overlay, snippet...)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, name, info.ModTime(), strings.NewReader(string(markup.InjectBeforeBodyEnd(data, snippet))))
}

// resolve maps a URL path to a file below the root, refusing anything that
// escapes it.
func (s *Server) resolve(urlPath string) (string, bool) {
	cleaned := path.Clean("/" + urlPath)
	if strings.Contains(cleaned, "\x00") {
		return "", false
	}
	name := filepath.Join(s.opts.Root, filepath.FromSlash(cleaned))
	rel, err := filepath.Rel(s.opts.Root, name)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return name, true
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if r.URL.Path == wsPath {
			return
		}
		s.logger.Debug(r.Context(), "Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func (s *Server) openBrowser(ctx context.Context, target string) {
	time.Sleep(100 * time.Millisecond)

	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		s.logger.Warn(ctx, err, "Browser open failed due to invalid URL", "url", target)
		return
	}

	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", u.String()).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", u.String()).Start()
	case "darwin":
		err = exec.Command("open", u.String()).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	if err != nil {
		s.logger.Warn(ctx, err, "Failed to open browser", "url", target)
	}
}
