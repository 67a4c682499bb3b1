package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/metrics"
)

func newTestServer(t *testing.T, collector *errors.ErrorCollector, recorder *metrics.Recorder) (*Server, *httptest.Server, string) {
	t.Helper()

	root := t.TempDir()
	writeFile(t, root, "index.html", "<html><body><h1>home</h1></body></html>")
	writeFile(t, root, "about/index.html", "<html><body>about</body></html>")
	writeFile(t, root, "css/index.css", "body{color:red}")

	srv := New(Options{Root: root, Host: "127.0.0.1", Metrics: true}, collector, recorder, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})
	return srv, ts, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServeInjectsClient(t *testing.T) {
	_, ts, _ := newTestServer(t, errors.NewErrorCollector(), nil)

	resp, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Contains(t, body, "<h1>home</h1>")
	assert.Contains(t, body, clientSnippet+"</body>")
	assert.NotContains(t, body, "frontbuild-overlay")
}

func TestServeDirectoryIndex(t *testing.T) {
	_, ts, _ := newTestServer(t, nil, nil)

	resp, _ := get(t, ts.URL+"/about")
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/about/", resp.Header.Get("Location"))

	resp, body := get(t, ts.URL+"/about/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "about")
	assert.Contains(t, body, clientSnippet)
}

func TestServeStaticUntouched(t *testing.T) {
	_, ts, _ := newTestServer(t, nil, nil)

	resp, body := get(t, ts.URL+"/css/index.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/css")
	assert.Equal(t, "body{color:red}", body)
}

func TestServeMissingAndTraversal(t *testing.T) {
	srv, ts, root := newTestServer(t, nil, nil)

	resp, _ := get(t, ts.URL+"/nope.html")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	name, ok := srv.resolve("/../../etc/passwd")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "etc", "passwd"), name)

	_, ok = srv.resolve("/a\x00b")
	assert.False(t, ok)
}

func TestServeOverlayOnErrors(t *testing.T) {
	collector := errors.NewErrorCollector()
	collector.Add(errors.Diagnostic{
		Step:     "styles",
		File:     "app/css/index.css",
		Line:     4,
		Column:   2,
		Message:  "unexpected <token>",
		Severity: errors.ErrorSeverityError,
	})
	_, ts, _ := newTestServer(t, collector, nil)

	_, body := get(t, ts.URL+"/")
	assert.Contains(t, body, `id="frontbuild-overlay"`)
	assert.Contains(t, body, "app/css/index.css:4:2")
	assert.Contains(t, body, "unexpected &lt;token&gt;")

	collector.ClearStep("styles")
	_, body = get(t, ts.URL+"/")
	assert.NotContains(t, body, "frontbuild-overlay")
}

func TestClientScriptRoute(t *testing.T) {
	_, ts, _ := newTestServer(t, nil, nil)

	resp, body := get(t, ts.URL+clientPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "javascript")
	assert.Contains(t, body, wsPath)
}

func TestHealthz(t *testing.T) {
	collector := errors.NewErrorCollector()
	_, ts, _ := newTestServer(t, collector, nil)

	_, body := get(t, ts.URL+"/healthz")
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "healthy", health["status"])

	collector.AddError("scripts", errors.NewBuildError(errors.ErrCodeBuildFailed, "bundle failed", nil))
	_, body = get(t, ts.URL+"/healthz")
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "degraded", health["status"])
	assert.EqualValues(t, 1, health["errors"])
}

func TestMetricsEndpoint(t *testing.T) {
	recorder := metrics.NewRecorder(nil)
	srv, ts, _ := newTestServer(t, nil, recorder)

	srv.Reload("/index.html")
	srv.InjectCSS("/css/index.css")

	resp, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `frontbuild_reloads_total{kind="full"} 1`)
	assert.Contains(t, body, `frontbuild_reloads_total{kind="css"} 1`)
}

func TestMetricsDisabledWithoutRecorder(t *testing.T) {
	_, ts, _ := newTestServer(t, nil, nil)

	resp, _ := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListenAndShutdown(t *testing.T) {
	srv := New(Options{Host: "127.0.0.1", Port: 0, Root: t.TempDir()}, nil, nil, nil)
	require.NoError(t, srv.Listen())
	assert.True(t, strings.HasPrefix(srv.URL(), "http://127.0.0.1:"))

	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()

	resp, err := http.Get(srv.URL() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, <-done)
	assert.NoError(t, srv.Shutdown(context.Background()), "shutdown is idempotent")
}
