package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct {
	html  string
	err   error
	calls int
}

func (r *stubRenderer) Render(ctx context.Context, url string) (string, error) {
	r.calls++
	return r.html, r.err
}

func fullPage() string {
	return "<html><body><p>" + strings.Repeat("plenty of visible body text ", 10) + "</p></body></html>"
}

func TestFetch_DirectSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fullPage()))
	}))
	defer srv.Close()

	renderer := &stubRenderer{}
	f := New(5*time.Second, "test-agent", renderer)

	html, source := f.Fetch(context.Background(), srv.URL)
	assert.Equal(t, SourceDirect, source)
	assert.Contains(t, html, "visible body text")
	assert.Zero(t, renderer.calls, "renderer must not run on a healthy direct fetch")
}

func TestFetch_ThinBodyFallsBackToRenderer(t *testing.T) {
	// Long enough markup, but almost no visible text: the script-rendered
	// page shape.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><head><script>app()</script></head><body><div id=\"root\"></div>" + strings.Repeat("<!-- -->", 20) + "</body></html>"))
	}))
	defer srv.Close()

	renderer := &stubRenderer{html: fullPage()}
	f := New(5*time.Second, "test-agent", renderer)

	html, source := f.Fetch(context.Background(), srv.URL)
	assert.Equal(t, SourceRendered, source)
	assert.Contains(t, html, "visible body text")
	assert.Equal(t, 1, renderer.calls)
}

func TestFetch_ErrorStatusFallsBackToRenderer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	renderer := &stubRenderer{html: fullPage()}
	f := New(5*time.Second, "test-agent", renderer)

	_, source := f.Fetch(context.Background(), srv.URL)
	assert.Equal(t, SourceRendered, source)
	assert.Equal(t, 1, renderer.calls)
}

func TestFetch_ConnectionErrorGoesStraightToRenderer(t *testing.T) {
	renderer := &stubRenderer{html: fullPage()}
	f := New(time.Second, "test-agent", renderer)

	html, source := f.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")
	assert.Equal(t, SourceRendered, source)
	require.NotEmpty(t, html)
}

func TestFetch_BothPathsFailReturnsEmpty(t *testing.T) {
	renderer := &stubRenderer{err: errors.New("browser crashed")}
	f := New(time.Second, "test-agent", renderer)

	html, source := f.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")
	assert.Empty(t, html)
	assert.Equal(t, SourceNone, source)
}

func TestFetch_RendererFailureKeepsDirectHTML(t *testing.T) {
	thin := "<html><body>tiny</body></html>" + strings.Repeat(" ", 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(thin))
	}))
	defer srv.Close()

	renderer := &stubRenderer{err: errors.New("browser crashed")}
	f := New(5*time.Second, "test-agent", renderer)

	html, source := f.Fetch(context.Background(), srv.URL)
	assert.Equal(t, SourceDirect, source)
	assert.Contains(t, html, "tiny")
}

func TestFetch_NoRendererConfigured(t *testing.T) {
	f := New(time.Second, "test-agent", nil)
	html, source := f.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")
	assert.Empty(t, html)
	assert.Equal(t, SourceNone, source)
}
