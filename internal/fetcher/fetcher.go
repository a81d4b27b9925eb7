package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"
)

// Source tags reported by Fetch.
const (
	SourceDirect   = "direct"
	SourceRendered = "rendered"
	SourceNone     = "none"
)

// A page is considered script-rendered (and worth the slow path) when
// the direct response carries less than this much visible body text or
// raw markup.
const (
	minBodyTextLen = 40
	minHTMLLen     = 100
)

// Renderer loads a page in a full browser engine for script-rendered
// sites. Implementations scope the engine's lifetime to one call.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Fetcher retrieves raw HTML with a fast direct path and a rendering
// fallback. Fetch never returns an error; an unusable page comes back
// as empty HTML with SourceNone.
type Fetcher struct {
	client    *http.Client
	renderer  Renderer
	userAgent string
}

func New(timeout time.Duration, userAgent string, renderer Renderer) *Fetcher {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		renderer:  renderer,
		userAgent: userAgent,
	}
}

// Fetch returns the page HTML and the source tag that produced it.
// Direct GET first; the rendering fallback runs when the direct fetch
// fails outright or yields implausibly little content.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, string) {
	html, err := f.get(ctx, url)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("direct fetch failed, trying renderer")
		return f.render(ctx, url, "")
	}

	if tooSmall(html) {
		log.Info().Str("url", url).Msg("thin response, falling back to renderer")
		return f.render(ctx, url, html)
	}
	return html, SourceDirect
}

func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	// Decode legacy encodings to UTF-8 using the Content-Type charset
	// or the in-document meta declaration.
	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", err
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// render runs the fallback path. When rendering also fails the direct
// HTML (possibly empty) is returned so callers can still judge it.
func (f *Fetcher) render(ctx context.Context, url, directHTML string) (string, string) {
	if f.renderer == nil {
		if directHTML == "" {
			return "", SourceNone
		}
		return directHTML, SourceDirect
	}

	html, err := f.renderer.Render(ctx, url)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("renderer failed")
		if directHTML == "" {
			return "", SourceNone
		}
		return directHTML, SourceDirect
	}
	return html, SourceRendered
}

func tooSmall(html string) bool {
	if len(html) < minHTMLLen {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return true
	}
	body := strings.TrimSpace(doc.Find("body").Text())
	return len(body) < minBodyTextLen
}
