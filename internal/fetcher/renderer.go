package fetcher

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeRenderer renders script-heavy pages in headless Chrome. Each
// Render call creates and tears down its own browser instance; nothing
// persists across requests.
type ChromeRenderer struct {
	timeout   time.Duration
	userAgent string
}

func NewChromeRenderer(timeout time.Duration, userAgent string) *ChromeRenderer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ChromeRenderer{timeout: timeout, userAgent: userAgent}
}

func (r *ChromeRenderer) Render(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(r.userAgent),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}
