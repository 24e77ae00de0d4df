package capabilities

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

const browserCallTimeout = 25 * time.Second

// newBrowserHandle exposes a headless browser to tasks declaring "browser".
// A browser context is created per call; with no Chrome binary on the host the
// first call fails, which is the expected lazy-failure behavior.
func newBrowserHandle() Handle {
	if os.Getenv("BROWSER_DISABLED") != "" {
		return unavailable(CapabilityBrowser, "disabled via BROWSER_DISABLED", "html", "text")
	}

	run := func(url string, action chromedp.Action) error {
		ctx, cancel := context.WithTimeout(context.Background(), browserCallTimeout)
		defer cancel()
		bctx, bcancel := chromedp.NewContext(ctx)
		defer bcancel()
		if err := chromedp.Run(bctx, chromedp.Navigate(url), action); err != nil {
			return fmt.Errorf("browser: %s: %w", url, err)
		}
		return nil
	}

	return Handle{
		"html": func(url string) (string, error) {
			var html string
			err := run(url, chromedp.OuterHTML("html", &html))
			return html, err
		},
		"text": func(url string) (string, error) {
			var text string
			err := run(url, chromedp.Text("body", &text))
			return text, err
		},
	}
}
