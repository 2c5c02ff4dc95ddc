package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserTool renders JavaScript-heavy pages in headless Chrome and
// returns the visible text. Pages that render fine without JS should use
// fetch_webpage instead, which is much cheaper.
type BrowserTool struct {
	Timeout time.Duration
}

func NewBrowserTool() *BrowserTool {
	return &BrowserTool{Timeout: 45 * time.Second}
}

func (b *BrowserTool) Name() string {
	return "render_webpage"
}

func (b *BrowserTool) Description() string {
	return "Render a JavaScript-heavy webpage in a headless browser and return its visible text."
}

func (b *BrowserTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to render",
			},
			"wait_seconds": map[string]any{
				"type":        "integer",
				"description": "Extra seconds to wait for scripts after load (default 2)",
			},
		},
		"required": []string{"url"},
	}
}

func (b *BrowserTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		URL         string `json:"url"`
		WaitSeconds int    `json:"wait_seconds"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.WaitSeconds <= 0 {
		args.WaitSeconds = 2
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	runCtx, cancel := context.WithTimeout(browserCtx, b.Timeout)
	defer cancel()

	var text string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(args.URL),
		chromedp.Sleep(time.Duration(args.WaitSeconds)*time.Second),
		chromedp.Text("body", &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("failed to render page: %v", err)
	}

	if len(text) > 50000 {
		text = text[:50000] + "\n... (content truncated) ..."
	}
	return text, nil
}
