package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"EventPoster/internal/logging"
	"EventPoster/internal/ports"
)

// ChromeRenderer screenshots HTML pages in a headless Chromium driven over the DevTools protocol.
// The page source is kept under htmlDir, mirroring the image layout, until finalize removes it.
// One browser is started on first use and reused for every page until Close.
type ChromeRenderer struct {
	browser   string
	imagesDir string
	htmlDir   string
	width     int
	height    int
	timeout   time.Duration
	logger    *slog.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	cancelBrowser context.CancelFunc

	// capture is swapped in tests.
	capture func(ctx context.Context, pageURL string) ([]byte, error)
}

var _ ports.Renderer = (*ChromeRenderer)(nil)

// ChromeOptions configures the renderer. Browser is the executable; empty lets chromedp look one up.
type ChromeOptions struct {
	Browser   string
	ImagesDir string
	HTMLDir   string
	Width     int
	Height    int
	Timeout   time.Duration
	Logger    *slog.Logger
}

// NewChromeRenderer builds the renderer with defaults for zero values. No browser is started yet.
func NewChromeRenderer(opts ChromeOptions) *ChromeRenderer {
	r := &ChromeRenderer{
		browser:   opts.Browser,
		imagesDir: opts.ImagesDir,
		htmlDir:   opts.HTMLDir,
		width:     opts.Width,
		height:    opts.Height,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
	}
	if r.htmlDir == "" {
		r.htmlDir = filepath.Join(r.imagesDir, "html")
	}
	if r.width <= 0 {
		r.width = 1080
	}
	if r.height <= 0 {
		r.height = 1080
	}
	if r.timeout <= 0 {
		r.timeout = time.Minute
	}
	if r.logger == nil {
		r.logger = logging.Discard()
	}
	r.capture = r.screenshot
	return r
}

// Render writes the page source and takes a screenshot into outPath.
func (r *ChromeRenderer) Render(ctx context.Context, html, outPath string) error {
	htmlPath := r.sourcePath(outPath)
	if err := os.MkdirAll(filepath.Dir(htmlPath), 0o755); err != nil {
		return fmt.Errorf("create html dir: %w", err)
	}
	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}

	absHTML, err := filepath.Abs(htmlPath)
	if err != nil {
		return fmt.Errorf("resolve html: %w", err)
	}
	pageURL := (&url.URL{Scheme: "file", Path: filepath.ToSlash(absHTML)}).String()

	shot, err := r.capture(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("screenshot %s: %w", filepath.Base(htmlPath), err)
	}
	if len(shot) == 0 {
		return fmt.Errorf("browser produced an empty screenshot for %s", outPath)
	}
	if err := os.WriteFile(outPath, shot, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}

	r.logger.Debug("page rendered", "html", htmlPath, "image", outPath)
	return nil
}

// Close shuts the browser down. It is safe to call when nothing was rendered.
func (r *ChromeRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelBrowser == nil {
		return nil
	}
	err := chromedp.Cancel(r.browserCtx)
	r.cancelBrowser()
	r.browserCtx, r.cancelBrowser = nil, nil
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// screenshot opens pageURL in a new tab, waits for the load to finish and captures the viewport.
func (r *ChromeRenderer) screenshot(ctx context.Context, pageURL string) ([]byte, error) {
	browserCtx, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()

	var shot []byte
	err = chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(r.width), int64(r.height)),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.CaptureScreenshot(&shot),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return shot, nil
}

func (r *ChromeRenderer) ensureBrowser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browserCtx != nil {
		return r.browserCtx, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("force-device-scale-factor", "1"),
		chromedp.WindowSize(r.width, r.height),
	)
	if r.browser != "" {
		opts = append(opts, chromedp.ExecPath(r.browser))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		r.logger.Debug(fmt.Sprintf(format, args...))
	}))
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	r.browserCtx = browserCtx
	r.cancelBrowser = func() {
		cancelBrowser()
		cancelAlloc()
	}
	r.logger.Info("browser started", "exec", r.browser, "window", fmt.Sprintf("%dx%d", r.width, r.height))
	return browserCtx, nil
}

// sourcePath maps images/<venue>/<slug>.png to html/<venue>/<slug>.html.
func (r *ChromeRenderer) sourcePath(outPath string) string {
	rel, err := filepath.Rel(r.imagesDir, outPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(outPath)
	}
	return filepath.Join(r.htmlDir, strings.TrimSuffix(rel, filepath.Ext(rel))+".html")
}
