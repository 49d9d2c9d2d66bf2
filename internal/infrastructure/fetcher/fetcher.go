package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/doyensec/safeurl"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"EventPoster/internal/logging"
	"EventPoster/internal/ports"
)

const maxPageBytes = 8 << 20

// ErrForbidden is returned when a venue answers 403; the venue is treated as absent for this run.
var ErrForbidden = errors.New("access forbidden")

// Options configures the page fetcher.
type Options struct {
	Timeout   time.Duration
	MinDelay  time.Duration
	MaxDelay  time.Duration
	UserAgent string
	Language  string
	// Client overrides the SSRF-guarded default client.
	Client *http.Client
	Rand   *rand.Rand
	Logger *slog.Logger
}

// Fetcher downloads venue listing pages the way a browser session would: home page first, then the listing.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	minDelay  time.Duration
	maxDelay  time.Duration
	userAgent string
	language  string
	rnd       *rand.Rand
	logger    *slog.Logger
}

var _ ports.HTMLFetcher = (*Fetcher)(nil)

// New builds a fetcher. Requests are spaced at least MinDelay apart.
func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = SafeClient(opts.Timeout)
	}
	if client.Jar == nil {
		jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		withJar := *client
		withJar.Jar = jar
		client = &withJar
	}

	limit := rate.Inf
	if opts.MinDelay > 0 {
		limit = rate.Every(opts.MinDelay)
	}

	rnd := opts.Rand
	if rnd == nil {
		seed := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Fetcher{
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		minDelay:  opts.MinDelay,
		maxDelay:  opts.MaxDelay,
		userAgent: opts.UserAgent,
		language:  opts.Language,
		rnd:       rnd,
		logger:    logger,
	}
}

// SafeClient returns an HTTP client that refuses private, loopback and metadata addresses.
func SafeClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

// Fetch visits baseURL (best effort) and then returns the body of url.
func (f *Fetcher) Fetch(ctx context.Context, url, baseURL string) (string, error) {
	if strings.TrimSpace(baseURL) != "" && baseURL != url {
		f.logger.Debug("visiting home page first", "url", baseURL)
		if _, err := f.get(ctx, baseURL); err != nil {
			f.logger.Debug("home page visit failed", "url", baseURL, "error", err)
		}
		if err := f.pause(ctx); err != nil {
			return "", err
		}
	}

	body, err := f.get(ctx, url)
	if err != nil {
		return "", err
	}
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if f.language != "" {
		req.Header.Set("Accept-Language", f.language)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%s: %w", url, ErrForbidden)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%s returned %s", url, resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return decode(raw, resp.Header.Get("Content-Type")), nil
}

// decode converts legacy encodings (windows-1250 is common on Czech sites) to UTF-8.
func decode(raw []byte, contentType string) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return string(raw)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// pause waits a random time between MinDelay and MaxDelay.
func (f *Fetcher) pause(ctx context.Context) error {
	d := f.minDelay
	if spread := f.maxDelay - f.minDelay; spread > 0 {
		d += time.Duration(f.rnd.Int64N(int64(spread)))
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
