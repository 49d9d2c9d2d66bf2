package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"EventPoster/internal/ports"
)

const maxImageBytes = 15 << 20

// Inliner downloads or reads images and encodes them as data URIs so the renderer needs no network.
type Inliner struct {
	client    *http.Client
	userAgent string
}

var _ ports.ImageInliner = (*Inliner)(nil)

// NewInliner wraps client, normally the SSRF-guarded fetch client.
func NewInliner(client *http.Client, userAgent string) *Inliner {
	if client == nil {
		client = http.DefaultClient
	}
	return &Inliner{client: client, userAgent: userAgent}
}

// InlineURL fetches url and returns it as a base64 data URI.
func (i *Inliner) InlineURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if i.userAgent != "" {
		req.Header.Set("User-Agent", i.userAgent)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download image: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return dataURI(resp.Header.Get("Content-Type"), data), nil
}

// InlineFile reads a local image, typically an already rendered PNG.
func (i *Inliner) InlineFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return dataURI(mime.TypeByExtension(strings.ToLower(filepath.Ext(path))), data), nil
}

// dataURI encodes data; unknown or generic content types are sniffed and fall back to image/jpeg.
func dataURI(contentType string, data []byte) string {
	ct, _, _ := strings.Cut(contentType, ";")
	ct = strings.TrimSpace(strings.ToLower(ct))
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
		if !strings.HasPrefix(ct, "image/") {
			ct = "image/jpeg"
		}
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(data)
}
