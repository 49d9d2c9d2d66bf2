package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestInlineURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/poster.jpg":
			if r.Header.Get("User-Agent") != "poster-test" {
				http.Error(w, "bad agent", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "image/jpeg; charset=binary")
			_, _ = w.Write([]byte("jpeg"))
		case "/blob":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte("???"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	in := NewInliner(srv.Client(), "poster-test")

	got, err := in.InlineURL(context.Background(), srv.URL+"/poster.jpg")
	if err != nil {
		t.Fatalf("inline: %v", err)
	}
	if got != "data:image/jpeg;base64,anBlZw==" {
		t.Fatalf("unexpected data uri: %s", got)
	}

	got, err = in.InlineURL(context.Background(), srv.URL+"/blob")
	if err != nil {
		t.Fatalf("inline blob: %v", err)
	}
	if !strings.HasPrefix(got, "data:image/jpeg;base64,") {
		t.Fatalf("octet-stream should fall back to jpeg: %s", got)
	}

	if _, err := in.InlineURL(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestInlineFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "title.png")
	if err := os.WriteFile(path, pngHeader, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewInliner(nil, "").InlineFile(path)
	if err != nil {
		t.Fatalf("inline file: %v", err)
	}
	if !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Fatalf("unexpected data uri: %s", got)
	}

	if _, err := NewInliner(nil, "").InlineFile(filepath.Join(t.TempDir(), "nope.png")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
