package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestFetchVisitsBaseURLFirst(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		switch r.URL.Path {
		case "/":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			_, _ = w.Write([]byte("home"))
		case "/program":
			if c, err := r.Cookie("session"); err != nil || c.Value != "abc" {
				http.Error(w, "no session", http.StatusBadRequest)
				return
			}
			if r.Header.Get("Accept-Language") != "cs-CZ" || r.Header.Get("User-Agent") != "test-agent" {
				http.Error(w, "bad headers", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte("<html>program</html>"))
		}
	}))
	defer srv.Close()

	f := New(Options{Client: srv.Client(), UserAgent: "test-agent", Language: "cs-CZ"})

	body, err := f.Fetch(context.Background(), srv.URL+"/program", srv.URL+"/")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if body != "<html>program</html>" {
		t.Fatalf("unexpected body %q", body)
	}

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(paths, ",") != "/,/program" {
		t.Fatalf("unexpected request order: %v", paths)
	}
}

func TestFetchTreatsForbiddenAsAbsent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := New(Options{Client: srv.Client()})
	if _, err := f.Fetch(context.Background(), srv.URL+"/program", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestFetchReportsServerErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := New(Options{Client: srv.Client()})
	_, err := f.Fetch(context.Background(), srv.URL, "")
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestSafeClientRefusesLoopback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secret"))
	}))
	defer srv.Close()

	f := New(Options{})
	if _, err := f.Fetch(context.Background(), srv.URL, ""); err == nil {
		t.Fatal("expected the guarded client to refuse a loopback address")
	}
}

func TestFetchDecodesLegacyCharset(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1250")
		_, _ = w.Write([]byte("<h1>Fl\xe9da \x9akola</h1>"))
	}))
	defer srv.Close()

	f := New(Options{Client: srv.Client()})
	html, err := f.Fetch(context.Background(), srv.URL, "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if html != "<h1>Fléda škola</h1>" {
		t.Fatalf("unexpected decoded page: %q", html)
	}
}
