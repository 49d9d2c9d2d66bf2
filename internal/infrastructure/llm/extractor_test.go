package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"EventPoster/internal/config"
	"EventPoster/internal/domain"
)

type pageFetcher map[string]string

func (p pageFetcher) Fetch(_ context.Context, url, _ string) (string, error) {
	page, ok := p[url]
	if !ok {
		return "", errors.New("not found")
	}
	return page, nil
}

type scriptedCompleter struct {
	reply string
	err   error
	user  string
}

func (c *scriptedCompleter) Complete(_ context.Context, _, user string) (string, error) {
	c.user = user
	return c.reply, c.err
}

func TestParseReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reply   string
		title   string
		price   string
		wantErr bool
	}{
		{name: "object", reply: `{"title":"Noc","price":"250 Kč"}`, title: "Noc", price: "250 Kč"},
		{name: "fenced", reply: "```json\n{\"title\":\"Noc\"}\n```", title: "Noc"},
		{name: "array", reply: `[{"title":"First"},{"title":"Second"}]`, title: "First"},
		{name: "numeric price", reply: `{"title":"Noc","price":250,"image_url":null}`, title: "Noc", price: "250"},
		{name: "empty array", reply: `[]`, wantErr: true},
		{name: "scalar", reply: `"just text"`, wantErr: true},
		{name: "prose", reply: `Sorry, I cannot help.`, wantErr: true},
		{name: "empty", reply: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			detail, err := ParseReply(tt.reply)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", detail)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if detail.Title != tt.title || detail.Price != tt.price {
				t.Fatalf("unexpected detail: %+v", detail)
			}
		})
	}
}

func TestPageText(t *testing.T) {
	t.Parallel()

	page := `<html><head><style>body{color:red}</style><script>var x = 1;</script></head>
		<body><h1>Noc&nbsp;v&nbsp;Brně</h1><p>Vstup&nbsp;250&nbsp;Kč</p><p>Začátek 20:00</p></body></html>`

	got := PageText(page, 0)
	if strings.Contains(got, "color") || strings.Contains(got, "var x") {
		t.Fatalf("script and style content should be dropped: %q", got)
	}
	if !strings.Contains(got, "Vstup") || !strings.Contains(got, "Začátek 20:00") {
		t.Fatalf("visible text missing: %q", got)
	}
	if strings.Contains(got, "  ") {
		t.Fatalf("whitespace should be collapsed: %q", got)
	}

	if short := PageText(page, 5); len([]rune(short)) != 5 {
		t.Fatalf("expected 5 runes, got %q", short)
	}
}

func TestExtractAppliesSiteOverrides(t *testing.T) {
	t.Parallel()

	url := "https://www.sono.cz/program/noc"
	fetcher := pageFetcher{url: `<html><body>
		<h1>Noc</h1>
		<div class="featured-image"><img src="/media/noc-small.jpg"></div>
		<div class="featured-image"><img src="/media/noc-1200.jpg"></div>
	</body></html>`}
	completer := &scriptedCompleter{reply: `{"title":"Noc","date":"2026-03-11","image_url":"https://cdn.example/model.jpg"}`}

	now := func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	e := NewExtractor(fetcher, completer, ExtractorOptions{Now: now})

	detail, err := e.Extract(context.Background(), domain.EventReference{URL: url, Date: "2026-03-11"})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if detail.ImageURL != "https://www.sono.cz/media/noc-1200.jpg" {
		t.Fatalf("selector override should pick the large image, got %q", detail.ImageURL)
	}
	if detail.URL != url || detail.Title != "Noc" {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	if !strings.Contains(completer.user, "Today is 2026-03-10") || !strings.Contains(completer.user, "Noc") {
		t.Fatalf("prompt should carry today and the page text: %q", completer.user)
	}
}

func TestExtractFallsBackToOpenGraphImage(t *testing.T) {
	t.Parallel()

	url := "https://venue.example/e/1"
	fetcher := pageFetcher{url: `<html><head><meta property="og:image" content="/img/poster.png"></head><body>Koncert</body></html>`}
	e := NewExtractor(fetcher, &scriptedCompleter{reply: `{"title":"Koncert"}`}, ExtractorOptions{})

	detail, err := e.Extract(context.Background(), domain.EventReference{URL: url})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if detail.ImageURL != "https://venue.example/img/poster.png" {
		t.Fatalf("unexpected image %q", detail.ImageURL)
	}
}

func TestExtractUnusableReplyIsAbsent(t *testing.T) {
	t.Parallel()

	url := "https://venue.example/e/2"
	e := NewExtractor(pageFetcher{url: "<p>Koncert</p>"}, &scriptedCompleter{reply: "no idea"}, ExtractorOptions{})

	detail, err := e.Extract(context.Background(), domain.EventReference{URL: url})
	if err != nil || detail != nil {
		t.Fatalf("expected nil detail without error, got %+v, %v", detail, err)
	}
}

func TestExtractPropagatesFailures(t *testing.T) {
	t.Parallel()

	e := NewExtractor(pageFetcher{}, &scriptedCompleter{}, ExtractorOptions{})
	if _, err := e.Extract(context.Background(), domain.EventReference{URL: "https://gone.example"}); err == nil {
		t.Fatal("expected fetch error")
	}

	url := "https://venue.example/e/3"
	e = NewExtractor(pageFetcher{url: "<p>x</p>"}, &scriptedCompleter{err: errors.New("quota exceeded")}, ExtractorOptions{})
	if _, err := e.Extract(context.Background(), domain.EventReference{URL: url}); err == nil || !strings.Contains(err.Error(), "quota") {
		t.Fatalf("expected completer error, got %v", err)
	}
}

func TestNewOpenAICompleterRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewOpenAICompleter(config.ChatGPTConfig{Model: "gpt-4o-mini"}); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured, got %v", err)
	}
	if _, err := NewOpenAICompleter(config.ChatGPTConfig{APIKey: "sk-test", Model: "gpt-4o-mini"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
