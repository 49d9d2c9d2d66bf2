package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"EventPoster/internal/domain"
	"EventPoster/internal/ports"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// PageOptions holds the city texts and the canvas size.
type PageOptions struct {
	BadgeText        string
	TitleText        string
	TitleAlt         string
	FallbackLocation string
	Width            int
	Height           int
}

// PageBuilder fills the event and title templates.
type PageBuilder struct {
	opts PageOptions
}

var _ ports.PageBuilder = (*PageBuilder)(nil)

// NewPageBuilder applies defaults to zero options.
func NewPageBuilder(opts PageOptions) *PageBuilder {
	if opts.BadgeText == "" {
		opts.BadgeText = "DNES"
	}
	if opts.TitleText == "" {
		opts.TitleText = "EVENTS"
	}
	if opts.TitleAlt == "" {
		opts.TitleAlt = "Events"
	}
	if opts.Width <= 0 {
		opts.Width = 1080
	}
	if opts.Height <= 0 {
		opts.Height = 1080
	}
	return &PageBuilder{opts: opts}
}

type eventPage struct {
	Width, Height int
	Image         template.URL
	Title         string
	Location      string
	Badge         string
	Details       []string
}

type titlePage struct {
	Width, Height int
	Background    template.URL
	Alt           string
	Title         string
	Date          string
	Venues        string
}

// EventPage renders one event poster. imageSrc is a data URI or an http(s) URL; anything else is dropped.
func (b *PageBuilder) EventPage(detail domain.EventDetail, venue, imageSrc string) (string, error) {
	title := strings.TrimSpace(detail.Title)
	if title == "" {
		title = "Event"
	}

	badge := b.opts.BadgeText
	if detail.Time != "" {
		badge += " | " + detail.Time
	}

	var details []string
	for _, part := range []string{venue, detail.Time, detail.Price} {
		if part = strings.TrimSpace(part); part != "" {
			details = append(details, part)
		}
	}

	return b.execute("event.html.tmpl", eventPage{
		Width:    b.opts.Width,
		Height:   b.opts.Height,
		Image:    safeSource(imageSrc),
		Title:    title,
		Location: firstOf(venue, detail.Place, b.opts.FallbackLocation),
		Badge:    badge,
		Details:  details,
	})
}

// TitlePage renders the aggregate title with the venue list and the day as "DD. MM.".
func (b *PageBuilder) TitlePage(venues []string, day time.Time, backgroundSrc string) (string, error) {
	return b.execute("title.html.tmpl", titlePage{
		Width:      b.opts.Width,
		Height:     b.opts.Height,
		Background: safeSource(backgroundSrc),
		Alt:        b.opts.TitleAlt,
		Title:      b.opts.TitleText,
		Date:       fmt.Sprintf("%02d. %02d.", day.Day(), int(day.Month())),
		Venues:     strings.Join(venues, " | "),
	})
}

func (b *PageBuilder) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", name, err)
	}
	return buf.String(), nil
}

// safeSource trusts inlined images and web URLs only.
func safeSource(src string) template.URL {
	src = strings.TrimSpace(src)
	switch {
	case strings.HasPrefix(src, "data:image/"), strings.HasPrefix(src, "https://"), strings.HasPrefix(src, "http://"):
		return template.URL(src)
	default:
		return ""
	}
}

func firstOf(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
