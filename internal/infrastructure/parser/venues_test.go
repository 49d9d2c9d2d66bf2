package parser

import (
	"reflect"
	"testing"
	"time"

	"EventPoster/internal/domain"
	"EventPoster/internal/scanner"
)

func fixedClock(y int, m time.Month, d int) Clock {
	return func() time.Time { return time.Date(y, m, d, 10, 0, 0, 0, time.UTC) }
}

func TestListings(t *testing.T) {
	t.Parallel()

	l := NewListings(fixedClock(2026, 3, 10))

	tests := []struct {
		name  string
		parse func(string) []domain.EventReference
		html  string
		want  []domain.EventReference
	}{
		{
			name:  "bobyhall",
			parse: l.Bobyhall,
			html: `<div class="fusion-grid-posts-cards">
				<h2 class="fusion-title-heading"><a href="https://bobyhall.cz/e/1">Koncert | 11. 3. 2026</a></h2>
				<h2 class="fusion-title-heading"><a href="https://bobyhall.cz/e/2">Bez data</a></h2>
				<h2 class="fusion-title-heading"><a href="https://bobyhall.cz/e/3">Párty | brzy</a></h2>
			</div>`,
			want: []domain.EventReference{
				{URL: "https://bobyhall.cz/e/1", Date: "2026-03-11"},
				{URL: "https://bobyhall.cz/e/3"},
			},
		},
		{
			name:  "ra",
			parse: l.RA,
			html: `<ul>
				<li data-testid="event-listing-card"><h3 data-pw-test-id="event-title"><a href="/events/1">A</a></h3><span color="secondary">Wed, 11 Mar</span></li>
				<li data-testid="event-listing-card"><h3><a href="https://ra.co/events/2">B</a></h3><span color="secondary">Sat, 2 May</span></li>
				<li data-testid="event-listing-card"><p>no link</p></li>
			</ul>`,
			want: []domain.EventReference{
				{URL: "https://ra.co/events/1", Date: "2026-03-11"},
				{URL: "https://ra.co/events/2", Date: "2026-05-02"},
			},
		},
		{
			name:  "metro",
			parse: l.Metro,
			html: `<div id="form-ajax-content">
				<div class="item"><a href="https://metromusic.cz/a"><h3>Blues</h3></a><p class="date">St 11/3</p></div>
				<div class="item"><a href="https://metromusic.cz/a"><h3>Blues again</h3></a></div>
				<div class="item"><a href="#"><h3>Anchor</h3></a></div>
				<div class="item"><a href="https://metromusic.cz/b">Jazz
				12/3</a></div>
			</div>`,
			want: []domain.EventReference{
				{URL: "https://metromusic.cz/a", Date: "2026-03-11"},
				{URL: "https://metromusic.cz/b", Date: "2026-03-12"},
			},
		},
		{
			name:  "patro",
			parse: l.Patro,
			html: `<section class="event-list">
				<article><a class="event__link" href="https://patrobrno.cz/a"></a><h2>A</h2>
					<div class="event__date"><span class="event__day">11.</span><span class="event__month">Březen</span></div></article>
				<article><a class="event__link" href="https://patrobrno.cz/b"></a><h2>B</h2></article>
				<article><h2>No link</h2></article>
			</section>`,
			want: []domain.EventReference{
				{URL: "https://patrobrno.cz/a", Date: "2026-03-11"},
				{URL: "https://patrobrno.cz/b"},
			},
		},
		{
			name:  "perpetuum",
			parse: l.Perpetuum,
			html: `<a class="block-link" href="/akce/1"><span class="event_title">A</span><span class="event_date">11/3</span></a>
				<a class="block-link" href="akce/2"><span class="event_title">B</span></a>
				<a class="block-link" href="/akce/3"><span>no title</span></a>`,
			want: []domain.EventReference{
				{URL: "https://www.perpetuumklub.cz/akce/1", Date: "2026-03-11"},
				{URL: "https://www.perpetuumklub.cz/akce/2"},
			},
		},
		{
			name:  "fleda",
			parse: l.Fleda,
			html: `<div class="program-archive"><div>
				<div><a class="img" href="/program/a"></a><h3><a>A</a></h3>
					<div class="date"><span class="num">11</span><span class="month">březen</span><span class="year">2026</span></div></div>
				<div><a class="img" href="https://www.fleda.cz/program/b"></a><div class="info"><h3>B</h3></div></div>
				<div><a class="img" href="/program/c"></a></div>
			</div></div>`,
			want: []domain.EventReference{
				{URL: "https://www.fleda.cz/program/a", Date: "2026-03-11"},
				{URL: "https://www.fleda.cz/program/b"},
			},
		},
		{
			name:  "sono",
			parse: l.Sono,
			html: `<div class="item"><p class="date">11.03.2026</p><div><a class="link" href="https://sono.cz/a">A</a></div></div>
				<div class="post"><p class="date">bez data</p><a class="link" href="https://sono.cz/b">B</a></div>
				<div class="item"><a class="link" href="https://sono.cz/a">A dup</a></div>`,
			want: []domain.EventReference{
				{URL: "https://sono.cz/a", Date: "2026-03-11"},
				{URL: "https://sono.cz/b"},
			},
		},
		{
			name:  "kabinet",
			parse: l.Kabinet,
			html: `<div class="program__items">
				<a class="program__item" href="/program/a"><span class="program__date">St 11. 03.</span></a>
				<a class="program__item" href="https://www.kabinetmuz.cz/program/a"></a>
				<a class="program__item" href=""></a>
			</div>`,
			want: []domain.EventReference{
				{URL: "https://www.kabinetmuz.cz/program/a", Date: "2026-03-11"},
			},
		},
		{
			name:  "artbar",
			parse: l.Artbar,
			html: `<ul><li class="TYl3A7"><span data-hook="short-date">11. 3.</span><div><a data-hook="ev-rsvp-button" href="https://artbar.club/e/a">RSVP</a></div></li>
				<li><span data-hook="short-date">TBA</span><a data-hook="ev-rsvp-button" href="https://artbar.club/e/b">RSVP</a></li></ul>`,
			want: []domain.EventReference{
				{URL: "https://artbar.club/e/a", Date: "2026-03-11"},
				{URL: "https://artbar.club/e/b"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := tt.parse(tt.html)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("unexpected references:\n got %+v\nwant %+v", got, tt.want)
			}
		})
	}
}

func TestListingsIgnoreUnrelatedMarkup(t *testing.T) {
	t.Parallel()

	l := NewListings(fixedClock(2026, 3, 10))
	for name, parse := range map[string]func(string) []domain.EventReference{
		"bobyhall": l.Bobyhall, "ra": l.RA, "metro": l.Metro, "patro": l.Patro, "perpetuum": l.Perpetuum,
		"fleda": l.Fleda, "sono": l.Sono, "kabinet": l.Kabinet, "artbar": l.Artbar,
	} {
		if got := parse("<html><body><p>Maintenance</p></body></html>"); len(got) != 0 {
			t.Errorf("%s: expected no references, got %v", name, got)
		}
	}
}

func TestYearRollsOverAtYearEnd(t *testing.T) {
	t.Parallel()

	l := NewListings(fixedClock(2026, 12, 5))
	got := l.Kabinet(`<div class="program__items"><a class="program__item" href="/a"><span class="program__date">3. 1.</span></a></div>`)
	if len(got) != 1 || got[0].Date != "2027-01-03" {
		t.Fatalf("expected next-year date, got %+v", got)
	}
}

func TestFeed(t *testing.T) {
	t.Parallel()

	rss := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Program</title>
<item><title>A</title><link>https://venue.cz/a</link><pubDate>Wed, 11 Mar 2026 19:00:00 +0000</pubDate></item>
<item><title>B</title><link>https://venue.cz/b</link></item>
<item><title>A again</title><link>https://venue.cz/a</link></item>
</channel></rss>`

	got := NewFeed(time.UTC).Parse(rss)
	want := []domain.EventReference{
		{URL: "https://venue.cz/a", Date: "2026-03-11"},
		{URL: "https://venue.cz/b"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected references: %+v", got)
	}

	if refs := NewFeed(nil).Parse("not a feed"); len(refs) != 0 {
		t.Fatalf("garbage should yield nothing, got %v", refs)
	}
}

func TestRegisterAll(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	RegisterAll(reg, nil, time.UTC)

	want := []string{"artbar", "bobyhall", "fleda", "kabinet", "metro", "patro", "perpetuum", "ra", "rss", "sono"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("registered = %v, want %v", got, want)
	}
}
