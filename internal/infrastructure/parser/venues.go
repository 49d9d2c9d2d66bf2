package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"EventPoster/internal/domain"
)

var (
	fullDotDate   = regexp.MustCompile(`(\d{1,2})\.\s*(\d{1,2})\.\s*(\d{4})`)
	compactDate   = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)
	dayMonthDots  = regexp.MustCompile(`(\d+)\.\s*(\d+)\.`)
	dayMonthSlash = regexp.MustCompile(`(\d{1,2})/(\d{1,2})`)
	dayMonthName  = regexp.MustCompile(`(\d{1,2})\s+([a-zA-Z]{3})`)
)

const (
	raOrigin        = "https://ra.co"
	fledaOrigin     = "https://www.fleda.cz"
	kabinetOrigin   = "https://www.kabinetmuz.cz"
	perpetuumOrigin = "https://www.perpetuumklub.cz"
)

// Listings holds the goquery parsers of the supported venue listing pages.
type Listings struct {
	clock Clock
}

// NewListings builds the parsers; clock may be nil to use the wall clock.
func NewListings(clock Clock) *Listings {
	return &Listings{clock: clock}
}

// Bobyhall reads grid cards whose heading is "Title | DD. MM. YYYY".
func (l *Listings) Bobyhall(html string) []domain.EventReference {
	doc, ok := document(html)
	if !ok {
		return nil
	}

	var refs []domain.EventReference
	doc.Find(".fusion-grid-posts-cards .fusion-title-heading a").Each(func(_ int, link *goquery.Selection) {
		text := link.Text()
		if !strings.Contains(text, "|") {
			return
		}
		parts := strings.Split(text, "|")

		date := ""
		if m := fullDotDate.FindStringSubmatch(parts[1]); m != nil {
			date = isoDate(atoi(m[3]), atoi(m[2]), atoi(m[1]))
		}
		href, _ := link.Attr("href")
		refs = append(refs, domain.EventReference{URL: strings.TrimSpace(href), Date: date})
	})
	return refs
}

// RA reads Resident Advisor listing cards ("Fri, 13 Mar").
func (l *Listings) RA(html string) []domain.EventReference {
	doc, ok := document(html)
	if !ok {
		return nil
	}

	var refs []domain.EventReference
	doc.Find(`[data-testid="event-listing-card"]`).Each(func(_ int, card *goquery.Selection) {
		title := card.Find(`[data-pw-test-id="event-title"] a`).First()
		if title.Length() == 0 {
			title = card.Find("h3 a").First()
		}
		if title.Length() == 0 {
			return
		}

		href, _ := title.Attr("href")
		url := strings.TrimSpace(href)
		if strings.HasPrefix(url, "/") {
			url = raOrigin + url
		}

		date := ""
		raw := strings.TrimSpace(card.Find(`span[color="secondary"]`).First().Text())
		if m := dayMonthName.FindStringSubmatch(raw); m != nil {
			if month, ok := englishMonths[strings.ToLower(m[2])]; ok {
				date = isoDate(l.clock.yearFor(month), month, atoi(m[1]))
			}
		}
		refs = append(refs, domain.EventReference{URL: url, Date: date})
	})
	return refs
}

// Metro reads the ajax program of Metro Music Bar ("13/3").
func (l *Listings) Metro(html string) []domain.EventReference {
	doc, ok := document(html)
	if !ok {
		return nil
	}

	seen := seenURLs{}
	var refs []domain.EventReference
	doc.Find("#form-ajax-content div.item, #form-ajax-content .item-inner, .program .item").Each(func(_ int, item *goquery.Selection) {
		link := item.Find("a").First()
		href, _ := link.Attr("href")
		url := strings.TrimSpace(href)
		if url == "" || url == "#" {
			return
		}

		title := strings.TrimSpace(item.Find("h2, h3, .title").First().Text())
		if title == "" {
			first, _, _ := strings.Cut(link.Text(), "\n")
			title = strings.TrimSpace(first)
		}
		if title == "" {
			return
		}

		source := link.Text()
		if dateEl := item.Find("p.date").First(); dateEl.Length() > 0 {
			source = dateEl.Text()
		}
		date := ""
		if m := dayMonthSlash.FindStringSubmatch(source); m != nil {
			month := atoi(m[2])
			date = isoDate(l.clock.yearFor(month), month, atoi(m[1]))
		}

		if seen.first(url) {
			refs = append(refs, domain.EventReference{URL: url, Date: date})
		}
	})
	return refs
}

// Patro reads articles with a split day and Czech month name.
func (l *Listings) Patro(html string) []domain.EventReference {
	doc, ok := document(html)
	if !ok {
		return nil
	}

	var refs []domain.EventReference
	doc.Find(".event-list article").Each(func(_ int, article *goquery.Selection) {
		link := article.Find("a.event__link").First()
		if link.Length() == 0 || article.Find("h2").Length() == 0 {
			return
		}
		href, _ := link.Attr("href")

		date := ""
		if when := article.Find(".event__date").First(); when.Length() > 0 {
			day := atoi(strings.ReplaceAll(strings.TrimSpace(when.Find(".event__day").First().Text()), ".", ""))
			month := czechMonths[strings.ToLower(strings.TrimSpace(when.Find(".event__month").First().Text()))]
			if day > 0 && month > 0 {
				date = isoDate(l.clock.yearFor(month), month, day)
			}
		}
		refs = append(refs, domain.EventReference{URL: strings.TrimSpace(href), Date: date})
	})
	return refs
}

// Perpetuum reads block links with a "13/3" date.
func (l *Listings) Perpetuum(html string) []domain.EventReference {
	doc, ok := document(html)
	if !ok {
		return nil
	}

	var refs []domain.EventReference
	doc.Find("a.block-link").Each(func(_ int, link *goquery.Selection) {
		if link.Find(".event_title").Length() == 0 {
			return
		}
		href, _ := link.Attr("href")

		date := ""
		if m := dayMonthSlash.FindStringSubmatch(strings.TrimSpace(link.Find(".event_date").First().Text())); m != nil {
			month := atoi(m[2])
			date = isoDate(l.clock.yearFor(month), month, atoi(m[1]))
		}
		refs = append(refs, domain.EventReference{URL: absolute(perpetuumOrigin, href), Date: date})
	})
	return refs
}

// Fleda reads the two-level program archive grid with day, Czech month and year elements.
func (l *Listings) Fleda(html string) []domain.EventReference {
	doc, ok := document(html)
	if !ok {
		return nil
	}

	var refs []domain.EventReference
	archive := doc.Find(".program-archive").First()
	archive.ChildrenFiltered("div").ChildrenFiltered("div").Each(func(_ int, item *goquery.Selection) {
		link := item.Find("a.img").First()
		if link.Length() == 0 {
			return
		}
		if firstText(item, "h3 a", "h3", "h2 a", ".info h3") == "" {
			return
		}
		href, _ := link.Attr("href")

		date := ""
		if when := item.Find(".date").First(); when.Length() > 0 {
			day := atoi(when.Find(".num").First().Text())
			month := czechMonths[strings.ToLower(strings.TrimSpace(when.Find(".month").First().Text()))]
			year := atoi(when.Find(".year").First().Text())
			date = isoDate(year, month, day)
		}
		refs = append(refs, domain.EventReference{URL: absolute(fledaOrigin, href), Date: date})
	})
	return refs
}

// Sono reads a.link anchors and the "DD.MM.YYYY" date of their container.
func (l *Listings) Sono(html string) []domain.EventReference {
	doc, ok := document(html)
	if !ok {
		return nil
	}

	seen := seenURLs{}
	var refs []domain.EventReference
	doc.Find("a.link").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		url := strings.TrimSpace(href)
		if url == "" || !seen.first(url) {
			return
		}

		date := ""
		raw := strings.TrimSpace(container(link, ".item", ".post").Find("p.date").First().Text())
		if m := compactDate.FindStringSubmatch(raw); m != nil {
			date = isoDate(atoi(m[3]), atoi(m[2]), atoi(m[1]))
		}
		refs = append(refs, domain.EventReference{URL: url, Date: date})
	})
	return refs
}

// Kabinet reads program items with a "DD. MM." date.
func (l *Listings) Kabinet(html string) []domain.EventReference {
	doc, ok := document(html)
	if !ok {
		return nil
	}

	seen := seenURLs{}
	var refs []domain.EventReference
	doc.Find(".program__items a.program__item").Each(func(_ int, item *goquery.Selection) {
		href, _ := item.Attr("href")
		if strings.TrimSpace(href) == "" {
			return
		}
		url := absolute(kabinetOrigin, href)
		if !seen.first(url) {
			return
		}

		refs = append(refs, domain.EventReference{URL: url, Date: l.dayMonth(item.Find(".program__date").First().Text())})
	})
	return refs
}

// Artbar reads the RSVP buttons of the events widget and the short date next to them.
func (l *Listings) Artbar(html string) []domain.EventReference {
	doc, ok := document(html)
	if !ok {
		return nil
	}

	seen := seenURLs{}
	var refs []domain.EventReference
	doc.Find(`a[data-hook="ev-rsvp-button"]`).Each(func(_ int, button *goquery.Selection) {
		href, _ := button.Attr("href")
		url := strings.TrimSpace(href)
		if url == "" || !seen.first(url) {
			return
		}

		raw := container(button, ".TYl3A7", ".LbqWhj").Find(`[data-hook="short-date"]`).First().Text()
		refs = append(refs, domain.EventReference{URL: url, Date: l.dayMonth(raw)})
	})
	return refs
}

// dayMonth converts "DD. MM." using the inferred year.
func (l *Listings) dayMonth(raw string) string {
	m := dayMonthDots.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return ""
	}
	month := atoi(m[2])
	return isoDate(l.clock.yearFor(month), month, atoi(m[1]))
}

// container returns the nearest ancestor matching one of selectors, in preference order, or the direct parent.
func container(sel *goquery.Selection, selectors ...string) *goquery.Selection {
	parent := sel.Parent()
	for _, s := range selectors {
		if found := parent.Closest(s); found.Length() > 0 {
			return found
		}
	}
	return parent
}

func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if text := strings.TrimSpace(sel.Find(s).First().Text()); text != "" {
			return text
		}
	}
	return ""
}
