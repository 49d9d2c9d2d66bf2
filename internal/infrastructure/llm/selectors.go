package llm

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"EventPoster/internal/domain"
)

// SiteSelectors are CSS selectors whose matches override what the model returned for a field.
type SiteSelectors struct {
	Description string
	Date        string
	ImageURL    string
}

// siteSelectors is keyed by host without the www. prefix.
var siteSelectors = map[string]SiteSelectors{
	"goout.net":        {Description: "div.markdown", ImageURL: ".image-header-wrapper img"},
	"eventlook.cz":     {ImageURL: "span.wrapper > img"},
	"tootoot.fm":       {ImageURL: "div.main-img"},
	"ticketportal.cz":  {ImageURL: "div.detail-header > img"},
	"sono.cz":          {ImageURL: "div.featured-image > img"},
	"kabinetmuz.cz":    {ImageURL: "div.detail__img"},
	"perpetuumklub.cz": {ImageURL: "div.event_image > img"},
	"fleda.cz":         {ImageURL: "div.program-detail div.img img"},
	"smsticket.cz":     {ImageURL: "div.poster > img", Date: ".date-place"},
	"ra.co":            {ImageURL: "section[data-tracking-id='event-detail-description'] ul li img"},
	"facebook.com":     {ImageURL: "div[aria-label='Event photo'] img"},
}

var cssURL = regexp.MustCompile(`url\(\s*["']?([^"')]+)["']?\s*\)`)

// SelectorsFor returns the overrides registered for the host of pageURL.
func SelectorsFor(pageURL string) (SiteSelectors, bool) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return SiteSelectors{}, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	sel, ok := siteSelectors[host]
	return sel, ok
}

// applyOverrides replaces detail fields with values read from the page through the site selectors.
// The page's og:image is used when neither the model nor a selector produced an image.
func applyOverrides(page, pageURL string, detail *domain.EventDetail) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return
	}

	if sel, ok := SelectorsFor(pageURL); ok {
		if sel.Description != "" {
			if text := strings.TrimSpace(doc.Find(sel.Description).First().Text()); text != "" {
				detail.Description = text
			}
		}
		if sel.Date != "" {
			if text := strings.TrimSpace(doc.Find(sel.Date).First().Text()); text != "" {
				detail.Date = text
			}
		}
		if sel.ImageURL != "" {
			if img := bestImage(doc.Find(sel.ImageURL), pageURL); img != "" {
				detail.ImageURL = img
			}
		}
	}

	if detail.ImageURL == "" {
		if og, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok {
			detail.ImageURL = resolve(pageURL, og)
		}
	}
}

// bestImage prefers large renditions, then the longest URL.
func bestImage(sel *goquery.Selection, pageURL string) string {
	var candidates []string
	sel.Each(func(_ int, el *goquery.Selection) {
		var raw string
		if goquery.NodeName(el) == "img" {
			raw = firstAttr(el, "src", "data-src")
		} else {
			if style, ok := el.Attr("style"); ok {
				if m := cssURL.FindStringSubmatch(style); m != nil {
					raw = m[1]
				}
			}
			if raw == "" {
				raw = firstAttr(el, "data-src", "data-original")
			}
		}
		if abs := resolve(pageURL, raw); abs != "" {
			candidates = append(candidates, abs)
		}
	})
	if len(candidates) == 0 {
		return ""
	}

	for _, c := range candidates {
		if strings.Contains(c, "1200") || strings.Contains(c, "large") || strings.Contains(c, "/Event/") {
			return c
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return len(candidates[i]) > len(candidates[j]) })
	return candidates[0]
}

func firstAttr(el *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := el.Attr(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}
