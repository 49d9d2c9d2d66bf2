package parser

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"EventPoster/internal/domain"
)

// Feed reads venues that publish their program as RSS or Atom. Each item's link and publication day become a reference.
type Feed struct {
	loc *time.Location
}

// NewFeed builds the parser; dates are taken in loc (UTC when nil).
func NewFeed(loc *time.Location) *Feed {
	if loc == nil {
		loc = time.UTC
	}
	return &Feed{loc: loc}
}

// Parse never fails: an unreadable feed yields no references.
func (f *Feed) Parse(body string) []domain.EventReference {
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil
	}

	seen := seenURLs{}
	refs := make([]domain.EventReference, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" || !seen.first(link) {
			continue
		}

		date := ""
		switch {
		case item.PublishedParsed != nil:
			date = item.PublishedParsed.In(f.loc).Format(time.DateOnly)
		case item.UpdatedParsed != nil:
			date = item.UpdatedParsed.In(f.loc).Format(time.DateOnly)
		}
		refs = append(refs, domain.EventReference{URL: link, Date: date})
	}
	return refs
}
