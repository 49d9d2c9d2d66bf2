package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// czechMonths maps nominative Czech month names to their numbers.
var czechMonths = map[string]int{
	"leden": 1, "únor": 2, "březen": 3, "duben": 4,
	"květen": 5, "červen": 6, "červenec": 7, "srpen": 8,
	"září": 9, "říjen": 10, "listopad": 11, "prosinec": 12,
}

var englishMonths = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// Clock supplies the current time to parsers whose listings omit the year.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// yearFor infers the year of a day/month listing. A month far behind the current one belongs to next year,
// so a December listing showing January events does not produce past dates.
func (c Clock) yearFor(month int) int {
	now := c.now()
	if int(now.Month())-month > 6 {
		return now.Year() + 1
	}
	return now.Year()
}

func document(html string) (*goquery.Document, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}
	return doc, true
}

// isoDate formats the parts as YYYY-MM-DD or returns "" when any part is out of range.
func isoDate(year, month, day int) string {
	if year < 1000 || month < 1 || month > 12 || day < 1 || day > 31 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// absolute resolves site-relative links against origin (scheme and host, no trailing slash).
func absolute(origin, href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "", strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "/"):
		return origin + href
	default:
		return origin + "/" + href
	}
}

// seenURLs drops repeated links while keeping the first occurrence.
type seenURLs map[string]struct{}

func (s seenURLs) first(url string) bool {
	if _, ok := s[url]; ok {
		return false
	}
	s[url] = struct{}{}
	return true
}
