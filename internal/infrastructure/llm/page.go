package llm

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var textPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// PageText reduces an HTML page to whitespace-collapsed visible text, capped at limit runes (0 means no cap).
func PageText(page string, limit int) string {
	text := html.UnescapeString(textPolicy.Sanitize(page))
	text = strings.Join(strings.Fields(text), " ")
	if limit > 0 {
		if r := []rune(text); len(r) > limit {
			text = string(r[:limit])
		}
	}
	return text
}
