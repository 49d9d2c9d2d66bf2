package usecase

import (
	"sort"
	"time"

	"EventPoster/internal/domain"
)

// undatedSentinel sorts after every real ISO date.
const undatedSentinel = "9999-99-99"

const isoDate = "2006-01-02"

// Normalize filters past events, removes duplicate URLs, sorts by date and caps the list.
// today is the ISO date used by the past filter. maxResults <= 0 means unlimited.
func Normalize(events []domain.EventReference, filterPast bool, maxResults int, today string) []domain.EventReference {
	out := make([]domain.EventReference, 0, len(events))
	seen := make(map[string]struct{}, len(events))

	for _, ev := range events {
		if filterPast && ev.Date != "" && ev.Date < today {
			continue
		}
		if ev.URL != "" {
			if _, dup := seen[ev.URL]; dup {
				continue
			}
			seen[ev.URL] = struct{}{}
		}
		out = append(out, ev)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return sortKey(out[i]) < sortKey(out[j])
	})

	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

func sortKey(ev domain.EventReference) string {
	if ev.Date == "" {
		return undatedSentinel
	}
	return ev.Date
}

// SelectDate keeps only events dated exactly target. An empty target means the day after now.
// Undated events never qualify and venues left empty are dropped.
func SelectDate(snapshot *domain.FetchedSnapshot, target string, now time.Time) *domain.FetchedSnapshot {
	if target == "" {
		target = Tomorrow(now)
	}

	selected := domain.NewVenueEvents[domain.EventReference]()
	for _, venue := range snapshot.Venues() {
		events, _ := snapshot.Get(venue)
		var kept []domain.EventReference
		for _, ev := range events {
			if ev.Date != "" && ev.Date == target {
				kept = append(kept, ev)
			}
		}
		if len(kept) > 0 {
			selected.Set(venue, kept)
		}
	}
	return selected
}

// Tomorrow returns the ISO date following now in now's location.
func Tomorrow(now time.Time) string {
	return now.AddDate(0, 0, 1).Format(isoDate)
}

// Today returns now as an ISO date.
func Today(now time.Time) string {
	return now.Format(isoDate)
}
