package usecase

import (
	"context"
	"log/slog"

	"EventPoster/internal/domain"
	"EventPoster/internal/ports"
)

// VenueHTML is the fetch result of one venue. OK is false when the page could not be retrieved.
type VenueHTML struct {
	Venue domain.Venue
	HTML  string
	OK    bool
}

// FetchStage retrieves listing pages one venue at a time.
type FetchStage struct {
	fetcher ports.HTMLFetcher
	metrics ports.Metrics
	logger  *slog.Logger
}

// NewFetchStage wires the fetch collaborator.
func NewFetchStage(fetcher ports.HTMLFetcher, metrics ports.Metrics, logger *slog.Logger) *FetchStage {
	return &FetchStage{fetcher: fetcher, metrics: orNopMetrics(metrics), logger: orDiscard(logger)}
}

// FetchAll returns one entry per venue, in venue order. A venue that fails is reported with OK=false.
func (s *FetchStage) FetchAll(ctx context.Context, venues []domain.Venue) []VenueHTML {
	results := make([]VenueHTML, 0, len(venues))
	failed := 0

	for i, venue := range venues {
		s.logger.Info("fetching venue", "venue", venue.Title, "url", venue.URL, "n", i+1, "of", len(venues))

		html, err := s.fetcher.Fetch(ctx, venue.URL, venue.BaseURL)
		ok := err == nil && html != ""
		switch {
		case err != nil:
			s.logger.Warn("venue fetch failed", "venue", venue.Title, "error", err)
		case html == "":
			s.logger.Warn("venue returned empty page", "venue", venue.Title)
		default:
			s.logger.Info("venue fetched", "venue", venue.Title, "chars", len(html))
		}
		if !ok {
			failed++
			html = ""
		}

		s.metrics.VenueFetched(venue.Title, ok)
		results = append(results, VenueHTML{Venue: venue, HTML: html, OK: ok})
	}

	s.logger.Info("fetch stage done", "venues", len(venues), "fetched", len(venues)-failed, "failed", failed)
	return results
}
