package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"EventPoster/internal/domain"
	"EventPoster/internal/ports"
)

// DefaultExtractionTimeout bounds a single extraction call.
const DefaultExtractionTimeout = 60 * time.Second

const errExtractionFailed = "Extraction failed"

// ExtractionDeps wires the extraction stage.
type ExtractionDeps struct {
	Extractor ports.EventExtractor
	Store     ports.SnapshotStore
	Metrics   ports.Metrics
	Logger    *slog.Logger
	Timeout   time.Duration
	// Limiter paces calls to the extractor; nil disables pacing.
	Limiter *rate.Limiter
}

// ExtractionStage turns selected references into details, saving after every venue.
type ExtractionStage struct {
	extractor ports.EventExtractor
	store     ports.SnapshotStore
	metrics   ports.Metrics
	logger    *slog.Logger
	timeout   time.Duration
	limiter   *rate.Limiter
}

// NewExtractionStage builds the stage; a zero timeout means DefaultExtractionTimeout.
func NewExtractionStage(deps ExtractionDeps) *ExtractionStage {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = DefaultExtractionTimeout
	}
	return &ExtractionStage{
		extractor: deps.Extractor,
		store:     deps.Store,
		metrics:   orNopMetrics(deps.Metrics),
		logger:    orDiscard(deps.Logger),
		timeout:   timeout,
		limiter:   deps.Limiter,
	}
}

// ExtractAll processes venues in order and items sequentially. Item failures become error-tagged details.
// The returned error is only set when persisting the snapshot fails or ctx is cancelled.
func (s *ExtractionStage) ExtractAll(ctx context.Context, selected *domain.FetchedSnapshot) (*domain.ProcessedSnapshot, error) {
	processed := domain.NewVenueEvents[domain.EventDetail]()
	if s.extractor == nil {
		return processed, errors.New("no event extractor configured")
	}
	var ok, failed, timedOut, skipped int

	for _, venue := range selected.Venues() {
		refs, _ := selected.Get(venue)
		s.logger.Info("extracting venue", "venue", venue, "events", len(refs))

		details := make([]domain.EventDetail, 0, len(refs))
		for i, ref := range refs {
			if ref.URL == "" {
				skipped++
				s.logger.Warn("skipping event without url", "venue", venue, "n", i+1)
				continue
			}

			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return processed, fmt.Errorf("extraction interrupted: %w", err)
				}
			}

			detail, result := s.extractOne(ctx, venue, ref)
			switch result {
			case "ok":
				ok++
				s.logger.Info("event extracted", "venue", venue, "n", i+1, "of", len(refs), "title", detail.Title)
			case "timeout":
				timedOut++
				s.logger.Warn("event extraction timed out", "venue", venue, "url", ref.URL, "timeout", s.timeout)
			default:
				failed++
				s.logger.Warn("event extraction failed", "venue", venue, "url", ref.URL, "error", detail.Error)
			}
			s.metrics.EventExtracted(result)
			details = append(details, detail)
		}

		processed.Set(venue, details)
		if s.store != nil {
			if err := s.store.SaveProcessed(processed); err != nil {
				return processed, fmt.Errorf("save processed snapshot after %s: %w", venue, err)
			}
		}

		if err := ctx.Err(); err != nil {
			return processed, fmt.Errorf("extraction interrupted: %w", err)
		}
	}

	s.logger.Info("extraction stage done", "extracted", ok, "failed", failed, "timed_out", timedOut, "skipped", skipped)
	return processed, nil
}

type extraction struct {
	detail *domain.EventDetail
	err    error
}

// extractOne runs the collaborator in its own goroutine so a call that ignores ctx still cannot stall the batch.
func (s *ExtractionStage) extractOne(ctx context.Context, venue string, ref domain.EventReference) (domain.EventDetail, string) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan extraction, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- extraction{err: fmt.Errorf("extractor panic: %v", rec)}
			}
		}()
		detail, err := s.extractor.Extract(callCtx, ref)
		done <- extraction{detail: detail, err: err}
	}()

	var res extraction
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = extraction{err: callCtx.Err()}
	}

	switch {
	case res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil:
		return domain.FailedDetail(ref.URL, s.timeoutReason()), "timeout"
	case res.err != nil:
		return domain.FailedDetail(ref.URL, res.err.Error()), "failed"
	case res.detail == nil:
		return domain.FailedDetail(ref.URL, errExtractionFailed), "failed"
	}

	detail := *res.detail
	detail.Error = ""
	if detail.URL == "" {
		detail.URL = ref.URL
	}
	if detail.Place == "" {
		detail.Place = venue
	}
	if detail.Date == "" && ref.Date != "" {
		detail.Date = ref.Date
	}
	return detail, "ok"
}

func (s *ExtractionStage) timeoutReason() string {
	return fmt.Sprintf("Timeout after %gs", s.timeout.Seconds())
}
