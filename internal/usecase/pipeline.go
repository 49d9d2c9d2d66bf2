package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"EventPoster/internal/domain"
	"EventPoster/internal/ports"
	"EventPoster/internal/scanner"
)

// ErrStageNotRun means a stage input snapshot is missing.
var ErrStageNotRun = errors.New("required stage has not run")

// PipelineDeps wires all stages and driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	City     string
	Venues   []domain.Venue
	Registry *scanner.Registry

	Fetch   *FetchStage
	Extract *ExtractionStage
	Images  *ImageStage
	Review  *ReviewWorkflow
	Publish *PublishStage

	Store    ports.SnapshotStore
	Notifier ports.Notifier
	Ledger   ports.RunLedger
	Metrics  ports.Metrics
	Logger   *slog.Logger

	FilterPast bool
	MaxResults int
	PostDir    string

	// Now returns the current time in the city timezone.
	Now func() time.Time
}

// Pipeline implements the morning and post flows and the single-stage commands.
type Pipeline struct {
	city     string
	venues   []domain.Venue
	registry *scanner.Registry

	fetch   *FetchStage
	extract *ExtractionStage
	images  *ImageStage
	review  *ReviewWorkflow
	publish *PublishStage

	store    ports.SnapshotStore
	notifier ports.Notifier
	ledger   ports.RunLedger
	metrics  ports.Metrics
	logger   *slog.Logger

	filterPast bool
	maxResults int
	postDir    string
	now        func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		city:       deps.City,
		venues:     deps.Venues,
		registry:   deps.Registry,
		fetch:      deps.Fetch,
		extract:    deps.Extract,
		images:     deps.Images,
		review:     deps.Review,
		publish:    deps.Publish,
		store:      deps.Store,
		notifier:   deps.Notifier,
		ledger:     orNopLedger(deps.Ledger),
		metrics:    orNopMetrics(deps.Metrics),
		logger:     orDiscard(deps.Logger),
		filterPast: deps.FilterPast,
		maxResults: deps.MaxResults,
		postDir:    deps.PostDir,
		now:        orNow(deps.Now),
	}
}

// Setup prepares the scratch area for a fresh cycle.
func (p *Pipeline) Setup(ctx context.Context) error {
	return p.track(ctx, "setup", func() (int, int, error) {
		if p.postDir == "" {
			return 0, 0, nil
		}
		if err := os.RemoveAll(p.postDir); err != nil {
			return 0, 1, fmt.Errorf("clear post dir: %w", err)
		}
		p.logger.Info("post directory cleared", "dir", p.postDir)
		return 1, 0, nil
	})
}

// FetchListings fetches every venue, parses and normalizes its events and saves fetched-events.json.
func (p *Pipeline) FetchListings(ctx context.Context) (*domain.FetchedSnapshot, error) {
	var snapshot *domain.FetchedSnapshot
	err := p.track(ctx, "fetch", func() (int, int, error) {
		if p.fetch == nil || p.registry == nil {
			return 0, 0, errors.New("fetch stage is not configured")
		}

		today := Today(p.now())
		snapshot = domain.NewVenueEvents[domain.EventReference]()
		failures := 0

		for _, page := range p.fetch.FetchAll(ctx, p.venues) {
			if !page.OK {
				failures++
				snapshot.Set(page.Venue.Title, nil)
				continue
			}

			parser, err := p.registry.Resolve(page.Venue.Parser)
			if err != nil {
				return 0, failures, fmt.Errorf("venue %s: %w", page.Venue.Title, err)
			}
			refs, err := scanner.SafeParse(parser, page.HTML)
			if err != nil {
				failures++
				p.logger.Error("parser failed", "venue", page.Venue.Title, "parser", page.Venue.Parser, "error", err)
			}

			events := Normalize(refs, p.filterPast, p.maxResults, today)
			p.logger.Info("venue parsed", "venue", page.Venue.Title, "found", len(refs), "kept", len(events))
			snapshot.Set(page.Venue.Title, events)
		}

		if err := p.store.SaveFetched(snapshot); err != nil {
			return snapshot.Total(), failures, fmt.Errorf("save fetched snapshot: %w", err)
		}
		p.logger.Info("fetched snapshot saved", "venues", snapshot.Len(), "events", snapshot.Total())
		return snapshot.Total(), failures, nil
	})
	return snapshot, err
}

// Process selects the events of target (tomorrow when empty) and extracts their details.
func (p *Pipeline) Process(ctx context.Context, target string) (*domain.ProcessedSnapshot, error) {
	var processed *domain.ProcessedSnapshot
	err := p.track(ctx, "process", func() (int, int, error) {
		fetched, found, err := p.store.LoadFetched()
		if err != nil {
			return 0, 0, err
		}
		if !found {
			return 0, 0, fmt.Errorf("%w: no fetched events, run fetch first", ErrStageNotRun)
		}

		if target == "" {
			target = Tomorrow(p.now())
		}
		selected := SelectDate(fetched, target, p.now())
		p.logger.Info("events selected", "date", target, "venues", selected.Len(), "events", selected.Total())

		if selected.Total() == 0 {
			processed = domain.NewVenueEvents[domain.EventDetail]()
			if err := p.store.SaveProcessed(processed); err != nil {
				return 0, 0, fmt.Errorf("save processed snapshot: %w", err)
			}
			return 0, 0, nil
		}

		processed, err = p.extract.ExtractAll(ctx, selected)
		units, failures := countDetails(processed)
		return units, failures, err
	})
	return processed, err
}

// GenerateImages renders the processed snapshot from scratch.
func (p *Pipeline) GenerateImages(ctx context.Context, withTitle bool) ([]domain.Artifact, error) {
	var artifacts []domain.Artifact
	err := p.track(ctx, "images", func() (int, int, error) {
		processed, found, err := p.store.LoadProcessed()
		if err != nil {
			return 0, 0, err
		}
		if !found {
			return 0, 0, fmt.Errorf("%w: no processed events, run process first", ErrStageNotRun)
		}

		if err := p.images.Clean(); err != nil {
			return 0, 0, err
		}
		artifacts, err = p.images.Render(ctx, processed, withTitle)
		return len(artifacts), 0, err
	})
	return artifacts, err
}

// Morning runs fetch, process, images and sends the review poll. The poll stays open for the post phase.
func (p *Pipeline) Morning(ctx context.Context) error {
	if _, err := p.FetchListings(ctx); err != nil {
		return err
	}

	processed, err := p.Process(ctx, "")
	if err != nil {
		return err
	}
	if processed.Total() == 0 {
		msg := fmt.Sprintf("No events found for %s, nothing to review.", Tomorrow(p.now()))
		p.logger.Warn(msg)
		notify(ctx, p.notifier, p.logger, "⚠️ "+msg)
		return nil
	}

	if _, err := p.GenerateImages(ctx, false); err != nil {
		return err
	}

	return p.track(ctx, "send", func() (int, int, error) {
		state, err := p.review.Send(ctx)
		if errors.Is(err, ErrNothingToReview) {
			p.logger.Warn("no images rendered, poll not sent")
			notify(ctx, p.notifier, p.logger, "⚠️ No images were rendered, review poll not sent.")
			return 0, 0, nil
		}
		if err != nil {
			return 0, 1, err
		}
		p.logger.Info("morning flow complete, poll is open", "session", state.SessionID)
		return len(state.ImagePaths), 0, nil
	})
}

// Post collects the poll, renders the title for approved venues, finalizes and publishes.
func (p *Pipeline) Post(ctx context.Context) error {
	var decision domain.Decision
	err := p.track(ctx, "collect", func() (int, int, error) {
		var err error
		decision, err = p.review.Collect(ctx)
		return len(decision.Approved), 0, err
	})
	if err != nil {
		return err
	}
	return p.publishDecision(ctx, decision)
}

// Review runs the legacy in-process review against the current images.
func (p *Pipeline) Review(ctx context.Context) (domain.Decision, error) {
	var decision domain.Decision
	err := p.track(ctx, "review", func() (int, int, error) {
		var err error
		decision, err = p.review.RunLegacy(ctx)
		return len(decision.Approved), 0, err
	})
	return decision, err
}

// RunAll is the legacy end-to-end flow in a single invocation.
func (p *Pipeline) RunAll(ctx context.Context) error {
	if _, err := p.FetchListings(ctx); err != nil {
		return err
	}
	processed, err := p.Process(ctx, "")
	if err != nil {
		return err
	}
	if processed.Total() == 0 {
		p.logger.Warn("no events to publish", "date", Tomorrow(p.now()))
		return nil
	}
	if _, err := p.GenerateImages(ctx, false); err != nil {
		return err
	}

	decision, err := p.Review(ctx)
	if errors.Is(err, ErrNothingToReview) {
		p.logger.Warn("no images rendered, nothing to publish")
		return nil
	}
	if err != nil {
		return err
	}
	return p.publishDecision(ctx, decision)
}

func (p *Pipeline) publishDecision(ctx context.Context, decision domain.Decision) error {
	if decision.Cancelled {
		p.logger.Info("upload cancelled via poll")
		notify(ctx, p.notifier, p.logger, "🛑 Upload cancelled via poll.")
		return nil
	}

	if venues := ApprovedVenues(decision.Approved); len(venues) > 0 {
		if _, ok := p.images.RenderTitle(ctx, venues); ok {
			p.logger.Info("title generated", "venues", strings.Join(venues, ", "))
		}
	} else {
		p.logger.Info("no venue images approved, skipping title")
	}

	return p.track(ctx, "publish", func() (int, int, error) {
		outcome, err := p.publish.Finalize(ctx, decision.Approved)
		if err != nil {
			return 0, 1, err
		}
		if outcome.PublishErr != nil {
			return len(outcome.Files), 1, nil
		}
		return len(outcome.Files), 0, nil
	})
}

// track times a stage, logs its summary and records it in the ledger.
func (p *Pipeline) track(ctx context.Context, stage string, fn func() (units, failures int, err error)) error {
	started := p.now()
	units, failures, err := fn()
	finished := p.now()

	p.metrics.StageDuration(stage, finished.Sub(started))
	run := domain.StageRun{
		ID:         uuid.NewString(),
		City:       p.city,
		Stage:      stage,
		StartedAt:  started,
		FinishedAt: finished,
		Units:      units,
		Failures:   failures,
	}
	if err != nil {
		run.Err = err.Error()
	}
	if lerr := p.ledger.RecordRun(ctx, run); lerr != nil {
		p.logger.Warn("ledger: record run failed", "stage", stage, "error", lerr)
	}

	if err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	p.logger.Info("stage finished", "stage", stage, "units", units, "failures", failures, "took", finished.Sub(started).Round(time.Millisecond))
	return nil
}

func countDetails(processed *domain.ProcessedSnapshot) (int, int) {
	if processed == nil {
		return 0, 0
	}
	var units, failures int
	for _, venue := range processed.Venues() {
		details, _ := processed.Get(venue)
		for _, d := range details {
			units++
			if d.Failed() {
				failures++
			}
		}
	}
	return units, failures
}
