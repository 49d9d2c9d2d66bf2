package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"EventPoster/internal/config"
	"EventPoster/internal/infrastructure/fetcher"
	"EventPoster/internal/infrastructure/llm"
	"EventPoster/internal/infrastructure/metrics"
	"EventPoster/internal/infrastructure/ml"
	"EventPoster/internal/infrastructure/parser"
	"EventPoster/internal/infrastructure/publish"
	"EventPoster/internal/infrastructure/render"
	"EventPoster/internal/infrastructure/scheduler"
	"EventPoster/internal/infrastructure/storage"
	"EventPoster/internal/infrastructure/telegram"
	"EventPoster/internal/logging"
	"EventPoster/internal/ports"
	"EventPoster/internal/scanner"
	"EventPoster/internal/usecase"
)

// Application wires configs to use cases for one command invocation.
type Application struct {
	cfg      config.Config
	cmd      Command
	logger   *slog.Logger
	paths    storage.Paths
	pipeline *usecase.Pipeline
	ledger   *storage.Ledger
	renderer *render.ChromeRenderer
	metrics  *metrics.Collector
	out      io.Writer
	now      func() time.Time
}

// New validates the configuration for cmd and builds every adapter it needs.
func New(ctx context.Context, cfg config.Config, cmd Command, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Require(cmd.needs()...); err != nil {
		return nil, err
	}

	loc := cfg.Scheduler.Location()
	now := func() time.Time { return time.Now().In(loc) }
	logger := baseLogger.With("city", cfg.City.Name)

	a := &Application{
		cfg:     cfg,
		cmd:     cmd,
		logger:  logger,
		paths:   storage.NewPaths(cfg.Paths.ScratchDir, cfg.Paths.GeneratedDir, cfg.City.Name),
		metrics: metrics.NewCollector(cfg.City.Name),
		out:     os.Stdout,
		now:     now,
	}

	if err := os.MkdirAll(a.paths.Scratch, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	if dsn := cfg.LedgerDSN(); dsn != "" {
		ledger, err := storage.OpenLedger(ctx, dsn)
		if err != nil {
			logger.Warn("ledger unavailable, continuing without it", "error", err)
		} else {
			a.ledger = ledger
		}
	}

	pipeline, err := a.buildPipeline()
	if err != nil {
		_ = a.ledger.Close()
		return nil, err
	}
	a.pipeline = pipeline
	return a, nil
}

func (a *Application) buildPipeline() (*usecase.Pipeline, error) {
	cfg := a.cfg
	logger := a.logger
	loc := cfg.Scheduler.Location()

	registry := scanner.NewRegistry()
	parser.RegisterAll(registry, parser.Clock(a.now), loc)
	if err := registry.Validate(cfg.DomainVenues()); err != nil {
		return nil, &config.ConfigurationError{Problems: []string{err.Error()}}
	}

	pageFetcher := fetcher.New(fetcher.Options{
		Timeout:   cfg.Fetch.Timeout,
		MinDelay:  cfg.Fetch.MinDelay,
		MaxDelay:  cfg.Fetch.MaxDelay,
		UserAgent: cfg.Fetch.UserAgent,
		Language:  cfg.Fetch.Language,
		Logger:    logger.With("component", "fetcher"),
	})

	var ledger ports.RunLedger
	if a.ledger != nil {
		ledger = a.ledger
	}
	store := storage.NewSnapshotStore(a.paths)

	var (
		notifier ports.Notifier
		channel  ports.ReviewChannel
	)
	if a.cmd.usesTelegram() {
		bot, err := telegram.Connect(cfg.Notifications.Telegram.BotToken)
		if err != nil {
			return nil, err
		}
		notifier = telegram.NewNotifier(bot, cfg.Notifications.Telegram.ChatID)
		channel = telegram.NewReviewChannel(bot, cfg.Notifications.Telegram.ChatID, logger.With("component", "telegram"))
	}

	extractor, err := a.buildExtractor(pageFetcher)
	if err != nil {
		return nil, err
	}
	var limiter *rate.Limiter
	if n := cfg.Extraction.RatePerMinute; n > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}

	a.renderer = render.NewChromeRenderer(render.ChromeOptions{
		Browser:   cfg.Render.Browser,
		ImagesDir: a.paths.Images(),
		HTMLDir:   a.paths.HTML(),
		Width:     cfg.Render.Width,
		Height:    cfg.Render.Height,
		Timeout:   cfg.Render.Timeout,
		Logger:    logger.With("component", "render"),
	})
	builder := render.NewPageBuilder(render.PageOptions{
		BadgeText:        cfg.City.BadgeText,
		TitleText:        cfg.City.TitleText,
		TitleAlt:         cfg.City.TitleAlt,
		FallbackLocation: cfg.City.DisplayName,
		Width:            cfg.Render.Width,
		Height:           cfg.Render.Height,
	})

	var publisher ports.Publisher
	if cfg.Publish.Command != "" {
		publisher = publish.NewCommandPublisher(publish.CommandOptions{
			Command:   cfg.Publish.Command,
			Args:      cfg.Publish.Args,
			Timeout:   cfg.Publish.Timeout,
			DebugShot: a.paths.DebugShot(),
			Logger:    logger.With("component", "publisher"),
		})
	}

	return usecase.NewPipeline(usecase.PipelineDeps{
		City:     cfg.City.Name,
		Venues:   cfg.DomainVenues(),
		Registry: registry,
		Fetch:    usecase.NewFetchStage(pageFetcher, a.metrics, logger.With("component", "fetch")),
		Extract: usecase.NewExtractionStage(usecase.ExtractionDeps{
			Extractor: extractor,
			Store:     store,
			Metrics:   a.metrics,
			Logger:    logger.With("component", "extract"),
			Timeout:   cfg.Extraction.Timeout,
			Limiter:   limiter,
		}),
		Images: usecase.NewImageStage(usecase.ImageDeps{
			Builder:   builder,
			Inliner:   render.NewInliner(fetcher.SafeClient(15*time.Second), cfg.Fetch.UserAgent),
			Renderer:  a.renderer,
			ImagesDir: a.paths.Images(),
			Now:       a.now,
			Metrics:   a.metrics,
			Logger:    logger.With("component", "images"),
		}),
		Review: usecase.NewReviewWorkflow(usecase.ReviewDeps{
			Channel:          channel,
			Store:            store,
			Ledger:           ledger,
			Metrics:          a.metrics,
			Logger:           logger.With("component", "review"),
			City:             cfg.City.Name,
			ImagesDir:        a.paths.Images(),
			Question:         cfg.Review.Question,
			CancelLabel:      cfg.Review.CancelLabel,
			CancelPrecedence: cfg.Review.CancelWins(),
			MaxOptions:       cfg.Review.MaxOptions,
			ReviewerID:       cfg.Notifications.Telegram.ReviewerID,
			Timeout:          cfg.Review.Timeout,
			Now:              a.now,
		}),
		Publish: usecase.NewPublishStage(usecase.PublishDeps{
			Publisher:       publisher,
			Notifier:        notifier,
			Metrics:         a.metrics,
			Logger:          logger.With("component", "publish"),
			ImagesDir:       a.paths.Images(),
			GeneratedRoot:   a.paths.Generated,
			PostDir:         a.paths.Post(),
			DebugShot:       a.paths.DebugShot(),
			CaptionTemplate: cfg.Publish.CaptionTemplate,
			City:            cfg.City.DisplayName,
			Location:        cfg.Publish.Location,
			KeepScratch:     cfg.Publish.KeepScratch,
			Now:             a.now,
		}),
		Store:      store,
		Notifier:   notifier,
		Ledger:     ledger,
		Metrics:    a.metrics,
		Logger:     logger.With("component", "pipeline"),
		FilterPast: cfg.Fetch.FilterPast,
		MaxResults: cfg.Fetch.MaxResults,
		PostDir:    a.paths.Post(),
		Now:        a.now,
	}), nil
}

// buildExtractor returns nil when the command does not extract and nothing is configured.
func (a *Application) buildExtractor(pageFetcher ports.HTMLFetcher) (ports.EventExtractor, error) {
	cfg := a.cfg
	switch cfg.Extraction.Provider {
	case config.ProviderService:
		if cfg.ML.InferenceURL == "" {
			return nil, nil
		}
		return ml.NewClient(cfg.ML.InferenceURL, cfg.ML.APIKey, pageFetcher), nil
	default:
		if cfg.ChatGPT.APIKey == "" {
			return nil, nil
		}
		completer, err := llm.NewOpenAICompleter(cfg.ChatGPT)
		if err != nil {
			return nil, &config.ConfigurationError{Problems: []string{err.Error()}}
		}
		return llm.NewExtractor(pageFetcher, completer, llm.ExtractorOptions{
			SystemPrompt: cfg.ChatGPT.SystemPrompt,
			MaxContent:   cfg.Extraction.MaxContent,
			Now:          a.now,
			Logger:       a.logger.With("component", "llm"),
		}), nil
	}
}

// Run executes the command.
func (a *Application) Run(ctx context.Context) error {
	a.logger.Info("command started", "command", a.cmd.Name)

	var err error
	switch a.cmd.Name {
	case CmdFetch:
		_, err = a.pipeline.FetchListings(ctx)
	case CmdProcess:
		_, err = a.pipeline.Process(ctx, a.cmd.Date)
	case CmdImages:
		_, err = a.pipeline.GenerateImages(ctx, a.cmd.Title)
	case CmdMorning:
		err = a.pipeline.Morning(ctx)
	case CmdPost:
		err = a.pipeline.Post(ctx)
	case CmdReview:
		_, err = a.pipeline.Review(ctx)
	case CmdRun:
		err = a.pipeline.RunAll(ctx)
	case CmdSchedule:
		err = a.schedule(ctx)
	case CmdSetup:
		err = a.pipeline.Setup(ctx)
	case CmdStatus:
		err = a.status(ctx)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, a.cmd.Name)
	}

	if err != nil {
		return err
	}
	a.logger.Info("command finished", "command", a.cmd.Name)
	return nil
}

func (a *Application) schedule(ctx context.Context) error {
	loc := a.cfg.Scheduler.Location()
	mh, mm, err := config.ParseClock(a.cfg.Scheduler.MorningAt)
	if err != nil {
		return err
	}
	ph, pm, err := config.ParseClock(a.cfg.Scheduler.PostAt)
	if err != nil {
		return err
	}
	morning, err := scheduler.NewDailyScheduler(mh, mm, loc)
	if err != nil {
		return err
	}
	post, err := scheduler.NewDailyScheduler(ph, pm, loc)
	if err != nil {
		return err
	}

	sched := usecase.NewScheduler(morning, post, a.pipeline, a.logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("scheduler running",
		"morning", morning.Next(a.now()).Format(time.RFC3339),
		"post", post.Next(a.now()).Format(time.RFC3339))

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}

func (a *Application) status(ctx context.Context) error {
	if a.ledger == nil {
		return errors.New("status: ledger is disabled")
	}
	runs, err := a.ledger.LastRuns(ctx, a.cfg.City.Name)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.out, "no runs recorded")
		return nil
	}
	for _, r := range runs {
		state := "ok"
		if r.Err != "" {
			state = "error: " + r.Err
		}
		fmt.Fprintf(a.out, "%-8s %s units=%d failures=%d %s\n",
			r.Stage, r.FinishedAt.In(a.cfg.Scheduler.Location()).Format("2006-01-02 15:04"), r.Units, r.Failures, state)
	}
	return nil
}

// Close writes the metrics textfile and releases the browser and the ledger.
func (a *Application) Close() error {
	var errs []error
	if a.renderer != nil {
		errs = append(errs, a.renderer.Close())
	}
	if path := a.cfg.Metrics.Textfile; path != "" {
		errs = append(errs, a.metrics.WriteTextfile(path, a.now()))
	}
	errs = append(errs, a.ledger.Close())
	return errors.Join(errs...)
}
