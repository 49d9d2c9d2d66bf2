package usecase

import (
	"context"
	"log/slog"
	"time"

	"EventPoster/internal/domain"
	"EventPoster/internal/logging"
	"EventPoster/internal/ports"
)

type nopMetrics struct{}

func (nopMetrics) VenueFetched(string, bool) {}
func (nopMetrics) EventExtracted(string) {}
func (nopMetrics) ImageRendered(bool) {}
func (nopMetrics) PollDecided(string) {}
func (nopMetrics) Published(bool) {}
func (nopMetrics) StageDuration(string, time.Duration) {}

func orNopMetrics(m ports.Metrics) ports.Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}

type nopLedger struct{}

func (nopLedger) RecordRun(context.Context, domain.StageRun) error { return nil }
func (nopLedger) RegisterPoll(context.Context, string, domain.PollState) error { return nil }
func (nopLedger) SupersedePoll(context.Context, string, time.Time) error { return nil }
func (nopLedger) ClaimPoll(context.Context, string, time.Time) (bool, error) { return true, nil }
func (nopLedger) CompletePoll(context.Context, string, string, int) error { return nil }

func orNopLedger(l ports.RunLedger) ports.RunLedger {
	if l == nil {
		return nopLedger{}
	}
	return l
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return logging.Discard()
	}
	return logger
}

func orNow(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}

// notify sends a side-channel message; failures are logged and dropped.
func notify(ctx context.Context, n ports.Notifier, logger *slog.Logger, text string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, text); err != nil {
		logger.Warn("notification failed", "error", err)
	}
}

func notifyFile(ctx context.Context, n ports.Notifier, logger *slog.Logger, path, caption string) {
	if n == nil {
		return
	}
	if err := n.NotifyFile(ctx, path, caption); err != nil {
		logger.Warn("file notification failed", "path", path, "error", err)
	}
}
