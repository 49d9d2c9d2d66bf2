package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"EventPoster/internal/domain"
	"EventPoster/internal/ports"
)

var (
	// ErrStateNotFound means collect ran before any send.
	ErrStateNotFound = errors.New("poll state not found: run the send phase first")
	// ErrAlreadyCollected rejects a second collect against a consumed poll session.
	ErrAlreadyCollected = errors.New("poll session already collected")
	// ErrNothingToReview means there are no rendered images to put in a poll.
	ErrNothingToReview = errors.New("no rendered images to review")
)

const (
	maxLabelRunes     = 55
	defaultMaxOptions = 10
	minReviewTimeout  = 10 * time.Second
)

// ReviewDeps wires the review workflow.
type ReviewDeps struct {
	Channel ports.ReviewChannel
	Store   ports.SnapshotStore
	Ledger  ports.RunLedger
	Metrics ports.Metrics
	Logger  *slog.Logger

	City      string
	ImagesDir string

	Question    string
	CancelLabel string
	// CancelPrecedence makes a single cancel vote override image votes.
	CancelPrecedence bool
	// MaxOptions caps poll options; zero uses the channel limit.
	MaxOptions int
	ReviewerID int64
	// Timeout bounds the legacy in-process wait.
	Timeout time.Duration

	Now          func() time.Time
	NewSessionID func() string
}

// ReviewWorkflow runs the approval poll: send now, collect in a later process.
type ReviewWorkflow struct {
	channel ports.ReviewChannel
	store   ports.SnapshotStore
	ledger  ports.RunLedger
	metrics ports.Metrics
	logger  *slog.Logger

	city      string
	imagesDir string

	question         string
	cancelLabel      string
	cancelPrecedence bool
	maxOptions       int
	reviewerID       int64
	timeout          time.Duration

	now          func() time.Time
	newSessionID func() string
}

// NewReviewWorkflow builds the workflow.
func NewReviewWorkflow(deps ReviewDeps) *ReviewWorkflow {
	w := &ReviewWorkflow{
		channel:          deps.Channel,
		store:            deps.Store,
		ledger:           orNopLedger(deps.Ledger),
		metrics:          orNopMetrics(deps.Metrics),
		logger:           orDiscard(deps.Logger),
		city:             deps.City,
		imagesDir:        deps.ImagesDir,
		question:         firstNonEmpty(deps.Question, "Which images should be posted?"),
		cancelLabel:      firstNonEmpty(deps.CancelLabel, "Skip / cancel upload"),
		cancelPrecedence: deps.CancelPrecedence,
		maxOptions:       deps.MaxOptions,
		reviewerID:       deps.ReviewerID,
		timeout:          deps.Timeout,
		now:              orNow(deps.Now),
		newSessionID:     deps.NewSessionID,
	}
	if w.newSessionID == nil {
		w.newSessionID = uuid.NewString
	}
	if w.timeout < minReviewTimeout {
		w.timeout = minReviewTimeout
	}
	return w
}

// Send posts every rendered image, opens the poll and persists its identity. It does not wait for votes.
func (w *ReviewWorkflow) Send(ctx context.Context) (domain.PollState, error) {
	if err := w.supersede(ctx); err != nil {
		return domain.PollState{}, err
	}

	images, err := ListRendered(w.imagesDir)
	if err != nil {
		return domain.PollState{}, err
	}
	if len(images) == 0 {
		return domain.PollState{}, ErrNothingToReview
	}

	posted := w.capImages(images, 1)
	handle, err := w.openPoll(ctx, posted, true)
	if err != nil {
		return domain.PollState{}, err
	}

	state := domain.PollState{
		Version:       domain.PollStateVersion,
		SessionID:     w.newSessionID(),
		ChannelID:     handle.ChannelID,
		PollMessageID: handle.MessageID,
		PollID:        handle.PollID,
		ImagePaths:    posted,
		SentAt:        w.now().UTC(),
	}
	if err := w.store.SavePollState(state); err != nil {
		return domain.PollState{}, fmt.Errorf("persist poll state: %w", err)
	}
	if err := w.ledger.RegisterPoll(ctx, w.city, state); err != nil {
		w.logger.Warn("ledger: register poll failed", "session", state.SessionID, "error", err)
	}

	w.logger.Info("review poll sent", "session", state.SessionID, "images", len(posted), "message_id", state.PollMessageID)
	return state, nil
}

// Collect ends the poll persisted by Send and applies the decision rule. The state is consumed exactly once.
func (w *ReviewWorkflow) Collect(ctx context.Context) (domain.Decision, error) {
	state, found, err := w.store.LoadPollState()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("load poll state: %w", err)
	}
	if !found {
		return domain.Decision{}, ErrStateNotFound
	}
	if state.Consumed() {
		return domain.Decision{}, fmt.Errorf("%w: session %s at %s", ErrAlreadyCollected, state.SessionID, state.CollectedAt.Format(time.RFC3339))
	}

	counts, err := w.channel.EndPoll(ctx, state.Handle())
	if err != nil {
		return domain.Decision{}, fmt.Errorf("end poll: %w", err)
	}
	decision := Decide(counts, state.ImagePaths, true, w.cancelPrecedence)

	now := w.now().UTC()
	state.CollectedAt = &now
	if err := w.store.SavePollState(state); err != nil {
		return domain.Decision{}, fmt.Errorf("mark poll state consumed: %w", err)
	}

	if state.SessionID != "" {
		claimed, err := w.ledger.ClaimPoll(ctx, state.SessionID, now)
		switch {
		case err != nil:
			w.logger.Warn("ledger: claim failed, continuing on file state", "session", state.SessionID, "error", err)
		case !claimed:
			return domain.Decision{}, fmt.Errorf("%w: session %s", ErrAlreadyCollected, state.SessionID)
		}
	}

	w.finish(ctx, state.SessionID, state.ChannelID, state.SentAt, decision, decision.DefaultApplied)
	return decision, nil
}

// RunLegacy sends, waits for the reviewer or the timeout and collects within one process.
// The poll carries no cancel option.
func (w *ReviewWorkflow) RunLegacy(ctx context.Context) (domain.Decision, error) {
	images, err := ListRendered(w.imagesDir)
	if err != nil {
		return domain.Decision{}, err
	}
	if len(images) == 0 {
		return domain.Decision{}, ErrNothingToReview
	}

	started := w.now().UTC()
	posted := w.capImages(images, 0)
	handle, err := w.openPoll(ctx, posted, false)
	if err != nil {
		return domain.Decision{}, err
	}

	sessionID := w.newSessionID()
	if err := w.ledger.RegisterPoll(ctx, w.city, domain.PollState{
		SessionID: sessionID, ChannelID: handle.ChannelID, PollMessageID: handle.MessageID, ImagePaths: posted, SentAt: started,
	}); err != nil {
		w.logger.Warn("ledger: register poll failed", "session", sessionID, "error", err)
	}

	w.logger.Info("waiting for review", "timeout", w.timeout, "reviewer", w.reviewerID)
	early, err := w.channel.AwaitClose(ctx, handle, w.reviewerID, w.timeout)
	if err != nil {
		w.logger.Warn("waiting for reviewer failed, collecting current votes", "error", err)
	}
	if early {
		w.logger.Info("reviewer closed the poll early")
	}

	counts, err := w.channel.EndPoll(ctx, handle)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("end poll: %w", err)
	}
	if _, err := w.ledger.ClaimPoll(ctx, sessionID, w.now().UTC()); err != nil {
		w.logger.Warn("ledger: claim failed", "session", sessionID, "error", err)
	}

	decision := Decide(counts, posted, false, w.cancelPrecedence)
	w.finish(ctx, sessionID, handle.ChannelID, started, decision, !early)
	return decision, nil
}

// Decide applies the vote rule. counts holds one entry per image, followed by the cancel option when hasCancel.
// Extra counts beyond the posted images are ignored.
func Decide(counts []int, images []string, hasCancel, cancelPrecedence bool) domain.Decision {
	var voted []string
	for i, c := range counts {
		if i >= len(images) {
			break
		}
		if c > 0 {
			voted = append(voted, images[i])
		}
	}

	cancelVotes := 0
	if hasCancel && len(counts) > len(images) {
		cancelVotes = counts[len(images)]
	}

	switch {
	case cancelVotes > 0 && (cancelPrecedence || len(voted) == 0):
		return domain.Decision{Cancelled: true}
	case len(voted) > 0:
		return domain.Decision{Approved: voted}
	default:
		all := make([]string, len(images))
		copy(all, images)
		return domain.Decision{Approved: all, DefaultApplied: true}
	}
}

// supersede retires an unconsumed poll left by an earlier send so it is never collected later.
func (w *ReviewWorkflow) supersede(ctx context.Context) error {
	prev, found, err := w.store.LoadPollState()
	if err != nil {
		w.logger.Warn("previous poll state unreadable, replacing it", "error", err)
		return w.store.ClearPollState()
	}
	if !found || prev.Consumed() {
		return nil
	}

	w.logger.Warn("superseding uncollected poll", "session", prev.SessionID, "sent_at", prev.SentAt)
	if _, err := w.channel.EndPoll(ctx, prev.Handle()); err != nil {
		w.logger.Warn("closing stale poll failed", "session", prev.SessionID, "error", err)
	}
	if prev.SessionID != "" {
		if err := w.ledger.SupersedePoll(ctx, prev.SessionID, w.now().UTC()); err != nil {
			w.logger.Warn("ledger: supersede failed", "session", prev.SessionID, "error", err)
		}
	}
	return w.store.ClearPollState()
}

func (w *ReviewWorkflow) capImages(images []string, reserved int) []string {
	limit := w.maxOptions
	if limit <= 0 && w.channel != nil {
		limit = w.channel.MaxOptions()
	}
	if limit <= 0 {
		limit = defaultMaxOptions
	}
	limit -= reserved
	if limit < 1 {
		limit = 1
	}
	if len(images) <= limit {
		return images
	}
	w.logger.Warn("too many images for one poll, extra images are left out", "images", len(images), "limit", limit, "dropped", images[limit:])
	return images[:limit]
}

// openPoll posts the images and the poll. A deferred poll is collected by a later process:
// it carries the cancel option and no close button.
func (w *ReviewWorkflow) openPoll(ctx context.Context, images []string, deferred bool) (domain.PollHandle, error) {
	options := make([]string, 0, len(images)+1)
	for i, rel := range images {
		label := fmt.Sprintf("%d. %s", i+1, rel)
		if err := w.channel.PostImage(ctx, filepath.Join(w.imagesDir, filepath.FromSlash(rel)), label); err != nil {
			w.logger.Warn("posting review image failed", "image", rel, "error", err)
		}
		options = append(options, truncateRunes(label, maxLabelRunes))
	}
	if deferred {
		options = append(options, w.cancelLabel)
	}

	handle, err := w.channel.OpenPoll(ctx, w.question, options, !deferred)
	if err != nil {
		return domain.PollHandle{}, fmt.Errorf("open poll: %w", err)
	}
	return handle, nil
}

func (w *ReviewWorkflow) finish(ctx context.Context, sessionID string, channelID int64, started time.Time, decision domain.Decision, timedOut bool) {
	result := domain.ReviewResult{
		SessionID:      sessionID,
		ApprovedImages: decision.Approved,
		StartedAt:      started,
		FinishedAt:     w.now().UTC(),
		ChannelID:      channelID,
		TimedOut:       timedOut,
		Cancelled:      decision.Cancelled,
	}
	if w.reviewerID != 0 {
		id := w.reviewerID
		result.ReviewerID = &id
	}
	if err := w.store.SaveReview(result); err != nil {
		w.logger.Warn("saving review audit failed", "error", err)
	}

	if sessionID != "" {
		if err := w.ledger.CompletePoll(ctx, sessionID, decision.Outcome(), len(decision.Approved)); err != nil {
			w.logger.Warn("ledger: complete poll failed", "session", sessionID, "error", err)
		}
	}
	w.metrics.PollDecided(decision.Outcome())
	w.logger.Info("review collected", "session", sessionID, "outcome", decision.Outcome(), "approved", len(decision.Approved))
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
