package ports

import (
	"context"
	"errors"
	"time"

	"EventPoster/internal/domain"
)

// HTMLFetcher retrieves a venue listing page; baseURL is visited first when set.
type HTMLFetcher interface {
	Fetch(ctx context.Context, url, baseURL string) (string, error)
}

// EventExtractor enriches one event reference. A nil detail with a nil error means nothing could be extracted.
type EventExtractor interface {
	Extract(ctx context.Context, ref domain.EventReference) (*domain.EventDetail, error)
}

// SnapshotStore persists the JSON files exchanged between stages and invocations.
// Load methods report found=false instead of failing when a stage has not run yet.
type SnapshotStore interface {
	SaveFetched(snapshot *domain.FetchedSnapshot) error
	LoadFetched() (*domain.FetchedSnapshot, bool, error)
	SaveProcessed(snapshot *domain.ProcessedSnapshot) error
	LoadProcessed() (*domain.ProcessedSnapshot, bool, error)
	SavePollState(state domain.PollState) error
	LoadPollState() (domain.PollState, bool, error)
	ClearPollState() error
	SaveReview(result domain.ReviewResult) error
}

// PageBuilder produces the HTML pages handed to the renderer.
type PageBuilder interface {
	EventPage(detail domain.EventDetail, venue, imageSrc string) (string, error)
	TitlePage(venues []string, day time.Time, backgroundSrc string) (string, error)
}

// ImageInliner turns remote or local images into data URIs usable inside rendered pages.
type ImageInliner interface {
	InlineURL(ctx context.Context, url string) (string, error)
	InlineFile(path string) (string, error)
}

// Renderer rasterizes an HTML page into outPath.
type Renderer interface {
	Render(ctx context.Context, html, outPath string) error
}

// ErrVotesUnknown means a poll was closed elsewhere and its final counts could not be read back.
var ErrVotesUnknown = errors.New("poll votes unknown")

// ReviewChannel is the chat platform hosting the approval poll.
type ReviewChannel interface {
	PostImage(ctx context.Context, path, caption string) error
	// OpenPoll sends the poll; closeButton attaches the reviewer's early-close control.
	OpenPoll(ctx context.Context, question string, options []string, closeButton bool) (domain.PollHandle, error)
	// EndPoll closes the poll and returns vote counts per option. An already closed poll is not an error
	// as long as its final counts can be read; otherwise ErrVotesUnknown is returned.
	EndPoll(ctx context.Context, handle domain.PollHandle) ([]int, error)
	// AwaitClose blocks until the reviewer presses the close control of handle (true) or the timeout elapses (false).
	AwaitClose(ctx context.Context, handle domain.PollHandle, reviewerID int64, timeout time.Duration) (bool, error)
	MaxOptions() int
}

// Notifier is the best-effort side-channel for operator messages.
type Notifier interface {
	Notify(ctx context.Context, text string) error
	NotifyFile(ctx context.Context, path, caption string) error
}

// Publisher posts the finalized files to the social channel.
type Publisher interface {
	Publish(ctx context.Context, req domain.PublishRequest) (domain.PublishResult, error)
}

// RunLedger records command runs and arbitrates poll sessions.
type RunLedger interface {
	RecordRun(ctx context.Context, run domain.StageRun) error
	RegisterPoll(ctx context.Context, city string, state domain.PollState) error
	SupersedePoll(ctx context.Context, sessionID string, at time.Time) error
	// ClaimPoll returns false when another collect already consumed the session.
	ClaimPoll(ctx context.Context, sessionID string, at time.Time) (bool, error)
	CompletePoll(ctx context.Context, sessionID, outcome string, approved int) error
}

// Metrics receives stage outcome counters.
type Metrics interface {
	VenueFetched(venue string, ok bool)
	EventExtracted(result string)
	ImageRendered(ok bool)
	PollDecided(outcome string)
	Published(ok bool)
	StageDuration(stage string, d time.Duration)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
