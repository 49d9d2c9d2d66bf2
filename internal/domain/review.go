package domain

import "time"

// PollStateVersion is bumped whenever the poll-state.json layout changes.
const PollStateVersion = 1

// PollState is written by the send phase and consumed once by the collect phase.
type PollState struct {
	Version       int        `json:"version"`
	SessionID     string     `json:"session_id"`
	ChannelID     int64      `json:"channel_id"`
	PollMessageID int        `json:"poll_message_id"`
	PollID        string     `json:"poll_id,omitempty"`
	ImagePaths    []string   `json:"image_paths"`
	SentAt        time.Time  `json:"sent_at"`
	CollectedAt   *time.Time `json:"collected_at,omitempty"`
}

// Consumed reports whether a collect already ran against this state.
func (s PollState) Consumed() bool {
	return s.CollectedAt != nil
}

// Handle returns the chat coordinates of the poll.
func (s PollState) Handle() PollHandle {
	return PollHandle{ChannelID: s.ChannelID, MessageID: s.PollMessageID, PollID: s.PollID}
}

// PollHandle identifies an open poll on the chat platform.
type PollHandle struct {
	ChannelID int64
	MessageID int
	PollID    string
}

// ReviewResult is the audit record stored as image-review.json.
type ReviewResult struct {
	SessionID      string    `json:"session_id,omitempty"`
	ApprovedImages []string  `json:"approved_images"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	ChannelID      int64     `json:"channel_id"`
	ReviewerID     *int64    `json:"reviewer_id"`
	TimedOut       bool      `json:"timed_out"`
	Cancelled      bool      `json:"cancelled"`
}

// Decision is the outcome of a collected poll.
type Decision struct {
	Cancelled bool
	Approved  []string
	// DefaultApplied is set when nobody voted and every image was approved.
	DefaultApplied bool
}

// Outcome label stored in the ledger.
func (d Decision) Outcome() string {
	switch {
	case d.Cancelled:
		return "cancelled"
	case d.DefaultApplied:
		return "approved_default"
	default:
		return "approved"
	}
}

// StageRun is one command invocation recorded in the ledger.
type StageRun struct {
	ID         string
	City       string
	Stage      string
	StartedAt  time.Time
	FinishedAt time.Time
	Units      int
	Failures   int
	Err        string
}
