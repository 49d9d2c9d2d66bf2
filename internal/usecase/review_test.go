package usecase

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"EventPoster/internal/ports"
)

func TestDecide(t *testing.T) {
	t.Parallel()

	images := []string{"A/a.png", "A/b.png", "B/c.png"}

	tests := []struct {
		name       string
		counts     []int
		hasCancel  bool
		precedence bool
		cancelled  bool
		approved   []string
		defaulted  bool
	}{
		{name: "no votes approves all", counts: []int{0, 0, 0, 0}, hasCancel: true, precedence: true, approved: images, defaulted: true},
		{name: "no counts approves all", counts: nil, hasCancel: true, precedence: true, approved: images, defaulted: true},
		{name: "image votes", counts: []int{1, 0, 2, 0}, hasCancel: true, precedence: true, approved: []string{"A/a.png", "B/c.png"}},
		{name: "cancel only", counts: []int{0, 0, 0, 1}, hasCancel: true, precedence: true, cancelled: true},
		{name: "cancel wins over image votes", counts: []int{3, 0, 0, 1}, hasCancel: true, precedence: true, cancelled: true},
		{name: "image votes win without precedence", counts: []int{3, 0, 0, 1}, hasCancel: true, precedence: false, approved: []string{"A/a.png"}},
		{name: "cancel only without precedence", counts: []int{0, 0, 0, 2}, hasCancel: true, precedence: false, cancelled: true},
		{name: "legacy ignores trailing counts", counts: []int{0, 1, 0, 5, 7}, hasCancel: false, precedence: true, approved: []string{"A/b.png"}},
		{name: "short counts", counts: []int{1}, hasCancel: true, precedence: true, approved: []string{"A/a.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := Decide(tt.counts, images, tt.hasCancel, tt.precedence)
			if d.Cancelled != tt.cancelled {
				t.Fatalf("cancelled = %v, want %v", d.Cancelled, tt.cancelled)
			}
			if !reflect.DeepEqual(d.Approved, tt.approved) && !(len(d.Approved) == 0 && len(tt.approved) == 0) {
				t.Fatalf("approved = %v, want %v", d.Approved, tt.approved)
			}
			if d.DefaultApplied != tt.defaulted {
				t.Fatalf("default = %v, want %v", d.DefaultApplied, tt.defaulted)
			}
		})
	}
}

func newTestReview(t *testing.T, channel *fakeChannel, store *memStore, ledger *fakeLedger) (*ReviewWorkflow, string) {
	t.Helper()

	dir := t.TempDir()
	writeImages(t, dir, "Sono/a.png", "Sono/b.png", "Fleda/c.png", TitleImage, "html/Sono/a.html.png")

	ids := 0
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return NewReviewWorkflow(ReviewDeps{
		Channel:          channel,
		Store:            store,
		Ledger:           ledger,
		City:             "Brno",
		ImagesDir:        dir,
		CancelLabel:      "Cancel",
		CancelPrecedence: true,
		Now:              func() time.Time { return now },
		NewSessionID: func() string {
			ids++
			return "session-" + string(rune('0'+ids))
		},
	}), dir
}

func TestSendPersistsPollState(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{}
	store := &memStore{}
	ledger := newFakeLedger()
	review, _ := newTestReview(t, channel, store, ledger)

	state, err := review.Send(context.Background())
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	want := []string{"Fleda/c.png", "Sono/a.png", "Sono/b.png"}
	if !reflect.DeepEqual(state.ImagePaths, want) {
		t.Fatalf("image paths = %v, want %v", state.ImagePaths, want)
	}
	if len(channel.posted) != 3 {
		t.Fatalf("expected 3 posted images, got %d", len(channel.posted))
	}
	if last := channel.options[len(channel.options)-1]; last != "Cancel" {
		t.Fatalf("last option should be cancel, got %q", last)
	}
	if channel.options[0] != "1. Fleda/c.png" {
		t.Fatalf("unexpected first option %q", channel.options[0])
	}
	if !reflect.DeepEqual(channel.closeBtns, []bool{false}) {
		t.Fatalf("deferred poll must not carry a close button: %v", channel.closeBtns)
	}

	saved, found, _ := store.LoadPollState()
	if !found || saved.SessionID != "session-1" || saved.PollMessageID != 1 || saved.Consumed() {
		t.Fatalf("unexpected saved state: %+v", saved)
	}
	if !reflect.DeepEqual(ledger.registered, []string{"session-1"}) {
		t.Fatalf("ledger should register the session, got %v", ledger.registered)
	}
}

func TestSendCapsOptionsLeavingRoomForCancel(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{maxOptions: 3}
	store := &memStore{}
	review, _ := newTestReview(t, channel, store, newFakeLedger())

	state, err := review.Send(context.Background())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(state.ImagePaths) != 2 || len(channel.options) != 3 {
		t.Fatalf("expected 2 images plus cancel, got %v / %v", state.ImagePaths, channel.options)
	}
}

func TestSendWithoutImages(t *testing.T) {
	t.Parallel()

	review := NewReviewWorkflow(ReviewDeps{Channel: &fakeChannel{}, Store: &memStore{}, ImagesDir: t.TempDir()})
	if _, err := review.Send(context.Background()); !errors.Is(err, ErrNothingToReview) {
		t.Fatalf("expected ErrNothingToReview, got %v", err)
	}
}

func TestCollectWithoutState(t *testing.T) {
	t.Parallel()

	review, _ := newTestReview(t, &fakeChannel{}, &memStore{}, newFakeLedger())
	if _, err := review.Collect(context.Background()); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}

func TestCollectDefaultsToAllImages(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{}
	store := &memStore{}
	ledger := newFakeLedger()
	review, _ := newTestReview(t, channel, store, ledger)

	if _, err := review.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}
	channel.counts = []int{0, 0, 0, 0}

	decision, err := review.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if decision.Cancelled || !decision.DefaultApplied || len(decision.Approved) != 3 {
		t.Fatalf("unexpected decision: %+v", decision)
	}
	if store.review == nil || !store.review.TimedOut || len(store.review.ApprovedImages) != 3 {
		t.Fatalf("unexpected review audit: %+v", store.review)
	}
	if ledger.outcomes["session-1"] != "approved_default" {
		t.Fatalf("unexpected ledger outcome %q", ledger.outcomes["session-1"])
	}
}

func TestCollectCancelTakesPrecedence(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{}
	store := &memStore{}
	review, _ := newTestReview(t, channel, store, newFakeLedger())

	if _, err := review.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}
	channel.counts = []int{1, 1, 1, 1}

	decision, err := review.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !decision.Cancelled || len(decision.Approved) != 0 {
		t.Fatalf("cancel should win: %+v", decision)
	}
	if !store.review.Cancelled {
		t.Fatal("review audit should record the cancel")
	}
}

func TestCollectTwiceIsRejected(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{counts: []int{0, 1, 0, 0}}
	store := &memStore{}
	review, _ := newTestReview(t, channel, store, newFakeLedger())

	if _, err := review.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}
	decision, err := review.Collect(context.Background())
	if err != nil {
		t.Fatalf("first collect: %v", err)
	}
	if !reflect.DeepEqual(decision.Approved, []string{"Sono/a.png"}) {
		t.Fatalf("unexpected approval: %v", decision.Approved)
	}

	if _, err := review.Collect(context.Background()); !errors.Is(err, ErrAlreadyCollected) {
		t.Fatalf("expected ErrAlreadyCollected, got %v", err)
	}
	if len(channel.ended) != 1 {
		t.Fatalf("second collect must not touch the poll, ended %d times", len(channel.ended))
	}
}

func TestCollectLosesLedgerClaim(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{}
	store := &memStore{}
	ledger := newFakeLedger()
	review, _ := newTestReview(t, channel, store, ledger)

	if _, err := review.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}
	ledger.claimed["session-1"] = true

	if _, err := review.Collect(context.Background()); !errors.Is(err, ErrAlreadyCollected) {
		t.Fatalf("expected ErrAlreadyCollected, got %v", err)
	}
	state, _, _ := store.LoadPollState()
	if !state.Consumed() {
		t.Fatal("state should follow the ledger and read as consumed")
	}
	if store.review != nil || ledger.outcomes["session-1"] != "" {
		t.Fatalf("losing collect must not record a decision: %+v %v", store.review, ledger.outcomes)
	}
}

func TestCollectStateSaveFailureKeepsSessionClaimable(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{counts: []int{1, 0, 0, 0}}
	store := &memStore{}
	ledger := newFakeLedger()
	review, _ := newTestReview(t, channel, store, ledger)

	if _, err := review.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}

	store.failPollSave = true
	if _, err := review.Collect(context.Background()); err == nil || !strings.Contains(err.Error(), "mark poll state consumed") {
		t.Fatalf("expected save failure, got %v", err)
	}
	if ledger.claimed["session-1"] {
		t.Fatal("session must stay unclaimed when the state could not be saved")
	}

	store.failPollSave = false
	decision, err := review.Collect(context.Background())
	if err != nil {
		t.Fatalf("retried collect: %v", err)
	}
	if !reflect.DeepEqual(decision.Approved, []string{"Fleda/c.png"}) {
		t.Fatalf("unexpected approval: %v", decision.Approved)
	}
	if !ledger.claimed["session-1"] || ledger.outcomes["session-1"] != "approved" {
		t.Fatalf("retry should claim and complete the session: %v %v", ledger.claimed, ledger.outcomes)
	}
}

func TestCollectFailsWhenVotesAreUnknown(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{}
	store := &memStore{}
	ledger := newFakeLedger()
	review, _ := newTestReview(t, channel, store, ledger)

	if _, err := review.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}
	channel.endErr = fmt.Errorf("%w: message 1", ports.ErrVotesUnknown)

	decision, err := review.Collect(context.Background())
	if !errors.Is(err, ports.ErrVotesUnknown) {
		t.Fatalf("expected ErrVotesUnknown, got %+v, %v", decision, err)
	}
	if len(decision.Approved) != 0 {
		t.Fatalf("nothing may be approved without votes: %v", decision.Approved)
	}

	state, _, _ := store.LoadPollState()
	if state.Consumed() || ledger.claimed["session-1"] || store.review != nil {
		t.Fatalf("failed collect must leave the session open: %+v", state)
	}
}

func TestSendSupersedesUncollectedPoll(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{}
	store := &memStore{}
	ledger := newFakeLedger()
	review, _ := newTestReview(t, channel, store, ledger)

	if _, err := review.Send(context.Background()); err != nil {
		t.Fatalf("first send: %v", err)
	}
	second, err := review.Send(context.Background())
	if err != nil {
		t.Fatalf("second send: %v", err)
	}

	if second.SessionID != "session-2" || second.PollMessageID != 2 {
		t.Fatalf("unexpected second state: %+v", second)
	}
	if len(channel.ended) != 1 || channel.ended[0].MessageID != 1 {
		t.Fatalf("stale poll should be ended, got %+v", channel.ended)
	}
	if !reflect.DeepEqual(ledger.superseded, []string{"session-1"}) {
		t.Fatalf("ledger supersede = %v", ledger.superseded)
	}

	saved, _, _ := store.LoadPollState()
	if saved.SessionID != "session-2" {
		t.Fatalf("state should point to the new poll, got %s", saved.SessionID)
	}
}

func TestRunLegacyHasNoCancelOption(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{early: true, counts: []int{0, 0, 1}}
	store := &memStore{}
	review, _ := newTestReview(t, channel, store, newFakeLedger())

	decision, err := review.RunLegacy(context.Background())
	if err != nil {
		t.Fatalf("legacy review: %v", err)
	}
	if !reflect.DeepEqual(decision.Approved, []string{"Sono/b.png"}) {
		t.Fatalf("unexpected approval: %v", decision.Approved)
	}
	for _, opt := range channel.options {
		if opt == "Cancel" {
			t.Fatal("legacy poll must not offer cancel")
		}
	}
	if store.review == nil || store.review.TimedOut {
		t.Fatalf("early close should not be recorded as timeout: %+v", store.review)
	}
	if !reflect.DeepEqual(channel.closeBtns, []bool{true}) {
		t.Fatalf("legacy poll needs the close button: %v", channel.closeBtns)
	}
	if len(channel.awaited) != 1 || channel.awaited[0].MessageID != 1 {
		t.Fatalf("wait should target the legacy poll: %+v", channel.awaited)
	}
}

func TestOptionLabelsAreTruncated(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("ž", 80)
	if got := truncateRunes(long, maxLabelRunes); len([]rune(got)) != maxLabelRunes {
		t.Fatalf("expected %d runes, got %d", maxLabelRunes, len([]rune(got)))
	}
	if got := truncateRunes("short", maxLabelRunes); got != "short" {
		t.Fatalf("short label changed: %q", got)
	}
}
