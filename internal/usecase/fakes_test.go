package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"EventPoster/internal/domain"
	"EventPoster/internal/ports"
)

var (
	_ ports.SnapshotStore = (*memStore)(nil)
	_ ports.ReviewChannel = (*fakeChannel)(nil)
	_ ports.RunLedger     = (*fakeLedger)(nil)
)

type memStore struct {
	mu        sync.Mutex
	fetched   *domain.FetchedSnapshot
	processed []string
	state     *domain.PollState
	review    *domain.ReviewResult
	failSave  bool

	// failPollSave makes SavePollState fail.
	failPollSave bool
}

func (m *memStore) SaveFetched(s *domain.FetchedSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = s
	return nil
}

func (m *memStore) LoadFetched() (*domain.FetchedSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetched, m.fetched != nil, nil
}

// SaveProcessed keeps every saved version as JSON so tests can inspect incremental writes.
func (m *memStore) SaveProcessed(s *domain.ProcessedSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("disk full")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.processed = append(m.processed, string(raw))
	return nil
}

func (m *memStore) LoadProcessed() (*domain.ProcessedSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := domain.NewVenueEvents[domain.EventDetail]()
	if len(m.processed) == 0 {
		return snapshot, false, nil
	}
	err := json.Unmarshal([]byte(m.processed[len(m.processed)-1]), snapshot)
	return snapshot, true, err
}

func (m *memStore) SavePollState(state domain.PollState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPollSave {
		return errors.New("read-only file system")
	}
	m.state = &state
	return nil
}

func (m *memStore) LoadPollState() (domain.PollState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return domain.PollState{}, false, nil
	}
	return *m.state, true, nil
}

func (m *memStore) ClearPollState() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = nil
	return nil
}

func (m *memStore) SaveReview(result domain.ReviewResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.review = &result
	return nil
}

type extractFunc func(ctx context.Context, ref domain.EventReference) (*domain.EventDetail, error)

func (f extractFunc) Extract(ctx context.Context, ref domain.EventReference) (*domain.EventDetail, error) {
	return f(ctx, ref)
}

type fakeFetcher struct {
	pages map[string]string
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url, _ string) (string, error) {
	f.calls = append(f.calls, url)
	html, ok := f.pages[url]
	if !ok {
		return "", errors.New("403 forbidden")
	}
	return html, nil
}

type fakeChannel struct {
	mu         sync.Mutex
	posted     []string
	question   string
	options    []string
	counts     []int
	endErr     error
	ended      []domain.PollHandle
	early      bool
	maxOptions int
	nextID     int
	closeBtns  []bool
	awaited    []domain.PollHandle
}

func (c *fakeChannel) PostImage(_ context.Context, path, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posted = append(c.posted, path)
	return nil
}

func (c *fakeChannel) OpenPoll(_ context.Context, question string, options []string, closeButton bool) (domain.PollHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.closeBtns = append(c.closeBtns, closeButton)
	c.question = question
	c.options = append([]string(nil), options...)
	return domain.PollHandle{ChannelID: -100, MessageID: c.nextID, PollID: "poll"}, nil
}

func (c *fakeChannel) EndPoll(_ context.Context, handle domain.PollHandle) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended = append(c.ended, handle)
	return c.counts, c.endErr
}

func (c *fakeChannel) AwaitClose(_ context.Context, handle domain.PollHandle, _ int64, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.awaited = append(c.awaited, handle)
	return c.early, nil
}

func (c *fakeChannel) MaxOptions() int {
	if c.maxOptions == 0 {
		return 10
	}
	return c.maxOptions
}

type fakeLedger struct {
	mu         sync.Mutex
	runs       []domain.StageRun
	registered []string
	superseded []string
	claimed    map[string]bool
	outcomes   map[string]string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{claimed: map[string]bool{}, outcomes: map[string]string{}}
}

func (l *fakeLedger) RecordRun(_ context.Context, run domain.StageRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, run)
	return nil
}

func (l *fakeLedger) RegisterPoll(_ context.Context, _ string, state domain.PollState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registered = append(l.registered, state.SessionID)
	return nil
}

func (l *fakeLedger) SupersedePoll(_ context.Context, id string, _ time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.superseded = append(l.superseded, id)
	return nil
}

func (l *fakeLedger) ClaimPoll(_ context.Context, id string, _ time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimed[id] {
		return false, nil
	}
	l.claimed[id] = true
	return true, nil
}

func (l *fakeLedger) CompletePoll(_ context.Context, id, outcome string, _ int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes[id] = outcome
	return nil
}

type fakeBuilder struct{}

func (fakeBuilder) EventPage(detail domain.EventDetail, venue, src string) (string, error) {
	return "event|" + venue + "|" + detail.Title + "|" + src, nil
}

func (fakeBuilder) TitlePage(venues []string, _ time.Time, background string) (string, error) {
	return "title|" + strings.Join(venues, ",") + "|" + background, nil
}

// fakeRenderer writes the page into outPath and fails pages containing FAIL.
type fakeRenderer struct {
	mu    sync.Mutex
	pages map[string]string
}

func (r *fakeRenderer) Render(_ context.Context, html, outPath string) error {
	if strings.Contains(html, "FAIL") {
		return errors.New("browser crashed")
	}
	r.mu.Lock()
	if r.pages == nil {
		r.pages = map[string]string{}
	}
	r.pages[outPath] = html
	r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte(html), 0o644)
}

func (r *fakeRenderer) page(outPath string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pages[outPath]
}

type fakeInliner struct{}

func (fakeInliner) InlineURL(_ context.Context, url string) (string, error) {
	if strings.Contains(url, "broken") {
		return "", errors.New("404")
	}
	return "data:image/jpeg;base64," + url, nil
}

func (fakeInliner) InlineFile(path string) (string, error) {
	return "data:image/png;base64," + filepath.Base(path), nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	files    []string
}

func (n *fakeNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return nil
}

func (n *fakeNotifier) NotifyFile(_ context.Context, path, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.files = append(n.files, path)
	return nil
}

func (n *fakeNotifier) joined() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return strings.Join(n.messages, "\n")
}

type fakePublisher struct {
	err      error
	debug    string
	requests []domain.PublishRequest
}

func (p *fakePublisher) Publish(_ context.Context, req domain.PublishRequest) (domain.PublishResult, error) {
	p.requests = append(p.requests, req)
	return domain.PublishResult{DebugArtifact: p.debug}, p.err
}

func writeImages(t interface {
	Helper()
	Fatalf(string, ...any)
}, dir string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(rel), 0o644); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}
}
