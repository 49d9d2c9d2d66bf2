package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"EventPoster/internal/domain"
	"EventPoster/internal/ports"
)

// SnapshotStore keeps stage snapshots as JSON files under the city scratch root.
type SnapshotStore struct {
	paths Paths
}

var _ ports.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore binds the store to a city's paths.
func NewSnapshotStore(paths Paths) *SnapshotStore {
	return &SnapshotStore{paths: paths}
}

// SaveFetched overwrites fetched-events.json.
func (s *SnapshotStore) SaveFetched(snapshot *domain.FetchedSnapshot) error {
	return writeJSON(s.paths.Fetched(), snapshot)
}

// LoadFetched reads fetched-events.json; found is false when the fetch stage never ran.
func (s *SnapshotStore) LoadFetched() (*domain.FetchedSnapshot, bool, error) {
	snapshot := domain.NewVenueEvents[domain.EventReference]()
	found, err := readJSON(s.paths.Fetched(), snapshot)
	return snapshot, found, err
}

// SaveProcessed overwrites processed-events.json wholesale.
func (s *SnapshotStore) SaveProcessed(snapshot *domain.ProcessedSnapshot) error {
	return writeJSON(s.paths.Processed(), snapshot)
}

// LoadProcessed reads processed-events.json.
func (s *SnapshotStore) LoadProcessed() (*domain.ProcessedSnapshot, bool, error) {
	snapshot := domain.NewVenueEvents[domain.EventDetail]()
	found, err := readJSON(s.paths.Processed(), snapshot)
	return snapshot, found, err
}

// SavePollState overwrites poll-state.json.
func (s *SnapshotStore) SavePollState(state domain.PollState) error {
	return writeJSON(s.paths.PollState(), state)
}

// LoadPollState reads poll-state.json.
func (s *SnapshotStore) LoadPollState() (domain.PollState, bool, error) {
	var state domain.PollState
	found, err := readJSON(s.paths.PollState(), &state)
	return state, found, err
}

// ClearPollState removes poll-state.json so a stale poll can never be collected.
func (s *SnapshotStore) ClearPollState() error {
	if err := os.Remove(s.paths.PollState()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove poll state: %w", err)
	}
	return nil
}

// SaveReview overwrites image-review.json.
func (s *SnapshotStore) SaveReview(result domain.ReviewResult) error {
	if result.ApprovedImages == nil {
		result.ApprovedImages = []string{}
	}
	return writeJSON(s.paths.Review(), result)
}

// writeJSON replaces path atomically so a crash never leaves half a snapshot behind.
func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) (bool, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}
