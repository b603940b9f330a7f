package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunInfo is the durable metadata for one pipeline run.
type RunInfo struct {
	RunID        string `json:"run_id"`
	TicketURL    string `json:"ticket_url"`
	CurrentStage string `json:"current_stage"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// Checkpoint is one persisted snapshot: enough to resume a run after a
// process restart.
type Checkpoint struct {
	RunID   string `json:"run_id"`
	Seq     int    `json:"seq"`
	Stage   string `json:"stage"`
	State   State  `json:"state"`
	SavedAt string `json:"saved_at"`
}

// Store persists run metadata and per-stage checkpoints as JSON on
// disk, one directory per run.
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.forgeline/runs, creating the
// directory if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".forgeline", "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

func (s *Store) runPath(runID string) string {
	return filepath.Join(s.runDir(runID), "run.json")
}

func (s *Store) checkpointDir(runID string) string {
	return filepath.Join(s.runDir(runID), "checkpoints")
}

// RunDir returns the directory for a run, for stage-local artifacts
// such as cached tickets and raw check output.
func (s *Store) RunDir(runID string) string {
	return s.runDir(runID)
}

// Create initialises a new run on disk and returns its metadata. The
// run id is a fresh UUID.
func (s *Store) Create(ticketURL, firstStage string) (*RunInfo, error) {
	runID := uuid.NewString()
	dir := s.runDir(runID)
	if err := os.MkdirAll(s.checkpointDir(runID), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	info := &RunInfo{
		RunID:        runID,
		TicketURL:    ticketURL,
		CurrentStage: firstStage,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := WriteJSON(s.runPath(runID), info); err != nil {
		return nil, fmt.Errorf("write run.json: %w", err)
	}
	return info, nil
}

// Get reads a run's metadata.
func (s *Store) Get(runID string) (*RunInfo, error) {
	var info RunInfo
	if err := ReadJSON(s.runPath(runID), &info); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, err
	}
	return &info, nil
}

// Update performs a read-modify-write of the run metadata.
func (s *Store) Update(runID string, fn func(*RunInfo)) error {
	info, err := s.Get(runID)
	if err != nil {
		return err
	}
	fn(info)
	info.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return WriteJSON(s.runPath(runID), info)
}

// SaveCheckpoint persists a stage snapshot and advances the run's
// recorded stage. Sequence numbers increase per run so checkpoints sort
// in execution order.
func (s *Store) SaveCheckpoint(runID, stage string, state State) (*Checkpoint, error) {
	seq, err := s.nextSeq(runID)
	if err != nil {
		return nil, err
	}
	cp := &Checkpoint{
		RunID:   runID,
		Seq:     seq,
		Stage:   stage,
		State:   state,
		SavedAt: time.Now().UTC().Format(time.RFC3339),
	}
	name := fmt.Sprintf("%04d-%s.json", seq, stage)
	if err := WriteJSON(filepath.Join(s.checkpointDir(runID), name), cp); err != nil {
		return nil, fmt.Errorf("write checkpoint: %w", err)
	}
	if err := s.Update(runID, func(info *RunInfo) {
		info.CurrentStage = stage
	}); err != nil {
		return nil, err
	}
	return cp, nil
}

// LatestCheckpoint returns the most recent checkpoint for a run, or nil
// if none has been written.
func (s *Store) LatestCheckpoint(runID string) (*Checkpoint, error) {
	names, err := s.checkpointNames(runID)
	if err != nil || len(names) == 0 {
		return nil, err
	}
	var cp Checkpoint
	path := filepath.Join(s.checkpointDir(runID), names[len(names)-1])
	if err := ReadJSON(path, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Checkpoints returns all checkpoints for a run in execution order.
func (s *Store) Checkpoints(runID string) ([]Checkpoint, error) {
	names, err := s.checkpointNames(runID)
	if err != nil {
		return nil, err
	}
	out := make([]Checkpoint, 0, len(names))
	for _, name := range names {
		var cp Checkpoint
		if err := ReadJSON(filepath.Join(s.checkpointDir(runID), name), &cp); err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *Store) checkpointNames(runID string) ([]string, error) {
	entries, err := os.ReadDir(s.checkpointDir(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoints: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) nextSeq(runID string) (int, error) {
	names, err := s.checkpointNames(runID)
	if err != nil {
		return 0, err
	}
	return len(names) + 1, nil
}

// List returns all runs, optionally filtered by status. Pass "" for no
// filter. Results are sorted newest first.
func (s *Store) List(statusFilter string) ([]RunInfo, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var runs []RunInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var info RunInfo
		if err := ReadJSON(filepath.Join(s.baseDir, e.Name(), "run.json"), &info); err != nil {
			continue // skip unreadable runs
		}
		if statusFilter != "" && info.Status != statusFilter {
			continue
		}
		runs = append(runs, info)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt > runs[j].CreatedAt })
	return runs, nil
}
