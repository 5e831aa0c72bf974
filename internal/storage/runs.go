package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/XAVware/ONYX/internal/diagnostics"
	"github.com/XAVware/ONYX/internal/fixloop"
	"github.com/google/uuid"
)

// maxRuns bounds runs.json; older runs are dropped first.
const maxRuns = 50

// Run is one recorded fix-loop run.
type Run struct {
	ID           string                   `json:"id"`
	Command      string                   `json:"command"`
	Provider     string                   `json:"provider,omitempty"`
	Model        string                   `json:"model,omitempty"`
	StartedAt    time.Time                `json:"started_at"`
	FinishedAt   time.Time                `json:"finished_at"`
	Status       fixloop.Status           `json:"status"`
	Builds       int                      `json:"builds"`
	Iterations   int                      `json:"iterations"`
	NoOpRounds   int                      `json:"no_op_rounds,omitempty"`
	Stalled      bool                     `json:"stalled,omitempty"`
	FilesTouched []string                 `json:"files_touched,omitempty"`
	LinesAdded   int                      `json:"lines_added,omitempty"`
	LinesRemoved int                      `json:"lines_removed,omitempty"`
	Remaining    []diagnostics.Diagnostic `json:"remaining,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

// Duration is how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// NewRun summarizes a fix-loop result for the run log.
func NewRun(command string, started time.Time, res *fixloop.Result) Run {
	run := Run{
		Command:    command,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Status:     res.Status,
		Builds:     res.Builds,
		Iterations: len(res.Iterations),
		Stalled:    res.Stalled,
		Remaining:  res.Remaining(),
	}
	touched := make(map[string]struct{})
	for _, it := range res.Iterations {
		if it.NoOp {
			run.NoOpRounds++
		}
		for _, f := range it.FilesTouched {
			touched[f] = struct{}{}
		}
		for _, c := range it.Changes {
			run.LinesAdded += c.Added
			run.LinesRemoved += c.Removed
		}
	}
	for f := range touched {
		run.FilesTouched = append(run.FilesTouched, f)
	}
	sort.Strings(run.FilesTouched)
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	return run
}

// RunStore keeps the run log of one project in a local JSON file.
type RunStore struct {
	mu  sync.Mutex
	dir string // .onyx/ directory
}

// NewRunStore creates a run store at the given directory.
func NewRunStore(dir string) *RunStore {
	return &RunStore{dir: dir}
}

func (s *RunStore) filePath() string {
	return filepath.Join(s.dir, "runs.json")
}

// Append stores run, assigning an ID when it has none.
func (s *RunStore) Append(run Run) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs, err := s.readUnsafe()
	if err != nil {
		runs = nil // Start fresh if file is corrupted
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	runs = append(runs, run)
	if len(runs) > maxRuns {
		runs = runs[len(runs)-maxRuns:]
	}
	return run, s.writeUnsafe(runs)
}

// List returns every stored run, oldest first.
func (s *RunStore) List() ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readUnsafe()
}

// Recent returns the last n runs.
func (s *RunStore) Recent(n int) ([]Run, error) {
	runs, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(runs) <= n {
		return runs, nil
	}
	return runs[len(runs)-n:], nil
}

// Get returns the run whose ID starts with prefix.
func (s *RunStore) Get(prefix string) (*Run, error) {
	runs, err := s.List()
	if err != nil {
		return nil, err
	}
	var found *Run
	for i := range runs {
		if !strings.HasPrefix(runs[i].ID, prefix) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("run id %q is ambiguous", prefix)
		}
		found = &runs[i]
	}
	if found == nil {
		return nil, fmt.Errorf("run %q not found", prefix)
	}
	return found, nil
}

// Clear removes all runs.
func (s *RunStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeUnsafe(nil)
}

func (s *RunStore) readUnsafe() ([]Run, error) {
	data, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}

	var runs []Run
	if err := json.Unmarshal(data, &runs); err != nil {
		return nil, fmt.Errorf("failed to parse runs: %w", err)
	}
	return runs, nil
}

func (s *RunStore) writeUnsafe(runs []Run) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal runs: %w", err)
	}

	return os.WriteFile(s.filePath(), data, 0o644)
}
