// Package storage persists per-project state under <project>/.onyx/.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Project statuses.
const (
	StatusCreating = "creating"
	StatusPlanned  = "planned"
	StatusBuilding = "building"
	StatusReady    = "ready"
	StatusFailing  = "failing"
)

// Project is the generator's record of one app.
type Project struct {
	Name      string    `json:"name"`
	Idea      string    `json:"idea,omitempty"`
	BundleID  string    `json:"bundle_id,omitempty"`
	Status    string    `json:"status"`
	Layers    []string  `json:"layers,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectStore reads and writes project.json.
type ProjectStore struct {
	mu  sync.Mutex
	dir string // .onyx/ directory
}

// NewProjectStore creates a project store at the given directory.
func NewProjectStore(dir string) *ProjectStore {
	return &ProjectStore{dir: dir}
}

func (s *ProjectStore) filePath() string {
	return filepath.Join(s.dir, "project.json")
}

// Load reads the project from disk. It returns nil, nil when none exists.
func (s *ProjectStore) Load() (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadUnsafe()
}

func (s *ProjectStore) loadUnsafe() (*Project, error) {
	data, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read project: %w", err)
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse project: %w", err)
	}
	return &p, nil
}

// Save writes the project to disk and stamps UpdatedAt.
func (s *ProjectStore) Save(p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveUnsafe(p)
}

func (s *ProjectStore) saveUnsafe(p *Project) error {
	p.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(s.filePath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write project: %w", err)
	}
	return nil
}

// Create records a new project.
func (s *ProjectStore) Create(name, idea, bundleID string) (*Project, error) {
	now := time.Now()
	p := &Project{
		Name:      name,
		Idea:      idea,
		BundleID:  bundleID,
		Status:    StatusCreating,
		CreatedAt: now,
	}
	if err := s.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateStatus changes the stored status.
func (s *ProjectStore) UpdateStatus(status string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.loadUnsafe()
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("no project in %s", s.dir)
	}
	p.Status = status
	if err := s.saveUnsafe(p); err != nil {
		return nil, err
	}
	return p, nil
}
