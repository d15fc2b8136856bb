// ABOUTME: Persisted server selection
// ABOUTME: Stores the chosen server URL and recently used servers as YAML
package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aaxion/aaxion-discovery/pkg/discovery"
)

// MaxRecent caps the recent server list
const MaxRecent = 10

// State is the persisted selection
type State struct {
	ServerURL string    `yaml:"server_url"`
	Hostname  string    `yaml:"hostname"`
	Fullname  string    `yaml:"fullname"`
	UpdatedAt time.Time `yaml:"updated_at"`
	Recent    []Recent  `yaml:"recent,omitempty"`
}

// Recent is a previously selected server
type Recent struct {
	Fullname string    `yaml:"fullname"`
	Hostname string    `yaml:"hostname"`
	URL      string    `yaml:"url"`
	SeenAt   time.Time `yaml:"seen_at"`
}

// Remember makes rec the current selection and moves it to the front of
// the recent list
func (s *State) Remember(rec discovery.ServiceRecord, url string, now time.Time) {
	s.ServerURL = url
	s.Hostname = rec.Hostname
	s.Fullname = rec.Fullname
	s.UpdatedAt = now

	recent := []Recent{{Fullname: rec.Fullname, Hostname: rec.Hostname, URL: url, SeenAt: now}}
	for _, r := range s.Recent {
		if r.Fullname == rec.Fullname {
			continue
		}
		recent = append(recent, r)
		if len(recent) == MaxRecent {
			break
		}
	}
	s.Recent = recent
}

// StateStore reads and writes the state file
type StateStore struct {
	path string
}

// NewStateStore creates a store for path
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Path returns the state file location
func (s *StateStore) Path() string {
	return s.path
}

// Load reads the state; a missing file yields an empty state
func (s *StateStore) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state %s: %w", s.path, err)
	}
	return &st, nil
}

// Save writes the state atomically
func (s *StateStore) Save(st *State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace state: %w", err)
	}
	return nil
}
