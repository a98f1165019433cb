// Package store persists the configured game servers as a JSON array file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/gslauncher/internal/supervisor"
)

var (
	ErrNotFound = errors.New("server config not found")
	// ErrInvalid is returned when name or start_script is missing.
	ErrInvalid = errors.New("invalid server config")
)

// Record is one configured server.
type Record struct {
	ID              string            `json:"id" yaml:"id"`
	Name            string            `json:"name" yaml:"name"`
	StartScript     string            `json:"start_script" yaml:"start_script"`
	WorkDir         string            `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	Env             map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	ForceKillOnStop bool              `json:"force_kill_on_stop" yaml:"force_kill_on_stop"`
}

// NewRecord is the input of Add. The id is assigned by the store.
type NewRecord struct {
	Name            string            `json:"name"`
	StartScript     string            `json:"start_script"`
	WorkDir         string            `json:"cwd,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	ForceKillOnStop bool              `json:"force_kill_on_stop"`
}

// Patch updates the non-nil fields of a record.
type Patch struct {
	Name            *string            `json:"name,omitempty"`
	StartScript     *string            `json:"start_script,omitempty"`
	WorkDir         *string            `json:"cwd,omitempty"`
	Env             *map[string]string `json:"env,omitempty"`
	ForceKillOnStop *bool              `json:"force_kill_on_stop,omitempty"`
}

func (r Record) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.TrimSpace(r.StartScript) == "" {
		return fmt.Errorf("%w: start_script is required", ErrInvalid)
	}
	return nil
}

// Launch converts the record into a supervisor launch.
func (r Record) Launch(on supervisor.OutputFunc) supervisor.Launch {
	return supervisor.Launch{
		ID:       r.ID,
		Name:     r.Name,
		Script:   r.StartScript,
		WorkDir:  r.WorkDir,
		Env:      r.Env,
		OnOutput: on,
	}
}

// StopTimeout is the grace period for stopping this server: zero when the
// server is configured to be killed right away.
func (r Record) StopTimeout(def time.Duration) time.Duration {
	if r.ForceKillOnStop {
		return 0
	}
	return def
}

// Store reads and writes the server list. Every mutation rewrites the whole
// file through a temp file and rename.
type Store struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
}

// Open returns a store backed by path, creating an empty list if the file
// does not exist.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{path: path, log: log}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Info("creating server config file", slog.String("path", path))
		if err := s.save(nil); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// LoadAll returns every record in file order.
func (s *Store) LoadAll() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) Get(id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load()
	if err != nil {
		return Record{}, err
	}
	for _, r := range recs {
		if r.ID == id {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%s: %w", id, ErrNotFound)
}

// Add validates n, assigns a fresh id and appends it.
func (s *Store) Add(n NewRecord) (Record, error) {
	r := Record{
		ID:              uuid.NewString(),
		Name:            n.Name,
		StartScript:     n.StartScript,
		WorkDir:         n.WorkDir,
		Env:             n.Env,
		ForceKillOnStop: n.ForceKillOnStop,
	}
	if err := r.validate(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load()
	if err != nil {
		return Record{}, err
	}
	if err := s.save(append(recs, r)); err != nil {
		return Record{}, err
	}
	s.log.Info("added server", slog.String("server_id", r.ID), slog.String("name", r.Name))
	return r, nil
}

// Update applies p to the record with id.
func (s *Store) Update(id string, p Patch) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load()
	if err != nil {
		return Record{}, err
	}
	for i, r := range recs {
		if r.ID != id {
			continue
		}
		if p.Name != nil {
			r.Name = *p.Name
		}
		if p.StartScript != nil {
			r.StartScript = *p.StartScript
		}
		if p.WorkDir != nil {
			r.WorkDir = *p.WorkDir
		}
		if p.Env != nil {
			r.Env = *p.Env
		}
		if p.ForceKillOnStop != nil {
			r.ForceKillOnStop = *p.ForceKillOnStop
		}
		if err := r.validate(); err != nil {
			return Record{}, err
		}
		recs[i] = r
		if err := s.save(recs); err != nil {
			return Record{}, err
		}
		s.log.Info("updated server", slog.String("server_id", id))
		return r, nil
	}
	s.log.Warn("update for unknown server", slog.String("server_id", id))
	return Record{}, fmt.Errorf("%s: %w", id, ErrNotFound)
}

func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load()
	if err != nil {
		return err
	}
	out := recs[:0]
	for _, r := range recs {
		if r.ID != id {
			out = append(out, r)
		}
	}
	if len(out) == len(recs) {
		s.log.Warn("remove for unknown server", slog.String("server_id", id))
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err := s.save(out); err != nil {
		return err
	}
	s.log.Info("removed server", slog.String("server_id", id))
	return nil
}

func (s *Store) load() ([]Record, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil, nil
	}
	var recs []Record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return recs, nil
}

func (s *Store) save(recs []Record) error {
	if recs == nil {
		recs = []Record{}
	}
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal servers: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".servers-*.json")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp -> %s: %w", s.path, err)
	}
	s.log.Debug("saved server configs", slog.Int("count", len(recs)))
	return nil
}
