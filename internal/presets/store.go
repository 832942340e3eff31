// Package presets provides a file-backed store of named, reusable run
// configurations. Adapted from the teacher's lack of an equivalent: this
// component is grounded instead in original_source's presets_store.py,
// translated from a dataclass-plus-Lock store into an equivalent Go type
// guarded by sync.Mutex with atomic temp-file-then-rename writes.
package presets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Update/Delete when the preset id is unknown.
var ErrNotFound = errors.New("preset not found")

// Preset is a named, persisted run configuration. Config is kept as a raw
// map so the store never needs to know the full shape of a run request.
type Preset struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// Validator checks a preset's config the same way a start-test request is
// validated, returning a non-nil error on the first violation found.
type Validator func(config map[string]any) error

// Store is a mutex-guarded, file-backed collection of presets. The backing
// file is read once, in New; Create, Update and Delete work on the
// in-memory slice and do not reload the file, so presets another process
// writes to the same file are not seen and are overwritten by the next save.
type Store struct {
	mu       sync.Mutex
	path     string
	presets  []Preset
	validate Validator
}

// New loads the store from path, creating no file until the first write.
func New(path string, validate Validator) (*Store, error) {
	s := &Store{path: path, validate: validate}
	presets, err := load(path)
	if err != nil {
		return nil, err
	}
	s.presets = presets
	return s, nil
}

// List returns a copy of all presets.
func (s *Store) List() []Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Preset, len(s.presets))
	copy(out, s.presets)
	return out
}

// Create validates config, assigns a fresh id, appends, and persists.
func (s *Store) Create(name string, config map[string]any) (Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateConfig(config); err != nil {
		return Preset{}, err
	}

	preset := Preset{ID: uuid.NewString(), Name: name, Config: config}
	s.presets = append(s.presets, preset)
	if err := save(s.path, s.presets); err != nil {
		s.presets = s.presets[:len(s.presets)-1]
		return Preset{}, err
	}
	return preset, nil
}

// Update replaces the name/config of an existing preset, validating config
// the same way Create does.
func (s *Store) Update(id, name string, config map[string]any) (Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateConfig(config); err != nil {
		return Preset{}, err
	}

	for i, p := range s.presets {
		if p.ID == id {
			updated := Preset{ID: id, Name: name, Config: config}
			prior := s.presets[i]
			s.presets[i] = updated
			if err := save(s.path, s.presets); err != nil {
				s.presets[i] = prior
				return Preset{}, err
			}
			return updated, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Delete removes a preset by id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.presets {
		if p.ID == id {
			removed := s.presets[i]
			s.presets = append(s.presets[:i], s.presets[i+1:]...)
			if err := save(s.path, s.presets); err != nil {
				s.presets = append(s.presets[:i], append([]Preset{removed}, s.presets[i:]...)...)
				return err
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *Store) validateConfig(config map[string]any) error {
	if s.validate == nil {
		return nil
	}
	return s.validate(config)
}

func load(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var raw []Preset
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil
	}
	presets := make([]Preset, 0, len(raw))
	for _, p := range raw {
		if p.ID == "" || p.Name == "" || p.Config == nil {
			continue
		}
		presets = append(presets, p)
	}
	return presets, nil
}

// save serializes presets to a temp file in the same directory, fsyncs it,
// then renames it over path, so a reader never observes a partial write.
func save(path string, presets []Preset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if presets == nil {
		presets = []Preset{}
	}
	data, err := json.MarshalIndent(presets, "", "  ")
	if err != nil {
		return err
	}

	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
