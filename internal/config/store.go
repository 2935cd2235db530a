package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RecoveredError reports that the persisted configuration could not be used
// and defaults were restored. Load still returns a usable Config with it.
type RecoveredError struct {
	Path string
	Err  error
}

func (e *RecoveredError) Error() string {
	return fmt.Sprintf("config %s unusable, defaults restored: %v", e.Path, e.Err)
}

func (e *RecoveredError) Unwrap() error {
	return e.Err
}

// Store persists a Config at a fixed path. The encoding follows the file
// extension: .yaml/.yml use YAML, anything else JSON.
type Store struct {
	path string
}

// NewStore returns a Store for path (DefaultPath when empty).
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path}
}

// Path returns the canonical file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted configuration, merges it over the defaults and
// validates it. Any read or parse failure restores the defaults, persists
// them and returns them together with a *RecoveredError.
func (s *Store) Load() (Config, error) {
	cfg := Default()
	cfg.PersistPath = s.path

	data, err := os.ReadFile(s.path)
	if err == nil {
		err = s.unmarshal(data, &cfg)
	}
	if err != nil {
		def := Default()
		def.PersistPath = s.path
		def = Validate(def)
		if serr := s.Save(def); serr != nil {
			return def, &RecoveredError{Path: s.path, Err: fmt.Errorf("%v (persist defaults: %w)", err, serr)}
		}
		return def, &RecoveredError{Path: s.path, Err: err}
	}

	// The store location wins over whatever the file claims.
	cfg.PersistPath = s.path
	return Validate(cfg), nil
}

// Save writes cfg to a temporary file next to the canonical path and
// renames it into place. If the rename fails the canonical file is
// overwritten directly.
func (s *Store) Save(cfg Config) error {
	data, err := s.marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := writeSync(tmp, data); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		if werr := writeSync(s.path, data); werr != nil {
			return fmt.Errorf("replace config: %v; direct write: %w", err, werr)
		}
		os.Remove(tmp)
	}
	return nil
}

func (s *Store) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

func (s *Store) unmarshal(data []byte, cfg *Config) error {
	if s.isYAML() {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse yaml: %w", err)
		}
		return nil
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse json: %w", err)
	}
	return nil
}

func (s *Store) marshal(cfg Config) ([]byte, error) {
	if s.isYAML() {
		return yaml.Marshal(cfg)
	}
	return json.MarshalIndent(cfg, "", "  ")
}

func writeSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
