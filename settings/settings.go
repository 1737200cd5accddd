// Package settings keeps the user's durable voice and camera preferences.
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/bosley/signspeak/camera"
	"github.com/bosley/signspeak/speech"
)

var ErrInvalidSettings = errors.New("invalid settings")

// Settings is everything the settings panel edits.
type Settings struct {
	speech.Profile `yaml:",inline"`

	CameraQuality camera.Quality `yaml:"camera_quality" json:"cameraQuality"`
	SaveHistory   bool           `yaml:"save_history" json:"saveHistory"`
}

// Defaults returns the out-of-the-box settings.
func Defaults() Settings {
	return Settings{
		Profile:       speech.DefaultProfile(),
		CameraQuality: camera.QualityMedium,
		SaveHistory:   true,
	}
}

func (s Settings) Validate() error {
	if err := s.Profile.Validate(); err != nil {
		return err
	}
	if !s.CameraQuality.Valid() {
		return fmt.Errorf("%w: camera quality %q", ErrInvalidSettings, s.CameraQuality)
	}
	return nil
}

// FileStore persists settings as YAML.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load returns the stored settings. found is false when nothing has been
// saved yet; the returned value is then the defaults.
func (fs *FileStore) Load() (s Settings, found bool, err error) {
	s = Defaults()

	data, err := os.ReadFile(fs.Path)
	if errors.Is(err, os.ErrNotExist) {
		return s, false, nil
	}
	if err != nil {
		return s, false, fmt.Errorf("failed to read settings: %w", err)
	}

	// Fields missing from the file keep their defaults.
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Defaults(), false, fmt.Errorf("failed to parse settings: %w", err)
	}
	return s, true, nil
}

func (fs *FileStore) Save(s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if dir := filepath.Dir(fs.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}

	tmp := fs.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, fs.Path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}

// Store is the persistence the Manager writes through.
type Store interface {
	Load() (Settings, bool, error)
	Save(Settings) error
}

// Manager holds the live settings. Every change is validated and written
// to the store before it becomes visible.
type Manager struct {
	store Store

	mu       sync.RWMutex
	current  Settings
	onChange []func(Settings)
}

// NewManager loads the stored settings, falling back to defaults when the
// store is empty or unreadable.
func NewManager(store Store) *Manager {
	s, found, err := store.Load()
	switch {
	case err != nil:
		slog.Warn("Failed to load settings, using defaults", "error", err)
		s = Defaults()
	case !found:
		slog.Info("No stored settings, using defaults")
	case s.Validate() != nil:
		slog.Warn("Stored settings are invalid, using defaults", "error", s.Validate())
		s = Defaults()
	}
	return &Manager{store: store, current: s}
}

// OnChange registers fn to run after every successful update, and once
// immediately with the current value.
func (m *Manager) OnChange(fn func(Settings)) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	s := m.current
	m.mu.Unlock()
	fn(s)
}

func (m *Manager) Current() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Profile is the voice profile passed to speech calls.
func (m *Manager) Profile() speech.Profile {
	return m.Current().Profile
}

func (m *Manager) Update(s Settings) (Settings, error) {
	if err := s.Validate(); err != nil {
		return m.Current(), err
	}

	m.mu.Lock()
	if err := m.store.Save(s); err != nil {
		m.mu.Unlock()
		return m.Current(), err
	}
	m.current = s
	hooks := append([]func(Settings){}, m.onChange...)
	m.mu.Unlock()

	slog.Info("Settings updated",
		"rate", s.Rate,
		"pitch", s.Pitch,
		"volume", s.Volume,
		"language", s.Language,
		"autoSpeak", s.AutoSpeak,
		"threshold", s.ConfidenceThreshold,
		"cameraQuality", s.CameraQuality,
		"saveHistory", s.SaveHistory)

	for _, fn := range hooks {
		fn(s)
	}
	return s, nil
}

// Reset restores and persists the defaults.
func (m *Manager) Reset() (Settings, error) {
	return m.Update(Defaults())
}
