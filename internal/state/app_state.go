package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Themes accepted by SetPreferences.
const (
	ThemeSystem = "system"
	ThemeLight  = "light"
	ThemeDark   = "dark"
)

// ErrUnknownTheme is returned by SetPreferences for a theme outside the list above.
var ErrUnknownTheme = errors.New("unknown theme")

// PetProfile describes the viewer's pet; Behaviors drive personalized discovery.
type PetProfile struct {
	Name      string   `yaml:"name,omitempty" json:"name,omitempty"`
	Species   string   `yaml:"species,omitempty" json:"species,omitempty"`
	Breed     string   `yaml:"breed,omitempty" json:"breed,omitempty"`
	Behaviors []string `yaml:"behaviors,omitempty" json:"behaviors,omitempty"`
}

// Preferences is the per-viewer slice of state that survives restarts.
type Preferences struct {
	PetProfile PetProfile `yaml:"petProfile" json:"petProfile"`
	Following  []string   `yaml:"following" json:"following"`
	Theme      string     `yaml:"theme" json:"theme"`
}

func (p Preferences) clone() Preferences {
	out := p
	out.PetProfile.Behaviors = append([]string(nil), p.PetProfile.Behaviors...)
	out.Following = append([]string(nil), p.Following...)
	return out
}

type persisted struct {
	Viewers map[string]Preferences `yaml:"viewers"`
}

// AppState is created once by the composition root and passed to the
// services that need it.
type AppState struct {
	Posts *Mirror

	path   string
	mu     sync.RWMutex
	prefs  map[string]Preferences
	saveMu sync.Mutex
}

// New creates an empty state persisted at path. An empty path keeps
// preferences in memory only.
func New(path string) *AppState {
	return &AppState{Posts: NewMirror(), path: path, prefs: make(map[string]Preferences)}
}

// Load reads persisted preferences from path; a missing file yields empty state.
func Load(path string) (*AppState, error) {
	s := New(path)
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var doc persisted
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", path, err)
	}
	for id, p := range doc.Viewers {
		s.prefs[id] = p.clone()
	}
	return s, nil
}

// Preferences returns the viewer's preferences, with defaults for unknown viewers.
func (s *AppState) Preferences(viewerID string) Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[viewerID]
	if !ok {
		return Preferences{Theme: ThemeSystem, Following: []string{}}
	}
	out := p.clone()
	if out.Following == nil {
		out.Following = []string{}
	}
	return out
}

// SetPreferences replaces the viewer's pet profile and theme and persists.
// Following is owned by SetFollowing and left unchanged.
func (s *AppState) SetPreferences(viewerID string, p Preferences) error {
	switch p.Theme {
	case "":
		p.Theme = ThemeSystem
	case ThemeSystem, ThemeLight, ThemeDark:
	default:
		return fmt.Errorf("%w %q", ErrUnknownTheme, p.Theme)
	}

	s.mu.Lock()
	cur := s.prefs[viewerID]
	p.Following = cur.Following
	s.prefs[viewerID] = p.clone()
	s.mu.Unlock()
	return s.Save()
}

// SetFollowing records the viewer's following set and persists.
func (s *AppState) SetFollowing(viewerID string, following []string) error {
	ids := append([]string(nil), following...)
	sort.Strings(ids)

	s.mu.Lock()
	cur, ok := s.prefs[viewerID]
	if !ok {
		cur.Theme = ThemeSystem
	}
	cur.Following = ids
	s.prefs[viewerID] = cur
	s.mu.Unlock()
	return s.Save()
}

// Save writes preferences to disk atomically.
func (s *AppState) Save() error {
	if s.path == "" {
		return nil
	}
	// Snapshot, write and rename as one step so an older snapshot never
	// replaces a newer file.
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	doc := persisted{Viewers: make(map[string]Preferences, len(s.prefs))}
	for id, p := range s.prefs {
		doc.Viewers[id] = p.clone()
	}
	s.mu.RUnlock()

	raw, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.yml")
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write state: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}
