package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Presets are the built-in spring settings, on the panel scale.
var Presets = map[string]SpringConfig{
	"default": {Delay: 3, Recursion: 5, Strength: 1, SubSteps: 1, Threshold: 0.001},
	"hair":    {Delay: 4, Recursion: 6, Strength: 1, Inertia: 0.3, SubSteps: 2, Threshold: 0.001},
	"tail":    {Delay: 6, Recursion: 8, Strength: 2, Inertia: 0.5, SubSteps: 2, Threshold: 0.001},
	"cloth":   {Delay: 8, Recursion: 3, Strength: 1, Tension: 0.2, SubSteps: 4, Threshold: 0.0005},
	"antenna": {Delay: 2, Recursion: 9, Strength: 4, Inertia: 0.7, SubSteps: 2, Threshold: 0.001},
	"stiff":   {Delay: 1, Recursion: 1, Strength: 8, Tension: 0.5, Twist: 0.5, SubSteps: 1, Threshold: 0.001},
}

func GetPreset(name string) *SpringConfig {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	return &p
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrPresetNotFound is returned when no preset file matches a name.
var ErrPresetNotFound = errors.New("config: preset not found")

// PresetData is the on-disk form of a user preset. Missing keys leave the
// current value untouched.
type PresetData struct {
	Delay          *float64    `json:"delay,omitempty"`
	Recursion      *float64    `json:"recursion,omitempty"`
	Strength       *float64    `json:"strength,omitempty"`
	UseForce       *bool       `json:"use_force,omitempty"`
	ForceVector    *[3]float64 `json:"force_vector,omitempty"`
	ForceStrength  *float64    `json:"force_strength,omitempty"`
	UseSceneFields *bool       `json:"use_scene_fields,omitempty"`
}

// Capture records the preset fields of a config.
func Capture(c *Config) PresetData {
	dir := c.Force.Direction
	return PresetData{
		Delay:          &c.Spring.Delay,
		Recursion:      &c.Spring.Recursion,
		Strength:       &c.Spring.Strength,
		UseForce:       &c.Force.Enabled,
		ForceVector:    &dir,
		ForceStrength:  &c.Force.Strength,
		UseSceneFields: &c.Force.UseFields,
	}
}

// Apply copies the fields present in p into c. A preset without
// use_scene_fields turns scene fields off.
func (p PresetData) Apply(c *Config) {
	if p.Delay != nil {
		c.Spring.Delay = *p.Delay
	}
	if p.Recursion != nil {
		c.Spring.Recursion = *p.Recursion
	}
	if p.Strength != nil {
		c.Spring.Strength = *p.Strength
	}
	if p.UseForce != nil {
		c.Force.Enabled = *p.UseForce
	}
	if p.ForceVector != nil {
		c.Force.Direction = *p.ForceVector
	}
	if p.ForceStrength != nil {
		c.Force.Strength = *p.ForceStrength
	}
	c.Force.UseFields = p.UseSceneFields != nil && *p.UseSceneFields
}

// PresetStore keeps user presets as name.json files in one directory.
type PresetStore struct {
	dir string
}

func NewPresetStore(dir string) (*PresetStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &PresetStore{dir: dir}, nil
}

// SanitizeName keeps letters, digits, spaces, dashes and underscores.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func (s *PresetStore) path(name string) (string, error) {
	clean := SanitizeName(name)
	if clean == "" {
		return "", fmt.Errorf("invalid preset name %q", name)
	}
	return filepath.Join(s.dir, clean+".json"), nil
}

func (s *PresetStore) Save(name string, data PresetData) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}

func (s *PresetStore) Load(name string) (PresetData, error) {
	var data PresetData
	path, err := s.path(name)
	if err != nil {
		return data, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return data, fmt.Errorf("%w: %s", ErrPresetNotFound, name)
	}
	if err != nil {
		return data, err
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("preset %s: %w", name, err)
	}
	return data, nil
}

// List returns the stored preset names, sorted.
func (s *PresetStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// Apply loads a preset into c. Built-in presets are used when no file of
// that name exists.
func (s *PresetStore) Apply(name string, c *Config) error {
	data, err := s.Load(name)
	if errors.Is(err, ErrPresetNotFound) {
		if p := GetPreset(name); p != nil {
			c.Spring = *p
			return nil
		}
	}
	if err != nil {
		return err
	}
	data.Apply(c)
	return nil
}
