package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/san-kum/springmagic/internal/dynamo"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Integrator != "implicit" {
		t.Errorf("expected integrator implicit, got %s", cfg.Integrator)
	}
	if cfg.FPS <= 0 {
		t.Error("fps should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
	if got, want := cfg.Params(), dynamo.DefaultParams(); got != want {
		t.Errorf("default params %+v, want %+v", got, want)
	}
}

func TestReset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Spring.Delay = 12
	cfg.Spring.Recursion = 0
	cfg.Force.Enabled = true
	cfg.Force.UseFields = true
	cfg.Force.Direction = [3]float64{1, 0, 0}
	cfg.Workers = 8

	cfg.Reset()

	if cfg.Spring.Delay != 3 || cfg.Spring.Recursion != 5 || cfg.Spring.Strength != 1 || cfg.Spring.Threshold != 0.001 {
		t.Errorf("spring not reset: %+v", cfg.Spring)
	}
	if cfg.Force.Enabled || cfg.Force.UseFields || cfg.Force.Strength != 0.1 || cfg.Force.Direction != [3]float64{0, 0, -1} {
		t.Errorf("force not reset: %+v", cfg.Force)
	}
	if cfg.Workers != 8 {
		t.Error("reset should leave non-panel settings alone")
	}
}

func TestParamsScale(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Spring.Recursion = 10
	cfg.Spring.Strength = 6
	p := cfg.Params()
	if p.Recursion != 1 {
		t.Errorf("recursion 10 should map to 1, got %f", p.Recursion)
	}
	if p.Strength != 1.5 {
		t.Errorf("strength 6 should map to 1.5, got %f", p.Strength)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fps", func(c *Config) { c.FPS = 0 }},
		{"integrator", func(c *Config) { c.Integrator = "magic" }},
		{"mode", func(c *Config) { c.Bake.Mode = "multiply" }},
		{"weight", func(c *Config) { c.Bake.Weight = 2 }},
		{"delay", func(c *Config) { c.Spring.Delay = -1 }},
		{"tension", func(c *Config) { c.Spring.Tension = 3 }},
		{"margin", func(c *Config) { c.Collision.Margin = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestForces(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Forces(nil).Active() {
		t.Error("default forces should be inactive")
	}

	cfg.Force.Enabled = true
	cfg.Force.Wind = &WindConfig{Direction: [3]float64{1, 0, 0}, Min: 1, Max: 2, Frequency: 0.5}
	f := cfg.Forces(nil)
	if !f.Active() || f.Gust == nil || f.Gust.Max != 2 {
		t.Errorf("unexpected force config %+v", f)
	}
	if f.Constant.Direction.Z() != -1 {
		t.Errorf("direction not carried: %v", f.Constant.Direction)
	}
}

func TestLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "springmagic.yaml")
	cfg := DefaultConfig()
	cfg.Spring.Delay = 7
	cfg.Force.Wind = &WindConfig{Min: 0.1, Max: 0.4, Frequency: 2, Seed: 9}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Spring.Delay != 7 || loaded.Force.Wind == nil || loaded.Force.Wind.Seed != 9 {
		t.Errorf("round trip lost data: %+v", loaded)
	}
}

func TestLoadSaveTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "springmagic.toml")
	cfg := DefaultConfig()
	cfg.Spring.Twist = 0.25
	cfg.Collision.Self = true
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[spring]") {
		t.Errorf("expected a toml table, got:\n%s", data)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Spring.Twist != 0.25 || !loaded.Collision.Self || loaded.Spring.Delay != DefaultDelay {
		t.Errorf("toml round trip lost data: %+v", loaded)
	}

	partial := filepath.Join(t.TempDir(), "partial.toml")
	if err := os.WriteFile(partial, []byte("workers = 3\n[spring]\ndelay = 5.0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(partial)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 3 || cfg.Spring.Delay != 5 || cfg.Spring.Recursion != DefaultRecursion {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("spring:\n  delay: 5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Spring.Delay != 5 || cfg.FPS != DefaultFPS || cfg.Integrator != "implicit" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestGetPreset(t *testing.T) {
	p := GetPreset("hair")
	if p == nil {
		t.Fatal("expected preset, got nil")
	}
	if p.Delay != 4 {
		t.Errorf("expected delay 4, got %f", p.Delay)
	}
	if GetPreset("nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if len(ListPresets()) != len(Presets) {
		t.Error("ListPresets should list every preset")
	}
}

func TestBuiltinPresetsValidate(t *testing.T) {
	for _, name := range ListPresets() {
		cfg := DefaultConfig()
		cfg.Spring = *GetPreset(name)
		if err := cfg.Validate(); err != nil {
			t.Errorf("preset %s: %v", name, err)
		}
	}
}

func TestPresetStore(t *testing.T) {
	store, err := NewPresetStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Spring.Delay = 9
	cfg.Force.Enabled = true
	cfg.Force.Direction = [3]float64{1, 0, 0}
	if err := store.Save("  my/preset!  ", Capture(cfg)); err != nil {
		t.Fatal(err)
	}

	names, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "mypreset" {
		t.Fatalf("unexpected names %v", names)
	}

	target := DefaultConfig()
	target.Force.UseFields = true
	if err := store.Apply("mypreset", target); err != nil {
		t.Fatal(err)
	}
	if target.Spring.Delay != 9 || !target.Force.Enabled || target.Force.Direction != [3]float64{1, 0, 0} {
		t.Errorf("preset not applied: %+v", target)
	}
	if target.Force.UseFields {
		t.Error("missing use_scene_fields should turn fields off")
	}
}

func TestPresetStoreIgnoresUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	raw := `{"delay": 2.5, "colour": "red", "force_strength": 0.3}`
	if err := os.WriteFile(filepath.Join(dir, "odd.json"), []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}
	store, err := NewPresetStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	if err := store.Apply("odd", cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Spring.Delay != 2.5 || cfg.Force.Strength != 0.3 || cfg.Spring.Recursion != DefaultRecursion {
		t.Errorf("unexpected config %+v", cfg.Spring)
	}
}

func TestPresetStoreErrors(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPresetStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load("missing"); !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("expected ErrPresetNotFound, got %v", err)
	}
	if err := store.Save("!!!", PresetData{}); err == nil {
		t.Error("expected error for empty sanitized name")
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := store.Apply("bad", DefaultConfig()); err == nil {
		t.Error("expected error for malformed preset")
	}

	cfg := DefaultConfig()
	if err := store.Apply("tail", cfg); err != nil {
		t.Fatalf("built-in fallback: %v", err)
	}
	if cfg.Spring.Delay != 6 {
		t.Errorf("built-in preset not applied: %+v", cfg.Spring)
	}
}

func TestSpringOverrideApply(t *testing.T) {
	base := DefaultConfig().Spring
	if got := (SpringOverride{}).Apply(base); got != base {
		t.Errorf("empty override changed %+v to %+v", base, got)
	}

	delay, steps := 0.5, 4
	got := SpringOverride{Delay: &delay, SubSteps: &steps}.Apply(base)
	want := base
	want.Delay = 0.5
	want.SubSteps = 4
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
