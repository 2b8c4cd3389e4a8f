package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pelletier/go-toml/v2"
	"github.com/san-kum/springmagic/internal/anim"
	"github.com/san-kum/springmagic/internal/dynamo"
	"github.com/san-kum/springmagic/internal/forces"
	"github.com/san-kum/springmagic/internal/integrators"
	"gopkg.in/yaml.v3"
)

// Panel defaults. Recursion and Strength are on the panel scale; Params
// converts them to simulator units.
const (
	DefaultDelay         = 3.0
	DefaultRecursion     = 5.0
	DefaultStrength      = 1.0
	DefaultForceStrength = 0.1
	DefaultThreshold     = 0.001
	DefaultFPS           = 24.0
	DefaultMargin        = 0.04
)

type Config struct {
	Integrator      string          `yaml:"integrator" toml:"integrator"`
	FPS             float64         `yaml:"fps" toml:"fps"`
	Workers         int             `yaml:"workers" toml:"workers"`
	IncludeChildren bool            `yaml:"include_children" toml:"include_children"`
	DataDir         string          `yaml:"data_dir" toml:"data_dir"`
	PresetDir       string          `yaml:"preset_dir" toml:"preset_dir"`
	UpdateURL       string          `yaml:"update_url" toml:"update_url"`
	Spring          SpringConfig    `yaml:"spring" toml:"spring"`
	Force           ForceConfig     `yaml:"force" toml:"force"`
	Collision       CollisionConfig `yaml:"collision" toml:"collision"`
	Bake            BakeConfig      `yaml:"bake" toml:"bake"`
}

type SpringConfig struct {
	Delay     float64 `yaml:"delay" toml:"delay"`
	Recursion float64 `yaml:"recursion" toml:"recursion"`
	Strength  float64 `yaml:"strength" toml:"strength"`
	Twist     float64 `yaml:"twist" toml:"twist"`
	Tension   float64 `yaml:"tension" toml:"tension"`
	Inertia   float64 `yaml:"inertia" toml:"inertia"`
	Extend    float64 `yaml:"extend" toml:"extend"`
	SubSteps  int     `yaml:"sub_steps" toml:"sub_steps"`
	Threshold float64 `yaml:"threshold" toml:"threshold"`
}

// SpringOverride is a partial SpringConfig. Nil fields keep the value it is
// applied on top of.
type SpringOverride struct {
	Delay     *float64 `yaml:"delay,omitempty" toml:"delay,omitempty"`
	Recursion *float64 `yaml:"recursion,omitempty" toml:"recursion,omitempty"`
	Strength  *float64 `yaml:"strength,omitempty" toml:"strength,omitempty"`
	Twist     *float64 `yaml:"twist,omitempty" toml:"twist,omitempty"`
	Tension   *float64 `yaml:"tension,omitempty" toml:"tension,omitempty"`
	Inertia   *float64 `yaml:"inertia,omitempty" toml:"inertia,omitempty"`
	Extend    *float64 `yaml:"extend,omitempty" toml:"extend,omitempty"`
	SubSteps  *int     `yaml:"sub_steps,omitempty" toml:"sub_steps,omitempty"`
	Threshold *float64 `yaml:"threshold,omitempty" toml:"threshold,omitempty"`
}

func (o SpringOverride) Apply(s SpringConfig) SpringConfig {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&s.Delay, o.Delay)
	set(&s.Recursion, o.Recursion)
	set(&s.Strength, o.Strength)
	set(&s.Twist, o.Twist)
	set(&s.Tension, o.Tension)
	set(&s.Inertia, o.Inertia)
	set(&s.Extend, o.Extend)
	set(&s.Threshold, o.Threshold)
	if o.SubSteps != nil {
		s.SubSteps = *o.SubSteps
	}
	return s
}

type ForceConfig struct {
	Enabled   bool        `yaml:"enabled" toml:"enabled"`
	Direction [3]float64  `yaml:"direction,flow" toml:"direction"`
	Strength  float64     `yaml:"strength" toml:"strength"`
	UseFields bool        `yaml:"use_scene_fields" toml:"use_scene_fields"`
	Wind      *WindConfig `yaml:"wind,omitempty" toml:"wind,omitempty"`
}

type WindConfig struct {
	Direction  [3]float64 `yaml:"direction,flow" toml:"direction"`
	Min        float64    `yaml:"min" toml:"min"`
	Max        float64    `yaml:"max" toml:"max"`
	Frequency  float64    `yaml:"frequency" toml:"frequency"`
	Turbulence float64    `yaml:"turbulence" toml:"turbulence"`
	Seed       uint64     `yaml:"seed" toml:"seed"`
}

type CollisionConfig struct {
	Self          bool    `yaml:"self" toml:"self"`
	Margin        float64 `yaml:"margin" toml:"margin"`
	LengthOffset  float64 `yaml:"length_offset" toml:"length_offset"`
	Plane         bool    `yaml:"plane" toml:"plane"`
	UseCollection bool    `yaml:"use_collection" toml:"use_collection"`
	AutoRegister  bool    `yaml:"auto_register" toml:"auto_register"`
}

type BakeConfig struct {
	Weight float64 `yaml:"weight" toml:"weight"`
	Mode   string  `yaml:"mode" toml:"mode"`
	Loop   bool    `yaml:"loop" toml:"loop"`
}

func DefaultConfig() *Config {
	cfg := &Config{
		Integrator: integrators.Default,
		FPS:        DefaultFPS,
		Workers:    1,
		DataDir:    "runs",
		PresetDir:  "presets",
		Collision:  CollisionConfig{Margin: DefaultMargin},
		Bake:       BakeConfig{Weight: 1, Mode: anim.BlendOverride.String()},
	}
	cfg.Reset()
	return cfg
}

// Reset restores the spring and force settings to the built-in defaults.
// Everything else is left alone.
func (c *Config) Reset() {
	c.Spring = SpringConfig{
		Delay:     DefaultDelay,
		Recursion: DefaultRecursion,
		Strength:  DefaultStrength,
		SubSteps:  1,
		Threshold: DefaultThreshold,
	}
	c.Force = ForceConfig{
		Direction: [3]float64{0, 0, -1},
		Strength:  DefaultForceStrength,
	}
}

// Load reads a config file over the defaults. Files ending in .toml are read
// as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	var data []byte
	var err error
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Params converts the panel settings to simulator parameters.
func (c *Config) Params() dynamo.Params {
	s := c.Spring
	return dynamo.Params{
		Delay:     s.Delay,
		Recursion: s.Recursion / 10,
		Strength:  1 + (s.Strength-1)/10,
		Twist:     s.Twist,
		Tension:   s.Tension,
		Inertia:   s.Inertia,
		Extend:    s.Extend,
		SubSteps:  s.SubSteps,
		Threshold: s.Threshold,
	}
}

// Forces builds the force input of a bake. Scene fields are supplied by the
// caller since they live in the scene, not the config.
func (c *Config) Forces(fields []forces.Field) forces.Config {
	f := c.Force
	out := forces.Config{
		Constant: forces.Constant{
			Enabled:   f.Enabled,
			Direction: mgl64.Vec3(f.Direction),
			Strength:  f.Strength,
		},
		UseFields: f.UseFields,
	}
	if f.UseFields {
		out.Fields = fields
	}
	if w := f.Wind; w != nil {
		out.Gust = &forces.Gust{
			Direction:  mgl64.Vec3(w.Direction),
			Min:        w.Min,
			Max:        w.Max,
			Frequency:  w.Frequency,
			Turbulence: w.Turbulence,
			Seed:       w.Seed,
		}
	}
	return out
}

// BlendMode parses the configured bake mode.
func (c *Config) BlendMode() (anim.BlendMode, error) {
	return anim.ParseBlendMode(c.Bake.Mode)
}

// Validate checks everything a bake would reject, before any work is done.
func (c *Config) Validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %f", c.FPS)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if _, err := integrators.New(c.Integrator); err != nil {
		return err
	}
	if _, err := c.BlendMode(); err != nil {
		return err
	}
	if w := c.Bake.Weight; w < 0 || w > 1 {
		return fmt.Errorf("bake weight must be in [0,1], got %f", w)
	}
	if c.Collision.Margin < 0 || c.Collision.LengthOffset < 0 {
		return fmt.Errorf("collision margin and length offset must be >= 0")
	}
	return c.Params().Validate()
}
