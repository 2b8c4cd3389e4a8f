// Package batch runs scripted bakes: a scenario of bake steps over one or
// more scenes, and parameter sweeps that compare bake metrics without
// touching the scene.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/san-kum/springmagic/internal/config"
	"github.com/san-kum/springmagic/internal/dynamo"
	"github.com/san-kum/springmagic/internal/metrics"
	"github.com/san-kum/springmagic/internal/scene"
	"github.com/san-kum/springmagic/internal/sim"
	"github.com/san-kum/springmagic/internal/storage"
	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of bakes.
type Scenario struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Steps       []Step  `yaml:"steps"`
	Sweeps      []Sweep `yaml:"sweeps,omitempty"`

	dir string
}

// Step bakes one scene. Spring overrides are applied after the preset.
type Step struct {
	Scene  string             `yaml:"scene"`
	Preset string             `yaml:"preset,omitempty"`
	Start  *int               `yaml:"start,omitempty"`
	End    *int               `yaml:"end,omitempty"`
	Out    string             `yaml:"out,omitempty"`
	Spring map[string]float64 `yaml:"spring,omitempty"`
	Record bool               `yaml:"record,omitempty"`
}

// Sweep bakes a scene once per value of one spring parameter, evenly spaced
// over [Min, Max]. Nothing is written back.
type Sweep struct {
	Scene  string  `yaml:"scene"`
	Preset string  `yaml:"preset,omitempty"`
	Param  string  `yaml:"param"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	Steps  int     `yaml:"steps"`
	Start  *int    `yaml:"start,omitempty"`
	End    *int    `yaml:"end,omitempty"`
}

type StepResult struct {
	Step    int
	Scene   string
	Out     string
	RunID   string
	Keys    int
	Report  dynamo.Report
	Metrics map[string]float64
}

type SweepResult struct {
	Value   float64
	Baked   int
	Metrics map[string]float64
}

// LoadScenario reads a scenario. Scene paths inside it are relative to the
// scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	s.dir = filepath.Dir(path)
	return &s, nil
}

func (s *Scenario) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || s.dir == "" {
		return p
	}
	return filepath.Join(s.dir, p)
}

// SetSpring sets one spring parameter by its config name.
func SetSpring(c *config.SpringConfig, name string, v float64) error {
	switch name {
	case "delay":
		c.Delay = v
	case "recursion":
		c.Recursion = v
	case "strength":
		c.Strength = v
	case "twist":
		c.Twist = v
	case "tension":
		c.Tension = v
	case "inertia":
		c.Inertia = v
	case "extend":
		c.Extend = v
	case "threshold":
		c.Threshold = v
	case "sub_steps":
		c.SubSteps = int(v)
	default:
		return fmt.Errorf("unknown spring parameter: %s", name)
	}
	return nil
}

// Runner carries what every step shares. Store may be nil when runs are not
// recorded; Presets may be nil when only built-in presets are used.
type Runner struct {
	Config  *config.Config
	Presets *config.PresetStore
	Store   *storage.Store
	Log     *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Log
}

// configFor copies the base config and applies a preset and overrides.
func (r *Runner) configFor(preset string, spring map[string]float64) (*config.Config, error) {
	cfg := *r.Config
	if preset != "" {
		if r.Presets != nil {
			if err := r.Presets.Apply(preset, &cfg); err != nil {
				return nil, err
			}
		} else {
			p := config.GetPreset(preset)
			if p == nil {
				return nil, fmt.Errorf("%w: %s", config.ErrPresetNotFound, preset)
			}
			cfg.Spring = *p
		}
	}
	for name, v := range spring {
		if err := SetSpring(&cfg.Spring, name, v); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func frameRange(sc *scene.Scene, start, end *int) (int, int) {
	s, e := sc.Start, sc.End
	if start != nil {
		s = *start
	}
	if end != nil {
		e = *end
	}
	return s, e
}

func (r *Runner) bake(ctx context.Context, sc *scene.Scene, cfg *config.Config, start, end int) (*scene.Bake, *sim.Result, error) {
	prepared, err := sc.Prepare(cfg, start, end)
	if err != nil {
		return nil, nil, err
	}
	baker := sim.New(r.logger())
	for _, m := range metrics.Standard() {
		baker.AddMetric(m)
	}
	res, err := baker.Run(ctx, prepared.Input)
	if err != nil {
		return nil, nil, err
	}
	return prepared, res, nil
}

// RunScenario runs every step in order and then every sweep. It stops at the
// first failing step; results of the steps before it are returned.
func (r *Runner) RunScenario(ctx context.Context, s *Scenario) ([]StepResult, [][]SweepResult, error) {
	log := r.logger()
	results := make([]StepResult, 0, len(s.Steps))
	for i, step := range s.Steps {
		step.Scene = s.resolve(step.Scene)
		if step.Out != "" {
			step.Out = s.resolve(step.Out)
		}
		log.Info("scenario step", "scenario", s.Name, "step", i+1, "of", len(s.Steps), "scene", step.Scene)
		res, err := r.RunStep(ctx, step)
		if err != nil {
			return results, nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		res.Step = i + 1
		results = append(results, res)
	}

	sweeps := make([][]SweepResult, 0, len(s.Sweeps))
	for i, sw := range s.Sweeps {
		sw.Scene = s.resolve(sw.Scene)
		res, err := r.RunSweep(ctx, sw)
		if err != nil {
			return results, sweeps, fmt.Errorf("sweep %d: %w", i+1, err)
		}
		sweeps = append(sweeps, res)
	}
	return results, sweeps, nil
}

// RunStep bakes, commits and saves one scene.
func (r *Runner) RunStep(ctx context.Context, step Step) (StepResult, error) {
	out := StepResult{Scene: step.Scene}
	cfg, err := r.configFor(step.Preset, step.Spring)
	if err != nil {
		return out, err
	}
	sc, err := scene.Load(step.Scene)
	if err != nil {
		return out, err
	}
	start, end := frameRange(sc, step.Start, step.End)
	prepared, res, err := r.bake(ctx, sc, cfg, start, end)
	if err != nil {
		return out, err
	}

	out.Keys = sim.Commit(prepared.Action, res)
	sc.SetAnimation(prepared.Action)
	out.Out = step.Scene
	if step.Out != "" {
		out.Out = step.Out
	}
	if err := scene.Save(out.Out, sc); err != nil {
		return out, err
	}
	out.Report = res.Report
	out.Metrics = res.Metrics

	if step.Record && r.Store != nil {
		if err := r.Store.Init(); err != nil {
			return out, err
		}
		out.RunID, err = r.Store.Save(storage.RunMetadata{
			Scene:      sc.Name,
			Armature:   prepared.Input.Armature.Name,
			FPS:        prepared.Input.FPS,
			Integrator: cfg.Integrator,
			Params:     prepared.Input.Params,
		}, res)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// RunSweep bakes the scene once per parameter value.
func (r *Runner) RunSweep(ctx context.Context, sw Sweep) ([]SweepResult, error) {
	if sw.Steps < 1 {
		return nil, fmt.Errorf("sweep %s: steps must be at least 1", sw.Param)
	}
	sc, err := scene.Load(sw.Scene)
	if err != nil {
		return nil, err
	}
	start, end := frameRange(sc, sw.Start, sw.End)

	step := 0.0
	if sw.Steps > 1 {
		step = (sw.Max - sw.Min) / float64(sw.Steps-1)
	}
	results := make([]SweepResult, 0, sw.Steps)
	for i := 0; i < sw.Steps; i++ {
		v := sw.Min + float64(i)*step
		cfg, err := r.configFor(sw.Preset, map[string]float64{sw.Param: v})
		if err != nil {
			return nil, err
		}
		_, res, err := r.bake(ctx, sc, cfg, start, end)
		if err != nil {
			return nil, fmt.Errorf("%s=%g: %w", sw.Param, v, err)
		}
		results = append(results, SweepResult{Value: v, Baked: res.Report.Baked, Metrics: res.Metrics})
		r.logger().Info("sweep", "param", sw.Param, "value", v, "done", i+1, "of", sw.Steps)
	}
	return results, nil
}
