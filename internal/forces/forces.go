// Package forces evaluates the external accelerations acting on a simulated
// bone tip: a constant force, an oscillating wind source and scene force
// fields. All results are accelerations in scene units per second squared.
package forces

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/springmagic/internal/dynamo"
	"github.com/san-kum/springmagic/internal/mathx"
)

// ForceFieldScale converts a radial field's strength into acceleration.
const ForceFieldScale = 20.0

type FieldKind int

const (
	Wind FieldKind = iota
	Force
	Vortex
)

func (k FieldKind) String() string {
	switch k {
	case Wind:
		return "wind"
	case Force:
		return "force"
	case Vortex:
		return "vortex"
	}
	return fmt.Sprintf("FieldKind(%d)", int(k))
}

func ParseFieldKind(s string) (FieldKind, error) {
	switch strings.ToLower(s) {
	case "wind":
		return Wind, nil
	case "force":
		return Force, nil
	case "vortex":
		return Vortex, nil
	}
	return 0, fmt.Errorf("unknown field kind: %s", s)
}

// Field is a scene force field. Wind blows along the field's local Z axis,
// Force pushes radially away from its origin (negative strength attracts) and
// Vortex swirls around its local Z axis.
type Field struct {
	Name      string
	Kind      FieldKind
	Transform mathx.Transform
	Strength  float64
	// Flow pulls the velocity toward the wind velocity (wind only).
	Flow float64
	// Power is the distance falloff exponent; zero means inverse square.
	Power       float64
	MinDistance float64
	MaxDistance float64
	UseMin      bool
	UseMax      bool
}

// Constant is a force applied everywhere, such as gravity.
type Constant struct {
	Enabled   bool
	Direction mgl64.Vec3
	Strength  float64
}

// Gust is a dedicated wind source whose strength oscillates between Min and
// Max at Frequency Hz. Turbulence adds seeded noise on every axis.
type Gust struct {
	Direction  mgl64.Vec3
	Min        float64
	Max        float64
	Frequency  float64
	Turbulence float64
	Seed       uint64
}

// Config is the read-only force input for one bake.
type Config struct {
	Constant  Constant
	Gust      *Gust
	UseFields bool
	Fields    []Field
}

// Active reports whether any source can contribute.
func (c Config) Active() bool {
	return (c.Constant.Enabled && c.Constant.Strength != 0) ||
		c.Gust != nil ||
		(c.UseFields && len(c.Fields) > 0)
}

// Evaluate sums every enabled source at a world position. vel is the point's
// velocity in units per second and t the scene time in seconds.
func Evaluate(pos, vel mgl64.Vec3, cfg Config, t float64) mgl64.Vec3 {
	var acc mgl64.Vec3
	if cfg.Constant.Enabled {
		if dir, ok := mathx.Normalize(cfg.Constant.Direction); ok {
			acc = acc.Add(dir.Mul(cfg.Constant.Strength))
		}
	}
	if cfg.Gust != nil {
		acc = acc.Add(cfg.Gust.At(t))
	}
	if cfg.UseFields {
		for i := range cfg.Fields {
			acc = acc.Add(cfg.Fields[i].At(pos, vel))
		}
	}
	return acc
}

// At returns the gust acceleration at time t.
func (g *Gust) At(t float64) mgl64.Vec3 {
	dir, ok := mathx.Normalize(g.Direction)
	if !ok {
		return mgl64.Vec3{}
	}
	acc := dir.Mul(dynamo.Oscillate(g.Min, g.Max, g.Frequency, t))
	if g.Turbulence > 0 {
		acc = acc.Add(turbulence(g.Seed, t).Mul(g.Turbulence))
	}
	return acc
}

// turbulenceRate is how many noise samples per second the gust blends between.
const turbulenceRate = 8.0

// turbulence is smooth value noise in [-1,1] per axis. It depends only on
// seed and t so parallel chains see the same gust.
func turbulence(seed uint64, t float64) mgl64.Vec3 {
	x := t * turbulenceRate
	k := math.Floor(x)
	f := x - k
	f = f * f * (3 - 2*f)

	var out mgl64.Vec3
	for axis := range out {
		a := noiseSample(seed+uint64(axis), int64(k))
		b := noiseSample(seed+uint64(axis), int64(k)+1)
		out[axis] = a + (b-a)*f
	}
	return out
}

func noiseSample(seed uint64, k int64) float64 {
	r := rand.New(rand.NewPCG(seed, uint64(k)))
	return r.Float64()*2 - 1
}

// At returns the field's acceleration on a point at pos moving with vel.
func (f *Field) At(pos, vel mgl64.Vec3) mgl64.Vec3 {
	if f.Strength == 0 {
		return mgl64.Vec3{}
	}
	switch f.Kind {
	case Wind:
		dir, ok := mathx.Normalize(f.Transform.AxisZ())
		if !ok {
			return mgl64.Vec3{}
		}
		wind := dir.Mul(f.Strength)
		if f.Flow > 0 {
			return wind.Add(wind.Sub(vel).Mul(f.Flow))
		}
		return wind
	case Force:
		d := pos.Sub(f.Transform.Pos)
		dist := d.Len()
		dir := mathx.NormalizeOr(d, mgl64.Vec3{})
		return dir.Mul(f.Strength * f.falloff(dist) * ForceFieldScale)
	case Vortex:
		axis, ok := mathx.Normalize(f.Transform.AxisZ())
		if !ok {
			return mgl64.Vec3{}
		}
		d := pos.Sub(f.Transform.Pos)
		radial := d.Sub(axis.Mul(d.Dot(axis)))
		tangent, ok := mathx.Normalize(axis.Cross(radial))
		if !ok {
			return mgl64.Vec3{}
		}
		return tangent.Mul(f.Strength * f.falloff(radial.Len()))
	}
	return mgl64.Vec3{}
}

// falloff is the inverse power law gated by the optional distances. Inside
// the minimum distance the value at the minimum is held.
func (f *Field) falloff(dist float64) float64 {
	if f.UseMax && dist > f.MaxDistance {
		return 0
	}
	if f.UseMin && dist < f.MinDistance {
		dist = f.MinDistance
	}
	if dist < 0.001 {
		dist = 0.001
	}
	power := f.Power
	if power == 0 {
		power = 2
	}
	return 1 / math.Pow(dist, power)
}
