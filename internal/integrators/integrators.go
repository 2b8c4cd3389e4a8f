// Package integrators advances a damped spring pulling a point toward a
// target. Time is measured in frames, so velocities are per frame.
package integrators

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// State is a point and its velocity.
type State struct {
	Pos mgl64.Vec3
	Vel mgl64.Vec3
}

// Spring holds the coefficients of the acceleration K (target - x) - C v + a.
type Spring struct {
	K float64
	C float64
}

// NewSpring derives the coefficients from bake parameters. Lower delay makes
// a stiffer spring; inertia removes damping, from critical at 0 to none at 1.
func NewSpring(strength, delay, inertia float64) Spring {
	if delay <= 0 {
		return Spring{K: math.Inf(1)}
	}
	k := strength / delay
	return Spring{K: k, C: 2 * math.Sqrt(k) * (1 - inertia)}
}

// Rigid reports whether the spring snaps straight to its target.
func (s Spring) Rigid() bool { return math.IsInf(s.K, 1) }

func (s Spring) accel(x, v, target, acc mgl64.Vec3) mgl64.Vec3 {
	return target.Sub(x).Mul(s.K).Sub(v.Mul(s.C)).Add(acc)
}

// Integrator advances one step of size h.
type Integrator interface {
	Step(s Spring, x State, target, acc mgl64.Vec3, h float64) State
}

// Implicit is backward Euler. It is stable for any stiffness and step size.
type Implicit struct{}

func (Implicit) Step(s Spring, x State, target, acc mgl64.Vec3, h float64) State {
	if s.Rigid() {
		return State{Pos: target}
	}
	force := target.Sub(x.Pos).Mul(s.K).Add(acc)
	v := x.Vel.Add(force.Mul(h)).Mul(1 / (1 + h*s.C + h*h*s.K))
	return State{Pos: x.Pos.Add(v.Mul(h)), Vel: v}
}

// Symplectic is semi-implicit Euler: velocity first, then position.
type Symplectic struct{}

func (Symplectic) Step(s Spring, x State, target, acc mgl64.Vec3, h float64) State {
	if s.Rigid() {
		return State{Pos: target}
	}
	v := x.Vel.Add(s.accel(x.Pos, x.Vel, target, acc).Mul(h))
	return State{Pos: x.Pos.Add(v.Mul(h)), Vel: v}
}

// RK4 is the classic fourth order Runge-Kutta scheme.
type RK4 struct{}

func (RK4) Step(s Spring, x State, target, acc mgl64.Vec3, h float64) State {
	if s.Rigid() {
		return State{Pos: target}
	}
	deriv := func(p, v mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
		return v, s.accel(p, v, target, acc)
	}

	k1x, k1v := deriv(x.Pos, x.Vel)
	k2x, k2v := deriv(x.Pos.Add(k1x.Mul(h/2)), x.Vel.Add(k1v.Mul(h/2)))
	k3x, k3v := deriv(x.Pos.Add(k2x.Mul(h/2)), x.Vel.Add(k2v.Mul(h/2)))
	k4x, k4v := deriv(x.Pos.Add(k3x.Mul(h)), x.Vel.Add(k3v.Mul(h)))

	dx := k1x.Add(k2x.Mul(2)).Add(k3x.Mul(2)).Add(k4x).Mul(h / 6)
	dv := k1v.Add(k2v.Mul(2)).Add(k3v.Mul(2)).Add(k4v).Mul(h / 6)
	return State{Pos: x.Pos.Add(dx), Vel: x.Vel.Add(dv)}
}

var registry = map[string]Integrator{
	"implicit":   Implicit{},
	"symplectic": Symplectic{},
	"rk4":        RK4{},
}

// Default is the integrator used when none is configured.
const Default = "implicit"

// New looks up an integrator by name. An empty name selects Default.
func New(name string) (Integrator, error) {
	if name == "" {
		name = Default
	}
	in, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s (available: %v)", name, Names())
	}
	return in, nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
