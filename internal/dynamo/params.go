package dynamo

import "fmt"

// Params configures one chain for one bake. The zero value is not useful;
// start from DefaultParams.
type Params struct {
	// Delay is how slowly a bone chases its driving target. Zero snaps to it.
	Delay float64
	// Recursion scales how much of the parent's motion is pushed into the child.
	Recursion float64
	// Strength is the spring stiffness toward the target.
	Strength float64
	// Twist in [0,1] resists following the target roll.
	Twist float64
	// Tension in [0,1] pulls the simulated pose back toward the target.
	Tension float64
	// Inertia in [0,1] is the share of velocity kept against damping.
	Inertia float64
	// Extend lengthens the leaf bone for chasing and collision only.
	Extend float64
	// SubSteps splits every frame into equal integration steps.
	SubSteps int
	// Threshold zeroes per-step motion smaller than itself.
	Threshold float64
}

func DefaultParams() Params {
	return Params{
		Delay:     3.0,
		Recursion: 0.5,
		Strength:  1.0,
		SubSteps:  1,
		Threshold: 0.001,
	}
}

// Validate reports parameters outside their usable ranges.
func (p Params) Validate() error {
	switch {
	case p.Delay < 0:
		return fmt.Errorf("delay must be >= 0, got %f", p.Delay)
	case p.Strength < 0:
		return fmt.Errorf("strength must be >= 0, got %f", p.Strength)
	case p.Recursion < 0:
		return fmt.Errorf("recursion must be >= 0, got %f", p.Recursion)
	case p.Twist < 0 || p.Twist > 1:
		return fmt.Errorf("twist must be in [0,1], got %f", p.Twist)
	case p.Tension < 0 || p.Tension > 1:
		return fmt.Errorf("tension must be in [0,1], got %f", p.Tension)
	case p.Inertia < 0 || p.Inertia > 1:
		return fmt.Errorf("inertia must be in [0,1], got %f", p.Inertia)
	case p.Extend < 0:
		return fmt.Errorf("extend must be >= 0, got %f", p.Extend)
	case p.Threshold < 0:
		return fmt.Errorf("threshold must be >= 0, got %f", p.Threshold)
	}
	return nil
}

// Steps is the sub-step count, never below one.
func (p Params) Steps() int {
	if p.SubSteps < 1 {
		return 1
	}
	return p.SubSteps
}
