package sim

import (
	"fmt"

	"github.com/san-kum/springmagic/internal/anim"
	"github.com/san-kum/springmagic/internal/collide"
	"github.com/san-kum/springmagic/internal/dynamo"
	"github.com/san-kum/springmagic/internal/forces"
	"github.com/san-kum/springmagic/internal/integrators"
	"github.com/san-kum/springmagic/internal/physics"
	"github.com/san-kum/springmagic/internal/rig"
)

// Options shape how simulated poses become keys.
type Options struct {
	// Weight in [0,1] mixes the simulated pose into the existing one. Zero
	// leaves the existing pose unchanged.
	Weight float64
	Mode   anim.BlendMode
	// Loop replaces the end frame key with the start frame key.
	Loop bool
	// Workers above one simulates chains of the same depth concurrently.
	Workers int
}

// DefaultOptions writes the simulated pose at full weight.
func DefaultOptions() Options {
	return Options{Weight: 1, Mode: anim.BlendOverride, Workers: 1}
}

// Input is everything one bake reads. None of it is modified.
type Input struct {
	Armature *rig.Armature
	Chains   []rig.Chain
	Start    int
	End      int
	FPS      float64

	Params dynamo.Params
	// ChainParams overrides Params for chains keyed by root bone name.
	ChainParams map[string]dynamo.Params

	Forces     forces.Config
	Colliders  physics.ColliderConfig
	Collection collide.Resolved
	Integrator integrators.Integrator

	// Base samples the animation under the bake. Baked keys on the chain
	// bones must not be visible through it.
	Base anim.Sampler

	Options Options
}

func (in *Input) validate() error {
	if in.Armature == nil {
		return dynamo.ErrNoArmature
	}
	if len(in.Chains) == 0 {
		return dynamo.ErrNoSelection
	}
	if in.Start > in.End {
		return fmt.Errorf("%w: %d > %d", dynamo.ErrFrameRange, in.Start, in.End)
	}
	if in.Base == nil {
		return fmt.Errorf("bake: no base animation")
	}
	if w := in.Options.Weight; w < 0 || w > 1 {
		return fmt.Errorf("bake: weight must be in [0,1], got %f", w)
	}

	owner := make(map[int]string)
	for _, c := range in.Chains {
		for _, b := range c.Bones {
			if b < 0 || b >= in.Armature.Len() {
				return fmt.Errorf("chain %s: bone index %d: %w", c.Name, b, dynamo.ErrUnknownBone)
			}
			if prev, ok := owner[b]; ok {
				return fmt.Errorf("bone %s is in chains %s and %s", in.Armature.Bones[b].Name, prev, c.Name)
			}
			owner[b] = c.Name
		}
	}
	return nil
}

func (in *Input) paramsFor(c rig.Chain) dynamo.Params {
	if len(c.Bones) > 0 {
		if p, ok := in.ChainParams[in.Armature.Bones[c.Root()].Name]; ok {
			return p
		}
	}
	return in.Params
}

// BoneKeys are the keys produced for one bone, ordered by frame.
type BoneKeys struct {
	Bone string
	Keys []anim.Keyframe
}

// Result holds the keys of a finished bake. Nothing is written to an action
// until Commit.
type Result struct {
	Start, End int
	Bones      []BoneKeys
	Report     dynamo.Report
	Metrics    map[string]float64
}

// BoneNames lists the bones that received keys.
func (r *Result) BoneNames() []string {
	names := make([]string, len(r.Bones))
	for i, b := range r.Bones {
		names[i] = b.Bone
	}
	return names
}
