package scene

import (
	"github.com/san-kum/springmagic/internal/anim"
	"github.com/san-kum/springmagic/internal/collide"
	"github.com/san-kum/springmagic/internal/config"
	"github.com/san-kum/springmagic/internal/integrators"
	"github.com/san-kum/springmagic/internal/physics"
	"github.com/san-kum/springmagic/internal/rig"
	"github.com/san-kum/springmagic/internal/sim"
)

// Bake is a scene prepared for the bake driver. Action is the live action
// that Commit and Clear write to.
type Bake struct {
	Input  sim.Input
	Action *anim.Action
	Bones  []string
}

// Prepare reads everything a bake over [start, end] needs from the scene and
// the config. Nothing in the scene is modified.
func (s *Scene) Prepare(cfg *config.Config, start, end int) (*Bake, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	arm, err := s.Rig()
	if err != nil {
		return nil, err
	}
	chains, err := rig.BuildChains(arm, s.Selection, cfg.IncludeChildren)
	if err != nil {
		return nil, err
	}
	var bones []string
	for _, c := range chains {
		bones = append(bones, arm.Names(c.Bones)...)
	}
	fields, err := s.ForceFields()
	if err != nil {
		return nil, err
	}
	integ, err := integrators.New(cfg.Integrator)
	if err != nil {
		return nil, err
	}
	mode, err := cfg.BlendMode()
	if err != nil {
		return nil, err
	}

	fps := cfg.FPS
	if s.FPS > 0 {
		fps = s.FPS
	}

	colliders := physics.ColliderConfig{
		Self:         cfg.Collision.Self,
		Margin:       cfg.Collision.Margin,
		LengthOffset: cfg.Collision.LengthOffset,
	}
	if cfg.Collision.Plane {
		colliders.Plane = s.CollisionPlane()
	}
	var resolved collide.Resolved
	if cfg.Collision.UseCollection {
		resolved = collide.FromCollection(s.Sources(), cfg.Collision.AutoRegister)
	}

	act := s.Animation()
	return &Bake{
		Action: act,
		Bones:  bones,
		Input: sim.Input{
			Armature:    arm,
			Chains:      chains,
			Start:       start,
			End:         end,
			FPS:         fps,
			Params:      cfg.Params(),
			ChainParams: s.ChainParams(cfg),
			Forces:      cfg.Forces(fields),
			Colliders:   colliders,
			Collection:  resolved,
			Integrator:  integ,
			Base:        act.Base(bones),
			Options: sim.Options{
				Weight:  cfg.Bake.Weight,
				Mode:    mode,
				Loop:    cfg.Bake.Loop,
				Workers: cfg.Workers,
			},
		},
	}, nil
}
