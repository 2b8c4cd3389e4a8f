package physics

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/springmagic/internal/anim"
	"github.com/san-kum/springmagic/internal/collide"
	"github.com/san-kum/springmagic/internal/dynamo"
	"github.com/san-kum/springmagic/internal/forces"
	"github.com/san-kum/springmagic/internal/integrators"
	"github.com/san-kum/springmagic/internal/mathx"
	"github.com/san-kum/springmagic/internal/rig"
)

type Phase int

const (
	Uninitialized Phase = iota
	Running
	Finished
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Running:
		return "running"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// ColliderConfig selects the collision passes run on every bone tip.
type ColliderConfig struct {
	Self         bool
	Margin       float64
	LengthOffset float64
	Plane        *collide.Plane
	Collection   []collide.Collider
}

// Enabled reports whether any collision pass is configured.
func (c ColliderConfig) Enabled() bool {
	return c.Self || c.Plane != nil || len(c.Collection) > 0
}

// Environment is the read-only world a chain is simulated in.
type Environment struct {
	FPS        float64
	Forces     forces.Config
	Colliders  ColliderConfig
	Integrator integrators.Integrator
}

// BoneState is the dynamic state of one bone. Tip is the simulated tip
// particle; World is the bone transform derived from it. Offset is how far
// the tip particle sits from the tip implied by World, which happens when a
// collision compresses or stretches the bone; children start from the tip
// particle.
type BoneState struct {
	Bone      int
	Length    float64
	EffLength float64
	Radius    float64

	Tip    mgl64.Vec3
	Vel    mgl64.Vec3
	AngVel mgl64.Vec3
	World  mathx.Transform
	Target mathx.Transform
	Offset mgl64.Vec3
}

// TargetTip is where the driving target puts the (extended) tip.
func (b *BoneState) TargetTip() mgl64.Vec3 {
	return tipOf(b.Target.Pos, b.Target.Rot, b.EffLength)
}

// FrameInput carries the base animation for one frame: the world transform
// of the chain root's parent and the posed local transform of every bone,
// for the previous and the current frame. Capsules is the self-collision
// snapshot of the previous frame.
type FrameInput struct {
	Frame      int
	ParentPrev mathx.Transform
	Parent     mathx.Transform
	LocalPrev  []mathx.Transform
	Local      []mathx.Transform
	Capsules   []collide.Capsule
}

// Chain simulates one bone chain frame by frame. It is not safe for
// concurrent use; different chains may run in parallel.
type Chain struct {
	chain  rig.Chain
	arm    *rig.Armature
	params dynamo.Params
	env    *Environment
	spring integrators.Spring

	phase   Phase
	frame   int
	bones   []BoneState
	normals []mgl64.Vec3
}

// NewChain validates the chain against the armature. Chains shorter than two
// bones or holding a degenerate bone are rejected with a ChainError.
func NewChain(arm *rig.Armature, c rig.Chain, p dynamo.Params, env *Environment) (*Chain, error) {
	fail := func(err error) (*Chain, error) {
		root := ""
		if len(c.Bones) > 0 {
			root = arm.Bones[c.Root()].Name
		}
		return nil, &dynamo.ChainError{Chain: c.Name, Root: root, Wrapped: err}
	}
	if len(c.Bones) < 2 {
		return fail(dynamo.ErrChainTooShort)
	}
	for _, b := range c.Bones {
		if arm.Degenerate(b) {
			return fail(fmt.Errorf("%s: %w", arm.Bones[b].Name, dynamo.ErrDegenerateBone))
		}
	}
	if err := p.Validate(); err != nil {
		return fail(err)
	}
	e := *env
	if e.Integrator == nil {
		e.Integrator = integrators.Implicit{}
	}
	if e.FPS <= 0 {
		e.FPS = 24
	}

	ch := &Chain{
		chain:  c,
		arm:    arm,
		params: p,
		env:    &e,
		spring: integrators.NewSpring(p.Strength, p.Delay, p.Inertia),
		bones:  make([]BoneState, len(c.Bones)),
	}
	last := len(c.Bones) - 1
	for j, b := range c.Bones {
		l := arm.Length(b)
		eff := l
		if j == last {
			eff = l * (1 + p.Extend)
		}
		ch.bones[j] = BoneState{Bone: b, Length: l, EffLength: eff, Radius: arm.Radius(b)}
	}
	return ch, nil
}

func (c *Chain) Phase() Phase { return c.phase }

func (c *Chain) Frame() int { return c.frame }

// Info is the chain this simulator runs.
func (c *Chain) Info() rig.Chain { return c.chain }

// Bones returns a copy of the current bone states, root first.
func (c *Chain) Bones() []BoneState {
	return append([]BoneState(nil), c.bones...)
}

// Worlds returns the simulated world transform of every bone, root first.
func (c *Chain) Worlds() []mathx.Transform {
	out := make([]mathx.Transform, len(c.bones))
	for j := range c.bones {
		out[j] = c.bones[j].World
	}
	return out
}

// Start seeds every bone from the base pose of the first frame with zero
// velocity. Only Local and Parent of in are read.
func (c *Chain) Start(in FrameInput) error {
	if c.phase != Uninitialized {
		return fmt.Errorf("chain %s: start in phase %s", c.chain.Name, c.phase)
	}
	if len(in.Local) != len(c.bones) {
		return fmt.Errorf("chain %s: %d locals for %d bones", c.chain.Name, len(in.Local), len(c.bones))
	}
	parent := in.Parent
	for j := range c.bones {
		b := &c.bones[j]
		w := parent.Mul(in.Local[j])
		b.World, b.Target = w, w
		b.Tip = tipOf(w.Pos, w.Rot, b.EffLength)
		b.Vel, b.AngVel, b.Offset = mgl64.Vec3{}, mgl64.Vec3{}, mgl64.Vec3{}
		parent = w
	}
	c.frame = in.Frame
	c.phase = Running
	return nil
}

// Step advances the chain by one frame and returns its statistics. An
// unstable result leaves the chain Finished with ErrUnstable.
func (c *Chain) Step(in FrameInput) (dynamo.FrameStats, error) {
	stats := dynamo.FrameStats{Frame: in.Frame, Chain: c.chain.Name}
	if c.phase != Running {
		return stats, fmt.Errorf("chain %s: step in phase %s", c.chain.Name, c.phase)
	}
	if len(in.Local) != len(c.bones) || len(in.LocalPrev) != len(c.bones) {
		return stats, fmt.Errorf("chain %s: %d locals for %d bones", c.chain.Name, len(in.Local), len(c.bones))
	}

	n := c.params.Steps()
	h := 1 / float64(n)
	for s := 1; s <= n; s++ {
		alpha := float64(s) / float64(n)
		if s == n {
			alpha = 1
		}
		stats.Corrections += c.subStep(in, alpha, h)
	}

	for j := range c.bones {
		b := &c.bones[j]
		if !b.World.IsFinite() || !mathx.IsFinite(b.Tip) || !mathx.IsFinite(b.Vel) {
			c.phase = Finished
			return stats, &dynamo.ChainError{
				Chain:   c.chain.Name,
				Root:    c.arm.Bones[c.chain.Root()].Name,
				Frame:   in.Frame,
				Wrapped: dynamo.ErrUnstable,
			}
		}
		if d := b.Tip.Sub(b.TargetTip()).Len(); d > stats.MaxDeviation {
			stats.MaxDeviation = d
		}
	}
	c.frame = in.Frame
	return stats, nil
}

// Finish marks the chain done. Further steps are rejected.
func (c *Chain) Finish() { c.phase = Finished }

func (c *Chain) subStep(in FrameInput, alpha, h float64) int {
	p := c.params
	fps := c.env.FPS
	t := (float64(in.Frame-1) + alpha) / fps
	frameSq := 1 / (fps * fps)
	rollGain := (1 - p.Twist) * (1 - math.Pow(p.Delay/(p.Delay+1), h))

	corrections := 0
	parent := mathx.Interpolate(in.ParentPrev, in.Parent, alpha)
	var parentOffset, parentVel mgl64.Vec3

	for j := range c.bones {
		b := &c.bones[j]
		local := mathx.Interpolate(in.LocalPrev[j], in.Local[j], alpha)
		target := parent.Mul(local)
		head := target.Pos.Add(parentOffset)
		target.Pos = head
		b.Target = target

		goal := b.TargetTip()
		if j > 0 && p.Recursion > 0 {
			goal = goal.Add(parentVel.Mul(p.Recursion * h))
		}

		prevTip, prevHead, prevRot := b.Tip, b.World.Pos, b.World.Rot
		var next integrators.State
		if c.spring.Rigid() {
			next = integrators.State{Pos: goal}
		} else {
			var acc mgl64.Vec3
			if c.env.Forces.Active() {
				acc = forces.Evaluate(b.Tip, b.Vel.Mul(fps), c.env.Forces, t).Mul(frameSq)
			}
			next = c.env.Integrator.Step(c.spring, integrators.State{Pos: b.Tip, Vel: b.Vel}, goal, acc, h)
			if p.Tension > 0 {
				keep := 1 - p.Tension
				next.Pos = goal.Add(next.Pos.Sub(goal).Mul(keep))
				next.Vel = next.Vel.Mul(keep)
			}
			if next.Pos.Sub(prevTip).Len() < p.Threshold {
				// keep the previous bone vector, carried by the head
				next = integrators.State{Pos: head.Add(prevTip.Sub(prevHead))}
			}
			dir := mathx.NormalizeOr(next.Pos.Sub(head), target.AxisY())
			next.Pos = head.Add(dir.Mul(b.EffLength))
		}

		c.normals = c.normals[:0]
		next.Pos, c.normals = c.collide(b, head, next.Pos, in.Capsules, c.normals)
		for _, nrm := range c.normals {
			next.Vel = next.Vel.Sub(nrm.Mul(next.Vel.Dot(nrm)))
		}
		corrections += len(c.normals)

		b.Tip, b.Vel = next.Pos, next.Vel
		b.World = c.orient(b, head, prevRot, rollGain, len(c.normals) == 0)
		b.Offset = b.Tip.Sub(tipOf(b.World.Pos, b.World.Rot, b.EffLength))
		b.AngVel = angularVelocity(prevRot, b.World.Rot, h)

		parent = b.World
		parentOffset = b.Offset
		parentVel = b.Vel
	}
	return corrections
}

// orient builds the bone transform pointing from head to the tip particle.
// Roll follows the target roll at rollGain per step.
func (c *Chain) orient(b *BoneState, head mgl64.Vec3, prevRot mgl64.Quat, rollGain float64, clean bool) mathx.Transform {
	if c.spring.Rigid() && clean {
		return mathx.Transform{Pos: head, Rot: b.Target.Rot}
	}
	dir, ok := mathx.Normalize(b.Tip.Sub(head))
	if !ok {
		return mathx.Transform{Pos: head, Rot: b.Target.Rot}
	}
	aligned := mathx.RotationBetween(b.Target.AxisY(), dir).Mul(b.Target.Rot).Normalize()
	if rollGain >= 1 {
		return mathx.Transform{Pos: head, Rot: aligned}
	}
	carried := mathx.RotationBetween(prevRot.Rotate(mathx.AxisY), dir).Mul(prevRot).Normalize()
	angle := mathx.SignedAngle(carried.Rotate(mathx.AxisZ), aligned.Rotate(mathx.AxisZ), dir)
	rot := mathx.FromAxisAngle(dir, angle*rollGain).Mul(carried).Normalize()
	return mathx.Transform{Pos: head, Rot: rot}
}

// minLever is the share of the bone next to its head that the self pass
// ignores. Sibling bones share a head, and a contact there cannot be cleared
// by swinging the tip.
const minLever = 0.25

// collide runs self, plane and collection passes in that order. The self pass
// tests the bone segment past minLever and swings the tip so the closest
// point clears the other capsule; the other passes test the tip.
func (c *Chain) collide(b *BoneState, head, tip mgl64.Vec3, snapshot []collide.Capsule, normals []mgl64.Vec3) (mgl64.Vec3, []mgl64.Vec3) {
	cfg := c.env.Colliders
	r := b.Radius
	if cfg.Self {
		for _, capsule := range snapshot {
			if c.excluded(capsule.Owner, b.Bone) {
				continue
			}
			from := head.Add(tip.Sub(head).Mul(minLever))
			ct, s := capsule.ResolveSegment(from, tip, r)
			if ct.Penetrating {
				lever := minLever + s*(1-minLever)
				tip = tip.Add(ct.Correction.Mul(1 / lever))
				normals = append(normals, ct.Normal())
			}
		}
	}
	if cfg.Plane != nil {
		if ct := cfg.Plane.Resolve(tip, r); ct.Penetrating {
			tip = tip.Add(ct.Correction)
			normals = append(normals, ct.Normal())
		}
	}
	if len(cfg.Collection) > 0 {
		tip, normals = collide.Apply(tip, r, cfg.Collection, normals)
	}
	return tip, normals
}

// excluded skips a bone's own capsule and those of its parent and children.
func (c *Chain) excluded(owner, bone int) bool {
	if owner < 0 {
		return false
	}
	return owner == bone || owner == c.arm.Parent(bone) || c.arm.Parent(owner) == bone
}

func tipOf(head mgl64.Vec3, rot mgl64.Quat, length float64) mgl64.Vec3 {
	return head.Add(rot.Rotate(mgl64.Vec3{0, length, 0}))
}

func angularVelocity(from, to mgl64.Quat, h float64) mgl64.Vec3 {
	axis, angle := mathx.ToAxisAngle(to.Mul(mathx.Inverse(from)))
	if angle == 0 || h == 0 {
		return mgl64.Vec3{}
	}
	return axis.Mul(angle / h)
}

// Capsules builds the self-collision capsules for the chain's current pose.
func (c *Chain) Capsules(out []collide.Capsule) []collide.Capsule {
	cfg := c.env.Colliders
	for j := range c.bones {
		b := &c.bones[j]
		tail := tipOf(b.World.Pos, b.World.Rot, b.Length)
		out = append(out, collide.BoneCapsule(b.Bone, b.World.Pos, tail, b.Radius, cfg.LengthOffset, cfg.Margin))
	}
	return out
}

// Locals samples the posed local transform of every chain bone at frame:
// the rest transform relative to the parent followed by the sampled key.
func Locals(arm *rig.Armature, c rig.Chain, s anim.Sampler, frame float64, out []mathx.Transform) []mathx.Transform {
	out = out[:0]
	for _, b := range c.Bones {
		key := s.Sample(arm.Bones[b].Name, frame).Transform()
		out = append(out, arm.RestLocal(b).Mul(key))
	}
	return out
}
