package physics

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/springmagic/internal/anim"
	"github.com/san-kum/springmagic/internal/collide"
	"github.com/san-kum/springmagic/internal/dynamo"
	"github.com/san-kum/springmagic/internal/forces"
	"github.com/san-kum/springmagic/internal/integrators"
	"github.com/san-kum/springmagic/internal/mathx"
	"github.com/san-kum/springmagic/internal/rig"
)

// harness drives one chain from an action, the way the bake driver does.
type harness struct {
	arm   *rig.Armature
	act   *anim.Action
	chain rig.Chain
	sim   *Chain
}

func newHarness(arm *rig.Armature, act *anim.Action, names []string, p dynamo.Params, env *Environment) *harness {
	chains, err := rig.BuildChains(arm, names, false)
	Expect(err).NotTo(HaveOccurred())
	Expect(chains).To(HaveLen(1))
	sim, err := NewChain(arm, chains[0], p, env)
	Expect(err).NotTo(HaveOccurred())
	return &harness{arm: arm, act: act, chain: chains[0], sim: sim}
}

func (h *harness) parent(frame int) mathx.Transform {
	world := h.arm.EvaluatePose(h.act, float64(frame))
	return h.arm.ParentWorld(world, h.chain.Root())
}

func (h *harness) input(frame int, capsules []collide.Capsule) FrameInput {
	return FrameInput{
		Frame:      frame,
		ParentPrev: h.parent(frame - 1),
		Parent:     h.parent(frame),
		LocalPrev:  Locals(h.arm, h.chain, h.act, float64(frame-1), nil),
		Local:      Locals(h.arm, h.chain, h.act, float64(frame), nil),
		Capsules:   capsules,
	}
}

func (h *harness) start(frame int) {
	Expect(h.sim.Start(h.input(frame, nil))).To(Succeed())
}

// run steps frames (start, end] and calls fn after each one.
func (h *harness) run(start, end int, fn func(frame int, stats dynamo.FrameStats)) {
	for f := start + 1; f <= end; f++ {
		stats, err := h.sim.Step(h.input(f, nil))
		Expect(err).NotTo(HaveOccurred())
		if fn != nil {
			fn(f, stats)
		}
	}
}

// line builds a static "base" bone and n unit bones continuing along dir
// from its tail.
func line(n int, dir mgl64.Vec3, radius float64) *rig.Armature {
	bones := []rig.Bone{{Name: "base", Head: mgl64.Vec3{0, 0, 0}, Tail: mgl64.Vec3{0, 0, 1}}}
	head := mgl64.Vec3{0, 0, 1}
	parent := "base"
	for i := 0; i < n; i++ {
		name := string(rune('a' + i))
		tail := head.Add(dir)
		bones = append(bones, rig.Bone{Name: name, Parent: parent, Head: head, Tail: tail, HeadRadius: radius, TailRadius: radius})
		head, parent = tail, name
	}
	arm, err := rig.NewArmature("arm", mathx.Identity(), bones)
	Expect(err).NotTo(HaveOccurred())
	return arm
}

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('a' + i))
	}
	return out
}

// swing animates the base bone around Y from 0 to angle over frames 1..end.
func swing(angle float64, end int) *anim.Action {
	act := anim.NewAction()
	act.Insert("base", 1, anim.RestKey())
	k := anim.RestKey()
	k.Rot = mathx.FromAxisAngle(mathx.AxisY, angle)
	act.Insert("base", end, k)
	return act
}

func quiet(p dynamo.Params) dynamo.Params {
	p.Recursion = 0
	p.Threshold = 0
	return p
}

var _ = Describe("Chain", func() {
	var env *Environment

	BeforeEach(func() {
		env = &Environment{FPS: 24}
	})

	Describe("lifecycle", func() {
		It("moves from uninitialized through running to finished", func() {
			h := newHarness(line(2, mathx.AxisX, 0), anim.NewAction(), names(2), dynamo.DefaultParams(), env)
			Expect(h.sim.Phase()).To(Equal(Uninitialized))

			_, err := h.sim.Step(h.input(2, nil))
			Expect(err).To(HaveOccurred())

			h.start(1)
			Expect(h.sim.Phase()).To(Equal(Running))
			Expect(h.sim.Start(h.input(1, nil))).NotTo(Succeed())

			h.run(1, 3, nil)
			Expect(h.sim.Frame()).To(Equal(3))

			h.sim.Finish()
			Expect(h.sim.Phase()).To(Equal(Finished))
			Expect(h.sim.Phase().String()).To(Equal("finished"))
			_, err = h.sim.Step(h.input(4, nil))
			Expect(err).To(HaveOccurred())
		})

		It("rejects chains that are too short", func() {
			arm := line(1, mathx.AxisX, 0)
			chains, err := rig.BuildChains(arm, names(1), false)
			Expect(err).NotTo(HaveOccurred())

			_, err = NewChain(arm, chains[0], dynamo.DefaultParams(), env)
			Expect(errors.Is(err, dynamo.ErrChainTooShort)).To(BeTrue())

			var ce *dynamo.ChainError
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(ce.Root).To(Equal("a"))
		})

		It("rejects degenerate bones", func() {
			arm, err := rig.NewArmature("arm", mathx.Identity(), []rig.Bone{
				{Name: "base", Tail: mgl64.Vec3{0, 0, 1}},
				{Name: "a", Parent: "base", Head: mgl64.Vec3{0, 0, 1}, Tail: mgl64.Vec3{0, 0, 2}},
				{Name: "b", Parent: "a", Head: mgl64.Vec3{0, 0, 2}, Tail: mgl64.Vec3{0, 0, 2}},
			})
			Expect(err).NotTo(HaveOccurred())
			chains, _ := rig.BuildChains(arm, []string{"a", "b"}, false)

			_, err = NewChain(arm, chains[0], dynamo.DefaultParams(), env)
			Expect(errors.Is(err, dynamo.ErrDegenerateBone)).To(BeTrue())
		})

		It("rejects invalid parameters", func() {
			arm := line(2, mathx.AxisX, 0)
			chains, _ := rig.BuildChains(arm, names(2), false)
			p := dynamo.DefaultParams()
			p.Twist = 2
			_, err := NewChain(arm, chains[0], p, env)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("following the driving target", func() {
		It("matches the base pose exactly when delay is zero", func() {
			act := swing(1.2, 20)
			k := anim.RestKey()
			k.Rot = mathx.FromAxisAngle(mathx.AxisZ, 0.4)
			act.Insert("b", 10, k)

			p := quiet(dynamo.DefaultParams())
			p.Delay = 0
			h := newHarness(line(3, mathx.AxisX, 0), act, names(3), p, env)
			h.start(1)
			h.run(1, 20, func(frame int, stats dynamo.FrameStats) {
				world := h.arm.EvaluatePose(act, float64(frame))
				for j, b := range h.sim.Bones() {
					want := world[b.Bone]
					Expect(b.World.Pos.Sub(want.Pos).Len()).To(BeNumerically("<", 1e-12), "frame %d bone %d", frame, j)
					Expect(math.Abs(b.World.Rot.Dot(want.Rot))).To(BeNumerically("~", 1, 1e-12))
				}
				Expect(stats.MaxDeviation).To(Equal(0.0))
			})
		})

		It("lags less as delay decreases", func() {
			total := func(delay float64) float64 {
				p := quiet(dynamo.DefaultParams())
				p.Delay = delay
				h := newHarness(line(2, mathx.AxisX, 0), swing(1.5, 12), names(2), p, &Environment{FPS: 24})
				h.start(1)
				sum := 0.0
				h.run(1, 24, func(_ int, stats dynamo.FrameStats) { sum += stats.MaxDeviation })
				return sum
			}

			prev := math.Inf(1)
			for _, delay := range []float64{8, 4, 2, 1, 0.5, 0.25, 0} {
				got := total(delay)
				Expect(got).To(BeNumerically("<", prev), "delay %.2f", delay)
				prev = got
			}
			Expect(prev).To(Equal(0.0))
		})

		It("settles a three bone chain within thirty frames", func() {
			act := anim.NewAction()
			k := anim.RestKey()
			k.Rot = mathx.FromAxisAngle(mathx.AxisY, 0.8)
			act.Insert("base", 0, k)
			act.Insert("base", 1, anim.RestKey())

			p := quiet(dynamo.DefaultParams())
			p.Delay = 0.5
			p.Strength = 0.8
			h := newHarness(line(3, mathx.AxisX, 0), act, names(3), p, env)
			h.start(0)

			var last dynamo.FrameStats
			h.run(0, 30, func(_ int, stats dynamo.FrameStats) { last = stats })

			bones := h.sim.Bones()
			tip := bones[len(bones)-1]
			Expect(tip.Tip.Sub(tip.TargetTip()).Len()).To(BeNumerically("<", 1e-4))
			Expect(last.MaxDeviation).To(BeNumerically("<", 1e-4))

			rest := h.arm.EvaluatePose(act, 30)
			Expect(tip.World.Pos.Sub(rest[tip.Bone].Pos).Len()).To(BeNumerically("<", 1e-3))
		})

		It("drops moves smaller than the threshold", func() {
			act := anim.NewAction()
			k := anim.RestKey()
			k.Rot = mathx.FromAxisAngle(mathx.AxisY, 0.001)
			act.Insert("base", 0, k)
			act.Insert("base", 1, anim.RestKey())

			p := dynamo.DefaultParams()
			p.Threshold = 0.01
			h := newHarness(line(2, mathx.AxisX, 0), act, names(2), p, env)
			h.start(0)
			before := h.sim.Bones()
			h.run(0, 1, nil)
			after := h.sim.Bones()
			was := before[0].Tip.Sub(before[0].World.Pos)
			now := after[0].Tip.Sub(after[0].World.Pos)
			Expect(now.Sub(was).Len()).To(BeNumerically("<", 1e-12))
			Expect(after[0].Vel).To(Equal(mgl64.Vec3{}))
			Expect(after[0].World.Pos).NotTo(Equal(before[0].World.Pos))
		})

		It("pushes motion down the chain with recursion", func() {
			deviation := func(recursion float64) float64 {
				p := quiet(dynamo.DefaultParams())
				p.Recursion = recursion
				h := newHarness(line(2, mathx.AxisX, 0), swing(1, 6), names(2), p, &Environment{FPS: 24})
				h.start(1)
				h.run(1, 4, nil)
				b := h.sim.Bones()[1]
				return b.Tip.Sub(b.TargetTip()).Len()
			}
			Expect(deviation(2)).NotTo(BeNumerically("~", deviation(0), 1e-9))
		})

		It("reports divergence as an unstable chain", func() {
			p := quiet(dynamo.DefaultParams())
			p.Delay = 0.001
			env.Integrator = integrators.Symplectic{}
			h := newHarness(line(2, mathx.AxisX, 0), swing(1, 10), names(2), p, env)
			h.start(1)

			var err error
			for f := 2; f <= 400 && err == nil; f++ {
				_, err = h.sim.Step(h.input(f, nil))
			}
			Expect(errors.Is(err, dynamo.ErrUnstable)).To(BeTrue())
			Expect(h.sim.Phase()).To(Equal(Finished))
		})
	})

	Describe("parameters", func() {
		It("snaps every tip to its goal at full tension", func() {
			p := quiet(dynamo.DefaultParams())
			p.Tension = 1
			h := newHarness(line(3, mathx.AxisX, 0), swing(1.2, 8), names(3), p, env)
			h.start(1)
			h.run(1, 12, func(frame int, stats dynamo.FrameStats) {
				for _, b := range h.sim.Bones() {
					Expect(b.Tip.Sub(b.TargetTip()).Len()).To(BeNumerically("<", 1e-12), "bone %d at frame %d", b.Bone, frame)
					Expect(b.Vel.Len()).To(BeNumerically("<", 1e-12))
				}
				Expect(stats.MaxDeviation).To(BeNumerically("<", 1e-12))
			})
		})

		It("keeps the bone roll at full twist while the target rolls", func() {
			act := anim.NewAction()
			act.Insert("a", 1, anim.RestKey())
			k := anim.RestKey()
			k.Rot = mathx.FromAxisAngle(mathx.AxisY, 0.8)
			act.Insert("a", 10, k)

			roll := func(twist float64) (held, lag float64) {
				p := quiet(dynamo.DefaultParams())
				p.Twist = twist
				h := newHarness(line(2, mathx.AxisX, 0), act, names(2), p, &Environment{FPS: 24})
				h.start(1)
				start := h.sim.Bones()[0].World
				h.run(1, 30, nil)
				a := h.sim.Bones()[0]
				axis := a.World.AxisY()
				held = mathx.SignedAngle(start.Rot.Rotate(mathx.AxisZ), a.World.Rot.Rotate(mathx.AxisZ), axis)
				lag = mathx.SignedAngle(a.World.Rot.Rotate(mathx.AxisZ), a.Target.Rot.Rotate(mathx.AxisZ), axis)
				return held, lag
			}

			held, lag := roll(1)
			Expect(held).To(BeNumerically("~", 0, 1e-9))
			Expect(math.Abs(lag)).To(BeNumerically("~", 0.8, 1e-9))

			held, lag = roll(0)
			Expect(math.Abs(held)).To(BeNumerically("~", 0.8, 0.01))
			Expect(math.Abs(lag)).To(BeNumerically("<", 0.01))
		})

		It("overshoots the target further with more inertia", func() {
			overshoot := func(inertia float64) float64 {
				p := quiet(dynamo.DefaultParams())
				p.Inertia = inertia
				h := newHarness(line(2, mathx.AxisX, 0), swing(1, 6), names(2), p, &Environment{FPS: 24})
				h.start(1)
				first := h.sim.Bones()[0].TargetTip()

				most := math.Inf(-1)
				h.run(1, 40, func(frame int, _ dynamo.FrameStats) {
					if frame <= 6 {
						return
					}
					b := h.sim.Bones()[0]
					dir := mathx.NormalizeOr(b.TargetTip().Sub(first), mathx.AxisX)
					most = math.Max(most, b.Tip.Sub(b.TargetTip()).Dot(dir))
				})
				return most
			}

			none, some, lots := overshoot(0), overshoot(0.4), overshoot(0.8)
			Expect(none).To(BeNumerically("<", 1e-6))
			Expect(some).To(BeNumerically(">", none))
			Expect(lots).To(BeNumerically(">", some))
			Expect(lots).To(BeNumerically(">", 0.01))
		})

		It("extends only the leaf tip", func() {
			p := quiet(dynamo.DefaultParams())
			p.Extend = 0.5
			h := newHarness(line(3, mathx.AxisX, 0.05), swing(0.8, 6), names(3), p, env)
			h.start(1)
			h.run(1, 8, nil)

			bones := h.sim.Bones()
			capsules := h.sim.Capsules(nil)
			Expect(capsules).To(HaveLen(3))
			for j, b := range bones {
				Expect(b.Length).To(BeNumerically("~", 1, 1e-12))
				want := 1.0
				if j == len(bones)-1 {
					want = 1.5
				}
				Expect(b.EffLength).To(BeNumerically("~", want, 1e-12), "bone %d", j)
				Expect(b.Tip.Sub(b.World.Pos).Len()).To(BeNumerically("~", want, 1e-9), "bone %d", j)
				Expect(b.TargetTip().Sub(b.Target.Pos).Len()).To(BeNumerically("~", want, 1e-9))
				Expect(capsules[j].B.Sub(capsules[j].A).Len()).To(BeNumerically("~", 1, 1e-9), "capsule %d", j)
			}
		})
	})

	Describe("collisions", func() {
		It("keeps a falling chain on top of a box", func() {
			box := collide.Box{
				Transform: mathx.Identity(),
				Min:       mgl64.Vec3{0.5, -1, -1},
				Max:       mgl64.Vec3{4, 1, 0.8},
			}
			env.Forces = forces.Config{Constant: forces.Constant{Enabled: true, Direction: mgl64.Vec3{0, 0, -1}, Strength: 300}}
			env.Colliders = ColliderConfig{Collection: []collide.Collider{box}}

			p := dynamo.DefaultParams()
			p.SubSteps = 2
			h := newHarness(line(3, mathx.AxisX, 0), anim.NewAction(), names(3), p, env)
			h.start(1)

			corrections := 0
			h.run(1, 60, func(frame int, stats dynamo.FrameStats) {
				corrections += stats.Corrections
				for _, b := range h.sim.Bones() {
					Expect(box.Resolve(b.Tip, 0).Penetrating).To(BeFalse(), "tip of bone %d at frame %d: %v", b.Bone, frame, b.Tip)
					Expect(box.Resolve(b.World.Pos, 0).Penetrating).To(BeFalse(), "head of bone %d at frame %d", b.Bone, frame)
				}
			})
			Expect(corrections).To(BeNumerically(">", 0))

			// without the box the same chain sags well below the top face
			env.Colliders = ColliderConfig{}
			free := newHarness(line(3, mathx.AxisX, 0), anim.NewAction(), names(3), p, env)
			free.start(1)
			free.run(1, 60, nil)
			bones := free.sim.Bones()
			Expect(bones[len(bones)-1].Tip.Z()).To(BeNumerically("<", 0.8))
		})

		It("rests on a collision plane", func() {
			plane := collide.PlaneFrom(mathx.NewTransform(mgl64.Vec3{0, 0, 0.5}, mgl64.QuatIdent()))
			env.Forces = forces.Config{Constant: forces.Constant{Enabled: true, Direction: mgl64.Vec3{0, 0, -1}, Strength: 300}}
			env.Colliders = ColliderConfig{Plane: &plane}

			h := newHarness(line(2, mathx.AxisX, 0.05), anim.NewAction(), names(2), dynamo.DefaultParams(), env)
			h.start(1)
			h.run(1, 40, func(int, dynamo.FrameStats) {
				for _, b := range h.sim.Bones() {
					Expect(b.Tip.Z()).To(BeNumerically(">=", 0.55-1e-9))
				}
			})
		})

		It("separates overlapping sibling chains in one pass", func() {
			bones := []rig.Bone{
				{Name: "root", Head: mgl64.Vec3{0, 0, 0}, Tail: mgl64.Vec3{0, 0, 1}},
				{Name: "a1", Parent: "root", Head: mgl64.Vec3{0, 0, 1}, Tail: mgl64.Vec3{0, 0, 2}, HeadRadius: 0.1, TailRadius: 0.1},
				{Name: "a2", Parent: "a1", Head: mgl64.Vec3{0, 0, 2}, Tail: mgl64.Vec3{0, 0, 3}, HeadRadius: 0.1, TailRadius: 0.1},
				{Name: "b1", Parent: "root", Head: mgl64.Vec3{0.3, 0, 1}, Tail: mgl64.Vec3{0.05, 0, 2}, HeadRadius: 0.1, TailRadius: 0.1},
				{Name: "b2", Parent: "b1", Head: mgl64.Vec3{0.05, 0, 2}, Tail: mgl64.Vec3{0.05, 0, 3}, HeadRadius: 0.1, TailRadius: 0.1},
			}
			arm, err := rig.NewArmature("arm", mathx.Identity(), bones)
			Expect(err).NotTo(HaveOccurred())
			env.Colliders = ColliderConfig{Self: true}

			act := anim.NewAction()
			a := newHarness(arm, act, []string{"a1", "a2"}, dynamo.DefaultParams(), env)
			b := newHarness(arm, act, []string{"b1", "b2"}, dynamo.DefaultParams(), env)
			a.start(1)
			b.start(1)

			overlapping := func(x, y []collide.Capsule) bool {
				for _, cx := range x {
					for _, cy := range y {
						if mathx.SegmentDistance(cx.A, cx.B, cy.A, cy.B) < cx.Radius+cy.Radius-1e-6 {
							return true
						}
					}
				}
				return false
			}
			Expect(overlapping(a.sim.Capsules(nil), b.sim.Capsules(nil))).To(BeTrue())

			snapshot := b.sim.Capsules(a.sim.Capsules(nil))
			_, err = a.sim.Step(a.input(2, snapshot))
			Expect(err).NotTo(HaveOccurred())
			_, err = b.sim.Step(b.input(2, snapshot))
			Expect(err).NotTo(HaveOccurred())

			Expect(overlapping(a.sim.Capsules(nil), b.sim.Capsules(nil))).To(BeFalse())
		})

		It("separates sibling bones that cross mid segment", func() {
			bones := []rig.Bone{
				{Name: "root", Head: mgl64.Vec3{0, 0, 0}, Tail: mgl64.Vec3{0, 0, 1}},
				{Name: "a1", Parent: "root", Head: mgl64.Vec3{-0.5, 0, 1}, Tail: mgl64.Vec3{0.5, 0, 2}, HeadRadius: 0.1, TailRadius: 0.1},
				{Name: "a2", Parent: "a1", Head: mgl64.Vec3{0.5, 0, 2}, Tail: mgl64.Vec3{1.5, 0, 3}, HeadRadius: 0.1, TailRadius: 0.1},
				{Name: "b1", Parent: "root", Head: mgl64.Vec3{0.5, 0, 1}, Tail: mgl64.Vec3{-0.5, 0, 2}, HeadRadius: 0.1, TailRadius: 0.1},
				{Name: "b2", Parent: "b1", Head: mgl64.Vec3{-0.5, 0, 2}, Tail: mgl64.Vec3{-1.5, 0, 3}, HeadRadius: 0.1, TailRadius: 0.1},
			}
			arm, err := rig.NewArmature("arm", mathx.Identity(), bones)
			Expect(err).NotTo(HaveOccurred())
			env.Colliders = ColliderConfig{Self: true}

			act := anim.NewAction()
			a := newHarness(arm, act, []string{"a1", "a2"}, dynamo.DefaultParams(), env)
			b := newHarness(arm, act, []string{"b1", "b2"}, dynamo.DefaultParams(), env)
			a.start(1)
			b.start(1)

			gap := func() (float64, float64) {
				ca, cb := a.sim.Capsules(nil)[0], b.sim.Capsules(nil)[0]
				return mathx.SegmentDistance(ca.A, ca.B, cb.A, cb.B), ca.Radius + cb.Radius
			}
			dist, need := gap()
			Expect(dist).To(BeNumerically("<", need))

			// both tips sit well clear of the other bone, so only the
			// segments overlap
			Expect(bones[1].Tail.Sub(bones[3].Tail).Len()).To(BeNumerically(">", 2*need))

			snapshot := b.sim.Capsules(a.sim.Capsules(nil))
			_, err = a.sim.Step(a.input(2, snapshot))
			Expect(err).NotTo(HaveOccurred())
			_, err = b.sim.Step(b.input(2, snapshot))
			Expect(err).NotTo(HaveOccurred())

			dist, need = gap()
			Expect(dist).To(BeNumerically(">=", need-1e-6))
		})
	})
})
