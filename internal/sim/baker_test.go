package sim

import (
	"context"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/springmagic/internal/anim"
	"github.com/san-kum/springmagic/internal/dynamo"
	"github.com/san-kum/springmagic/internal/mathx"
	"github.com/san-kum/springmagic/internal/metrics"
	"github.com/san-kum/springmagic/internal/rig"
)

// fork is a base bone with two horizontal two-bone branches and a lone
// stub, all hanging from the base tail.
func fork() *rig.Armature {
	up := mgl64.Vec3{0, 0, 1}
	arm, err := rig.NewArmature("fork", mathx.Identity(), []rig.Bone{
		{Name: "base", Head: mgl64.Vec3{}, Tail: up},
		{Name: "a1", Parent: "base", Head: up, Tail: mgl64.Vec3{1, 0, 1}},
		{Name: "a2", Parent: "a1", Head: mgl64.Vec3{1, 0, 1}, Tail: mgl64.Vec3{2, 0, 1}},
		{Name: "b1", Parent: "base", Head: up, Tail: mgl64.Vec3{-1, 0, 1}},
		{Name: "b2", Parent: "b1", Head: mgl64.Vec3{-1, 0, 1}, Tail: mgl64.Vec3{-2, 0, 1}},
		{Name: "stub", Parent: "base", Head: up, Tail: mgl64.Vec3{0, 1, 1}},
	})
	Expect(err).NotTo(HaveOccurred())
	return arm
}

// swing turns the base bone around Y by angle over frames 1..end.
func swing(angle float64, end int) *anim.Action {
	act := anim.NewAction()
	act.Insert("base", 1, anim.RestKey())
	k := anim.RestKey()
	k.Rot = mathx.FromAxisAngle(mathx.AxisY, angle)
	act.Insert("base", end, k)
	return act
}

func input(arm *rig.Armature, act *anim.Action, bones ...string) Input {
	chains, err := rig.BuildChains(arm, bones, false)
	Expect(err).NotTo(HaveOccurred())
	return Input{
		Armature: arm,
		Chains:   chains,
		Start:    1,
		End:      12,
		FPS:      24,
		Params:   dynamo.DefaultParams(),
		Base:     act.Base(bones),
		Options:  DefaultOptions(),
	}
}

func keyFor(res *Result, bone string) []anim.Keyframe {
	for _, bk := range res.Bones {
		if bk.Bone == bone {
			return bk.Keys
		}
	}
	return nil
}

var _ = Describe("Baker", func() {
	var (
		arm *rig.Armature
		act *anim.Action
		ctx context.Context
	)

	BeforeEach(func() {
		arm = fork()
		act = swing(1.2, 8)
		ctx = context.Background()
	})

	Describe("configuration errors", func() {
		It("rejects a missing armature", func() {
			in := input(arm, act, "a1", "a2")
			in.Armature = nil
			_, err := New(nil).Run(ctx, in)
			Expect(err).To(MatchError(dynamo.ErrNoArmature))
		})

		It("rejects an empty selection", func() {
			in := input(arm, act, "a1", "a2")
			in.Chains = nil
			_, err := New(nil).Run(ctx, in)
			Expect(err).To(MatchError(dynamo.ErrNoSelection))
		})

		It("rejects an inverted frame range", func() {
			in := input(arm, act, "a1", "a2")
			in.Start, in.End = 10, 2
			_, err := New(nil).Run(ctx, in)
			Expect(err).To(MatchError(dynamo.ErrFrameRange))
		})

		It("rejects a bone shared by two chains", func() {
			in := input(arm, act, "a1", "a2")
			in.Chains = append(in.Chains, in.Chains[0])
			_, err := New(nil).Run(ctx, in)
			Expect(err).To(HaveOccurred())
		})

		It("rejects weights outside [0,1]", func() {
			in := input(arm, act, "a1", "a2")
			in.Options.Weight = 1.5
			_, err := New(nil).Run(ctx, in)
			Expect(err).To(HaveOccurred())
		})
	})

	It("keys every chain bone on every frame", func() {
		res, err := New(nil).Run(ctx, input(arm, act, "a1", "a2", "b1", "b2"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.BoneNames()).To(Equal([]string{"a1", "a2", "b1", "b2"}))
		for _, bk := range res.Bones {
			Expect(bk.Keys).To(HaveLen(12))
			for i, kf := range bk.Keys {
				Expect(kf.Frame).To(Equal(1 + i))
				Expect(kf.Key.Transform().IsFinite()).To(BeTrue())
			}
		}
		Expect(res.Report.Chains).To(Equal(2))
		Expect(res.Report.Baked).To(Equal(2))
		Expect(res.Report.Frames).To(Equal(12))
	})

	It("starts from the base pose", func() {
		res, err := New(nil).Run(ctx, input(arm, act, "a1", "a2"))
		Expect(err).NotTo(HaveOccurred())
		for _, name := range []string{"a1", "a2"} {
			k := keyFor(res, name)[0].Key
			Expect(k.Loc.Len()).To(BeNumerically("<", 1e-9))
			_, angle := mathx.ToAxisAngle(k.Rot)
			Expect(angle).To(BeNumerically("<", 1e-6))
		}
	})

	It("reproduces the base animation with zero delay", func() {
		in := input(arm, act, "a1", "a2")
		in.Params.Delay = 0
		res, err := New(nil).Run(ctx, in)
		Expect(err).NotTo(HaveOccurred())
		for _, bk := range res.Bones {
			for _, kf := range bk.Keys {
				_, angle := mathx.ToAxisAngle(kf.Key.Rot)
				Expect(angle).To(BeNumerically("<", 1e-6), "bone %s frame %d", bk.Bone, kf.Frame)
			}
		}
	})

	It("lags behind a moving parent", func() {
		res, err := New(nil).Run(ctx, input(arm, act, "a1", "a2"))
		Expect(err).NotTo(HaveOccurred())
		_, angle := mathx.ToAxisAngle(keyFor(res, "a1")[4].Key.Rot)
		Expect(angle).To(BeNumerically(">", 1e-3))
	})

	Describe("determinism", func() {
		It("produces identical keys on repeated runs", func() {
			in := input(arm, act, "a1", "a2", "b1", "b2")
			first, err := New(nil).Run(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			second, err := New(nil).Run(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Bones).To(Equal(first.Bones))
		})

		It("does not depend on the number of workers", func() {
			in := input(arm, act, "a1", "a2", "b1", "b2")
			in.Colliders.Self = true
			sequential, err := New(nil).Run(ctx, in)
			Expect(err).NotTo(HaveOccurred())

			in.Options.Workers = 4
			parallel, err := New(nil).Run(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(parallel.Bones).To(Equal(sequential.Bones))
		})
	})

	It("reports short chains and bakes the rest", func() {
		res, err := New(nil).Run(ctx, input(arm, act, "a1", "a2", "stub"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Report.Chains).To(Equal(2))
		Expect(res.Report.Baked).To(Equal(1))
		Expect(res.Report.Failed(dynamo.ErrChainTooShort)).To(BeTrue())
		Expect(res.Report.Warnings[0].Root).To(Equal("stub"))
		Expect(res.BoneNames()).To(Equal([]string{"a1", "a2"}))
	})

	It("copies the start key to the end when looping", func() {
		in := input(arm, act, "a1", "a2")
		in.Options.Loop = true
		res, err := New(nil).Run(ctx, in)
		Expect(err).NotTo(HaveOccurred())
		for _, bk := range res.Bones {
			Expect(bk.Keys[len(bk.Keys)-1].Key).To(Equal(bk.Keys[0].Key))
			Expect(bk.Keys[len(bk.Keys)-1].Frame).To(Equal(in.End))
		}
	})

	It("mixes partial weights into the existing pose", func() {
		in := input(arm, act, "a1", "a2")
		full, err := New(nil).Run(ctx, in)
		Expect(err).NotTo(HaveOccurred())

		in.Options.Weight = 0.5
		half, err := New(nil).Run(ctx, in)
		Expect(err).NotTo(HaveOccurred())

		for _, name := range []string{"a1", "a2"} {
			fk, hk := keyFor(full, name), keyFor(half, name)
			for i := range fk {
				existing := act.Sample(name, float64(fk[i].Frame))
				Expect(hk[i].Key).To(Equal(anim.Interpolate(existing, fk[i].Key, 0.5)))
			}
		}
	})

	It("leaves the existing pose unchanged at weight 0", func() {
		in := input(arm, act, "a1", "a2")
		in.Options.Weight = 0
		res, err := New(nil).Run(ctx, in)
		Expect(err).NotTo(HaveOccurred())

		for _, name := range []string{"a1", "a2"} {
			keys := keyFor(res, name)
			Expect(keys).To(HaveLen(in.End - in.Start + 1))
			for _, kf := range keys {
				Expect(kf.Key).To(Equal(act.Sample(name, float64(kf.Frame))))
			}
		}
	})

	It("collects metrics and notifies observers", func() {
		b := New(nil)
		for _, m := range metrics.Standard() {
			b.AddMetric(m)
		}
		var frames []int
		b.AddObserver(dynamo.ObserverFunc(func(frame, done, total int) {
			Expect(total).To(Equal(12))
			Expect(done).To(Equal(frame))
			frames = append(frames, frame)
		}))

		res, err := b.Run(ctx, input(arm, act, "a1", "a2"))
		Expect(err).NotTo(HaveOccurred())
		Expect(frames).To(HaveLen(12))
		Expect(res.Metrics).To(HaveKey("peak_deviation"))
		Expect(res.Metrics["peak_deviation"]).To(BeNumerically(">", 0))
		Expect(math.IsNaN(res.Metrics["mean_deviation"])).To(BeFalse())

		dev := res.Report.Deviation
		Expect(dev).To(HaveLen(12))
		Expect(dev[0]).To(Equal(0.0))
		peak := 0.0
		for _, d := range dev {
			peak = max(peak, d)
		}
		Expect(peak).To(Equal(res.Metrics["peak_deviation"]))
	})

	Describe("cancellation", func() {
		It("returns ErrCanceled for a canceled context", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			res, err := New(nil).Run(cctx, input(arm, act, "a1", "a2"))
			Expect(err).To(MatchError(dynamo.ErrCanceled))
			Expect(res).To(BeNil())
		})

		It("stops mid-bake without a result", func() {
			cctx, cancel := context.WithCancel(ctx)
			defer cancel()
			b := New(nil)
			b.AddObserver(dynamo.ObserverFunc(func(frame, done, total int) {
				if frame == 4 {
					cancel()
				}
			}))
			before := act.Clone()
			res, err := b.Run(cctx, input(arm, act, "a1", "a2"))
			Expect(err).To(MatchError(dynamo.ErrCanceled))
			Expect(res).To(BeNil())
			Expect(act.Keys("a1")).To(Equal(before.Keys("a1")))
		})
	})

	Describe("commit and clear", func() {
		It("restores the action exactly", func() {
			prior := anim.RestKey()
			prior.Rot = mathx.FromAxisAngle(mathx.AxisZ, 0.3)
			act.Insert("a2", 5, prior)
			original := act.Clone()

			res, err := New(nil).Run(ctx, input(arm, act, "a1", "a2"))
			Expect(err).NotTo(HaveOccurred())
			Expect(Commit(act, res)).To(Equal(24))

			kf, ok := act.Lookup("a2", 5)
			Expect(ok).To(BeTrue())
			Expect(kf.Baked).To(BeTrue())

			n, err := Clear(act, []string{"a1", "a2"}, 1, 12)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(24))
			Expect(act.Keys("a1")).To(BeEmpty())
			Expect(act.Keys("a2")).To(Equal(original.Keys("a2")))
			Expect(act.Keys("base")).To(Equal(original.Keys("base")))
		})

		It("bakes again from the unbaked pose", func() {
			in := input(arm, act, "a1", "a2")
			first, err := New(nil).Run(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Commit(act, first)

			second, err := New(nil).Run(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Bones).To(Equal(first.Bones))
		})

		It("validates the clear request", func() {
			_, err := Clear(act, []string{"a1"}, 5, 1)
			Expect(err).To(MatchError(dynamo.ErrFrameRange))
			_, err = Clear(act, nil, 1, 5)
			Expect(err).To(MatchError(dynamo.ErrNoSelection))
		})
	})
})
