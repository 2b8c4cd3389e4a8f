package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/san-kum/springmagic/internal/anim"
	"github.com/san-kum/springmagic/internal/collide"
	"github.com/san-kum/springmagic/internal/dynamo"
	"github.com/san-kum/springmagic/internal/mathx"
	"github.com/san-kum/springmagic/internal/physics"
	"github.com/san-kum/springmagic/internal/rig"
)

// Baker runs the frame loop of a bake: it feeds the base animation to one
// simulator per chain and turns the simulated poses into keys.
type Baker struct {
	log       *slog.Logger
	metrics   []dynamo.Metric
	observers []dynamo.Observer
}

func New(log *slog.Logger) *Baker {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Baker{log: log}
}

func (b *Baker) AddMetric(m dynamo.Metric)     { b.metrics = append(b.metrics, m) }
func (b *Baker) AddObserver(o dynamo.Observer) { b.observers = append(b.observers, o) }

// chainRun is the bookkeeping of one chain during a bake.
type chainRun struct {
	info   rig.Chain
	sim    *physics.Chain
	failed bool

	worlds     [][]mathx.Transform
	baseParent []mathx.Transform

	locals, prevLocals []mathx.Transform
	stats              dynamo.FrameStats
	err                error
}

// Run simulates every chain over [Start, End]. Configuration errors are
// returned before anything is simulated. Chains that cannot be simulated are
// reported in Result.Report and produce no keys. A canceled context aborts
// the bake with ErrCanceled and no result, so a canceled bake never leaves
// partial keys behind.
func (b *Baker) Run(ctx context.Context, in Input) (*Result, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	began := time.Now()
	arm := in.Armature
	frames := in.End - in.Start + 1

	res := &Result{Start: in.Start, End: in.End, Metrics: make(map[string]float64)}
	res.Report.Chains = len(in.Chains)
	res.Report.Frames = frames
	res.Report.Skipped = append(res.Report.Skipped, in.Collection.Skipped...)
	res.Report.AutoRegistered = append(res.Report.AutoRegistered, in.Collection.AutoRegistered...)

	env := &physics.Environment{
		FPS:        in.FPS,
		Forces:     in.Forces,
		Colliders:  in.Colliders,
		Integrator: in.Integrator,
	}
	if env.FPS <= 0 {
		env.FPS = 24
	}
	env.Colliders.Collection = append(append([]collide.Collider(nil), in.Colliders.Collection...), in.Collection.Colliders...)

	runs, longest := b.prepare(arm, &in, env, &res.Report)
	pool := NewTransformPool(longest)
	for _, r := range runs {
		r.locals, r.prevLocals = pool.Get(), pool.Get()
		r.worlds = make([][]mathx.Transform, 0, frames)
		r.baseParent = make([]mathx.Transform, 0, frames)
	}
	defer func() {
		for _, r := range runs {
			pool.Put(r.locals)
			pool.Put(r.prevLocals)
		}
	}()

	for _, m := range b.metrics {
		m.Reset()
	}

	b.log.Info("bake started",
		"armature", arm.Name,
		"chains", len(in.Chains),
		"start", in.Start,
		"end", in.End,
	)

	live := make([]bool, arm.Len())
	for _, r := range runs {
		for _, bone := range r.info.Bones {
			live[bone] = true
		}
	}
	levels := groupLevels(runs)

	curBase := arm.EvaluatePose(in.Base, float64(in.Start))
	prevBase := curBase
	curPub := make([]mathx.Transform, arm.Len())
	prevPub := make([]mathx.Transform, arm.Len())
	var snapshot []collide.Capsule

	for f := in.Start; f <= in.End; f++ {
		select {
		case <-ctx.Done():
			b.log.Warn("bake canceled", "frame", f)
			return nil, fmt.Errorf("%w at frame %d: %w", dynamo.ErrCanceled, f, ctx.Err())
		default:
		}

		if f > in.Start {
			prevBase, curBase = curBase, arm.EvaluatePose(in.Base, float64(f))
			prevPub, curPub = curPub, prevPub
		}
		worst := 0.0

		for _, level := range levels {
			dynamo.ParallelFor(len(level), 1, in.Options.Workers, func(start, end int) {
				for _, r := range level[start:end] {
					if r.failed {
						continue
					}
					fi := physics.FrameInput{
						Frame:    f,
						Parent:   parentWorld(arm, r, live, curPub, curBase),
						Local:    physics.Locals(arm, r.info, in.Base, float64(f), r.locals),
						Capsules: snapshot,
					}
					r.locals = fi.Local
					if f == in.Start {
						r.err = r.sim.Start(fi)
						continue
					}
					fi.ParentPrev = parentWorld(arm, r, live, prevPub, prevBase)
					fi.LocalPrev = physics.Locals(arm, r.info, in.Base, float64(f-1), r.prevLocals)
					r.prevLocals = fi.LocalPrev
					r.stats, r.err = r.sim.Step(fi)
				}
			})

			for _, r := range level {
				if r.failed {
					continue
				}
				if r.err != nil {
					b.fail(r, arm, f, &res.Report, live)
					continue
				}
				worlds := r.sim.Worlds()
				for j, bone := range r.info.Bones {
					curPub[bone] = worlds[j]
				}
				r.worlds = append(r.worlds, worlds)
				r.baseParent = append(r.baseParent, baseParentWorld(arm, r, curBase))
				if f > in.Start {
					for _, m := range b.metrics {
						m.Observe(r.stats)
					}
					worst = max(worst, r.stats.MaxDeviation)
				}
			}
		}
		res.Report.Deviation = append(res.Report.Deviation, worst)

		if in.Colliders.Self {
			snapshot = snapshot[:0]
			for _, r := range runs {
				if !r.failed {
					snapshot = r.sim.Capsules(snapshot)
				}
			}
		}

		b.log.Debug("frame simulated", "frame", f)
		done := f - in.Start + 1
		for _, o := range b.observers {
			o.OnFrame(f, done, frames)
		}
	}

	for _, r := range runs {
		if !r.failed {
			r.sim.Finish()
		}
	}

	res.Bones = b.keys(arm, &in, runs)
	res.Report.Baked = 0
	for _, r := range runs {
		if !r.failed {
			res.Report.Baked++
		}
	}
	res.Report.Sort()
	for _, m := range b.metrics {
		res.Metrics[m.Name()] = m.Value()
	}

	b.log.Info("bake finished",
		"frames", frames,
		"chains", res.Report.Baked,
		"skipped", len(res.Report.Warnings),
		"elapsed", time.Since(began),
	)
	return res, nil
}

// prepare builds a simulator per chain. Chains that cannot be simulated are
// reported and left out.
func (b *Baker) prepare(arm *rig.Armature, in *Input, env *physics.Environment, report *dynamo.Report) ([]*chainRun, int) {
	var runs []*chainRun
	longest := 1
	for _, c := range in.Chains {
		sim, err := physics.NewChain(arm, c, in.paramsFor(c), env)
		if err != nil {
			ce := chainError(arm, c, 0, err)
			report.Warn(ce)
			b.log.Warn("chain skipped", "chain", ce.Chain, "root", ce.Root, "reason", ce.Wrapped)
			continue
		}
		runs = append(runs, &chainRun{info: c, sim: sim})
		longest = max(longest, len(c.Bones))
	}
	return runs, longest
}

func (b *Baker) fail(r *chainRun, arm *rig.Armature, frame int, report *dynamo.Report, live []bool) {
	r.failed = true
	r.sim.Finish()
	for _, bone := range r.info.Bones {
		live[bone] = false
	}
	ce := chainError(arm, r.info, frame, r.err)
	report.Warn(ce)
	b.log.Warn("chain skipped", "chain", ce.Chain, "root", ce.Root, "frame", frame, "reason", ce.Wrapped)
}

func chainError(arm *rig.Armature, c rig.Chain, frame int, err error) *dynamo.ChainError {
	var ce *dynamo.ChainError
	if errors.As(err, &ce) {
		if ce.Frame == 0 {
			ce.Frame = frame
		}
		return ce
	}
	root := ""
	if len(c.Bones) > 0 {
		root = arm.Bones[c.Root()].Name
	}
	return &dynamo.ChainError{Chain: c.Name, Root: root, Frame: frame, Wrapped: err}
}

// parentWorld is the world transform the chain root hangs from: the
// simulated parent when another live chain owns it, else the base pose.
func parentWorld(arm *rig.Armature, r *chainRun, live []bool, pub, base []mathx.Transform) mathx.Transform {
	p := arm.Parent(r.info.Root())
	switch {
	case p < 0:
		return arm.World
	case live[p]:
		return pub[p]
	}
	return base[p]
}

func baseParentWorld(arm *rig.Armature, r *chainRun, base []mathx.Transform) mathx.Transform {
	if p := arm.Parent(r.info.Root()); p >= 0 {
		return base[p]
	}
	return arm.World
}

// groupLevels orders runs by root depth. Chains in one level never depend on
// each other.
func groupLevels(runs []*chainRun) [][]*chainRun {
	chains := make([]rig.Chain, len(runs))
	byRoot := make(map[int]*chainRun, len(runs))
	for i, r := range runs {
		chains[i] = r.info
		byRoot[r.info.Root()] = r
	}
	sort.SliceStable(chains, func(i, j int) bool {
		if chains[i].Depth != chains[j].Depth {
			return chains[i].Depth < chains[j].Depth
		}
		return chains[i].Root() < chains[j].Root()
	})

	var levels [][]*chainRun
	for _, level := range rig.Levels(chains) {
		group := make([]*chainRun, len(level))
		for i, c := range level {
			group[i] = byRoot[c.Root()]
		}
		levels = append(levels, group)
	}
	return levels
}

// keys converts the recorded worlds of every live chain into keys.
func (b *Baker) keys(arm *rig.Armature, in *Input, runs []*chainRun) []BoneKeys {
	type slot struct {
		run *chainRun
		j   int
	}
	owner := make(map[int]slot)
	for _, r := range runs {
		if r.failed {
			continue
		}
		for j, bone := range r.info.Bones {
			owner[bone] = slot{r, j}
		}
	}

	weight := in.Options.Weight
	var out []BoneKeys
	for _, r := range runs {
		if r.failed {
			continue
		}
		for j, bone := range r.info.Bones {
			name := arm.Bones[bone].Name
			startKey := in.Base.Sample(name, float64(in.Start))
			keys := make([]anim.Keyframe, len(r.worlds))
			for fi, worlds := range r.worlds {
				frame := in.Start + fi
				var parent mathx.Transform
				switch p := arm.Parent(bone); {
				case j > 0:
					parent = worlds[j-1]
				case p >= 0:
					if s, ok := owner[p]; ok {
						parent = s.run.worlds[fi][s.j]
					} else {
						parent = r.baseParent[fi]
					}
				default:
					parent = arm.World
				}

				local := arm.LocalKey(bone, parent, worlds[j])
				existing := in.Base.Sample(name, float64(frame))
				k := anim.Key{Loc: local.Pos, Rot: local.Rot.Normalize(), Scale: existing.Scale}
				keys[fi] = anim.Keyframe{Frame: frame, Key: anim.Blend(in.Options.Mode, existing, k, startKey, weight)}
			}
			if in.Options.Loop && len(keys) > 1 {
				keys[len(keys)-1].Key = keys[0].Key
			}
			out = append(out, BoneKeys{Bone: name, Keys: keys})
		}
	}
	return out
}

// Commit writes the keys of a bake into the action. Every replaced key is
// remembered so Clear can restore it. It returns the number of keys written.
func Commit(act *anim.Action, res *Result) int {
	n := 0
	for _, bk := range res.Bones {
		for _, kf := range bk.Keys {
			act.Bake(bk.Bone, kf.Frame, kf.Key)
			n++
		}
	}
	return n
}

// Clear removes the baked keys of bones in [start, end] and restores the keys
// they replaced.
func Clear(act *anim.Action, bones []string, start, end int) (int, error) {
	if start > end {
		return 0, fmt.Errorf("%w: %d > %d", dynamo.ErrFrameRange, start, end)
	}
	if len(bones) == 0 {
		return 0, dynamo.ErrNoSelection
	}
	return act.ClearBaked(bones, start, end), nil
}
