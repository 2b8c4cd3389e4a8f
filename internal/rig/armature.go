// Package rig is a read-only snapshot of an armature: the bone hierarchy, rest
// transforms, collision radii, pose evaluation and chain discovery.
package rig

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/springmagic/internal/anim"
	"github.com/san-kum/springmagic/internal/dynamo"
	"github.com/san-kum/springmagic/internal/mathx"
)

// Bone is a bone in armature space. Head and Tail are rest positions; the
// bone's local Y axis runs from head to tail and Roll turns it around Y.
type Bone struct {
	Name       string
	Parent     string
	Head       mgl64.Vec3
	Tail       mgl64.Vec3
	Roll       float64
	HeadRadius float64
	TailRadius float64
}

// Armature owns the bones in parent-before-child order.
type Armature struct {
	Name  string
	World mathx.Transform
	Bones []Bone

	index    map[string]int
	parent   []int
	children [][]int
	rest     []mathx.Transform
	local    []mathx.Transform
}

// NewArmature indexes the bones. Every parent must be listed before its
// children and names must be unique.
func NewArmature(name string, world mathx.Transform, bones []Bone) (*Armature, error) {
	if len(bones) == 0 {
		return nil, fmt.Errorf("armature %q: %w", name, dynamo.ErrNoArmature)
	}
	a := &Armature{
		Name:     name,
		World:    world,
		Bones:    append([]Bone(nil), bones...),
		index:    make(map[string]int, len(bones)),
		parent:   make([]int, len(bones)),
		children: make([][]int, len(bones)),
		rest:     make([]mathx.Transform, len(bones)),
		local:    make([]mathx.Transform, len(bones)),
	}
	if a.World.Rot == (mgl64.Quat{}) {
		a.World.Rot = mgl64.QuatIdent()
	}

	for i, b := range a.Bones {
		if b.Name == "" {
			return nil, fmt.Errorf("armature %q: bone %d has no name", name, i)
		}
		if _, dup := a.index[b.Name]; dup {
			return nil, fmt.Errorf("armature %q: duplicate bone %q", name, b.Name)
		}
		a.parent[i] = -1
		if b.Parent != "" {
			p, ok := a.index[b.Parent]
			if !ok {
				return nil, fmt.Errorf("armature %q: bone %q parent %q: %w", name, b.Name, b.Parent, dynamo.ErrUnknownBone)
			}
			a.parent[i] = p
			a.children[p] = append(a.children[p], i)
		}
		a.index[b.Name] = i

		a.rest[i] = restTransform(b)
		if p := a.parent[i]; p >= 0 {
			a.local[i] = a.rest[p].Inverse().Mul(a.rest[i])
		} else {
			a.local[i] = a.rest[i]
		}
	}
	return a, nil
}

func restTransform(b Bone) mathx.Transform {
	rot := mathx.RotationBetween(mathx.AxisY, b.Tail.Sub(b.Head))
	rot = rot.Mul(mathx.FromAxisAngle(mathx.AxisY, b.Roll))
	return mathx.NewTransform(b.Head, rot)
}

func (a *Armature) Len() int { return len(a.Bones) }

// Index returns the position of the named bone.
func (a *Armature) Index(name string) (int, bool) {
	i, ok := a.index[name]
	return i, ok
}

// Parent returns the parent index, or -1 for a root bone.
func (a *Armature) Parent(i int) int { return a.parent[i] }

func (a *Armature) Children(i int) []int { return a.children[i] }

// Rest is the bone's rest transform in armature space.
func (a *Armature) Rest(i int) mathx.Transform { return a.rest[i] }

// RestLocal is the rest transform relative to the parent's rest transform.
func (a *Armature) RestLocal(i int) mathx.Transform { return a.local[i] }

func (a *Armature) Length(i int) float64 {
	b := a.Bones[i]
	return b.Tail.Sub(b.Head).Len()
}

// Radius is the larger envelope radius of the bone, never below 0.001.
func (a *Armature) Radius(i int) float64 {
	b := a.Bones[i]
	r := b.HeadRadius
	if b.TailRadius > r {
		r = b.TailRadius
	}
	if r < 0.001 {
		r = 0.001
	}
	return r
}

// Degenerate reports whether the bone cannot define a direction.
func (a *Armature) Degenerate(i int) bool {
	b := a.Bones[i]
	return a.Length(i) < mathx.Epsilon || !mathx.IsFinite(b.Head) || !mathx.IsFinite(b.Tail)
}

// Depth counts the ancestors of bone i.
func (a *Armature) Depth(i int) int {
	d := 0
	for p := a.parent[i]; p >= 0; p = a.parent[p] {
		d++
	}
	return d
}

// Names returns the bone names for a list of indices.
func (a *Armature) Names(idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = a.Bones[j].Name
	}
	return out
}

// EvaluatePose computes world transforms of every bone for the sampled keys
// at frame. Keys are read relative to each bone's rest transform.
func (a *Armature) EvaluatePose(s anim.Sampler, frame float64) []mathx.Transform {
	world := make([]mathx.Transform, len(a.Bones))
	for i, b := range a.Bones {
		key := s.Sample(b.Name, frame).Transform()
		world[i] = a.ParentWorld(world, i).Mul(a.local[i]).Mul(key)
	}
	return world
}

// ParentWorld returns the world transform that bone i hangs from: its
// parent's entry in world, or the armature object transform for a root.
func (a *Armature) ParentWorld(world []mathx.Transform, i int) mathx.Transform {
	if p := a.parent[i]; p >= 0 {
		return world[p]
	}
	return a.World
}

// LocalKey inverts EvaluatePose for one bone: it returns the key transform
// that places bone i at world when its parent sits at parentWorld.
func (a *Armature) LocalKey(i int, parentWorld, world mathx.Transform) mathx.Transform {
	return parentWorld.Mul(a.local[i]).Inverse().Mul(world)
}
