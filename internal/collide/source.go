package collide

import (
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/springmagic/internal/dynamo"
	"github.com/san-kum/springmagic/internal/mathx"
)

// Rigid body collision shape names as the host reports them.
const (
	ShapeBox        = "BOX"
	ShapeSphere     = "SPHERE"
	ShapeCapsule    = "CAPSULE"
	ShapeCylinder   = "CYLINDER"
	ShapeConvexHull = "CONVEX_HULL"
	ShapeMesh       = "MESH"
	ShapeCompound   = "COMPOUND"
)

// RigidBody is the physics shape of a source object.
type RigidBody struct {
	Shape  string
	Margin float64
}

// Settings are collision settings attached to an object.
type Settings struct {
	ThicknessOuter float64
}

// Source is a snapshot of one object in the collision collection. Min and
// Max are its unscaled local bounding box.
type Source struct {
	Name        string
	Type        string
	Transform   mathx.Transform
	Scale       mgl64.Vec3
	Min, Max    mgl64.Vec3
	RigidBody   *RigidBody
	Collision   *Settings
	HasModifier bool
}

func (s Source) scale() mgl64.Vec3 {
	if s.Scale == (mgl64.Vec3{}) {
		return mgl64.Vec3{1, 1, 1}
	}
	return s.Scale
}

// bounds returns the scaled local bounding box.
func (s Source) bounds() (mgl64.Vec3, mgl64.Vec3) {
	sc := s.scale()
	lo, hi := s.Min, s.Max
	for i := 0; i < 3; i++ {
		a, b := lo[i]*sc[i], hi[i]*sc[i]
		lo[i], hi[i] = math.Min(a, b), math.Max(a, b)
	}
	return lo, hi
}

// Dimensions is the scaled bounding box size.
func (s Source) Dimensions() mgl64.Vec3 {
	lo, hi := s.bounds()
	return hi.Sub(lo)
}

// Resolved is the outcome of turning a collection into colliders.
type Resolved struct {
	Colliders      []Collider
	Skipped        []dynamo.SkippedCollider
	AutoRegistered []string
}

// FromCollection converts collection members into colliders in list order.
// Only meshes are used. A rigid body shape wins over collision settings; with
// autoRegister, meshes without either are treated as boxes and reported.
// Convex hulls, meshes and compounds are approximated by their box.
func FromCollection(srcs []Source, autoRegister bool) Resolved {
	var out Resolved
	for _, s := range srcs {
		if !strings.EqualFold(s.Type, "MESH") {
			out.skip(s, "not a mesh")
			continue
		}
		if !s.Transform.IsFinite() || !mathx.IsFinite(s.Min) || !mathx.IsFinite(s.Max) {
			out.skip(s, dynamo.ErrMissingCollider.Error())
			continue
		}

		var shape string
		var margin float64
		switch {
		case s.RigidBody != nil:
			shape = strings.ToUpper(s.RigidBody.Shape)
			margin = math.Max(0, s.RigidBody.Margin)
		case s.Collision != nil || s.HasModifier:
			shape = ShapeBox
			if s.Collision != nil {
				margin = math.Max(0, s.Collision.ThicknessOuter)
			}
		case autoRegister:
			shape = ShapeBox
			out.AutoRegistered = append(out.AutoRegistered, s.Name)
		default:
			out.skip(s, "no rigid body or collision")
			continue
		}
		if shape == "" {
			out.skip(s, "no collision shape")
			continue
		}

		out.Colliders = append(out.Colliders, build(s, shape, margin))
	}
	return out
}

func (r *Resolved) skip(s Source, reason string) {
	r.Skipped = append(r.Skipped, dynamo.SkippedCollider{Name: s.Name, Type: s.Type, Reason: reason})
}

func build(s Source, shape string, margin float64) Collider {
	dims := s.Dimensions()
	switch shape {
	case ShapeSphere:
		r := math.Max(dims.X(), math.Max(dims.Y(), dims.Z())) / 2
		return Sphere{Center: s.Transform.Pos, Radius: r + margin}
	case ShapeCapsule:
		base := math.Max(dims.X(), dims.Y()) / 2
		half := math.Max(0, dims.Z()/2-base) + margin
		axis := s.Transform.AxisZ()
		return Capsule{
			A:      s.Transform.Pos.Sub(axis.Mul(half)),
			B:      s.Transform.Pos.Add(axis.Mul(half)),
			Radius: base + margin,
			Owner:  -1,
		}
	case ShapeCylinder:
		return Cylinder{
			Transform: s.Transform,
			Radius:    math.Max(dims.X(), dims.Y())/2 + margin,
			Height:    dims.Z() + 2*margin,
		}
	}
	return boxFrom(s, margin)
}

// boxFrom expands the bounds by margin; flat axes grow by at least 1e-4 so the
// box keeps a volume.
func boxFrom(s Source, margin float64) Box {
	lo, hi := s.bounds()
	for i := 0; i < 3; i++ {
		grow := margin
		if lo[i] == hi[i] {
			grow = math.Max(1e-4, margin)
		}
		lo[i] -= grow
		hi[i] += grow
	}
	return Box{Transform: s.Transform, Min: lo, Max: hi}
}

// BoneCapsule builds a self-collision capsule from a bone's world head and
// tail. The segment grows by half of lengthOffset at each end and the radius
// is the bone radius plus margin.
func BoneCapsule(owner int, head, tail mgl64.Vec3, boneRadius, lengthOffset, margin float64) Capsule {
	if axis, ok := mathx.Normalize(tail.Sub(head)); ok && lengthOffset > 0 {
		half := axis.Mul(lengthOffset / 2)
		head = head.Sub(half)
		tail = tail.Add(half)
	}
	return Capsule{A: head, B: tail, Radius: math.Max(boneRadius, 0.001) + margin, Owner: owner}
}
