package collide

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/springmagic/internal/mathx"
)

// Capsule is a segment swept by Radius. Owner is the index of the bone it
// was built from, or -1.
type Capsule struct {
	A, B   mgl64.Vec3
	Radius float64
	Owner  int
}

func (Capsule) Kind() Kind { return KindCapsule }

func (c Capsule) Resolve(p mgl64.Vec3, radius float64) Contact {
	if !validRadius(c.Radius) || !mathx.IsFinite(c.A) || !mathx.IsFinite(c.B) {
		return none()
	}
	closest := mathx.ClosestPointOnSegment(p, c.A, c.B)
	return roundResolve(p, closest, c.Radius+radius, c.B.Sub(c.A))
}

// ResolveSegment tests the segment from head to tip, swept by radius,
// against the capsule. The contact correction applies to the closest point
// of the segment, which sits at parameter s from head. Segments that cross
// the capsule axis are pushed along the cross product of the two axes, so
// two crossing capsules push each other apart.
func (c Capsule) ResolveSegment(head, tip mgl64.Vec3, radius float64) (ct Contact, s float64) {
	if !validRadius(c.Radius) || !mathx.IsFinite(c.A) || !mathx.IsFinite(c.B) {
		return none(), 0
	}
	onSeg, onCap, s, _ := mathx.ClosestSegmentPoints(head, tip, c.A, c.B)
	need := c.Radius + radius
	delta := onSeg.Sub(onCap)
	if delta.Len() >= need-Tolerance {
		return none(), s
	}
	n, ok := mathx.Normalize(delta)
	if !ok {
		axis := tip.Sub(head)
		if n, ok = mathx.Normalize(axis.Cross(c.B.Sub(c.A))); !ok {
			n = segmentFallback(c.B.Sub(c.A))
		}
	}
	return pushOut(onSeg, onCap, n, need), s
}

// roundResolve handles every shape whose surface is a fixed distance from a
// closest core point.
func roundResolve(p, closest mgl64.Vec3, need float64, axis mgl64.Vec3) Contact {
	delta := p.Sub(closest)
	dist := delta.Len()
	if dist >= need-Tolerance {
		return none()
	}
	n, ok := mathx.Normalize(delta)
	if !ok {
		n = segmentFallback(axis)
	}
	return pushOut(p, closest, n, need)
}

// Sphere is a ball around Center.
type Sphere struct {
	Center mgl64.Vec3
	Radius float64
}

func (Sphere) Kind() Kind { return KindSphere }

func (s Sphere) Resolve(p mgl64.Vec3, radius float64) Contact {
	if !validRadius(s.Radius) || !mathx.IsFinite(s.Center) {
		return none()
	}
	return roundResolve(p, s.Center, s.Radius+radius, mgl64.Vec3{})
}

// Plane is the infinite surface through Origin facing Normal. Everything
// behind it is solid.
type Plane struct {
	Origin mgl64.Vec3
	Normal mgl64.Vec3
}

// PlaneFrom builds the plane through an object's origin along its local Z.
func PlaneFrom(t mathx.Transform) Plane {
	return Plane{Origin: t.Pos, Normal: t.AxisZ()}
}

func (Plane) Kind() Kind { return KindPlane }

func (pl Plane) Resolve(p mgl64.Vec3, radius float64) Contact {
	n, ok := mathx.Normalize(pl.Normal)
	if !ok || !mathx.IsFinite(pl.Origin) {
		return none()
	}
	d := p.Sub(pl.Origin).Dot(n)
	if d >= radius-Tolerance {
		return none()
	}
	return Contact{Penetrating: true, Correction: n.Mul(radius - d)}
}

// Box is an oriented box: local bounds Min..Max placed by Transform.
type Box struct {
	Transform mathx.Transform
	Min, Max  mgl64.Vec3
}

func (Box) Kind() Kind { return KindBox }

func (b Box) valid() bool {
	if !b.Transform.IsFinite() || !mathx.IsFinite(b.Min) || !mathx.IsFinite(b.Max) {
		return false
	}
	for i := 0; i < 3; i++ {
		if b.Min[i] > b.Max[i] {
			return false
		}
	}
	return true
}

func (b Box) Resolve(p mgl64.Vec3, radius float64) Contact {
	if !b.valid() {
		return none()
	}
	q := b.Transform.Inverse().Point(p)

	var c mgl64.Vec3
	inside := true
	for i := 0; i < 3; i++ {
		c[i] = mathx.Clamp(q[i], b.Min[i], b.Max[i])
		if c[i] != q[i] {
			inside = false
		}
	}

	if !inside {
		delta := q.Sub(c)
		dist := delta.Len()
		if dist >= radius-Tolerance {
			return none()
		}
		target := c.Add(delta.Mul(radius / dist))
		return Contact{Penetrating: true, Correction: b.Transform.Dir(target.Sub(q))}
	}

	// inside: leave through the nearest face
	axis, best, dir := 0, math.Inf(1), 1.0
	for i := 0; i < 3; i++ {
		if d := q[i] - b.Min[i]; d < best {
			axis, best, dir = i, d, -1
		}
		if d := b.Max[i] - q[i]; d < best {
			axis, best, dir = i, d, 1
		}
	}
	if best+radius <= Tolerance {
		return none()
	}
	target := q
	if dir < 0 {
		target[axis] = b.Min[axis] - radius
	} else {
		target[axis] = b.Max[axis] + radius
	}
	return Contact{Penetrating: true, Correction: b.Transform.Dir(target.Sub(q))}
}

// Cylinder is a solid cylinder along the local Z axis of Transform, centered
// on its origin.
type Cylinder struct {
	Transform mathx.Transform
	Radius    float64
	Height    float64
}

func (Cylinder) Kind() Kind { return KindCylinder }

func (cy Cylinder) Resolve(p mgl64.Vec3, radius float64) Contact {
	if !validRadius(cy.Radius) || cy.Height < 0 || !cy.Transform.IsFinite() {
		return none()
	}
	q := cy.Transform.Inverse().Point(p)
	h := cy.Height / 2
	radial := mgl64.Vec3{q.X(), q.Y(), 0}
	rl := radial.Len()

	if rl <= cy.Radius && math.Abs(q.Z()) <= h {
		side := cy.Radius - rl
		top := h - math.Abs(q.Z())
		if math.Min(side, top)+radius <= Tolerance {
			return none()
		}
		target := q
		if side <= top {
			n := mathx.NormalizeOr(radial, mathx.AxisX)
			target = n.Mul(cy.Radius + radius).Add(mgl64.Vec3{0, 0, q.Z()})
		} else {
			target[2] = math.Copysign(h+radius, q.Z())
		}
		return Contact{Penetrating: true, Correction: cy.Transform.Dir(target.Sub(q))}
	}

	c := mgl64.Vec3{0, 0, mathx.Clamp(q.Z(), -h, h)}
	if rl > cy.Radius {
		c = c.Add(radial.Mul(cy.Radius / rl))
	} else {
		c[0], c[1] = q.X(), q.Y()
	}
	delta := q.Sub(c)
	dist := delta.Len()
	if dist >= radius-Tolerance {
		return none()
	}
	target := c.Add(delta.Mul(radius / dist))
	return Contact{Penetrating: true, Correction: cy.Transform.Dir(target.Sub(q))}
}
