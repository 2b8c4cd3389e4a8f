// Package collide resolves penetration of a simulated point against simple
// shapes. Every shape implements the same contract: given a point and its
// radius, report whether the point's sphere overlaps the shape and the
// smallest correction that pushes it onto the surface.
//
// Resolution never fails. Shapes built from missing or degenerate data
// report no contact.
package collide

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/springmagic/internal/mathx"
)

// Tolerance is the overlap below which a point counts as resting on a surface.
const Tolerance = 1e-9

type Kind int

const (
	KindCapsule Kind = iota
	KindPlane
	KindSphere
	KindBox
	KindCylinder
)

func (k Kind) String() string {
	switch k {
	case KindCapsule:
		return "capsule"
	case KindPlane:
		return "plane"
	case KindSphere:
		return "sphere"
	case KindBox:
		return "box"
	case KindCylinder:
		return "cylinder"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Contact is the outcome of one resolve call. Correction is zero unless
// Penetrating is set.
type Contact struct {
	Penetrating bool
	Correction  mgl64.Vec3
}

// Normal is the unit direction of the correction.
func (c Contact) Normal() mgl64.Vec3 {
	return mathx.NormalizeOr(c.Correction, mgl64.Vec3{})
}

type Collider interface {
	Kind() Kind
	Resolve(p mgl64.Vec3, radius float64) Contact
}

// Apply resolves p against each collider in order, feeding every corrected
// point into the next collider. It returns the final point and the normals of
// the corrections that were applied.
func Apply(p mgl64.Vec3, radius float64, colliders []Collider, normals []mgl64.Vec3) (mgl64.Vec3, []mgl64.Vec3) {
	for _, c := range colliders {
		ct := c.Resolve(p, radius)
		if !ct.Penetrating {
			continue
		}
		p = p.Add(ct.Correction)
		normals = append(normals, ct.Normal())
	}
	return p, normals
}

func none() Contact { return Contact{} }

// pushOut moves p so it sits at dist from the surface point c along n.
func pushOut(p, c, n mgl64.Vec3, dist float64) Contact {
	target := c.Add(n.Mul(dist))
	return Contact{Penetrating: true, Correction: target.Sub(p)}
}

// segmentFallback picks a push direction for a point lying on a segment.
func segmentFallback(axis mgl64.Vec3) mgl64.Vec3 {
	if a, ok := mathx.Normalize(axis); ok {
		return mathx.Perpendicular(a)
	}
	return mathx.AxisX
}

func validRadius(r float64) bool {
	return r > 0 && !math.IsInf(r, 0)
}
