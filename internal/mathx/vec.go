// Package mathx holds the vector, quaternion and transform helpers used by
// the simulation packages. Everything here is pure: no allocation beyond the
// returned values and no error states. Degenerate input (zero-length vectors,
// parallel basis hints) falls back to an identity or a stable perpendicular
// instead of producing NaN.
package mathx

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// Epsilon is the length below which a vector is treated as zero.
	Epsilon = 1e-6
	// AxisThreshold is the minimum cross-product length for a usable rotation axis.
	AxisThreshold = 1e-4
)

var (
	AxisX = mgl64.Vec3{1, 0, 0}
	AxisY = mgl64.Vec3{0, 1, 0}
	AxisZ = mgl64.Vec3{0, 0, 1}
)

func Clamp(v, lo, hi float64) float64 {
	return mgl64.Clamp(v, lo, hi)
}

// Lerp blends a and b by t; t is clamped to [0,1].
func Lerp(a, b, t float64) float64 {
	t = Clamp(t, 0, 1)
	return a + (b-a)*t
}

// LerpVec blends two vectors; the endpoints are returned exactly.
func LerpVec(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	switch {
	case t <= 0:
		return a
	case t >= 1:
		return b
	}
	return a.Add(b.Sub(a).Mul(t))
}

// Normalize returns the unit vector of v and whether v was long enough to
// have a direction. A zero vector comes back unchanged.
func Normalize(v mgl64.Vec3) (mgl64.Vec3, bool) {
	l := v.Len()
	if l < Epsilon || math.IsNaN(l) || math.IsInf(l, 0) {
		return v, false
	}
	return v.Mul(1 / l), true
}

// NormalizeOr is Normalize with an explicit fallback for degenerate input.
func NormalizeOr(v, fallback mgl64.Vec3) mgl64.Vec3 {
	if n, ok := Normalize(v); ok {
		return n
	}
	return fallback
}

// Perpendicular returns a unit vector orthogonal to v.
func Perpendicular(v mgl64.Vec3) mgl64.Vec3 {
	p := v.Cross(AxisX)
	if p.Len() < Epsilon {
		p = v.Cross(AxisY)
	}
	return NormalizeOr(p, AxisZ)
}

// ClosestPointOnSegment projects p onto segment ab.
func ClosestPointOnSegment(p, a, b mgl64.Vec3) mgl64.Vec3 {
	ab := b.Sub(a)
	lenSq := ab.LenSqr()
	if lenSq == 0 {
		return a
	}
	t := Clamp(p.Sub(a).Dot(ab)/lenSq, 0, 1)
	return a.Add(ab.Mul(t))
}

// SegmentDistance is the minimum distance between segments p1q1 and p2q2.
func SegmentDistance(p1, q1, p2, q2 mgl64.Vec3) float64 {
	c1, c2, _, _ := ClosestSegmentPoints(p1, q1, p2, q2)
	return c1.Sub(c2).Len()
}

// ClosestSegmentPoints returns the closest pair of points between segments
// p1q1 and p2q2 and their parameters along each segment. Parallel segments
// pick the pair nearest p1.
func ClosestSegmentPoints(p1, q1, p2, q2 mgl64.Vec3) (c1, c2 mgl64.Vec3, s, t float64) {
	d1 := q1.Sub(p1)
	d2 := q2.Sub(p2)
	r := p1.Sub(p2)
	a := d1.LenSqr()
	e := d2.LenSqr()
	f := d2.Dot(r)

	switch {
	case a <= Epsilon && e <= Epsilon:
		return p1, p2, 0, 0
	case a <= Epsilon:
		t = Clamp(f/e, 0, 1)
	default:
		c := d1.Dot(r)
		if e <= Epsilon {
			s = Clamp(-c/a, 0, 1)
		} else {
			b := d1.Dot(d2)
			denom := a*e - b*b
			if denom != 0 {
				s = Clamp((b*f-c*e)/denom, 0, 1)
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = Clamp(-c/a, 0, 1)
			} else if t > 1 {
				t = 1
				s = Clamp((b-c)/a, 0, 1)
			}
		}
	}
	return p1.Add(d1.Mul(s)), p2.Add(d2.Mul(t)), s, t
}

// IsFinite reports whether every component of v is a real number.
func IsFinite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
