package mathx

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// FromAxisAngle builds a rotation of angle radians around axis. A zero axis
// yields the identity.
func FromAxisAngle(axis mgl64.Vec3, angle float64) mgl64.Quat {
	n, ok := Normalize(axis)
	if !ok || angle == 0 {
		return mgl64.QuatIdent()
	}
	return mgl64.QuatRotate(angle, n)
}

// ToAxisAngle decomposes q into a unit axis and an angle in [0, π].
func ToAxisAngle(q mgl64.Quat) (mgl64.Vec3, float64) {
	q = q.Normalize()
	if q.W < 0 {
		q = mgl64.Quat{W: -q.W, V: q.V.Mul(-1)}
	}
	s := q.V.Len()
	if s < Epsilon {
		return AxisY, 0
	}
	angle := 2 * math.Atan2(s, q.W)
	return q.V.Mul(1 / s), angle
}

// Slerp interpolates along the shortest arc. t is clamped to [0,1] and the
// endpoints are returned unchanged.
func Slerp(a, b mgl64.Quat, t float64) mgl64.Quat {
	switch {
	case t <= 0:
		return a
	case t >= 1:
		return b
	}
	if a.Dot(b) < 0 {
		b = mgl64.Quat{W: -b.W, V: b.V.Mul(-1)}
	}
	return mgl64.QuatSlerp(a, b, t).Normalize()
}

// RotationBetween returns the shortest rotation taking direction a onto b.
// Degenerate inputs produce the identity.
func RotationBetween(a, b mgl64.Vec3) mgl64.Quat {
	na, ok1 := Normalize(a)
	nb, ok2 := Normalize(b)
	if !ok1 || !ok2 {
		return mgl64.QuatIdent()
	}
	d := Clamp(na.Dot(nb), -1, 1)
	if d > 1-1e-12 {
		return mgl64.QuatIdent()
	}
	if d < -1+1e-12 {
		return mgl64.QuatRotate(math.Pi, Perpendicular(na))
	}
	axis := na.Cross(nb)
	if axis.Len() < AxisThreshold*AxisThreshold {
		return mgl64.QuatIdent()
	}
	return FromAxisAngle(axis, math.Acos(d))
}

// SignedAngle is the angle from a to b measured around axis, in (-π, π].
func SignedAngle(a, b, axis mgl64.Vec3) float64 {
	na, ok1 := Normalize(a)
	nb, ok2 := Normalize(b)
	if !ok1 || !ok2 {
		return 0
	}
	angle := math.Acos(Clamp(na.Dot(nb), -1, 1))
	if na.Cross(nb).Dot(axis) < 0 {
		return -angle
	}
	return angle
}

// Inverse of a unit quaternion.
func Inverse(q mgl64.Quat) mgl64.Quat {
	return q.Conjugate()
}

// QuatFinite reports whether q holds only real numbers.
func QuatFinite(q mgl64.Quat) bool {
	if math.IsNaN(q.W) || math.IsInf(q.W, 0) {
		return false
	}
	return IsFinite(q.V)
}
