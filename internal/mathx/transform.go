package mathx

import "github.com/go-gl/mathgl/mgl64"

// Transform is a rigid transform: rotate by Rot, then translate by Pos.
type Transform struct {
	Pos mgl64.Vec3
	Rot mgl64.Quat
}

func Identity() Transform {
	return Transform{Rot: mgl64.QuatIdent()}
}

func NewTransform(pos mgl64.Vec3, rot mgl64.Quat) Transform {
	return Transform{Pos: pos, Rot: rot.Normalize()}
}

// Mul composes t and o so that the result applies o first, then t.
func (t Transform) Mul(o Transform) Transform {
	return Transform{
		Pos: t.Pos.Add(t.Rot.Rotate(o.Pos)),
		Rot: t.Rot.Mul(o.Rot).Normalize(),
	}
}

func (t Transform) Inverse() Transform {
	inv := Inverse(t.Rot)
	return Transform{Pos: inv.Rotate(t.Pos.Mul(-1)), Rot: inv}
}

// Point maps a point from local into parent space.
func (t Transform) Point(p mgl64.Vec3) mgl64.Vec3 {
	return t.Pos.Add(t.Rot.Rotate(p))
}

// Dir maps a direction, ignoring translation.
func (t Transform) Dir(d mgl64.Vec3) mgl64.Vec3 {
	return t.Rot.Rotate(d)
}

func (t Transform) AxisX() mgl64.Vec3 { return t.Rot.Rotate(AxisX) }
func (t Transform) AxisY() mgl64.Vec3 { return t.Rot.Rotate(AxisY) }
func (t Transform) AxisZ() mgl64.Vec3 { return t.Rot.Rotate(AxisZ) }

// Interpolate blends two transforms, lerping position and slerping rotation.
func Interpolate(a, b Transform, t float64) Transform {
	return Transform{Pos: LerpVec(a.Pos, b.Pos, t), Rot: Slerp(a.Rot, b.Rot, t)}
}

func (t Transform) IsFinite() bool {
	return IsFinite(t.Pos) && QuatFinite(t.Rot)
}
