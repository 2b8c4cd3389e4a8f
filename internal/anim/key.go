// Package anim models bone keyframes: authored keys, baked keys that remember
// what they replaced, interpolated sampling of the base animation, and pose
// blending for partial-weight bakes.
package anim

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/springmagic/internal/mathx"
)

// Key is one pose channel set: location, rotation and scale relative to the
// bone's rest transform.
type Key struct {
	Loc   mgl64.Vec3
	Rot   mgl64.Quat
	Scale mgl64.Vec3
}

// RestKey is the identity pose.
func RestKey() Key {
	return Key{Rot: mgl64.QuatIdent(), Scale: mgl64.Vec3{1, 1, 1}}
}

// Transform is the rigid part of the key.
func (k Key) Transform() mathx.Transform {
	return mathx.Transform{Pos: k.Loc, Rot: k.Rot}
}

// Interpolate blends two keys; rotation uses the shortest arc.
func Interpolate(a, b Key, t float64) Key {
	return Key{
		Loc:   mathx.LerpVec(a.Loc, b.Loc, t),
		Rot:   mathx.Slerp(a.Rot, b.Rot, t),
		Scale: mathx.LerpVec(a.Scale, b.Scale, t),
	}
}

// Keyframe is a key placed on a frame. Baked keys keep the key they replaced
// in Prior (nil when the frame was empty before the bake).
type Keyframe struct {
	Frame int
	Key   Key
	Baked bool
	Prior *Key
}
