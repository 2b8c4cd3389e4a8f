package anim

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/springmagic/internal/mathx"
)

// BlendMode selects how a partial-weight bake mixes with existing motion.
type BlendMode int

const (
	// BlendOverride lerps from the existing pose toward the simulated one.
	BlendOverride BlendMode = iota
	// BlendAdditive adds the weighted change from the start pose on top of
	// the existing pose.
	BlendAdditive
)

func (m BlendMode) String() string {
	if m == BlendAdditive {
		return "additive"
	}
	return "override"
}

func ParseBlendMode(s string) (BlendMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "override":
		return BlendOverride, nil
	case "additive":
		return BlendAdditive, nil
	}
	return BlendOverride, fmt.Errorf("unknown blend mode: %s", s)
}

// FullWeight is the weight at and above which blending is skipped.
const FullWeight = 0.999

// Blend mixes a simulated key into an existing one. base is the existing pose
// at the start of the bake and is only read in additive mode.
func Blend(mode BlendMode, existing, spring, base Key, weight float64) Key {
	if weight >= FullWeight {
		return spring
	}
	if mode == BlendAdditive {
		return blendAdditive(existing, spring, base, weight)
	}
	return Interpolate(existing, spring, weight)
}

func blendAdditive(existing, spring, base Key, w float64) Key {
	w = mathx.Clamp(w, 0, 1)

	loc := existing.Loc.Add(spring.Loc.Sub(base.Loc).Mul(w))

	delta := spring.Rot.Mul(mathx.Inverse(base.Rot.Normalize())).Normalize()
	rot := mathx.Slerp(mgl64.QuatIdent(), delta, w).Mul(existing.Rot).Normalize()

	var scale mgl64.Vec3
	for i := range scale {
		ratio := 1.0
		if base.Scale[i] != 0 {
			ratio = spring.Scale[i] / base.Scale[i]
		}
		scale[i] = existing.Scale[i] * mathx.Lerp(1, ratio, w)
	}

	return Key{Loc: loc, Rot: rot, Scale: scale}
}
