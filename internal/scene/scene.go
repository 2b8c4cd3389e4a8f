// Package scene reads and writes the YAML files that stand in for a host
// application: an armature with its action, the selection, scene force
// fields, a collision plane and the collision collection.
package scene

import (
	"fmt"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/springmagic/internal/anim"
	"github.com/san-kum/springmagic/internal/collide"
	"github.com/san-kum/springmagic/internal/config"
	"github.com/san-kum/springmagic/internal/dynamo"
	"github.com/san-kum/springmagic/internal/forces"
	"github.com/san-kum/springmagic/internal/mathx"
	"github.com/san-kum/springmagic/internal/rig"
	"gopkg.in/yaml.v3"
)

type Scene struct {
	Name       string                           `yaml:"name"`
	FPS        float64                          `yaml:"fps,omitempty"`
	Start      int                              `yaml:"start"`
	End        int                              `yaml:"end"`
	Armature   ArmatureDoc                      `yaml:"armature"`
	Selection  []string                         `yaml:"selection"`
	Action     map[string][]KeyframeDoc         `yaml:"action,omitempty"`
	Plane      *TransformDoc                    `yaml:"collision_plane,omitempty"`
	Fields     []FieldDoc                       `yaml:"fields,omitempty"`
	Collection []SourceDoc                      `yaml:"collection,omitempty"`
	Chains     map[string]config.SpringOverride `yaml:"chain_params,omitempty"`
}

// TransformDoc is a location with either a quaternion (w, x, y, z) or XYZ
// Euler angles in degrees. The quaternion wins when both are set.
type TransformDoc struct {
	Pos   [3]float64  `yaml:"pos,flow"`
	Rot   *[4]float64 `yaml:"rot,flow,omitempty"`
	Euler *[3]float64 `yaml:"euler,flow,omitempty"`
}

type ArmatureDoc struct {
	Name  string        `yaml:"name"`
	World *TransformDoc `yaml:"world,omitempty"`
	Bones []BoneDoc     `yaml:"bones"`
}

type BoneDoc struct {
	Name       string     `yaml:"name"`
	Parent     string     `yaml:"parent,omitempty"`
	Head       [3]float64 `yaml:"head,flow"`
	Tail       [3]float64 `yaml:"tail,flow"`
	Roll       float64    `yaml:"roll,omitempty"`
	HeadRadius float64    `yaml:"head_radius,omitempty"`
	TailRadius float64    `yaml:"tail_radius,omitempty"`
}

type KeyDoc struct {
	Loc   [3]float64  `yaml:"loc,flow"`
	Rot   *[4]float64 `yaml:"rot,flow,omitempty"`
	Euler *[3]float64 `yaml:"euler,flow,omitempty"`
	Scale *[3]float64 `yaml:"scale,flow,omitempty"`
}

type KeyframeDoc struct {
	Frame  int `yaml:"frame"`
	KeyDoc `yaml:",inline"`
	Baked  bool    `yaml:"baked,omitempty"`
	Prior  *KeyDoc `yaml:"prior,omitempty"`
}

type FieldDoc struct {
	Name         string `yaml:"name"`
	Kind         string `yaml:"kind"`
	TransformDoc `yaml:",inline"`
	Strength     float64 `yaml:"strength"`
	Flow         float64 `yaml:"flow,omitempty"`
	Power        float64 `yaml:"power,omitempty"`
	MinDistance  float64 `yaml:"min_distance,omitempty"`
	MaxDistance  float64 `yaml:"max_distance,omitempty"`
	UseMin       bool    `yaml:"use_min,omitempty"`
	UseMax       bool    `yaml:"use_max,omitempty"`
}

type SourceDoc struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	TransformDoc `yaml:",inline"`
	Scale        *[3]float64 `yaml:"scale,flow,omitempty"`
	Min          [3]float64  `yaml:"min,flow"`
	Max          [3]float64  `yaml:"max,flow"`
	RigidBody    *struct {
		Shape  string  `yaml:"shape"`
		Margin float64 `yaml:"margin"`
	} `yaml:"rigid_body,omitempty"`
	Collision *struct {
		ThicknessOuter float64 `yaml:"thickness_outer"`
	} `yaml:"collision,omitempty"`
	HasModifier bool `yaml:"has_modifier,omitempty"`
}

func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Scene
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("scene %s: %w", path, err)
	}
	return &s, nil
}

func Save(path string, s *Scene) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (t TransformDoc) Transform() mathx.Transform {
	return mathx.NewTransform(mgl64.Vec3(t.Pos), rotation(t.Rot, t.Euler))
}

func rotation(q *[4]float64, euler *[3]float64) mgl64.Quat {
	switch {
	case q != nil:
		r := mgl64.Quat{W: q[0], V: mgl64.Vec3{q[1], q[2], q[3]}}
		// stored keys must load bit for bit
		switch l := r.Len(); {
		case l == 0:
			return mgl64.QuatIdent()
		case math.Abs(l-1) > 1e-12:
			r = r.Scale(1 / l)
		}
		return r
	case euler != nil:
		return mgl64.AnglesToQuat(
			mgl64.DegToRad(euler[0]),
			mgl64.DegToRad(euler[1]),
			mgl64.DegToRad(euler[2]),
			mgl64.XYZ,
		)
	}
	return mgl64.QuatIdent()
}

func (k KeyDoc) Key() anim.Key {
	key := anim.RestKey()
	key.Loc = mgl64.Vec3(k.Loc)
	key.Rot = rotation(k.Rot, k.Euler)
	if k.Scale != nil {
		key.Scale = mgl64.Vec3(*k.Scale)
	}
	return key
}

func keyDoc(k anim.Key) KeyDoc {
	rot := [4]float64{k.Rot.W, k.Rot.V[0], k.Rot.V[1], k.Rot.V[2]}
	doc := KeyDoc{Loc: k.Loc, Rot: &rot}
	if k.Scale != (mgl64.Vec3{1, 1, 1}) {
		scale := [3]float64(k.Scale)
		doc.Scale = &scale
	}
	return doc
}

// Rig builds the armature snapshot.
func (s *Scene) Rig() (*rig.Armature, error) {
	if len(s.Armature.Bones) == 0 {
		return nil, dynamo.ErrNoArmature
	}
	world := mathx.Identity()
	if s.Armature.World != nil {
		world = s.Armature.World.Transform()
	}
	bones := make([]rig.Bone, len(s.Armature.Bones))
	for i, b := range s.Armature.Bones {
		bones[i] = rig.Bone{
			Name:       b.Name,
			Parent:     b.Parent,
			Head:       b.Head,
			Tail:       b.Tail,
			Roll:       b.Roll,
			HeadRadius: b.HeadRadius,
			TailRadius: b.TailRadius,
		}
	}
	return rig.NewArmature(s.Armature.Name, world, bones)
}

// Animation loads the action, baked keys and what they replaced included.
func (s *Scene) Animation() *anim.Action {
	act := anim.NewAction()
	for bone, keys := range s.Action {
		for _, kd := range keys {
			kf := anim.Keyframe{Frame: kd.Frame, Key: kd.Key(), Baked: kd.Baked}
			if kd.Prior != nil {
				prior := kd.Prior.Key()
				kf.Prior = &prior
			}
			act.Restore(bone, kf)
		}
	}
	return act
}

// SetAnimation replaces the stored action with act.
func (s *Scene) SetAnimation(act *anim.Action) {
	s.Action = make(map[string][]KeyframeDoc)
	for _, bone := range act.Bones() {
		keys := act.Keys(bone)
		docs := make([]KeyframeDoc, len(keys))
		for i, kf := range keys {
			docs[i] = KeyframeDoc{Frame: kf.Frame, KeyDoc: keyDoc(kf.Key), Baked: kf.Baked}
			if kf.Prior != nil {
				prior := keyDoc(*kf.Prior)
				docs[i].Prior = &prior
			}
		}
		s.Action[bone] = docs
	}
}

func (s *Scene) ForceFields() ([]forces.Field, error) {
	out := make([]forces.Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		kind, err := forces.ParseFieldKind(f.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out = append(out, forces.Field{
			Name:        f.Name,
			Kind:        kind,
			Transform:   f.Transform(),
			Strength:    f.Strength,
			Flow:        f.Flow,
			Power:       f.Power,
			MinDistance: f.MinDistance,
			MaxDistance: f.MaxDistance,
			UseMin:      f.UseMin,
			UseMax:      f.UseMax,
		})
	}
	return out, nil
}

// CollisionPlane is the plane object, if the scene has one.
func (s *Scene) CollisionPlane() *collide.Plane {
	if s.Plane == nil {
		return nil
	}
	p := collide.PlaneFrom(s.Plane.Transform())
	return &p
}

func (s *Scene) Sources() []collide.Source {
	out := make([]collide.Source, len(s.Collection))
	for i, d := range s.Collection {
		src := collide.Source{
			Name:        d.Name,
			Type:        d.Type,
			Transform:   d.Transform(),
			Min:         d.Min,
			Max:         d.Max,
			HasModifier: d.HasModifier,
		}
		if d.Scale != nil {
			src.Scale = *d.Scale
		}
		if d.RigidBody != nil {
			src.RigidBody = &collide.RigidBody{Shape: d.RigidBody.Shape, Margin: d.RigidBody.Margin}
		}
		if d.Collision != nil {
			src.Collision = &collide.Settings{ThicknessOuter: d.Collision.ThicknessOuter}
		}
		out[i] = src
	}
	return out
}

// ChainParams converts per-chain overrides, keyed by root bone, on top of cfg.
func (s *Scene) ChainParams(cfg *config.Config) map[string]dynamo.Params {
	if len(s.Chains) == 0 {
		return nil
	}
	out := make(map[string]dynamo.Params, len(s.Chains))
	for root, override := range s.Chains {
		c := *cfg
		c.Spring = override.Apply(cfg.Spring)
		out[root] = c.Params()
	}
	return out
}
