package anim

import (
	"math"
	"sort"
)

// Sampler evaluates the pose channels of a bone at any (fractional) frame.
type Sampler interface {
	Sample(bone string, frame float64) Key
}

// Action holds one keyframe track per bone, each sorted by frame.
type Action struct {
	tracks map[string][]Keyframe
}

func NewAction() *Action {
	return &Action{tracks: make(map[string][]Keyframe)}
}

// Bones lists the bones that have at least one key, sorted by name.
func (a *Action) Bones() []string {
	names := make([]string, 0, len(a.tracks))
	for name, keys := range a.tracks {
		if len(keys) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Keys returns a copy of the bone's track.
func (a *Action) Keys(bone string) []Keyframe {
	src := a.tracks[bone]
	out := make([]Keyframe, len(src))
	for i, kf := range src {
		out[i] = kf
		if kf.Prior != nil {
			p := *kf.Prior
			out[i].Prior = &p
		}
	}
	return out
}

func (a *Action) find(bone string, frame int) (int, bool) {
	track := a.tracks[bone]
	i := sort.Search(len(track), func(i int) bool { return track[i].Frame >= frame })
	return i, i < len(track) && track[i].Frame == frame
}

func (a *Action) put(bone string, kf Keyframe) {
	i, ok := a.find(bone, kf.Frame)
	if ok {
		a.tracks[bone][i] = kf
		return
	}
	track := a.tracks[bone]
	track = append(track, Keyframe{})
	copy(track[i+1:], track[i:])
	track[i] = kf
	a.tracks[bone] = track
}

// Lookup returns the keyframe stored on an exact frame.
func (a *Action) Lookup(bone string, frame int) (Keyframe, bool) {
	i, ok := a.find(bone, frame)
	if !ok {
		return Keyframe{}, false
	}
	return a.tracks[bone][i], true
}

// Insert writes an authored key, replacing whatever was on that frame.
func (a *Action) Insert(bone string, frame int, k Key) {
	a.put(bone, Keyframe{Frame: frame, Key: k})
}

// Restore places a keyframe exactly as given, provenance included. It is
// used when loading persisted actions.
func (a *Action) Restore(bone string, kf Keyframe) {
	a.put(bone, kf)
}

// Bake writes a simulated key. The first bake over a frame remembers the key
// that was there; re-baking keeps that original so Clear can restore it.
func (a *Action) Bake(bone string, frame int, k Key) {
	kf := Keyframe{Frame: frame, Key: k, Baked: true}
	if old, ok := a.Lookup(bone, frame); ok {
		if old.Baked {
			kf.Prior = old.Prior
		} else {
			prior := old.Key
			kf.Prior = &prior
		}
	}
	a.put(bone, kf)
}

// ClearBaked removes baked keys in [start, end] for the given bones and puts
// back the keys they replaced. Authored keys are never touched. It returns
// the number of baked keys removed.
func (a *Action) ClearBaked(bones []string, start, end int) int {
	removed := 0
	for _, bone := range bones {
		track := a.tracks[bone]
		out := track[:0]
		for _, kf := range track {
			if !kf.Baked || kf.Frame < start || kf.Frame > end {
				out = append(out, kf)
				continue
			}
			removed++
			if kf.Prior != nil {
				out = append(out, Keyframe{Frame: kf.Frame, Key: *kf.Prior})
			}
		}
		if len(out) == 0 {
			delete(a.tracks, bone)
			continue
		}
		a.tracks[bone] = out
	}
	return removed
}

// Sample evaluates the visible keys.
func (a *Action) Sample(bone string, frame float64) Key {
	return sampleTrack(a.tracks[bone], frame, false)
}

// Base returns a sampler that sees, for the listed bones, the keys as they
// were before any bake. Other bones sample their visible keys.
func (a *Action) Base(bones []string) Sampler {
	set := make(map[string]bool, len(bones))
	for _, b := range bones {
		set[b] = true
	}
	return baseSampler{action: a, unbaked: set}
}

type baseSampler struct {
	action  *Action
	unbaked map[string]bool
}

func (s baseSampler) Sample(bone string, frame float64) Key {
	return sampleTrack(s.action.tracks[bone], frame, s.unbaked[bone])
}

func sampleTrack(track []Keyframe, frame float64, unbaked bool) Key {
	var prev, next *Key
	prevFrame, nextFrame := math.Inf(-1), math.Inf(1)
	for i := range track {
		kf := &track[i]
		k := &kf.Key
		if unbaked && kf.Baked {
			if kf.Prior == nil {
				continue
			}
			k = kf.Prior
		}
		f := float64(kf.Frame)
		if f <= frame && f > prevFrame {
			prev, prevFrame = k, f
		}
		if f >= frame && f < nextFrame {
			next, nextFrame = k, f
		}
	}

	switch {
	case prev == nil && next == nil:
		return RestKey()
	case prev == nil:
		return *next
	case next == nil || prevFrame == nextFrame:
		return *prev
	}
	return Interpolate(*prev, *next, (frame-prevFrame)/(nextFrame-prevFrame))
}

// Clone deep-copies the action.
func (a *Action) Clone() *Action {
	c := NewAction()
	for bone := range a.tracks {
		c.tracks[bone] = a.Keys(bone)
	}
	return c
}
