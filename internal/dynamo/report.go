package dynamo

import (
	"errors"
	"fmt"
	"sort"
)

// SkippedCollider records a collection member that could not be used.
type SkippedCollider struct {
	Name   string
	Type   string
	Reason string
}

// Report collects everything a bake wants to tell the user once it is done.
type Report struct {
	Chains         int
	Baked          int
	Frames         int
	Warnings       []*ChainError
	Skipped        []SkippedCollider
	AutoRegistered []string
	// Deviation is the largest tip deviation of any chain on each frame,
	// starting with the first frame at zero.
	Deviation []float64
}

func (r *Report) Warn(err *ChainError) {
	r.Warnings = append(r.Warnings, err)
}

// Failed reports whether any chain was skipped for the given reason.
func (r *Report) Failed(target error) bool {
	for _, w := range r.Warnings {
		if errors.Is(w, target) {
			return true
		}
	}
	return false
}

// Sort orders warnings by chain name so repeated bakes print identically.
func (r *Report) Sort() {
	sort.SliceStable(r.Warnings, func(i, j int) bool {
		return r.Warnings[i].Chain < r.Warnings[j].Chain
	})
}

// Lines renders the report as one message per notice.
func (r *Report) Lines() []string {
	lines := make([]string, 0, len(r.Warnings)+len(r.Skipped)+len(r.AutoRegistered))
	for _, w := range r.Warnings {
		lines = append(lines, "skipped "+w.Error())
	}
	for _, s := range r.Skipped {
		lines = append(lines, fmt.Sprintf("collider %s (%s) ignored: %s", s.Name, s.Type, s.Reason))
	}
	for _, name := range r.AutoRegistered {
		lines = append(lines, fmt.Sprintf("collider %s auto-registered as box", name))
	}
	return lines
}
