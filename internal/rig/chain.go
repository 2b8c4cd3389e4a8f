package rig

import (
	"fmt"
	"sort"

	"github.com/san-kum/springmagic/internal/dynamo"
)

// Chain is a root-to-tip run of bones simulated together.
type Chain struct {
	ID    int
	Name  string
	Bones []int
	Depth int
}

func (c Chain) Root() int { return c.Bones[0] }

// BuildChains splits the selected bones into chains. A selected bone starts a
// chain when it has a parent and that parent is either unselected or has a
// different first child; the chain then follows first children for as long
// as they are selected. Parentless bones never start a chain. With
// includeChildren every descendant of a selected bone is selected too.
//
// Chains come back ordered by root depth, then by armature order.
func BuildChains(a *Armature, selected []string, includeChildren bool) ([]Chain, error) {
	if a == nil {
		return nil, dynamo.ErrNoArmature
	}
	if len(selected) == 0 {
		return nil, dynamo.ErrNoSelection
	}

	sel := make([]bool, a.Len())
	for _, name := range selected {
		i, ok := a.Index(name)
		if !ok {
			return nil, fmt.Errorf("%q: %w", name, dynamo.ErrUnknownBone)
		}
		sel[i] = true
	}
	if includeChildren {
		// parents precede children, so one forward pass closes the set
		for i := range sel {
			if p := a.Parent(i); p >= 0 && sel[p] {
				sel[i] = true
			}
		}
	}

	var chains []Chain
	for i := range sel {
		if !sel[i] || !startsChain(a, sel, i) {
			continue
		}
		c := Chain{Bones: []int{i}, Depth: a.Depth(i)}
		for cur := i; len(a.Children(cur)) > 0; {
			next := a.Children(cur)[0]
			if !sel[next] {
				break
			}
			c.Bones = append(c.Bones, next)
			cur = next
		}
		chains = append(chains, c)
	}

	sort.SliceStable(chains, func(i, j int) bool {
		if chains[i].Depth != chains[j].Depth {
			return chains[i].Depth < chains[j].Depth
		}
		return chains[i].Bones[0] < chains[j].Bones[0]
	})
	for i := range chains {
		chains[i].ID = i
		chains[i].Name = fmt.Sprintf("tree%d", i)
	}
	return chains, nil
}

func startsChain(a *Armature, sel []bool, i int) bool {
	p := a.Parent(i)
	if p < 0 {
		return false
	}
	return !sel[p] || a.Children(p)[0] != i
}

// Levels groups chains by depth, keeping their order.
func Levels(chains []Chain) [][]Chain {
	var levels [][]Chain
	for i, c := range chains {
		if i == 0 || c.Depth != chains[i-1].Depth {
			levels = append(levels, nil)
		}
		levels[len(levels)-1] = append(levels[len(levels)-1], c)
	}
	return levels
}
