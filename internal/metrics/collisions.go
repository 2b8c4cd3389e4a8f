package metrics

import "github.com/san-kum/springmagic/internal/dynamo"

// Collisions counts collision corrections applied during a bake.
type Collisions struct {
	name  string
	count int
}

func NewCollisions() *Collisions {
	return &Collisions{name: "collisions"}
}

func (c *Collisions) Name() string { return c.name }

func (c *Collisions) Observe(s dynamo.FrameStats) {
	c.count += s.Corrections
}

func (c *Collisions) Value() float64 { return float64(c.count) }

func (c *Collisions) Reset() { c.count = 0 }
