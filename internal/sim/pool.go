package sim

import (
	"sync"

	"github.com/san-kum/springmagic/internal/mathx"
)

// TransformPool recycles per-frame transform buffers of one size.
type TransformPool struct {
	pool sync.Pool
	size int
}

func NewTransformPool(size int) *TransformPool {
	return &TransformPool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]mathx.Transform, 0, size)
			},
		},
	}
}

// Get returns an empty buffer with room for size transforms.
func (p *TransformPool) Get() []mathx.Transform {
	return p.pool.Get().([]mathx.Transform)[:0]
}

func (p *TransformPool) Put(buf []mathx.Transform) {
	if cap(buf) >= p.size {
		p.pool.Put(buf[:0])
	}
}
