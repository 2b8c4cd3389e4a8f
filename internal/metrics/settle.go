package metrics

import "github.com/san-kum/springmagic/internal/dynamo"

// SettleFrame is the first frame after which every chain stayed within
// tolerance of its target. It reads -1 while any chain is still moving.
type SettleFrame struct {
	name      string
	tolerance float64
	moving    map[string]int
	settled   map[string]int
}

func NewSettleFrame(tolerance float64) *SettleFrame {
	s := &SettleFrame{name: "settle_frame", tolerance: tolerance}
	s.Reset()
	return s
}

func (s *SettleFrame) Name() string { return s.name }

func (s *SettleFrame) Observe(fs dynamo.FrameStats) {
	if fs.MaxDeviation > s.tolerance {
		s.moving[fs.Chain] = fs.Frame
		delete(s.settled, fs.Chain)
		return
	}
	if _, ok := s.settled[fs.Chain]; !ok {
		s.settled[fs.Chain] = fs.Frame
	}
}

func (s *SettleFrame) Value() float64 {
	frame := -1
	for chain := range s.moving {
		f, ok := s.settled[chain]
		if !ok {
			return -1
		}
		frame = max(frame, f)
	}
	for _, f := range s.settled {
		frame = max(frame, f)
	}
	return float64(frame)
}

func (s *SettleFrame) Reset() {
	s.moving = make(map[string]int)
	s.settled = make(map[string]int)
}
