package metrics

import (
	"math"

	"github.com/san-kum/springmagic/internal/dynamo"
)

// PeakDeviation is the largest tip deviation seen in any chain on any frame.
type PeakDeviation struct {
	name string
	peak float64
}

func NewPeakDeviation() *PeakDeviation {
	return &PeakDeviation{name: "peak_deviation"}
}

func (p *PeakDeviation) Name() string { return p.name }

func (p *PeakDeviation) Observe(s dynamo.FrameStats) {
	p.peak = math.Max(p.peak, s.MaxDeviation)
}

func (p *PeakDeviation) Value() float64 { return p.peak }

func (p *PeakDeviation) Reset() { p.peak = 0 }

// MeanDeviation averages the per-chain tip deviation over all observations.
type MeanDeviation struct {
	name    string
	total   float64
	samples int
}

func NewMeanDeviation() *MeanDeviation {
	return &MeanDeviation{name: "mean_deviation"}
}

func (m *MeanDeviation) Name() string { return m.name }

func (m *MeanDeviation) Observe(s dynamo.FrameStats) {
	m.total += s.MaxDeviation
	m.samples++
}

func (m *MeanDeviation) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.total / float64(m.samples)
}

func (m *MeanDeviation) Reset() {
	m.total = 0
	m.samples = 0
}
