package dynamo

import "math"

// SinTable is a precomputed sine lookup with linear interpolation. It keeps
// periodic drivers such as wind gusts cheap and bit-stable across platforms.
type SinTable struct {
	sin []float64
	n   int
}

// DefaultSinTable has 4096 entries (~0.0015 rad resolution).
var DefaultSinTable = NewSinTable(4096)

func NewSinTable(n int) *SinTable {
	t := &SinTable{sin: make([]float64, n+1), n: n}
	for i := 0; i <= n; i++ {
		t.sin[i] = math.Sin(float64(i) * 2 * math.Pi / float64(n))
	}
	return t
}

func (t *SinTable) Sin(x float64) float64 {
	x = math.Mod(x, 2*math.Pi)
	if x < 0 {
		x += 2 * math.Pi
	}

	idx := x * float64(t.n) / (2 * math.Pi)
	i := int(idx)
	if i >= t.n {
		i = t.n - 1
	}
	frac := idx - float64(i)
	return t.sin[i]*(1-frac) + t.sin[i+1]*frac
}

// Oscillate maps time onto [lo, hi] with a sine of the given frequency (Hz).
// A non-positive frequency holds at hi.
func Oscillate(lo, hi, freq, t float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	if freq <= 0 {
		return hi
	}
	phase := t * freq * 2 * math.Pi
	return lo + (hi-lo)*(0.5+0.5*DefaultSinTable.Sin(phase))
}
