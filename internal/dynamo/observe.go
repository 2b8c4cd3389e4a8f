package dynamo

// FrameStats summarizes one chain after one simulated frame.
type FrameStats struct {
	Frame        int
	Chain        string
	MaxDeviation float64
	Corrections  int
}

// Metric accumulates a single number over a bake.
type Metric interface {
	Name() string
	Observe(s FrameStats)
	Value() float64
	Reset()
}

// Observer is told when a frame has been simulated for every chain.
type Observer interface {
	OnFrame(frame, done, total int)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(frame, done, total int)

func (f ObserverFunc) OnFrame(frame, done, total int) { f(frame, done, total) }
