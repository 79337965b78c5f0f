package supervisor

import "time"

// frameEstimator tracks rendering pace within one attempt. Frames completed
// before the attempt started (resumed work) never enter the estimate.
type frameEstimator struct {
	count int
	first time.Time
	last  time.Time
}

func (e *frameEstimator) observe(t time.Time) {
	if e.count == 0 {
		e.first = t
	}
	e.last = t
	e.count++
}

// secondsPerFrame reports the average pace over the observed frames, or 0
// while fewer than two frames have completed.
func (e *frameEstimator) secondsPerFrame() float64 {
	if e.count < 2 {
		return 0
	}
	return e.last.Sub(e.first).Seconds() / float64(e.count-1)
}
