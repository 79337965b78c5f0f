package supervisor

import (
	"math/rand/v2"
	"time"

	"blender-render-manager/internal/model"
)

const (
	defaultBackoffBase = 2 * time.Second
	defaultBackoffMax  = 2 * time.Minute
)

// backoffDelay computes the wait before retry number `failures` (1-based):
// exponential doubling from the base, capped, with ±50% jitter so that two
// supervisors pointed at the same machine do not retry in lockstep.
func backoffDelay(policy model.BackoffPolicy, failures int) time.Duration {
	base := policy.Base
	if base <= 0 {
		base = defaultBackoffBase
	}
	max := policy.Max
	if max <= 0 {
		max = defaultBackoffMax
	}
	if failures < 1 {
		failures = 1
	}

	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	if d > max {
		d = max
	}

	// ±50% jitter.
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(d)
}
