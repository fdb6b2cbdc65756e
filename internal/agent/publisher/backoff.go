package publisher

import "time"

const (
	defaultRetryBase     = 500 * time.Millisecond
	defaultRetryMaxDelay = 30 * time.Second
	defaultRetryJitter   = 0.2
)

// backoffDelay returns the wait before retry number retry (1-based). jitter is a
// sample in [-1, 1) scaled by opts.RetryJitter.
func backoffDelay(opts Options, retry int, jitter float64) time.Duration {
	base := opts.RetryBase
	if base <= 0 {
		base = defaultRetryBase
	}
	maxD := opts.RetryMaxDelay
	if maxD <= 0 {
		maxD = defaultRetryMaxDelay
	}
	j := opts.RetryJitter
	if j < 0 {
		j = defaultRetryJitter
	}

	d := base
	for i := 1; i < retry; i++ {
		d *= 2
		if d > maxD {
			d = maxD
			break
		}
	}
	if j > 0 {
		d = time.Duration(float64(d) * (1 + jitter*j))
		if d < 0 {
			d = 0
		}
	}
	if d > maxD {
		d = maxD
	}
	return d
}
