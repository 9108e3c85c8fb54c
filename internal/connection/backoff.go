package connection

import "time"

// backoff produces the retry delay sequence base, 2*base, 4*base, ...
// The delay strictly doubles on every step; there is no cap and no
// jitter, the holder bounds the sequence by attempt count instead.
// Not safe for concurrent use; each retry sequence owns its own
// backoff.
type backoff struct {
	base    time.Duration
	current time.Duration
}

func newBackoff(base time.Duration) *backoff {
	return &backoff{base: base, current: base}
}

// Next returns the delay for the upcoming attempt and advances the
// sequence.
func (b *backoff) Next() time.Duration {
	d := b.current
	b.current *= 2
	return d
}

// Reset restarts the sequence at the base delay.
func (b *backoff) Reset() {
	b.current = b.base
}
