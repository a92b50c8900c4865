// internal/pkg/backoff/backoff.go
package backoff

import "time"

// Policy is an explicit retry-state object: attempt count plus the delay the
// next retry should wait. Delays double per attempt (base, 2*base, 4*base...)
// up to MaxAttempts, after which the caller must give up.
type Policy struct {
	Base        time.Duration
	MaxAttempts int

	attempt int
}

// New returns a policy starting at attempt 0.
func New(base time.Duration, maxAttempts int) *Policy {
	return &Policy{Base: base, MaxAttempts: maxAttempts}
}

// Next records a failed attempt and returns the delay before the next retry.
// ok is false once the attempt cap is reached; the returned delay is then
// meaningless and the caller must give up.
func (p *Policy) Next() (delay time.Duration, ok bool) {
	p.attempt++
	if p.attempt >= p.MaxAttempts {
		return 0, false
	}
	return p.Base << (p.attempt - 1), true
}

// Attempt returns the number of failed attempts recorded so far.
func (p *Policy) Attempt() int { return p.attempt }

// Reset clears the attempt counter after a success.
func (p *Policy) Reset() { p.attempt = 0 }
