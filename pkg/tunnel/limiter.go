package tunnel

import (
	"time"

	"golang.org/x/time/rate"
)

// HandshakeLimiter is a token bucket consulted by the listener before every
// handshake. A connection that finds the bucket empty is closed without a
// Hello, so a flood of dials cannot pin the CPU in scrypt.
type HandshakeLimiter struct {
	bucket *rate.Limiter
	now    func() time.Time
}

// NewHandshakeLimiter allows perSecond handshakes with bursts of up to burst.
// A non-positive perSecond disables limiting. A burst below 1 is raised to 1.
func NewHandshakeLimiter(perSecond float64, burst int) *HandshakeLimiter {
	if perSecond <= 0 {
		return nil
	}
	return &HandshakeLimiter{
		bucket: rate.NewLimiter(rate.Limit(perSecond), max(burst, 1)),
		now:    time.Now,
	}
}

// AllowHandshake takes one token and reports whether there was one. A nil
// limiter allows everything.
func (l *HandshakeLimiter) AllowHandshake() bool {
	if l == nil {
		return true
	}
	return l.bucket.AllowN(l.now(), 1)
}
