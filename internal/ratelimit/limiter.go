// Package ratelimit throttles MCP tool calls with token buckets.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLimited is returned by Check when a tool has no tokens left.
var ErrLimited = errors.New("rate limit exceeded")

// Limiter is a token bucket. It starts full and refills continuously.
// It is safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	rate      float64 // tokens per second
	burst     float64
	tokens    float64
	lastCheck time.Time
	now       func() time.Time
}

// NewLimiter creates a limiter refilling at rate tokens per second and
// holding at most burst tokens.
func NewLimiter(rate float64, burst int) *Limiter {
	return newLimiterAt(rate, burst, time.Now)
}

func newLimiterAt(rate float64, burst int, now func() time.Time) *Limiter {
	return &Limiter{
		rate:      rate,
		burst:     float64(burst),
		tokens:    float64(burst),
		lastCheck: now(),
		now:       now,
	}
}

// Allow takes a token if one is available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if elapsed := now.Sub(l.lastCheck).Seconds(); elapsed > 0 {
		l.tokens = min(l.burst, l.tokens+l.rate*elapsed)
		l.lastCheck = now
	}

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// PerMinute returns a limiter allowing n calls per minute with the given burst.
func PerMinute(n float64, burst int) *Limiter {
	return NewLimiter(n/60, burst)
}

// ToolLimiters maps tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the default limits for refback's MCP tools.
// Session creation writes to the database and is throttled hardest.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"refback_generate_block": PerMinute(60, 10),
		"refback_create_session": PerMinute(10, 3),
		"refback_list_sessions":  PerMinute(60, 10),
	}
}

// Check takes a token for tool. Tools without a limiter are never limited.
func (tl ToolLimiters) Check(tool string) error {
	l, ok := tl[tool]
	if !ok {
		return nil
	}
	if !l.Allow() {
		return fmt.Errorf("%w for %s, please try again shortly", ErrLimited, tool)
	}
	return nil
}
