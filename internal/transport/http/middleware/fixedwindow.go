package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

type windowEntry struct {
	count       int
	windowStart time.Time
}

// FixedWindowLimiter allows at most max requests per window per client IP.
// The counter map is bounded: entries whose window has long passed are
// evicted by a background sweep. Counting is per process; under a
// multi-instance deployment this is a best-effort throttle, not a
// correctness guarantee.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	max     int
	window  time.Duration
	now     func() time.Time
}

func NewFixedWindowLimiter(max int, window time.Duration) *FixedWindowLimiter {
	fw := &FixedWindowLimiter{
		entries: make(map[string]*windowEntry),
		max:     max,
		window:  window,
		now:     time.Now,
	}
	go fw.cleanup()
	return fw
}

// allow reports whether the request fits the current window, and when it does
// not, how long until the window resets.
func (fw *FixedWindowLimiter) allow(ip string) (bool, time.Duration) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	now := fw.now()
	e, ok := fw.entries[ip]
	if !ok || now.Sub(e.windowStart) >= fw.window {
		fw.entries[ip] = &windowEntry{count: 1, windowStart: now}
		return true, 0
	}
	if e.count >= fw.max {
		return false, e.windowStart.Add(fw.window).Sub(now)
	}
	e.count++
	return true, 0
}

func (fw *FixedWindowLimiter) cleanup() {
	for {
		time.Sleep(fw.window)
		fw.mu.Lock()
		now := fw.now()
		for ip, e := range fw.entries {
			if now.Sub(e.windowStart) >= fw.window {
				delete(fw.entries, ip)
			}
		}
		fw.mu.Unlock()
	}
}

// Limit enforces the fixed window, answering 429 with a Retry-After header
// giving the seconds until the window resets (at least 1).
func (fw *FixedWindowLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retryIn := fw.allow(realIP(r))
		if !ok {
			secs := int(retryIn.Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
			writeJSONError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
