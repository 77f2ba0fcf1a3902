package httpserver

import (
	"sync"
	"sync/atomic"
)

// GlobalConnectionLimiter limits total concurrent connections per instance.
// Uses atomic operations for lock-free counting.
type GlobalConnectionLimiter struct {
	current atomic.Int64
	max     int64
}

// NewGlobalConnectionLimiter creates a limiter with the specified maximum connections.
func NewGlobalConnectionLimiter(max int64) *GlobalConnectionLimiter {
	return &GlobalConnectionLimiter{max: max}
}

// Acquire attempts to acquire a connection slot.
// Returns true if successful, false if at capacity.
func (l *GlobalConnectionLimiter) Acquire() bool {
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release releases a connection slot.
func (l *GlobalConnectionLimiter) Release() {
	l.current.Add(-1)
}

// Current returns the current number of connections.
func (l *GlobalConnectionLimiter) Current() int64 {
	return l.current.Load()
}

// IPConnectionLimiter limits concurrent connections per IP address.
type IPConnectionLimiter struct {
	mu     sync.Mutex
	ips    map[string]int
	maxPer int
}

// NewIPConnectionLimiter creates a limiter with the specified per-IP maximum.
func NewIPConnectionLimiter(maxPer int) *IPConnectionLimiter {
	return &IPConnectionLimiter{
		ips:    make(map[string]int),
		maxPer: maxPer,
	}
}

// Acquire attempts to acquire a connection slot for the given IP.
// Returns true if successful, false if IP is at its limit.
func (l *IPConnectionLimiter) Acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ips[ip] >= l.maxPer {
		return false
	}
	l.ips[ip]++
	return true
}

// Release releases a connection slot for the given IP.
func (l *IPConnectionLimiter) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.ips[ip]; count > 0 {
		l.ips[ip] = count - 1
		if l.ips[ip] == 0 {
			delete(l.ips, ip)
		}
	}
}

// Count returns the current connection count for the given IP.
func (l *IPConnectionLimiter) Count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ips[ip]
}

// ConnectionLimits combines the optional global and per-IP caps. A zero
// limit disables that cap.
type ConnectionLimits struct {
	global *GlobalConnectionLimiter
	perIP  *IPConnectionLimiter
}

// NewConnectionLimits creates a combined limiter; zero disables a cap.
func NewConnectionLimits(maxTotal, maxPerIP int) *ConnectionLimits {
	l := &ConnectionLimits{}
	if maxTotal > 0 {
		l.global = NewGlobalConnectionLimiter(int64(maxTotal))
	}
	if maxPerIP > 0 {
		l.perIP = NewIPConnectionLimiter(maxPerIP)
	}
	return l
}

// Acquire reserves a slot for ip. On success the returned release func must
// be called exactly once; on failure reason names the cap that was hit.
func (l *ConnectionLimits) Acquire(ip string) (release func(), reason string, ok bool) {
	if l.global != nil && !l.global.Acquire() {
		return nil, "global_limit", false
	}
	if l.perIP != nil && !l.perIP.Acquire(ip) {
		if l.global != nil {
			l.global.Release()
		}
		return nil, "ip_limit", false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if l.perIP != nil {
				l.perIP.Release(ip)
			}
			if l.global != nil {
				l.global.Release()
			}
		})
	}, "", true
}
