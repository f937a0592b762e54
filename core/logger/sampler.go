package logger

import (
	"strconv"
	"strings"
	"sync"
)

// sampler passes the first allow events of every window of size window and
// drops the rest. It thins high-volume debug events (per-update receipts,
// per-call timings) without hiding them entirely.
type sampler struct {
	mu     sync.Mutex
	allow  int
	window int
	seen   int
}

func newSampler(allow, window int) *sampler {
	s := &sampler{}
	s.Set(allow, window)
	return s
}

// Set reconfigures the sampling window; non-positive values disable sampling.
func (s *sampler) Set(allow, window int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if allow <= 0 || window <= 0 {
		s.allow, s.window, s.seen = 0, 0, 0
		return
	}
	if allow > window {
		allow = window
	}
	s.allow = allow
	s.window = window
	s.seen = 0
}

// Allow reports whether the current event should pass sampling.
func (s *sampler) Allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.window <= 0 {
		return true
	}
	s.seen++
	if s.seen > s.window {
		s.seen = 1
	}
	return s.seen <= s.allow
}

// parseSampleSpec reads "allow/window" or a bare window ("50" means 1/50).
// Anything unparseable yields 0, 0, which parseDebugSample replaces with
// the 1/50 default.
func parseSampleSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, 0
	}
	if left, right, found := strings.Cut(spec, "/"); found {
		allow, err1 := strconv.Atoi(strings.TrimSpace(left))
		window, err2 := strconv.Atoi(strings.TrimSpace(right))
		if err1 != nil || err2 != nil {
			return 0, 0
		}
		return allow, window
	}
	window, err := strconv.Atoi(spec)
	if err != nil || window <= 0 {
		return 0, 0
	}
	return 1, window
}
