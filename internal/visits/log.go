// Package visits keeps a bounded in-memory log of landing-page visits. It
// exists for the status endpoint and the legacy latest-visit API; attribution
// itself lives in the record store.
package visits

import (
	"sync"
	"time"
)

// Visit is one recorded landing-page hit.
type Visit struct {
	IP       string    `json:"ip"`
	Path     string    `json:"path"`
	Code     string    `json:"code,omitempty"`
	Platform string    `json:"platform"`
	Time     time.Time `json:"timestamp"`
}

// Log is a fixed-capacity visit log. When full, the oldest entries are
// dropped. Safe for concurrent use.
type Log struct {
	mu     sync.Mutex
	visits []Visit
	max    int
}

// NewLog creates a log retaining at most max visits.
func NewLog(max int) *Log {
	if max <= 0 {
		max = 10000
	}
	return &Log{max: max}
}

// Add appends a visit, evicting the oldest entries past capacity.
func (l *Log) Add(v Visit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.visits = append(l.visits, v)
	if len(l.visits) > l.max {
		// Shift rather than re-slice so the backing array doesn't pin
		// evicted entries.
		n := copy(l.visits, l.visits[len(l.visits)-l.max:])
		l.visits = l.visits[:n]
	}
}

// Latest returns the most recent visit for ip and how many visits that ip
// has in the log. Returns nil, 0 when the ip has no visits.
func (l *Log) Latest(ip string) (*Visit, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	var latest *Visit
	for i := range l.visits {
		v := &l.visits[i]
		if v.IP != ip {
			continue
		}
		count++
		if latest == nil || v.Time.After(latest.Time) {
			latest = v
		}
	}
	if latest == nil {
		return nil, 0
	}
	out := *latest
	return &out, count
}

// Total returns the number of visits currently retained.
func (l *Log) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visits)
}

// UniqueIPs returns the number of distinct visitor IPs in the log.
func (l *Log) UniqueIPs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[string]struct{}, len(l.visits))
	for i := range l.visits {
		seen[l.visits[i].IP] = struct{}{}
	}
	return len(seen)
}
