// Package inflight rejects a mutating call while another call for the same
// key is still pending. It does not queue: the second caller gets an
// apperr.InFlight error and may retry once the first call finishes.
package inflight

import (
	"context"
	"sort"
	"sync"

	"github.com/hospital/inpatient/internal/platform/apperr"
)

// Guard hands out exclusive holds on keys. Acquire takes all keys or none;
// the returned release func must be called exactly once.
type Guard interface {
	Acquire(ctx context.Context, op string, keys ...string) (release func(), err error)
}

// Local is an in-process Guard for single-replica deployments and tests.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) Acquire(_ context.Context, op string, keys ...string) (func(), error) {
	keys = normalize(keys)

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, k := range keys {
		if _, busy := l.held[k]; busy {
			return nil, apperr.InFlight(op, k)
		}
	}
	for _, k := range keys {
		l.held[k] = struct{}{}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for _, k := range keys {
				delete(l.held, k)
			}
		})
	}, nil
}

// Held reports whether key is currently held.
func (l *Local) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

// normalize drops empty keys and duplicates and sorts the rest so that
// multi-key acquisitions always lock in the same order.
func normalize(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func AdmissionKey(id string) string { return "admission:" + id }
func BedKey(id string) string       { return "bed:" + id }
func PatientKey(id string) string   { return "patient:" + id }
