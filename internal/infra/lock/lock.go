// Package lock serialises training runs within a process or across replicas.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/bryanwahyu/automaton-risk/internal/domain/risk"
)

// Local is an in-process lock. ttl is ignored; the holder always releases.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocal() *Local {
	return &Local{held: map[string]bool{}}
}

func (l *Local) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, risk.ErrTrainingInProgress
	}
	l.held[key] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
