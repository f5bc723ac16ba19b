package agenda

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FetchFunc loads and computes the grid for a selection. Implementations
// must honor context cancellation.
type FetchFunc func(ctx context.Context, date time.Time, professionalID uuid.UUID, scope Scope) (*DayGrid, error)

// DeliverFunc receives the grid of the most recent selection. It is never
// called for a selection that has been superseded.
type DeliverFunc func(grid *DayGrid, err error)

// Loader serializes day-grid selections. Each Select supersedes the one
// before it: the previous fetch's context is cancelled and, if its result
// still arrives, it is discarded. Only the latest selection ever reaches
// the deliver callback, so a slow fetch can never overwrite a newer view.
type Loader struct {
	fetch   FetchFunc
	deliver DeliverFunc

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func NewLoader(fetch FetchFunc, deliver DeliverFunc) *Loader {
	return &Loader{fetch: fetch, deliver: deliver}
}

// Select starts loading the grid for the given selection, superseding any
// in-flight load.
func (l *Loader) Select(ctx context.Context, date time.Time, professionalID uuid.UUID, scope Scope) {
	l.mu.Lock()
	l.gen++
	myGen := l.gen
	if l.cancel != nil {
		l.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()

	go func() {
		grid, err := l.fetch(fetchCtx, date, professionalID, scope)

		l.mu.Lock()
		stale := l.gen != myGen
		l.mu.Unlock()
		if stale {
			// A newer selection owns the view now; this result is a no-op.
			return
		}
		l.deliver(grid, err)
	}()
}

// Generation returns the current selection counter. Used by tests and
// debugging endpoints.
func (l *Loader) Generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen
}
