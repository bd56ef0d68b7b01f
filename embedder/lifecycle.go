package embedder

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/w-h-a/spinach/fault"
)

type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusLoading       Status = "loading"
	StatusReady         Status = "ready"
	StatusFailed        Status = "failed"
)

// Lifecycle coordinates the one-time lazy load shared by embedder
// implementations. Concurrent first callers collapse into a single load and
// all of them see its result. A failed load is not sticky: the next Ensure
// runs the load again.
type Lifecycle struct {
	state atomic.Value
	group singleflight.Group
}

func (l *Lifecycle) Status() Status {
	if s, ok := l.state.Load().(Status); ok {
		return s
	}
	return StatusUninitialized
}

// Ensure runs load exactly once for any group of concurrent callers and
// returns fault.ErrModelUnavailable if it fails.
func (l *Lifecycle) Ensure(ctx context.Context, load func(ctx context.Context) error) error {
	if l.Status() == StatusReady {
		return nil
	}

	_, err, _ := l.group.Do("load", func() (any, error) {
		if l.Status() == StatusReady {
			return nil, nil
		}

		l.state.Store(StatusLoading)

		if err := load(ctx); err != nil {
			l.state.Store(StatusFailed)
			return nil, fmt.Errorf("%w: %v", fault.ErrModelUnavailable, err)
		}

		l.state.Store(StatusReady)

		return nil, nil
	})

	return err
}
