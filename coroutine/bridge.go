package coroutine

import (
	"context"
	"time"
)

// PollState is the header a blocking caller shares with the coroutine it
// spawned. The caller owns it for the duration of Poll; the coroutine only
// writes Ret and clears InProgress before calling Exit.
type PollState[T any] struct {
	Loop       *Loop
	InProgress bool
	Ret        T
	Co         *Coroutine
}

// Exit notifies the polling caller that the coroutine has finished.
func (s *PollState[T]) Exit() {
	s.Loop.Kick()
}

// Poll enters the coroutine and drives the loop until InProgress is
// cleared, then returns Ret.
func (s *PollState[T]) Poll() T {
	s.Loop.Enter(s.Co)
	s.Loop.Poll(func() bool { return s.InProgress })
	return s.Ret
}

// Call runs fn to completion and returns its result. Inside a coroutine fn
// is called directly; otherwise it runs in a new coroutine on loop while
// the caller polls.
func Call[T any](ctx context.Context, loop *Loop, fn func(context.Context) T) T {
	if InCoroutine(ctx) {
		return fn(ctx)
	}

	s := &PollState[T]{Loop: loop, InProgress: true}
	s.Co = loop.Create(ctx, func(ctx context.Context) {
		s.Ret = fn(ctx)
		s.InProgress = false
		s.Exit()
	})
	return s.Poll()
}

// Run is Call for implementations without a result.
func Run(ctx context.Context, loop *Loop, fn func(context.Context)) {
	Call(ctx, loop, func(ctx context.Context) struct{} {
		fn(ctx)
		return struct{}{}
	})
}

// Await suspends the calling coroutine until the completion passed to
// start is invoked. start may call it synchronously or from any goroutine,
// but only once.
func Await(ctx context.Context, start func(done func())) {
	co := Self(ctx)
	if co == nil {
		panic("coroutine.Await: not called from a coroutine")
	}

	fired := make(chan struct{})
	start(func() {
		close(fired)
		co.Wake()
	})

	for {
		select {
		case <-fired:
			return
		default:
		}
		co.yield()
	}
}

// Sleep suspends the calling coroutine for at least d.
func Sleep(ctx context.Context, d time.Duration) {
	Await(ctx, func(done func()) {
		time.AfterFunc(d, done)
	})
}
