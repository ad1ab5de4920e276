package coroutine

import (
	"context"
	"sync"
)

// Loop schedules coroutines. Poll must only be called from one goroutine at
// a time; Wake may be called from anywhere.
type Loop struct {
	mu    sync.Mutex
	ready []*Coroutine
	kick  chan struct{}
}

// NewLoop creates an empty loop.
func NewLoop() *Loop {
	return &Loop{kick: make(chan struct{}, 1)}
}

// Coroutine is a body the loop can suspend and resume.
type Coroutine struct {
	loop *Loop
	ctx  context.Context
	fn   func(context.Context)
	next chan struct{}

	// guarded by loop.mu
	queued bool
	done   bool

	// owned by the driver
	started bool

	// written by the body before handing control back
	panicked bool
	panicVal any
}

type selfKey struct{}

// Create binds fn to a new coroutine on the loop. The body does not run
// until the coroutine is entered.
func (l *Loop) Create(ctx context.Context, fn func(context.Context)) *Coroutine {
	return &Coroutine{
		loop: l,
		ctx:  ctx,
		fn:   fn,
		next: make(chan struct{}),
	}
}

// Enter schedules co to run on the next Poll iteration.
func (l *Loop) Enter(co *Coroutine) {
	co.Wake()
}

// Kick wakes a Poll that is waiting for work so it re-checks its condition.
func (l *Loop) Kick() {
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

// Poll runs ready coroutines on the calling goroutine until cond reports
// false. cond is evaluated on the calling goroutine between resumptions.
// A panic in a coroutine body is re-raised here.
func (l *Loop) Poll(cond func() bool) {
	for cond() {
		co := l.pop()
		if co == nil {
			<-l.kick
			continue
		}
		co.resume()
	}
}

func (l *Loop) pop() *Coroutine {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.ready) > 0 {
		co := l.ready[0]
		l.ready[0] = nil
		l.ready = l.ready[1:]
		co.queued = false
		// woken while running, then returned without yielding
		if co.done {
			continue
		}
		return co
	}
	return nil
}

// Wake schedules co to resume. Waking a coroutine that is already queued or
// has finished does nothing.
func (co *Coroutine) Wake() {
	l := co.loop
	l.mu.Lock()
	if co.done || co.queued {
		l.mu.Unlock()
		return
	}
	co.queued = true
	l.ready = append(l.ready, co)
	l.mu.Unlock()
	l.Kick()
}

// Done reports whether the body has returned.
func (co *Coroutine) Done() bool {
	co.loop.mu.Lock()
	defer co.loop.mu.Unlock()
	return co.done
}

// resume hands control to the body and blocks until it yields or returns.
func (co *Coroutine) resume() {
	if !co.started {
		co.started = true
		go co.run()
	} else {
		co.next <- struct{}{}
	}
	<-co.next

	if co.panicked {
		co.panicked = false
		panic(co.panicVal)
	}
}

func (co *Coroutine) run() {
	defer func() {
		if r := recover(); r != nil {
			co.panicked = true
			co.panicVal = r
		}
		co.loop.mu.Lock()
		co.done = true
		co.loop.mu.Unlock()
		co.next <- struct{}{}
	}()
	co.fn(context.WithValue(co.ctx, selfKey{}, co))
}

func (co *Coroutine) yield() {
	co.next <- struct{}{}
	<-co.next
}

// Self returns the coroutine running ctx's call chain, or nil.
func Self(ctx context.Context) *Coroutine {
	co, _ := ctx.Value(selfKey{}).(*Coroutine)
	return co
}

// InCoroutine reports whether ctx belongs to a coroutine body.
func InCoroutine(ctx context.Context) bool {
	return Self(ctx) != nil
}

// Yield suspends the calling coroutine until something calls its Wake. A
// wake issued before the coroutine yielded also resumes it, so callers
// re-check whatever they are waiting for. It panics outside a coroutine.
func Yield(ctx context.Context) {
	co := Self(ctx)
	if co == nil {
		panic("coroutine.Yield: not called from a coroutine")
	}
	co.yield()
}
