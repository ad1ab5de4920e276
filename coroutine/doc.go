// Package coroutine is a Go rendition of the sync-over-async bridge that
// cowrap generates in C.
//
// A blocking caller that is not inside a coroutine spawns one to run the
// implementation and drives its event loop until the coroutine reports it
// has finished. A caller that is already inside a coroutine calls the
// implementation directly.
//
// # Execution Model
//
// Every Coroutine body runs on its own goroutine, but only while the loop
// has handed control to it. Exactly one of the driver and the body runs at
// any moment:
//
//	driver (Loop.Poll)            body
//	──────────────────────────────────────────────
//	resume ───────────────────▶  runs
//	blocked                       Yield ─┐
//	◀─────────────────────────────────────┘
//	checks cond, waits for Wake
//	resume ───────────────────▶  continues
//	blocked                       returns
//	◀─────────────────────────────────────
//
// # Key Types
//
//	Loop          - ready queue plus the poll-until-done primitive
//	Coroutine     - suspendable body; Wake reschedules it from any goroutine
//	PollState[T]  - in-progress flag, result slot and coroutine handle
//
// # Bridge Flow
//
//  1. InCoroutine(ctx) → call the implementation directly
//  2. otherwise PollState{InProgress: true}, Loop.Create(trampoline)
//  3. PollState.Poll: enter the coroutine, poll while InProgress
//  4. trampoline stores Ret, clears InProgress, calls Exit
//
// Call and Run package the flow for value and void implementations.
package coroutine
