// Package sched implements the scheduler glue: a single global FIFO ready
// queue, suspend/block bookkeeping around it, and a clock-driven sleep.
//
// Threads here are real goroutines, not cooperative tasks (the same
// adaptation internal/kernel/ksync makes for its blocking primitives), so
// this package's ready queue tracks FIFO bookkeeping for yield/sleep
// ordering rather than literally deciding which goroutine the CPU runs
// next — that part is the Go runtime's job. A blocked thread is never
// pushed back onto the ready queue; it is owned by whichever wait queue
// parked it until something there wakes it.
package sched

import (
	"runtime"
	"sync"
	"time"

	"github.com/oslab/easykernel/clock"
	"github.com/oslab/easykernel/common"
	"github.com/oslab/easykernel/internal/kernel/proc"
)

// Scheduler owns the single global ready queue.
type Scheduler struct {
	mu    sync.Mutex
	ready common.Queue[*proc.TCB]
	clk   clock.Clock
}

// New returns an empty Scheduler driven by clk.
func New(clk clock.Clock) *Scheduler {
	return &Scheduler{ready: common.NewLinkedListQueue[*proc.TCB](), clk: clk}
}

// Enqueue marks t Ready and pushes it to the tail of the ready queue.
func (s *Scheduler) Enqueue(t *proc.TCB) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.SetState(proc.Ready)
	s.ready.Push(t)
}

// Next pops the head of the ready queue, marking it Running. Reports false
// if the queue is empty.
func (s *Scheduler) Next() (*proc.TCB, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready.IsEmpty() {
		return nil, false
	}
	t := s.ready.Pop()
	t.SetState(proc.Running)
	return t, true
}

// Len reports the number of threads currently waiting to run.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready.Len()
}

// SuspendCurrentAndRunNext implements sys_yield: push current to the tail
// of the ready queue and hand control back to the Go runtime so another
// goroutine gets a turn.
func (s *Scheduler) SuspendCurrentAndRunNext(current *proc.TCB) {
	s.Enqueue(current)
	runtime.Gosched()
}

// BlockCurrentAndRunNext marks current Blocked without re-enqueuing it —
// a blocked thread belongs to the wait queue that parked it, not the
// scheduler's ready queue, until that wait queue wakes it.
func (s *Scheduler) BlockCurrentAndRunNext(current *proc.TCB) {
	current.SetState(proc.Blocked)
	runtime.Gosched()
}

// Sleep blocks current for d, the timer-driven wake sys_sleep relies on.
// The goroutine parks directly on the clock channel rather than round-
// tripping through the ready queue, since there is no cooperative
// scheduler loop here to hand it back to.
func (s *Scheduler) Sleep(current *proc.TCB, d time.Duration) {
	current.SetState(proc.Blocked)
	<-s.clk.After(d)
	current.SetState(proc.Ready)
}

// SetPriority is an unimplemented extension point; the core scheduler has
// no priorities, so it always refuses.
func (s *Scheduler) SetPriority(_ *proc.TCB, _ int) int32 { return -1 }
