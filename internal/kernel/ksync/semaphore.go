package ksync

import (
	"sync"

	"github.com/oslab/easykernel/common"
)

// semWaiter is one queued Semaphore waiter: the tid that asked for a unit
// and the channel it parks on until woken.
type semWaiter struct {
	tid  int
	wake chan struct{}
}

// Semaphore is a counting semaphore with a FIFO wait queue. Up() transfers
// a unit of the resource straight to the oldest waiter rather than
// incrementing the counter for anyone to grab.
type Semaphore struct {
	mu      sync.Mutex
	count   int
	waiters common.Queue[semWaiter]
}

// NewSemaphore returns a Semaphore initialized with count available units.
func NewSemaphore(count int) *Semaphore {
	return &Semaphore{count: count, waiters: common.NewLinkedListQueue[semWaiter]()}
}

// Down acquires one unit without identifying the caller. Callers that need
// Detector hand-off tracking use DownAs.
func (s *Semaphore) Down() { s.DownAs(0) }

// DownAs acquires one unit, blocking if none is available, recording tid
// as the caller so a hand-off on Up can name it to the Detector.
func (s *Semaphore) DownAs(tid int) {
	s.mu.Lock()
	if s.count > 0 {
		s.count--
		s.mu.Unlock()
		return
	}
	wake := make(chan struct{})
	s.waiters.Push(semWaiter{tid: tid, wake: wake})
	s.mu.Unlock()
	<-wake
}

// Up releases one unit without reporting who it was handed to. Callers
// that need the woken tid use UpAs.
func (s *Semaphore) Up() { s.UpAs() }

// UpAs releases one unit. If a waiter was queued, the unit passes directly
// to it and transferred is true with wokenTid set to its tid — callers
// must convert that waiter's Need to Allocation rather than growing
// Available. Otherwise this is a true release with nobody waiting and
// transferred is false.
func (s *Semaphore) UpAs() (wokenTid int, transferred bool) {
	s.mu.Lock()
	if !s.waiters.IsEmpty() {
		next := s.waiters.Pop()
		s.mu.Unlock()
		close(next.wake)
		return next.tid, true
	}
	s.count++
	s.mu.Unlock()
	return 0, false
}
