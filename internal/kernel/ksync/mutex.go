// Package ksync implements the kernel's synchronization primitives
// (SpinMutex, BlockingMutex, Semaphore, Condvar) and a Banker's-algorithm
// deadlock detector, translated from cooperative single-core blocking to
// goroutines parked on channels.
package ksync

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/oslab/easykernel/common"
)

// Mutex is the common contract both mutex flavors satisfy, so callers
// (internal/syscall) don't need to know which flavor a given mutex id was
// created with.
type Mutex interface {
	Lock()
	Unlock()
}

// SpinMutex busy-waits on a CAS loop. Appropriate for critical sections a
// caller knows will be held briefly.
type SpinMutex struct {
	state int32
}

// NewSpinMutex returns an unlocked SpinMutex.
func NewSpinMutex() *SpinMutex { return &SpinMutex{} }

func (m *SpinMutex) Lock() {
	for !atomic.CompareAndSwapInt32(&m.state, 0, 1) {
		runtime.Gosched()
	}
}

func (m *SpinMutex) Unlock() {
	atomic.StoreInt32(&m.state, 0)
}

var _ Mutex = (*SpinMutex)(nil)

// OwnershipAwareMutex is implemented by mutex flavors whose wait queue
// tracks which tid is waiting, so a release can report whether it was a
// true release (nobody waiting, Available grows) or a direct hand-off to
// a woken waiter (Available unchanged, the waiter's Need converts to
// Allocation) — the distinction spec.md:95 draws and bankersTable.release
// alone can't make.
type OwnershipAwareMutex interface {
	Mutex
	LockAs(tid int)
	UnlockAs() (wokenTid int, transferred bool)
}

// muxWaiter is one queued BlockingMutex waiter: the tid that asked for the
// lock and the channel it parks on until woken.
type muxWaiter struct {
	tid  int
	wake chan struct{}
}

// BlockingMutex parks waiters on a FIFO queue instead of spinning.
// Ownership is handed directly to the next waiter on Unlock rather than
// being reopened for any goroutine to race for.
type BlockingMutex struct {
	mu      sync.Mutex
	locked  bool
	waiters common.Queue[muxWaiter]
}

// NewBlockingMutex returns an unlocked BlockingMutex.
func NewBlockingMutex() *BlockingMutex {
	return &BlockingMutex{waiters: common.NewLinkedListQueue[muxWaiter]()}
}

// Lock acquires the mutex without identifying the caller; used only where
// no Detector bookkeeping is in play (e.g. Condvar.Wait's internal
// release/reacquire). Callers that need hand-off tracking use LockAs.
func (m *BlockingMutex) Lock() { m.LockAs(0) }

// LockAs acquires the mutex, recording tid as the caller so a hand-off on
// release can name it to the Detector.
func (m *BlockingMutex) LockAs(tid int) {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return
	}
	wake := make(chan struct{})
	m.waiters.Push(muxWaiter{tid: tid, wake: wake})
	m.mu.Unlock()
	<-wake
}

// Unlock releases the mutex without reporting who it was handed to; used
// only where no Detector bookkeeping is in play. Callers that need the
// woken tid use UnlockAs.
func (m *BlockingMutex) Unlock() { m.UnlockAs() }

// UnlockAs releases the mutex. If a waiter was queued, ownership passes
// directly to it and transferred is true with wokenTid set to its tid —
// callers must convert that waiter's Need to Allocation rather than
// growing Available. Otherwise this is a true release with nobody
// waiting and transferred is false.
func (m *BlockingMutex) UnlockAs() (wokenTid int, transferred bool) {
	m.mu.Lock()
	if !m.waiters.IsEmpty() {
		next := m.waiters.Pop()
		m.mu.Unlock()
		close(next.wake)
		return next.tid, true
	}
	m.locked = false
	m.mu.Unlock()
	return 0, false
}

var _ Mutex = (*BlockingMutex)(nil)
var _ OwnershipAwareMutex = (*BlockingMutex)(nil)
