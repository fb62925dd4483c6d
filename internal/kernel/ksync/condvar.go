package ksync

import (
	"sync"

	"github.com/oslab/easykernel/common"
)

// Condvar is a wait/signal condition variable used together with a Mutex.
// Wait enqueues the waiter under the condvar's own mutex before releasing mu,
// so a signal that arrives between the release and the park still finds the
// waiter in the queue and is not lost.
type Condvar struct {
	mu      sync.Mutex
	waiters common.Queue[chan struct{}]
}

// NewCondvar returns an empty Condvar.
func NewCondvar() *Condvar {
	return &Condvar{waiters: common.NewLinkedListQueue[chan struct{}]()}
}

// Wait releases mu, blocks until signaled, then reacquires mu before
// returning.
func (c *Condvar) Wait(mu Mutex) {
	wake := make(chan struct{})
	c.mu.Lock()
	c.waiters.Push(wake)
	c.mu.Unlock()

	mu.Unlock()
	<-wake
	mu.Lock()
}

// Signal wakes the oldest waiter, if any.
func (c *Condvar) Signal() {
	c.mu.Lock()
	if c.waiters.IsEmpty() {
		c.mu.Unlock()
		return
	}
	wake := c.waiters.Pop()
	c.mu.Unlock()
	close(wake)
}
