package proc

import (
	"fmt"

	"github.com/oslab/easykernel/internal/kernel/ksync"
)

// CreateMutex allocates a new mutex in the process's sparse mutex_list
// (reusing a freed slot if one exists), registers it with the Banker's
// detector as one available unit, and returns its id.
func (p *PCB) CreateMutex(blocking bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	var m ksync.Mutex
	if blocking {
		m = ksync.NewBlockingMutex()
	} else {
		m = ksync.NewSpinMutex()
	}

	id := -1
	for i, e := range p.Mutexes {
		if e == nil {
			id = i
			break
		}
	}
	if id == -1 {
		p.Mutexes = append(p.Mutexes, nil)
		id = len(p.Mutexes) - 1
	}
	p.Mutexes[id] = m
	p.Detector.RegisterMutex(id)
	return id
}

// RemoveMutex frees mutex id's slot for reuse.
func (p *PCB) RemoveMutex(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.Mutexes) || p.Mutexes[id] == nil {
		return fmt.Errorf("proc: mutex %d not found", id)
	}
	p.Mutexes[id] = nil
	return nil
}

// LockMutex runs the pre-flight Banker's check for tid against mutex id and,
// only if it passes, performs the real (possibly blocking) lock. A refused
// request returns ksync.ErrDeadlockAvoided without ever calling Lock —
// exactly the order sys_mutex_lock uses, check first, block second.
func (p *PCB) LockMutex(tid Tid, id int) (int32, error) {
	p.mu.Lock()
	if id < 0 || id >= len(p.Mutexes) || p.Mutexes[id] == nil {
		p.mu.Unlock()
		return 0, fmt.Errorf("proc: mutex %d not found", id)
	}
	m := p.Mutexes[id]
	p.mu.Unlock()

	if !p.Detector.RequestMutex(int(tid), id) {
		return ksync.ErrDeadlockAvoided, nil
	}
	if oam, ok := m.(ksync.OwnershipAwareMutex); ok {
		oam.LockAs(int(tid))
	} else {
		m.Lock()
	}
	return 0, nil
}

// UnlockMutex releases mutex id held by tid. If the release hands the
// mutex directly to a waiter it woke, that waiter's Need converts to
// Allocation and Available is left unchanged (spec.md:95's transfer rule);
// otherwise the unit genuinely returns to Available.
func (p *PCB) UnlockMutex(tid Tid, id int) error {
	p.mu.Lock()
	if id < 0 || id >= len(p.Mutexes) || p.Mutexes[id] == nil {
		p.mu.Unlock()
		return fmt.Errorf("proc: mutex %d not found", id)
	}
	m := p.Mutexes[id]
	p.mu.Unlock()

	if oam, ok := m.(ksync.OwnershipAwareMutex); ok {
		if wokenTid, transferred := oam.UnlockAs(); transferred {
			p.Detector.TransferMutex(int(tid), wokenTid, id)
			return nil
		}
		p.Detector.ReleaseMutex(int(tid), id)
		return nil
	}
	m.Unlock()
	p.Detector.ReleaseMutex(int(tid), id)
	return nil
}

// CreateSemaphore allocates a counting semaphore with the given initial
// count and registers it with the detector, mirroring sys_semaphore_create.
func (p *PCB) CreateSemaphore(count uint32) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := ksync.NewSemaphore(int(count))
	id := -1
	for i, e := range p.Semaphores {
		if e == nil {
			id = i
			break
		}
	}
	if id == -1 {
		p.Semaphores = append(p.Semaphores, nil)
		p.semaphoreCounts = append(p.semaphoreCounts, 0)
		id = len(p.Semaphores) - 1
	}
	p.Semaphores[id] = s
	p.semaphoreCounts[id] = count
	p.Detector.RegisterSemaphore(id, count)
	return id
}

// RemoveSemaphore frees semaphore id's slot for reuse.
func (p *PCB) RemoveSemaphore(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.Semaphores) || p.Semaphores[id] == nil {
		return fmt.Errorf("proc: semaphore %d not found", id)
	}
	p.Semaphores[id] = nil
	return nil
}

// DownSemaphore is Down's counterpart to LockMutex: pre-flight Banker's
// check, then the real (possibly blocking) Down.
func (p *PCB) DownSemaphore(tid Tid, id int) (int32, error) {
	p.mu.Lock()
	if id < 0 || id >= len(p.Semaphores) || p.Semaphores[id] == nil {
		p.mu.Unlock()
		return 0, fmt.Errorf("proc: semaphore %d not found", id)
	}
	s := p.Semaphores[id]
	p.mu.Unlock()

	if !p.Detector.RequestSemaphore(int(tid), id, 1) {
		return ksync.ErrDeadlockAvoided, nil
	}
	s.DownAs(int(tid))
	return 0, nil
}

// UpSemaphore releases one unit of semaphore id held by tid. If the
// release hands the unit directly to a waiter it woke, that waiter's Need
// converts to Allocation and Available is left unchanged (spec.md:95's
// transfer rule); otherwise the unit genuinely returns to Available.
func (p *PCB) UpSemaphore(tid Tid, id int) error {
	p.mu.Lock()
	if id < 0 || id >= len(p.Semaphores) || p.Semaphores[id] == nil {
		p.mu.Unlock()
		return fmt.Errorf("proc: semaphore %d not found", id)
	}
	s := p.Semaphores[id]
	p.mu.Unlock()

	if wokenTid, transferred := s.UpAs(); transferred {
		p.Detector.TransferSemaphore(int(tid), wokenTid, id, 1)
		return nil
	}
	p.Detector.ReleaseSemaphore(int(tid), id, 1)
	return nil
}

// CreateCondvar allocates a condition variable. Condvars never participate
// in Banker's bookkeeping — only mutexes and semaphores get a resource-
// accounting triple.
func (p *PCB) CreateCondvar() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cv := ksync.NewCondvar()
	for i, e := range p.Condvars {
		if e == nil {
			p.Condvars[i] = cv
			return i
		}
	}
	p.Condvars = append(p.Condvars, cv)
	return len(p.Condvars) - 1
}

// RemoveCondvar frees condvar id's slot for reuse.
func (p *PCB) RemoveCondvar(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.Condvars) || p.Condvars[id] == nil {
		return fmt.Errorf("proc: condvar %d not found", id)
	}
	p.Condvars[id] = nil
	return nil
}

// WaitCondvar waits on condvar id, releasing mu for the duration.
func (p *PCB) WaitCondvar(id int, mu ksync.Mutex) error {
	p.mu.Lock()
	if id < 0 || id >= len(p.Condvars) || p.Condvars[id] == nil {
		p.mu.Unlock()
		return fmt.Errorf("proc: condvar %d not found", id)
	}
	cv := p.Condvars[id]
	p.mu.Unlock()

	cv.Wait(mu)
	return nil
}

// SignalCondvar wakes the oldest waiter on condvar id, if any.
func (p *PCB) SignalCondvar(id int) error {
	p.mu.Lock()
	if id < 0 || id >= len(p.Condvars) || p.Condvars[id] == nil {
		p.mu.Unlock()
		return fmt.Errorf("proc: condvar %d not found", id)
	}
	cv := p.Condvars[id]
	p.mu.Unlock()

	cv.Signal()
	return nil
}

// SetDeadlockDetect toggles this process's Banker's-algorithm enforcement.
func (p *PCB) SetDeadlockDetect(enabled bool) {
	p.mu.Lock()
	p.EnableDeadlockDetect = enabled
	p.mu.Unlock()
	p.Detector.SetEnabled(enabled)
}
