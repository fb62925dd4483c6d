package syscall

import "github.com/oslab/easykernel/internal/kernel/proc"

// MutexCreate allocates a mutex on p (spin if !blocking, FIFO-blocking
// otherwise) and returns its id.
func (k *Kernel) MutexCreate(p *proc.PCB, blocking bool) int64 {
	k.record(p, SysMutexCreate)
	return int64(p.CreateMutex(blocking))
}

// MutexLock runs the Banker's pre-flight check for th against mutex id
// and, if safe, actually locks it. Returns ksync.ErrDeadlockAvoided
// without blocking if granting it would be unsafe.
func (k *Kernel) MutexLock(p *proc.PCB, th *proc.TCB, id int) int64 {
	k.record(p, SysMutexLock)
	code, err := p.LockMutex(th.Tid, id)
	if err != nil {
		return -1
	}
	return int64(code)
}

// MutexUnlock releases mutex id held by th.
func (k *Kernel) MutexUnlock(p *proc.PCB, th *proc.TCB, id int) int32 {
	k.record(p, SysMutexUnlock)
	if err := p.UnlockMutex(th.Tid, id); err != nil {
		return -1
	}
	return 0
}

// SemaphoreCreate allocates a counting semaphore with the given initial
// count and returns its id.
func (k *Kernel) SemaphoreCreate(p *proc.PCB, count uint32) int64 {
	k.record(p, SysSemaphoreCreate)
	return int64(p.CreateSemaphore(count))
}

// SemaphoreDown is Down's counterpart to MutexLock.
func (k *Kernel) SemaphoreDown(p *proc.PCB, th *proc.TCB, id int) int64 {
	k.record(p, SysSemaphoreDown)
	code, err := p.DownSemaphore(th.Tid, id)
	if err != nil {
		return -1
	}
	return int64(code)
}

// SemaphoreUp releases one unit of semaphore id held by th.
func (k *Kernel) SemaphoreUp(p *proc.PCB, th *proc.TCB, id int) int32 {
	k.record(p, SysSemaphoreUp)
	if err := p.UpSemaphore(th.Tid, id); err != nil {
		return -1
	}
	return 0
}

// CondvarCreate allocates a condition variable and returns its id.
func (k *Kernel) CondvarCreate(p *proc.PCB) int64 {
	k.record(p, SysCondvarCreate)
	return int64(p.CreateCondvar())
}

// CondvarWait waits on condvar cvID, releasing mutex mutexID for the
// duration and reacquiring it before returning.
func (k *Kernel) CondvarWait(p *proc.PCB, cvID, mutexID int) int32 {
	k.record(p, SysCondvarWait)
	if mutexID < 0 || mutexID >= len(p.Mutexes) || p.Mutexes[mutexID] == nil {
		return -1
	}
	if err := p.WaitCondvar(cvID, p.Mutexes[mutexID]); err != nil {
		return -1
	}
	return 0
}

// CondvarSignal wakes the oldest waiter on condvar id, if any.
func (k *Kernel) CondvarSignal(p *proc.PCB, id int) int32 {
	k.record(p, SysCondvarSignal)
	if err := p.SignalCondvar(id); err != nil {
		return -1
	}
	return 0
}

// EnableDeadlockDetect toggles p's Banker's-algorithm enforcement. Only 0
// or 1 are valid; anything else fails.
func (k *Kernel) EnableDeadlockDetect(p *proc.PCB, flag int) int32 {
	k.record(p, SysEnableDeadlockDetect)
	if flag != 0 && flag != 1 {
		return -1
	}
	p.SetDeadlockDetect(flag == 1)
	return 0
}
