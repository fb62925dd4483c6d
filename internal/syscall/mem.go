package syscall

import (
	"time"

	"github.com/oslab/easykernel/internal/kernel/proc"
)

// Sbrk grows or shrinks p's data segment by delta bytes, returning the
// previous break or -1 on underflow.
func (k *Kernel) Sbrk(p *proc.PCB, delta int64) int64 {
	k.record(p, SysSbrk)
	return p.Sbrk(delta)
}

// Mmap maps length bytes at start with port's permission bits, returning
// 0 on success or -1 on any validation failure.
func (k *Kernel) Mmap(p *proc.PCB, start, length uint64, port uint8) int32 {
	k.record(p, SysMmap)
	return p.Mmap(start, length, port)
}

// Munmap unmaps length bytes at start, returning 0 on success or -1 if any
// covered page wasn't mapped.
func (k *Kernel) Munmap(p *proc.PCB, start, length uint64) int32 {
	k.record(p, SysMunmap)
	return p.Munmap(start, length)
}

// Sleep blocks th for ms milliseconds, returning 0 once the timer fires.
func (k *Kernel) Sleep(th *proc.TCB, ms uint64) int32 {
	k.record(th.Process(), SysSleep)
	k.sched.Sleep(th, time.Duration(ms)*time.Millisecond)
	return 0
}
