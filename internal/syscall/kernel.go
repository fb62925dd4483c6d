// Package syscall implements the dispatcher for every syscall this kernel
// exposes: process control (exit/yield/getpid/fork/exec/waitpid),
// time/task introspection (get_time/task_info), the address space calls
// (mmap/munmap/sbrk/sleep), and the synchronization primitive calls
// (mutex/semaphore/condvar create/lock-or-down/unlock-or-up, and
// enable_deadlock_detect). It is the one package allowed to see
// internal/kernel/proc, internal/kernel/sched, and internal/vfs together,
// since it is where process bookkeeping, scheduling, and the loaded
// filesystem image get wired into one running system.
//
// Named "syscall" for the role it plays in this kernel, not Go's own
// standard library package of the same name — nothing here imports the
// stdlib syscall package.
package syscall

import (
	"sync"

	"github.com/oslab/easykernel/clock"
	"github.com/oslab/easykernel/internal/kernel/proc"
	"github.com/oslab/easykernel/internal/kernel/sched"
	"github.com/oslab/easykernel/internal/metrics"
)

// Kernel is the process table plus the scheduler and clock every
// dispatcher in this package runs against.
type Kernel struct {
	mu      sync.Mutex
	procs   map[proc.Pid]*proc.PCB
	nextPid proc.Pid
	root    *proc.PCB // the first process Spawn creates; exited processes reparent their children to it

	sched   *sched.Scheduler
	clk     clock.Clock
	loader  proc.ImageLoader
	metrics metrics.Handle
}

// New returns an empty Kernel. loader resolves exec(path) image lookups;
// pass a *VFSLoader backed by the mounted root directory.
func New(clk clock.Clock, loader proc.ImageLoader) *Kernel {
	return &Kernel{
		procs:   map[proc.Pid]*proc.PCB{},
		sched:   sched.New(clk),
		clk:     clk,
		loader:  loader,
		metrics: metrics.NewNoopMetrics(),
	}
}

// SetMetrics swaps in a non-noop metrics handle.
func (k *Kernel) SetMetrics(m metrics.Handle) {
	k.mu.Lock()
	k.metrics = m
	k.mu.Unlock()
}

// record bumps both the process-local syscall counter task_info reports and
// the kernel-wide metrics counter for syscall number num.
func (k *Kernel) record(p *proc.PCB, num int) {
	p.RecordSyscall(num)
	k.metrics.Syscall(num)
}

// Spawn creates a brand-new, parentless process (the kernel's initial
// process, or a freshly loaded batch program), enqueues its main thread,
// and returns its PCB. The first process any Kernel spawns becomes its
// root process, the reparenting target every later Exit's orphaned
// children are handed to (spec.md:75).
func (k *Kernel) Spawn() *proc.PCB {
	k.mu.Lock()
	defer k.mu.Unlock()
	pid := k.nextPid
	k.nextPid++
	p := proc.NewProcess(pid)
	k.procs[pid] = p
	if k.root == nil {
		k.root = p
	}
	k.sched.Enqueue(p.MainThread())
	return p
}

// Lookup returns the PCB for pid, if it is still live.
func (k *Kernel) Lookup(pid proc.Pid) (*proc.PCB, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.procs[pid]
	return p, ok
}

func (k *Kernel) allocPid() proc.Pid {
	k.mu.Lock()
	defer k.mu.Unlock()
	pid := k.nextPid
	k.nextPid++
	return pid
}

func (k *Kernel) register(p *proc.PCB) {
	k.mu.Lock()
	k.procs[p.Pid] = p
	k.mu.Unlock()
}

func (k *Kernel) unregister(pid proc.Pid) {
	k.mu.Lock()
	delete(k.procs, pid)
	k.mu.Unlock()
}
