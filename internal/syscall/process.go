package syscall

import "github.com/oslab/easykernel/internal/kernel/proc"

// Exit terminates p with the given exit code, marking it a zombie for a
// parent's waitpid to reap, and reparents any of p's surviving children to
// the kernel's root process so they remain reapable rather than becoming
// permanent orphans (spec.md:75).
func (k *Kernel) Exit(p *proc.PCB, exitCode int32) {
	k.record(p, SysExit)
	p.Exit(exitCode)

	k.mu.Lock()
	root := k.root
	k.mu.Unlock()
	if root != nil && root != p {
		p.ReparentChildren(root)
	}
}

// Yield implements sys_yield: suspend th and run whatever else is ready,
// always succeeding.
func (k *Kernel) Yield(th *proc.TCB) int32 {
	k.record(th.Process(), SysYield)
	k.sched.SuspendCurrentAndRunNext(th)
	return 0
}

// GetPid returns p's process id.
func (k *Kernel) GetPid(p *proc.PCB) int64 {
	k.record(p, SysGetPid)
	return int64(p.Pid)
}

// Fork clones parent into a new process, enqueues its thread, and returns
// the child's pid (the value to hand back to the parent; the child's own
// return value is already set to 0 in its cloned trap context by
// proc.PCB.Fork).
func (k *Kernel) Fork(parent *proc.PCB) proc.Pid {
	k.record(parent, SysFork)
	childPid := k.allocPid()
	child := parent.Fork(childPid)
	k.register(child)
	k.sched.Enqueue(child.MainThread())
	return childPid
}

// Exec replaces p's address space with the named image, returning 0 on
// success or -1 if the image couldn't be found.
func (k *Kernel) Exec(p *proc.PCB, path string) int32 {
	k.record(p, SysExec)
	if err := p.Exec(path, k.loader); err != nil {
		return -1
	}
	return 0
}

// Waitpid reaps a zombie child of p (pid == -1 matches any child),
// dropping the kernel's own process-table entry for it in the same step
// the PCB is removed from p's Children, matching the "sole remaining
// strong reference" requirement on the reaped zombie.
func (k *Kernel) Waitpid(p *proc.PCB, pid proc.Pid) (childPid proc.Pid, exitCode int32, status int32) {
	k.record(p, SysWaitpid)
	childPid, exitCode, status = p.Waitpid(pid)
	if status == proc.WaitChildReady {
		k.unregister(childPid)
	}
	return
}
