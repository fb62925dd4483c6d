package proc

import (
	"fmt"
	"sync"
	"time"

	"github.com/oslab/easykernel/internal/kernel/ksync"
)

// Pid identifies a process.
type Pid int

// MaxSyscallNum bounds TaskInfo.SyscallCounts: the widest syscall number
// this kernel assigns, plus headroom.
const MaxSyscallNum = 500

// Waitpid result codes.
const (
	WaitNoChild    int32 = -1
	WaitNotZombie  int32 = -2
	WaitChildReady int32 = 0
)

// ImageLoader resolves an exec path to a loaded program image. proc stays
// free of any filesystem import; internal/syscall supplies an
// implementation backed by internal/vfs.
type ImageLoader interface {
	Load(path string) (image []byte, ok bool)
}

// PCB is a process control block: address space, file table, process tree
// links, threads, and the per-resource-class Banker's bookkeeping every
// mutex/semaphore acquire and release runs through.
//
// The inner mutex serializes everything below it. Callers must drop it
// before yielding or blocking, which is why Lock/Unlock-style methods here
// only ever protect bookkeeping, never a call into a primitive that might
// park the calling goroutine.
type PCB struct {
	mu sync.Mutex

	Pid   Pid
	Space *AddressSpace
	Files *FileTable

	Parent   *PCB // weak: never used to keep a PCB alive
	Children []*PCB

	Threads []*TCB
	nextTid Tid

	ExitCode int32
	Zombie   bool

	// Sparse sequences: a nil slot is a freed id.
	Mutexes              []ksync.Mutex
	Semaphores           []*ksync.Semaphore
	semaphoreCounts      []uint32 // initial counts, needed to re-register on Fork
	Condvars             []*ksync.Condvar
	Detector             *ksync.Detector
	EnableDeadlockDetect bool // mirrors Detector.Enabled()

	StartedAt     time.Time
	SyscallCounts [MaxSyscallNum]uint32
}

// NewProcess returns a fresh PCB with one Ready thread and no parent.
func NewProcess(pid Pid) *PCB {
	p := &PCB{
		Pid:       pid,
		Space:     NewAddressSpace(),
		Files:     newFileTable(),
		Detector:  ksync.NewDetector(),
		StartedAt: time.Now(),
	}
	p.spawnThreadLocked()
	return p
}

func (p *PCB) spawnThreadLocked() *TCB {
	tid := p.nextTid
	p.nextTid++
	t := newTCB(tid)
	t.bindProcess(p)
	p.Threads = append(p.Threads, t)
	return t
}

// MainThread returns the process's first thread.
func (p *PCB) MainThread() *TCB {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Threads[0]
}

// SpawnThread adds an additional Ready thread to the process.
func (p *PCB) SpawnThread() *TCB {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spawnThreadLocked()
}

// RecordSyscall bumps the per-syscall counter TaskInfo reports.
func (p *PCB) RecordSyscall(num int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if num >= 0 && num < MaxSyscallNum {
		p.SyscallCounts[num]++
	}
}

// RunningSince reports how long the process has been alive, the
// RunningMsSinceStart component of TaskInfo.
func (p *PCB) RunningSince() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.StartedAt)
}

// Fork clones this PCB into a new process: the address space is
// deep-copied (no MMU here to install copy-on-write with), the file table
// is copied with its entries sharing the parent's handles, the
// child inherits the parent's current set of mutexes/semaphores/condvars
// and a fresh Banker's table re-registered against them, and the child's
// sole thread starts from a copy of the parent's main thread's trap context with
// the return-value register cleared — the "fork returns 0 in the child"
// convention.
func (p *PCB) Fork(childPid Pid) *PCB {
	p.mu.Lock()
	defer p.mu.Unlock()

	child := &PCB{
		Pid:       childPid,
		Space:     p.Space.Clone(),
		Files:     p.Files.clone(),
		Parent:    p,
		Detector:  ksync.NewDetector(),
		StartedAt: time.Now(),
	}
	child.Mutexes = append([]ksync.Mutex(nil), p.Mutexes...)
	child.Semaphores = append([]*ksync.Semaphore(nil), p.Semaphores...)
	child.semaphoreCounts = append([]uint32(nil), p.semaphoreCounts...)
	child.Condvars = append([]*ksync.Condvar(nil), p.Condvars...)
	for id, m := range child.Mutexes {
		if m != nil {
			child.Detector.RegisterMutex(id)
		}
	}
	for id, s := range child.Semaphores {
		if s != nil {
			child.Detector.RegisterSemaphore(id, child.semaphoreCounts[id])
		}
	}
	child.Detector.SetEnabled(p.Detector.Enabled())
	child.EnableDeadlockDetect = p.EnableDeadlockDetect

	parentMain := p.Threads[0]
	childThread := child.spawnThreadLocked()
	childThread.Trap = parentMain.Trap
	childThread.Trap.SetReturnValue(0)

	p.Children = append(p.Children, child)
	return child
}

// Exec replaces this process's address space with the named image and
// resets every per-process resource-accounting table to fresh, per spec
// §4.5. Returns an error if the image can't be found, the −1 case.
func (p *PCB) Exec(path string, loader ImageLoader) error {
	image, ok := loader.Load(path)
	if !ok {
		return fmt.Errorf("proc: exec image %q not found", path)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.Space = NewAddressSpace()
	p.Space.LoadImage(image)

	p.Mutexes = nil
	p.Semaphores = nil
	p.semaphoreCounts = nil
	p.Condvars = nil
	p.Detector = ksync.NewDetector()
	p.EnableDeadlockDetect = false
	p.SyscallCounts = [MaxSyscallNum]uint32{}
	p.StartedAt = time.Now()

	p.Threads = p.Threads[:1]
	p.Threads[0].Trap = TrapContext{}
	p.Threads[0].SetState(Ready)
	return nil
}

// Exit marks the process a zombie with the given exit code and its
// threads Exited. Reparenting orphaned children to the root process (spec
// §4.5 / spec.md:75) is the kernel layer's job (internal/syscall's
// Kernel.Exit), not proc's — see ReparentChildren.
func (p *PCB) Exit(exitCode int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ExitCode = exitCode
	p.Zombie = true
	for _, t := range p.Threads {
		t.SetState(Exited)
	}
}

// ReparentChildren moves every live child of p to newParent, clearing p's
// own Children. The kernel layer calls this right after Exit so a process's
// children stay reapable by the root process instead of becoming orphans
// nobody can ever waitpid, matching spec.md:75.
func (p *PCB) ReparentChildren(newParent *PCB) {
	p.mu.Lock()
	children := p.Children
	p.Children = nil
	p.mu.Unlock()

	for _, c := range children {
		c.Reparent(newParent)
	}
}

// Reparent makes newParent this PCB's parent and appends it to newParent's
// own Children list.
func (p *PCB) Reparent(newParent *PCB) {
	p.mu.Lock()
	p.Parent = newParent
	p.mu.Unlock()

	newParent.mu.Lock()
	newParent.Children = append(newParent.Children, p)
	newParent.mu.Unlock()
}

// Waitpid reaps a zombie child. pid == -1 matches any child. The zombie
// child removed from Children here must be this PCB's only remaining
// strong reference to it — the kernel's global process table
// (internal/syscall's Kernel.Waitpid) drops its entry in the same step.
func (p *PCB) Waitpid(pid Pid) (childPid Pid, exitCode int32, status int32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.Children) == 0 {
		return 0, 0, WaitNoChild
	}

	matchIdx := -1
	anyMatch := false
	for i, c := range p.Children {
		if pid != -1 && c.Pid != pid {
			continue
		}
		anyMatch = true
		c.mu.Lock()
		zombie := c.Zombie
		c.mu.Unlock()
		if zombie {
			matchIdx = i
			break
		}
	}
	if matchIdx == -1 {
		if anyMatch {
			return 0, 0, WaitNotZombie
		}
		return 0, 0, WaitNoChild
	}

	c := p.Children[matchIdx]
	p.Children = append(p.Children[:matchIdx], p.Children[matchIdx+1:]...)
	c.mu.Lock()
	ec := c.ExitCode
	c.mu.Unlock()
	return c.Pid, ec, WaitChildReady
}

// Sbrk adjusts the data segment by delta bytes, returning the previous
// break or -1 on underflow.
func (p *PCB) Sbrk(delta int64) int64 {
	prev, err := p.Space.Sbrk(delta)
	if err != nil {
		return -1
	}
	return int64(prev)
}

// Mmap maps len bytes at start with the given port permission bits,
// returning 0 on success or -1 on any validation failure.
func (p *PCB) Mmap(start, length uint64, port uint8) int32 {
	if err := p.Space.Mmap(start, length, port); err != nil {
		return -1
	}
	return 0
}

// Munmap unmaps len bytes at start, returning 0 on success or -1 if any
// covered page wasn't mapped.
func (p *PCB) Munmap(start, length uint64) int32 {
	if err := p.Space.Munmap(start, length); err != nil {
		return -1
	}
	return 0
}
