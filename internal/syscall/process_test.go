package syscall_test

import (
	"testing"
	"time"

	"github.com/oslab/easykernel/clock"
	"github.com/oslab/easykernel/internal/kernel/proc"
	sc "github.com/oslab/easykernel/internal/syscall"
	"github.com/stretchr/testify/suite"
)

type fakeLoader map[string][]byte

func (f fakeLoader) Load(path string) ([]byte, bool) {
	img, ok := f[path]
	return img, ok
}

type ProcessTest struct {
	suite.Suite
	k *sc.Kernel
	p *proc.PCB
}

func TestProcessSuite(t *testing.T) { suite.Run(t, new(ProcessTest)) }

func (t *ProcessTest) SetupTest() {
	t.k = sc.New(&clock.FakeClock{WaitTime: time.Millisecond}, fakeLoader{"prog": []byte{9, 9, 9}})
	t.p = t.k.Spawn()
}

func (t *ProcessTest) TestGetPidReturnsSpawnedPid() {
	t.Equal(int64(t.p.Pid), t.k.GetPid(t.p))
}

func (t *ProcessTest) TestForkReturnsChildPidAndChildReturnsZero() {
	childPid := t.k.Fork(t.p)
	child, ok := t.k.Lookup(childPid)
	t.Require().True(ok)
	t.Equal(uint64(0), child.MainThread().Trap.ReturnValue())
	t.NotEqual(t.p.Pid, childPid)
}

func (t *ProcessTest) TestExecMissingImageFails() {
	t.Equal(int32(-1), t.k.Exec(t.p, "nope"))
}

func (t *ProcessTest) TestExecFoundImageSucceeds() {
	t.Equal(int32(0), t.k.Exec(t.p, "prog"))
	t.Equal(uint64(3), t.p.Space.Break())
}

func (t *ProcessTest) TestWaitpidLifecycle() {
	childPid := t.k.Fork(t.p)
	_, _, status := t.k.Waitpid(t.p, -1)
	t.Equal(proc.WaitNotZombie, status)

	child, _ := t.k.Lookup(childPid)
	t.k.Exit(child, 5)

	pid, exitCode, status := t.k.Waitpid(t.p, -1)
	t.Equal(proc.WaitChildReady, status)
	t.Equal(childPid, pid)
	t.Equal(int32(5), exitCode)

	_, ok := t.k.Lookup(childPid)
	t.False(ok, "a reaped child must be dropped from the kernel's process table")
}

// TestExitReparentsChildrenToRoot exits a process that still has a live
// child and checks the child becomes reapable by the kernel's root process
// (t.p, the first process this Kernel ever spawned) rather than becoming a
// permanent orphan nobody can ever waitpid.
func (t *ProcessTest) TestExitReparentsChildrenToRoot() {
	midPid := t.k.Fork(t.p)
	mid, ok := t.k.Lookup(midPid)
	t.Require().True(ok)

	grandchildPid := t.k.Fork(mid)
	grandchild, ok := t.k.Lookup(grandchildPid)
	t.Require().True(ok)

	t.k.Exit(mid, 0)

	t.Same(t.p, grandchild.Parent, "the grandchild must be reparented to the kernel's root process")

	_, _, status := t.k.Waitpid(t.p, grandchildPid)
	t.Equal(proc.WaitNotZombie, status, "the grandchild isn't a zombie yet, but it must be visible as t.p's child, not unreapable")

	t.k.Exit(grandchild, 7)
	pid, exitCode, status := t.k.Waitpid(t.p, grandchildPid)
	t.Equal(proc.WaitChildReady, status)
	t.Equal(grandchildPid, pid)
	t.Equal(int32(7), exitCode)
}

func (t *ProcessTest) TestYieldSucceeds() {
	t.Equal(int32(0), t.k.Yield(t.p.MainThread()))
}
