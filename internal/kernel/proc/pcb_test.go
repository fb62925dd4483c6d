package proc_test

import (
	"testing"

	"github.com/oslab/easykernel/internal/kernel/proc"
	"github.com/stretchr/testify/suite"
)

type PCBTest struct {
	suite.Suite
	parent *proc.PCB
}

func TestPCBSuite(t *testing.T) { suite.Run(t, new(PCBTest)) }

func (t *PCBTest) SetupTest() {
	t.parent = proc.NewProcess(1)
}

func (t *PCBTest) TestNewProcessHasOneReadyThread() {
	th := t.parent.MainThread()
	t.Equal(proc.Tid(0), th.Tid)
	t.Equal(proc.Ready, th.State())
}

func (t *PCBTest) TestForkChildReturnsZeroAndInheritsTrap() {
	t.parent.MainThread().Trap.Regs[10] = 0xAAAA
	t.parent.MainThread().Trap.Sepc = 0x1000

	child := t.parent.Fork(2)
	childMain := child.MainThread()
	t.Equal(uint64(0), childMain.Trap.ReturnValue(), "fork must clear a0 in the child")
	t.Equal(uint64(0x1000), childMain.Trap.Sepc, "fork must otherwise duplicate the trap context")
	t.Same(t.parent, child.Parent)
	t.Contains(t.parent.Children, child)
}

func (t *PCBTest) TestForkDeepCopiesAddressSpace() {
	t.Require().NoError(t.parent.Space.Mmap(0, proc.PageSize, 0x3))
	bufs := t.parent.Space.TranslatedBuffer(0, 4)
	copy(bufs[0], []byte("orig"))

	child := t.parent.Fork(2)
	childBufs := child.Space.TranslatedBuffer(0, 4)
	copy(childBufs[0], []byte("chld"))

	parentBufs := t.parent.Space.TranslatedBuffer(0, 4)
	t.Equal([]byte("orig"), parentBufs[0], "the parent's address space must be unaffected by child writes")
}

func (t *PCBTest) TestWaitpidNoChildReturnsMinusOne() {
	_, _, status := t.parent.Waitpid(-1)
	t.Equal(proc.WaitNoChild, status)
}

func (t *PCBTest) TestWaitpidChildNotZombieReturnsMinusTwo() {
	child := t.parent.Fork(2)
	_, _, status := t.parent.Waitpid(child.Pid)
	t.Equal(proc.WaitNotZombie, status)
}

func (t *PCBTest) TestWaitpidAnyReapsZombieAndReturnsItsPid() {
	child := t.parent.Fork(2)
	child.Exit(7)

	pid, exitCode, status := t.parent.Waitpid(-1)
	t.Equal(proc.WaitChildReady, status)
	t.Equal(child.Pid, pid)
	t.Equal(int32(7), exitCode)
	t.Empty(t.parent.Children, "a reaped zombie must be removed from Children")
}

func (t *PCBTest) TestWaitpidSpecificPidIgnoresOtherChildren() {
	childA := t.parent.Fork(2)
	childB := t.parent.Fork(3)
	childB.Exit(9)

	_, _, status := t.parent.Waitpid(childA.Pid)
	t.Equal(proc.WaitNotZombie, status, "childA hasn't exited, unrelated childB's zombie state must not satisfy the wait")

	pid, exitCode, status := t.parent.Waitpid(childB.Pid)
	t.Equal(proc.WaitChildReady, status)
	t.Equal(childB.Pid, pid)
	t.Equal(int32(9), exitCode)
}

func (t *PCBTest) TestExecResetsAddressSpaceAndSyscallCounts() {
	t.parent.RecordSyscall(5)
	t.Require().NoError(t.parent.Space.Mmap(0, proc.PageSize, 0x1))

	loader := fakeLoader{"hello": []byte{1, 2, 3}}
	t.Require().NoError(t.parent.Exec("hello", loader))

	t.Equal(uint64(3), t.parent.Space.Break())
	t.Equal(uint32(0), t.parent.SyscallCounts[5])
	// The prior mmap must be gone: mapping the same page again must succeed.
	t.NoError(t.parent.Space.Mmap(0, proc.PageSize, 0x1))
}

func (t *PCBTest) TestExecMissingImageFails() {
	err := t.parent.Exec("missing", fakeLoader{})
	t.Error(err)
}

type fakeLoader map[string][]byte

func (f fakeLoader) Load(path string) ([]byte, bool) {
	img, ok := f[path]
	return img, ok
}

func (t *PCBTest) TestSbrkMmapMunmapDelegateToAddressSpace() {
	t.Equal(int64(0), t.parent.Sbrk(64))
	t.Equal(int32(0), t.parent.Mmap(proc.PageSize, proc.PageSize, 0x3))
	t.Equal(int32(-1), t.parent.Mmap(proc.PageSize, proc.PageSize, 0x3), "remapping the same page must fail")
	t.Equal(int32(0), t.parent.Munmap(proc.PageSize, proc.PageSize))
	t.Equal(int32(-1), t.parent.Munmap(proc.PageSize, proc.PageSize), "unmapping twice must fail")
}
