package sched_test

import (
	"testing"
	"time"

	"github.com/oslab/easykernel/clock"
	"github.com/oslab/easykernel/internal/kernel/proc"
	"github.com/oslab/easykernel/internal/kernel/sched"
	"github.com/stretchr/testify/suite"
)

type SchedTest struct {
	suite.Suite
	sched *sched.Scheduler
	pcb   *proc.PCB
}

func TestSchedSuite(t *testing.T) { suite.Run(t, new(SchedTest)) }

func (t *SchedTest) SetupTest() {
	t.sched = sched.New(&clock.FakeClock{WaitTime: 5 * time.Millisecond})
	t.pcb = proc.NewProcess(1)
}

func (t *SchedTest) TestEnqueueThenNextIsFIFO() {
	a := t.pcb.SpawnThread()
	b := t.pcb.SpawnThread()
	t.sched.Enqueue(a)
	t.sched.Enqueue(b)

	first, ok := t.sched.Next()
	t.Require().True(ok)
	t.Equal(a.Tid, first.Tid)

	second, ok := t.sched.Next()
	t.Require().True(ok)
	t.Equal(b.Tid, second.Tid)

	_, ok = t.sched.Next()
	t.False(ok)
}

func (t *SchedTest) TestSuspendCurrentPushesToTail() {
	a := t.pcb.SpawnThread()
	b := t.pcb.SpawnThread()
	t.sched.Enqueue(a)
	t.sched.SuspendCurrentAndRunNext(b)

	first, ok := t.sched.Next()
	t.Require().True(ok)
	t.Equal(a.Tid, first.Tid, "a suspended thread must go to the tail behind anyone already waiting")

	second, ok := t.sched.Next()
	t.Require().True(ok)
	t.Equal(b.Tid, second.Tid)
}

func (t *SchedTest) TestBlockCurrentDoesNotReenqueue() {
	a := t.pcb.MainThread()
	t.sched.BlockCurrentAndRunNext(a)
	t.Equal(proc.Blocked, a.State())
	t.Equal(0, t.sched.Len())
}

func (t *SchedTest) TestNextMarksThreadRunning() {
	a := t.pcb.SpawnThread()
	t.sched.Enqueue(a)
	t.Equal(proc.Ready, a.State())

	got, ok := t.sched.Next()
	t.Require().True(ok)
	t.Equal(proc.Running, got.State())
}

func (t *SchedTest) TestZeroDurationSleepReturnsPromptlyAndLeavesThreadReady() {
	th := t.pcb.MainThread()
	start := time.Now()
	t.sched.Sleep(th, 0)
	t.Less(time.Since(start), time.Second, "a zero-duration sleep must return promptly")
	t.Equal(proc.Ready, th.State())
}

func (t *SchedTest) TestSetPriorityAlwaysRefuses() {
	t.Equal(int32(-1), t.sched.SetPriority(t.pcb.MainThread(), 5))
}
