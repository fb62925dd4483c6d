package syscall_test

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/oslab/easykernel/clock"
	"github.com/oslab/easykernel/internal/kernel/proc"
	sc "github.com/oslab/easykernel/internal/syscall"
	"github.com/stretchr/testify/suite"
)

type TimeTest struct {
	suite.Suite
	k *sc.Kernel
	p *proc.PCB
}

func TestTimeSuite(t *testing.T) { suite.Run(t, new(TimeTest)) }

func (t *TimeTest) SetupTest() {
	t.k = sc.New(&clock.FakeClock{WaitTime: time.Millisecond}, fakeLoader{})
	t.p = t.k.Spawn()
}

func (t *TimeTest) TestGetTimeWritesNonZeroSeconds() {
	const ptr = 0
	t.Equal(int32(0), t.k.GetTime(t.p, ptr))

	bufs := t.p.Space.TranslatedBuffer(ptr, 16)
	var flat []byte
	for _, b := range bufs {
		flat = append(flat, b...)
	}
	var tv sc.TimeVal
	t.Require().NoError(binary.Read(bytes.NewReader(flat), binary.LittleEndian, &tv))
	t.Greater(tv.Sec, uint64(0))
}

func (t *TimeTest) TestTaskInfoReportsSyscallCounts() {
	t.p.RecordSyscall(3)
	t.p.RecordSyscall(3)

	const ptr = 4096
	t.Equal(int32(0), t.k.TaskInfo(t.p, t.p.MainThread(), ptr))

	size := binary.Size(sc.TaskInfo{})
	bufs := t.p.Space.TranslatedBuffer(ptr, size)
	var flat []byte
	for _, b := range bufs {
		flat = append(flat, b...)
	}
	var ti sc.TaskInfo
	t.Require().NoError(binary.Read(bytes.NewReader(flat), binary.LittleEndian, &ti))
	t.Equal(uint32(2), ti.SyscallTimes[3])
}

func (t *TimeTest) TestGetTimeSplitsAcrossPageBoundary() {
	ptr := uint64(proc.PageSize - 4)
	t.Equal(int32(0), t.k.GetTime(t.p, ptr))
	bufs := t.p.Space.TranslatedBuffer(ptr, 16)
	t.GreaterOrEqual(len(bufs), 2, "a buffer straddling a page boundary must scatter into at least two slices")
}
