package syscall

import (
	"bytes"
	"encoding/binary"

	"github.com/oslab/easykernel/internal/kernel/proc"
)

// TimeVal mirrors get_time's {sec, usec} result.
type TimeVal struct {
	Sec  uint64
	Usec uint64
}

// TaskInfo mirrors task_info's result: current thread status, the
// per-syscall invocation counters, and milliseconds since the process
// started.
type TaskInfo struct {
	Status       uint32
	SyscallTimes [proc.MaxSyscallNum]uint32
	RunningMs    uint64
}

func scatterCopy(dst [][]byte, src []byte) {
	start := 0
	for _, d := range dst {
		n := copy(d, src[start:])
		start += n
	}
}

func encode(v any) []byte {
	buf := new(bytes.Buffer)
	// Every field of TimeVal/TaskInfo is a fixed-width unsigned integer or
	// an array of them, so binary.Write can never fail here.
	_ = binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

// GetTime writes {sec, usec} for the current time to the user buffer at
// ptr, scattered across page boundaries exactly as TranslatedBuffer
// reports them.
func (k *Kernel) GetTime(p *proc.PCB, ptr uint64) int32 {
	k.record(p, SysGetTime)
	now := k.clk.Now()
	tv := TimeVal{Sec: uint64(now.Unix()), Usec: uint64(now.Nanosecond() / 1000)}
	data := encode(tv)
	scatterCopy(p.Space.TranslatedBuffer(ptr, len(data)), data)
	return 0
}

// TaskInfo writes the calling thread's status, this process's per-syscall
// counters, and its running time in milliseconds to the user buffer at
// ptr.
func (k *Kernel) TaskInfo(p *proc.PCB, th *proc.TCB, ptr uint64) int32 {
	k.record(p, SysTaskInfo)
	ti := TaskInfo{
		Status:    uint32(th.State()),
		RunningMs: uint64(p.RunningSince().Milliseconds()),
	}
	ti.SyscallTimes = p.SyscallCounts
	data := encode(ti)
	scatterCopy(p.Space.TranslatedBuffer(ptr, len(data)), data)
	return 0
}
