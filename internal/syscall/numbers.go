package syscall

// Syscall numbers. These are this kernel's own assignment; nothing in the
// surrounding toolchain depends on particular values, only on each syscall
// having a stable one for metrics and tracing.
const (
	SysExit = iota
	SysYield
	SysGetPid
	SysFork
	SysExec
	SysWaitpid
	SysGetTime
	SysTaskInfo
	SysMmap
	SysMunmap
	SysSbrk
	SysSleep
	SysMutexCreate
	SysMutexLock
	SysMutexUnlock
	SysSemaphoreCreate
	SysSemaphoreDown
	SysSemaphoreUp
	SysCondvarCreate
	SysCondvarWait
	SysCondvarSignal
	SysEnableDeadlockDetect
)
