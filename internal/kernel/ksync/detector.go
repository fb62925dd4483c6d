package ksync

import (
	"sync"

	"github.com/oslab/easykernel/internal/metrics"
)

// ErrDeadlockAvoided is the sentinel sys_mutex_lock/sys_semaphore_down
// return in place of blocking, so callers can assert the exact code.
const ErrDeadlockAvoided int32 = -0xDEAD

// bankersTable holds one resource class's Available/Allocation/Need
// matrices, keyed by thread id and resource id.
type bankersTable struct {
	available  map[int]uint32
	allocation map[int]map[int]uint32 // tid -> resource id -> held count
	need       map[int]map[int]uint32 // tid -> resource id -> outstanding request
}

func newBankersTable() *bankersTable {
	return &bankersTable{
		available:  map[int]uint32{},
		allocation: map[int]map[int]uint32{},
		need:       map[int]map[int]uint32{},
	}
}

func (t *bankersTable) ensureThread(tid int) {
	if _, ok := t.allocation[tid]; !ok {
		t.allocation[tid] = map[int]uint32{}
	}
	if _, ok := t.need[tid]; !ok {
		t.need[tid] = map[int]uint32{}
	}
}

func (t *bankersTable) setAvailable(id int, count uint32) {
	t.available[id] = count
}

// applyRequest books a request of count units of resource id for tid: if
// the units are on hand it allocates them immediately (returning true),
// otherwise it records them as outstanding need (returning false). Either
// way the table now reflects the request having been made, ahead of any
// safety check.
func (t *bankersTable) applyRequest(tid, id int, count uint32) (immediate bool) {
	t.ensureThread(tid)
	if t.available[id] >= count {
		t.available[id] -= count
		t.allocation[tid][id] += count
		return true
	}
	t.need[tid][id] += count
	return false
}

// rollback undoes exactly the effect applyRequest had, used when a request
// is refused for safety.
func (t *bankersTable) rollback(tid, id int, count uint32, immediate bool) {
	if immediate {
		t.available[id] += count
		t.allocation[tid][id] -= count
		return
	}
	t.need[tid][id] -= count
}

// release returns count units of resource id held by tid to Available.
func (t *bankersTable) release(tid, id int, count uint32) {
	t.ensureThread(tid)
	if t.allocation[tid][id] < count {
		count = t.allocation[tid][id]
	}
	t.allocation[tid][id] -= count
	t.available[id] += count
}

// transfer moves count units of resource id directly from fromTid's
// Allocation to toTid's, converting toTid's outstanding Need by the same
// amount. Available is left untouched: this is the "unit is transferred"
// hand-off to a woken waiter, not a true release.
func (t *bankersTable) transfer(fromTid, toTid, id int, count uint32) {
	t.ensureThread(fromTid)
	t.ensureThread(toTid)

	fromCount := count
	if t.allocation[fromTid][id] < fromCount {
		fromCount = t.allocation[fromTid][id]
	}
	t.allocation[fromTid][id] -= fromCount

	toCount := count
	if t.need[toTid][id] < toCount {
		toCount = t.need[toTid][id]
	}
	t.need[toTid][id] -= toCount
	t.allocation[toTid][id] += toCount
}

// isSafe runs the classic Banker's safety algorithm: can every thread's
// outstanding Need eventually be satisfied in some order, given Available
// and what each thread already holds?
func (t *bankersTable) isSafe() bool {
	work := make(map[int]uint32, len(t.available))
	for id, v := range t.available {
		work[id] = v
	}
	finished := make(map[int]bool, len(t.allocation))
	for tid := range t.allocation {
		finished[tid] = false
	}

	for {
		progressed := false
		for tid, needRow := range t.need {
			if finished[tid] {
				continue
			}
			ok := true
			for id, n := range needRow {
				if n > work[id] {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			for id, a := range t.allocation[tid] {
				work[id] += a
			}
			finished[tid] = true
			progressed = true
		}
		if !progressed {
			break
		}
	}

	for _, ok := range finished {
		if !ok {
			return false
		}
	}
	return true
}

// Detector runs Banker's-algorithm deadlock avoidance over a process's
// mutexes and semaphores, kept as two separate resource classes since a
// thread's mutex waits and semaphore waits are never fungible with each
// other.
type Detector struct {
	mu      sync.Mutex
	enabled bool
	mutex   *bankersTable
	sema    *bankersTable
	metrics metrics.Handle
}

// NewDetector returns a Detector with empty resource tables and detection
// disabled; a PCB enables it via the enable_deadlock_detect syscall.
func NewDetector() *Detector {
	return &Detector{mutex: newBankersTable(), sema: newBankersTable(), metrics: metrics.NewNoopMetrics()}
}

// SetMetrics swaps in a non-noop metrics handle, so every refused request
// after this call is also counted process-wide.
func (d *Detector) SetMetrics(m metrics.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metrics = m
}

// SetEnabled toggles whether Request* calls actually refuse unsafe states.
// Bookkeeping is maintained unconditionally either way.
func (d *Detector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Enabled reports the current detection setting.
func (d *Detector) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// RegisterMutex records a freshly created mutex id as one unit of
// available resource.
func (d *Detector) RegisterMutex(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mutex.setAvailable(id, 1)
}

// RegisterSemaphore records a freshly created semaphore id with its
// initial resource count.
func (d *Detector) RegisterSemaphore(id int, count uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sema.setAvailable(id, count)
}

// RequestMutex books tid's request for mutex id and, if detection is
// enabled, refuses (rolling the bookkeeping back) when granting it would
// leave the process unsafe.
func (d *Detector) RequestMutex(tid, id int) bool {
	return d.request(d.mutex, tid, id, 1)
}

// ReleaseMutex returns mutex id from tid to Available.
func (d *Detector) ReleaseMutex(tid, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mutex.release(tid, id, 1)
}

// TransferMutex hands mutex id directly from fromTid to a waiter woken by
// the release, toTid: toTid's Need converts to Allocation and Available is
// left unchanged, per spec.md:95 — distinct from ReleaseMutex's true-release
// accounting, used when the release found nobody waiting.
func (d *Detector) TransferMutex(fromTid, toTid, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mutex.transfer(fromTid, toTid, id, 1)
}

// RequestSemaphore books tid's request for count units of semaphore id.
func (d *Detector) RequestSemaphore(tid, id int, count uint32) bool {
	return d.request(d.sema, tid, id, count)
}

// ReleaseSemaphore returns count units of semaphore id from tid.
func (d *Detector) ReleaseSemaphore(tid, id int, count uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sema.release(tid, id, count)
}

// TransferSemaphore hands count units of semaphore id directly from fromTid
// to a waiter woken by the release, toTid: toTid's Need converts to
// Allocation and Available is left unchanged, per spec.md:95 — distinct
// from ReleaseSemaphore's true-release accounting, used when the release
// found nobody waiting.
func (d *Detector) TransferSemaphore(fromTid, toTid, id int, count uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sema.transfer(fromTid, toTid, id, count)
}

// AvailableMutex reports the current Available count for mutex id. Mainly
// useful to tests that need to distinguish a true release (Available grows)
// from a hand-off transfer (Available unchanged).
func (d *Detector) AvailableMutex(id int) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mutex.available[id]
}

// AvailableSemaphore reports the current Available count for semaphore id.
func (d *Detector) AvailableSemaphore(id int) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sema.available[id]
}

func (d *Detector) request(table *bankersTable, tid, id int, count uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	immediate := table.applyRequest(tid, id, count)
	if !d.enabled {
		return true
	}
	if table.isSafe() {
		return true
	}
	table.rollback(tid, id, count, immediate)
	d.metrics.DeadlockVeto()
	return false
}
