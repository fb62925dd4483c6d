// Package proc implements the process/thread model: PCB, TCB, and the
// address space each PCB owns.
package proc

import (
	"fmt"
	"sync"
)

// PageSize is the alignment mmap/munmap/sbrk enforce.
const PageSize = 4096

// AddressSpace is a page-granular stand-in for a real page table: sbrk grows
// a data segment from page 0, mmap/munmap mark extra pages with permission
// bits, and TranslatedBuffer hands back a scatter-gather slice list in place
// of walking real page tables (there is no MMU or trap frame here).
type AddressSpace struct {
	mu    sync.Mutex
	pages map[uint64][]byte
	perm  map[uint64]uint8 // page number -> port bits, mmap'd pages only
	brk   uint64
}

// NewAddressSpace returns an empty address space with a zero break.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{pages: map[uint64][]byte{}, perm: map[uint64]uint8{}}
}

func (a *AddressSpace) page(n uint64) []byte {
	b, ok := a.pages[n]
	if !ok {
		b = make([]byte, PageSize)
		a.pages[n] = b
	}
	return b
}

// LoadImage stages a freshly exec'd program's bytes starting at page 0 and
// sets the break past the end of the image, the same place sys_sbrk would
// find it on the next call.
func (a *AddressSpace) LoadImage(data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for pageNum := uint64(0); int(pageNum)*PageSize < len(data); pageNum++ {
		start := int(pageNum) * PageSize
		end := start + PageSize
		if end > len(data) {
			end = len(data)
		}
		copy(a.page(pageNum), data[start:end])
	}
	a.brk = uint64(len(data))
}

// Sbrk grows or shrinks the data segment by delta bytes and returns the
// break as it was before the change. Shrinking past zero is an underflow.
func (a *AddressSpace) Sbrk(delta int64) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := int64(a.brk) + delta
	if next < 0 {
		return 0, fmt.Errorf("proc: sbrk underflow (brk=%d delta=%d)", a.brk, delta)
	}
	prev := a.brk
	a.brk = uint64(next)
	return prev, nil
}

// Break reports the current program break.
func (a *AddressSpace) Break() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.brk
}

// validatePort matches sys_mmap's exact check: no bits outside the low 3,
// and at least one of them set.
func validatePort(port uint8) error {
	if port&^uint8(0x7) != 0 || port&0x7 == 0 {
		return fmt.Errorf("proc: invalid mmap port bits %#x", port)
	}
	return nil
}

// Mmap maps ceil(len/PageSize) fresh pages at start with the permission
// bits in port (bit 0 = R, bit 1 = W, bit 2 = X). Fails if start isn't
// page-aligned, port is invalid, or any target page is already mapped.
func (a *AddressSpace) Mmap(start, length uint64, port uint8) error {
	if start%PageSize != 0 {
		return fmt.Errorf("proc: mmap start %#x not page-aligned", start)
	}
	if err := validatePort(port); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	n := (length + PageSize - 1) / PageSize
	first := start / PageSize
	for i := uint64(0); i < n; i++ {
		if _, mapped := a.perm[first+i]; mapped {
			return fmt.Errorf("proc: mmap page %d already mapped", first+i)
		}
	}
	for i := uint64(0); i < n; i++ {
		a.perm[first+i] = port & 0x7
	}
	return nil
}

// Munmap unmaps each page covering [start, start+len). Fails if start isn't
// page-aligned or any covered page isn't currently mapped.
func (a *AddressSpace) Munmap(start, length uint64) error {
	if start%PageSize != 0 {
		return fmt.Errorf("proc: munmap start %#x not page-aligned", start)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	n := (length + PageSize - 1) / PageSize
	first := start / PageSize
	for i := uint64(0); i < n; i++ {
		if _, mapped := a.perm[first+i]; !mapped {
			return fmt.Errorf("proc: munmap page %d not mapped", first+i)
		}
	}
	for i := uint64(0); i < n; i++ {
		delete(a.perm, first+i)
		delete(a.pages, first+i)
	}
	return nil
}

// TranslatedBuffer splits [ptr, ptr+length) into per-page slices in place of
// a genuine page-table walk. Pages are allocated lazily, mirroring demand
// paging for the data segment.
func (a *AddressSpace) TranslatedBuffer(ptr uint64, length int) [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out [][]byte
	addr := ptr
	remaining := length
	for remaining > 0 {
		pageNum := addr / PageSize
		offset := addr % PageSize
		chunk := PageSize - offset
		if uint64(remaining) < chunk {
			chunk = uint64(remaining)
		}
		buf := a.page(pageNum)
		out = append(out, buf[offset:offset+chunk])
		addr += chunk
		remaining -= int(chunk)
	}
	return out
}

// Clone deep-copies the address space, the fallback path Fork takes when
// copy-on-write isn't available — which it never is here, since there is no
// MMU to install copy-on-write mappings on.
func (a *AddressSpace) Clone() *AddressSpace {
	a.mu.Lock()
	defer a.mu.Unlock()

	clone := NewAddressSpace()
	clone.brk = a.brk
	for k, v := range a.pages {
		cp := make([]byte, len(v))
		copy(cp, v)
		clone.pages[k] = cp
	}
	for k, v := range a.perm {
		clone.perm[k] = v
	}
	return clone
}
