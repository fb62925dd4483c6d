package proc

import "sync"

// FileTable is a process's open-file table: a sparse slice where a nil slot
// is a closed descriptor. Entries are opaque to proc — internal/syscall is
// the only package that knows whether a given fd holds a *vfs.Inode, a pipe
// end, or a console handle, keeping proc free of any filesystem import.
type FileTable struct {
	mu      sync.Mutex
	entries []any
}

func newFileTable() *FileTable {
	return &FileTable{}
}

// Install assigns handle the lowest free descriptor number.
func (ft *FileTable) Install(handle any) int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for i, e := range ft.entries {
		if e == nil {
			ft.entries[i] = handle
			return i
		}
	}
	ft.entries = append(ft.entries, handle)
	return len(ft.entries) - 1
}

// Get returns the handle installed at fd, if any.
func (ft *FileTable) Get(fd int) (any, bool) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if fd < 0 || fd >= len(ft.entries) || ft.entries[fd] == nil {
		return nil, false
	}
	return ft.entries[fd], true
}

// Close frees fd, reporting whether it was open.
func (ft *FileTable) Close(fd int) bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if fd < 0 || fd >= len(ft.entries) || ft.entries[fd] == nil {
		return false
	}
	ft.entries[fd] = nil
	return true
}

// clone duplicates the table for Fork: the new table shares the same handle
// values as the parent (both descriptors refer to the same open file),
// exactly like a POSIX fork dup.
func (ft *FileTable) clone() *FileTable {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	c := &FileTable{entries: make([]any, len(ft.entries))}
	copy(c.entries, ft.entries)
	return c
}
