package syscall

import "github.com/oslab/easykernel/internal/vfs"

// VFSLoader resolves exec(path) image lookups against a mounted
// filesystem's root directory. It is the concrete proc.ImageLoader
// internal/kernel/proc is built against without importing internal/vfs
// itself.
type VFSLoader struct {
	root *vfs.Inode
}

// NewVFSLoader returns a loader that resolves paths as top-level entries
// of root (this kernel has no nested-directory path parsing; every
// program lives directly under the root directory).
func NewVFSLoader(root *vfs.Inode) *VFSLoader {
	return &VFSLoader{root: root}
}

// Load implements proc.ImageLoader.
func (l *VFSLoader) Load(path string) ([]byte, bool) {
	inode, ok := l.root.Find(path)
	if !ok {
		return nil, false
	}
	buf := make([]byte, inode.Size())
	n := inode.ReadAt(0, buf)
	if n < 0 {
		return nil, false
	}
	return buf[:n], true
}
