// Package vfs implements the virtual inode layer: a handle onto one
// DiskInode record that knows how to interpret its content either as a
// directory's packed DirEntry stream or as a file's byte stream. Every
// exported method acquires the filesystem lock for its whole operation.
package vfs

import (
	"encoding/binary"

	"github.com/oslab/easykernel/internal/blockdev"
	"github.com/oslab/easykernel/internal/disklayout"
	"github.com/oslab/easykernel/internal/efs"
)

// cacheIO adapts a block cache to disklayout.BlockIO, bridging the
// dependency-inversion boundary disklayout declared to stay decoupled from
// blockcache.
type cacheIO struct {
	fs *efs.FileSystem
}

func (c cacheIO) ReadPointers(blockID uint64) [blockdev.BlockSize / 4]uint32 {
	var out [blockdev.BlockSize / 4]uint32
	c.fs.Cache().Get(blockID).Read(0, func(buf []byte) {
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
		}
	})
	return out
}

func (c cacheIO) WritePointer(blockID uint64, idx int, value uint32) {
	c.fs.Cache().Get(blockID).Modify(0, func(buf []byte) {
		binary.LittleEndian.PutUint32(buf[idx*4:idx*4+4], value)
	})
}

func (c cacheIO) ReadData(blockID uint64, blockOffset int, buf []byte) int {
	n := 0
	c.fs.Cache().Get(blockID).Read(blockOffset, func(src []byte) {
		n = copy(buf, src)
	})
	return n
}

func (c cacheIO) WriteData(blockID uint64, blockOffset int, buf []byte) {
	c.fs.Cache().Get(blockID).Modify(blockOffset, func(dst []byte) {
		copy(dst, buf)
	})
}

var _ disklayout.BlockIO = cacheIO{}

// Inode is a handle onto one DiskInode record.
type Inode struct {
	id          uint32
	blockID     uint64
	blockOffset int
	fs          *efs.FileSystem
	io          cacheIO
}

func newInode(id uint32, fs *efs.FileSystem) *Inode {
	blockID, offset := fs.GetDiskInodePos(id)
	return &Inode{id: id, blockID: blockID, blockOffset: offset, fs: fs, io: cacheIO{fs: fs}}
}

// Root returns a handle onto the root directory of fs.
func Root(fs *efs.FileSystem) *Inode {
	return newInode(efs.RootInodeID, fs)
}

// ID returns the inode id this handle names.
func (n *Inode) ID() uint32 { return n.id }

func (n *Inode) readDisk(f func(*disklayout.DiskInode)) {
	n.fs.Cache().Get(n.blockID).Read(n.blockOffset, func(buf []byte) {
		d := disklayout.DecodeDiskInode(buf)
		f(&d)
	})
}

func (n *Inode) modifyDisk(f func(*disklayout.DiskInode)) {
	n.fs.Cache().Get(n.blockID).Modify(n.blockOffset, func(buf []byte) {
		d := disklayout.DecodeDiskInode(buf)
		f(&d)
		d.Encode(buf)
	})
}

// IsDir reports whether this inode names a directory.
func (n *Inode) IsDir() bool {
	n.fs.Lock()
	defer n.fs.Unlock()
	var isDir bool
	n.readDisk(func(d *disklayout.DiskInode) { isDir = d.IsDir() })
	return isDir
}

// Links reports the current hard-link count.
func (n *Inode) Links() uint16 {
	n.fs.Lock()
	defer n.fs.Unlock()
	var links uint16
	n.readDisk(func(d *disklayout.DiskInode) { links = d.Links })
	return links
}

// Size reports the current byte size of a file, or the packed directory
// entry stream's length for a directory.
func (n *Inode) Size() uint32 {
	n.fs.Lock()
	defer n.fs.Unlock()
	var size uint32
	n.readDisk(func(d *disklayout.DiskInode) { size = d.Size })
	return size
}

// findID scans this directory's entries for name. Caller must hold the
// filesystem lock.
func (n *Inode) findID(name string) (uint32, bool) {
	var id uint32
	var found bool
	n.readDisk(func(d *disklayout.DiskInode) {
		if !d.IsDir() {
			return
		}
		count := int(d.Size) / disklayout.DirEntrySize
		buf := make([]byte, disklayout.DirEntrySize)
		for i := 0; i < count; i++ {
			d.ReadAt(i*disklayout.DirEntrySize, buf, n.io)
			e := disklayout.DecodeDirEntry(buf)
			if e.NameString() == name {
				id, found = e.Inum, true
				return
			}
		}
	})
	return id, found
}

// Find resolves name within this directory.
func (n *Inode) Find(name string) (*Inode, bool) {
	n.fs.Lock()
	defer n.fs.Unlock()
	id, ok := n.findID(name)
	if !ok {
		return nil, false
	}
	return newInode(id, n.fs), true
}

// FindID resolves name within this directory to a raw inode id, without
// constructing an Inode handle.
func (n *Inode) FindID(name string) (uint32, bool) {
	n.fs.Lock()
	defer n.fs.Unlock()
	return n.findID(name)
}

// appendDirEntryLocked grows this directory's content by one DirEntry and
// writes it at the end. Caller must hold the filesystem lock.
func (n *Inode) appendDirEntryLocked(name string, inum uint32) {
	entry := disklayout.NewDirEntry(name, inum)
	var buf [disklayout.DirEntrySize]byte
	entry.Encode(buf[:])

	n.modifyDisk(func(d *disklayout.DiskInode) {
		offset := int(d.Size)
		newSize := d.Size + disklayout.DirEntrySize
		if needed := d.BlocksNumNeeded(newSize); needed > 0 {
			blocks := make([]uint32, needed)
			for i := range blocks {
				blocks[i] = uint32(n.fs.AllocData())
			}
			d.IncreaseSize(newSize, blocks, n.io)
		}
		d.WriteAt(offset, buf[:], n.io)
	})
}

// removeDirEntryLocked removes the entry named name by swapping the last
// entry into its slot and shrinking Size by one DirEntry; the directory's
// already-allocated data blocks are left in place for reuse by future
// entries rather than deallocated: a deliberate no-shrink-on-delete
// simplification for directory content. Caller must hold the filesystem
// lock.
func (n *Inode) removeDirEntryLocked(name string) bool {
	removed := false
	n.modifyDisk(func(d *disklayout.DiskInode) {
		count := int(d.Size) / disklayout.DirEntrySize
		buf := make([]byte, disklayout.DirEntrySize)
		target := -1
		for i := 0; i < count; i++ {
			d.ReadAt(i*disklayout.DirEntrySize, buf, n.io)
			e := disklayout.DecodeDirEntry(buf)
			if e.NameString() == name {
				target = i
				break
			}
		}
		if target < 0 {
			return
		}
		if target != count-1 {
			var last [disklayout.DirEntrySize]byte
			d.ReadAt((count-1)*disklayout.DirEntrySize, last[:], n.io)
			d.WriteAt(target*disklayout.DirEntrySize, last[:], n.io)
		}
		d.Size -= disklayout.DirEntrySize
		removed = true
	})
	return removed
}

// Create makes a new file or (if isDir) directory entry named name inside
// this directory. It returns (nil, false) on a name collision; allocator
// exhaustion during AllocInode/AllocData is fatal.
func (n *Inode) Create(name string, isDir bool) (*Inode, bool) {
	n.fs.Lock()
	defer n.fs.Unlock()

	if _, ok := n.findID(name); ok {
		return nil, false
	}

	id := n.fs.AllocInode()
	child := newInode(id, n.fs)

	typ := disklayout.TypeFile
	if isDir {
		typ = disklayout.TypeDirectory
	}
	fresh := disklayout.DiskInode{Type: typ, Links: 1}
	n.fs.Cache().Get(child.blockID).Modify(child.blockOffset, func(buf []byte) {
		fresh.Encode(buf)
	})

	n.appendDirEntryLocked(name, id)
	return child, true
}

// Ls lists the names of every entry in this directory.
func (n *Inode) Ls() []string {
	n.fs.Lock()
	defer n.fs.Unlock()

	var names []string
	n.readDisk(func(d *disklayout.DiskInode) {
		count := int(d.Size) / disklayout.DirEntrySize
		buf := make([]byte, disklayout.DirEntrySize)
		for i := 0; i < count; i++ {
			d.ReadAt(i*disklayout.DirEntrySize, buf, n.io)
			e := disklayout.DecodeDirEntry(buf)
			names = append(names, e.NameString())
		}
	})
	return names
}

// ReadAt reads into buf starting at offset, clamped to the file's size.
func (n *Inode) ReadAt(offset int, buf []byte) int {
	n.fs.Lock()
	defer n.fs.Unlock()

	var read int
	n.readDisk(func(d *disklayout.DiskInode) { read = d.ReadAt(offset, buf, n.io) })
	return read
}

// WriteAt writes buf starting at offset, growing the file first if needed.
func (n *Inode) WriteAt(offset int, buf []byte) int {
	n.fs.Lock()
	defer n.fs.Unlock()

	var written int
	n.modifyDisk(func(d *disklayout.DiskInode) {
		end := uint32(offset + len(buf))
		if end > d.Size {
			if needed := d.BlocksNumNeeded(end); needed > 0 {
				blocks := make([]uint32, needed)
				for i := range blocks {
					blocks[i] = uint32(n.fs.AllocData())
				}
				d.IncreaseSize(end, blocks, n.io)
			}
		}
		written = d.WriteAt(offset, buf, n.io)
	})
	return written
}

// Clear truncates this inode's content to zero bytes, deallocating every
// data and indirect-pointer block it owned.
func (n *Inode) Clear() {
	n.fs.Lock()
	defer n.fs.Unlock()
	n.clearLocked()
}

func (n *Inode) clearLocked() {
	n.modifyDisk(func(d *disklayout.DiskInode) {
		freed := d.ClearSize(n.io)
		for _, b := range freed {
			n.fs.DeallocData(uint64(b))
		}
	})
}

// Link adds a new directory entry named name pointing at target's inode,
// bumping target's link count. It returns false on a name collision: no
// cross-inode aliasing happens without an explicit Links bump.
func (n *Inode) Link(name string, target *Inode) bool {
	n.fs.Lock()
	defer n.fs.Unlock()

	if _, ok := n.findID(name); ok {
		return false
	}
	target.modifyDisk(func(d *disklayout.DiskInode) { d.Links++ })
	n.appendDirEntryLocked(name, target.id)
	return true
}

// Unlink removes the directory entry named name. If it was the last hard
// link (Links reaches 0), the target inode's content is cleared and the
// inode slot itself is freed. Returns false if name does not exist.
func (n *Inode) Unlink(name string) bool {
	n.fs.Lock()
	defer n.fs.Unlock()

	id, ok := n.findID(name)
	if !ok {
		return false
	}

	target := newInode(id, n.fs)
	var remaining uint16
	target.modifyDisk(func(d *disklayout.DiskInode) {
		if d.Links > 0 {
			d.Links--
		}
		remaining = d.Links
	})

	if remaining == 0 {
		target.clearLocked()
		n.fs.DeallocInode(id)
	}

	n.removeDirEntryLocked(name)
	return true
}
