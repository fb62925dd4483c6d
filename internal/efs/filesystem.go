// Package efs implements the filesystem object: it owns the two bitmap
// allocators (inode slots, data blocks) and the on-disk layout geometry, and
// maps an inode-id to its (block_id, offset) position. The overall
// everything-owned-by-one-config-object shape follows the block-cache-owning
// server config pattern this codebase uses elsewhere.
package efs

import (
	"fmt"
	"sync"

	"github.com/oslab/easykernel/internal/bitmap"
	"github.com/oslab/easykernel/internal/blockcache"
	"github.com/oslab/easykernel/internal/blockdev"
	"github.com/oslab/easykernel/internal/disklayout"
)

// RootInodeID is the well-known inode id of the root directory.
const RootInodeID uint32 = 0

// FileSystem owns the allocators and layout metadata for one mounted image.
// A single mutex serializes every filesystem operation, a deliberate
// simplicity choice; the locking order is fs-mutex -> block-cache-mutex ->
// frame-mutex.
type FileSystem struct {
	mu sync.Mutex

	dev   blockdev.Device
	cache *blockcache.Cache
	sb    disklayout.Superblock

	inodeBitmap *bitmap.Allocator
	dataBitmap  *bitmap.Allocator

	inodeAreaStart uint64
	dataAreaStart  uint64
}

// Lock acquires the filesystem-wide lock. A handler that holds it MUST NOT
// block on anything else that could re-enter the filesystem.
func (fs *FileSystem) Lock() { fs.mu.Lock() }

// Unlock releases the filesystem-wide lock.
func (fs *FileSystem) Unlock() { fs.mu.Unlock() }

// Device returns the underlying block device. Nothing in this module calls
// it; internal/vfs reaches blocks through Cache().
func (fs *FileSystem) Device() blockdev.Device { return fs.dev }

// Create formats a fresh filesystem image of totalBlocks blocks, sized to
// devote inodeBitmapBlocks/inodeAreaBlocks/dataBitmapBlocks/dataAreaBlocks
// to each region, and initializes the root directory (inode 0).
func Create(dev blockdev.Device, cacheCapacity int, totalBlocks, inodeBitmapBlocks, inodeAreaBlocks, dataBitmapBlocks, dataAreaBlocks uint32) (*FileSystem, error) {
	sb := disklayout.Superblock{
		Magic:             disklayout.Magic,
		TotalBlocks:       totalBlocks,
		InodeBitmapBlocks: inodeBitmapBlocks,
		InodeAreaBlocks:   inodeAreaBlocks,
		DataBitmapBlocks:  dataBitmapBlocks,
		DataAreaBlocks:    dataAreaBlocks,
	}
	if !sb.Valid() {
		return nil, fmt.Errorf("efs: layout does not fit in %d blocks", totalBlocks)
	}

	cache := blockcache.New(dev, cacheCapacity)

	fs := &FileSystem{
		dev:            dev,
		cache:          cache,
		sb:             sb,
		inodeAreaStart: 1 + uint64(inodeBitmapBlocks),
	}
	fs.dataAreaStart = fs.inodeAreaStart + uint64(inodeAreaBlocks) + uint64(dataBitmapBlocks)
	fs.inodeBitmap = bitmap.New(cache, 1, uint64(inodeBitmapBlocks))
	fs.dataBitmap = bitmap.New(cache, fs.inodeAreaStart+uint64(inodeAreaBlocks), uint64(dataBitmapBlocks))

	frame := cache.Get(0)
	frame.Modify(0, func(buf []byte) {
		var raw [blockdev.BlockSize]byte
		sb.Encode(&raw)
		copy(buf, raw[:])
	})

	rootID, ok := fs.inodeBitmap.Alloc()
	if !ok || rootID != uint64(RootInodeID) {
		return nil, fmt.Errorf("efs: failed to allocate root inode (got %d, ok=%v)", rootID, ok)
	}
	blockID, offset := fs.GetDiskInodePos(RootInodeID)
	root := disklayout.DiskInode{Type: disklayout.TypeDirectory, Links: 1}
	cache.Get(blockID).Modify(offset, func(buf []byte) { root.Encode(buf) })

	cache.SyncAll()
	return fs, nil
}

// Open mounts an existing image, validating the superblock's magic.
func Open(dev blockdev.Device, cacheCapacity int) (*FileSystem, error) {
	cache := blockcache.New(dev, cacheCapacity)

	var sb disklayout.Superblock
	frame := cache.Get(0)
	frame.Read(0, func(buf []byte) {
		var raw [blockdev.BlockSize]byte
		copy(raw[:], buf[:blockdev.BlockSize])
		sb = disklayout.DecodeSuperblock(&raw)
	})
	if !sb.Valid() {
		return nil, fmt.Errorf("efs: invalid superblock (magic=%#x)", sb.Magic)
	}

	fs := &FileSystem{dev: dev, cache: cache, sb: sb}
	fs.inodeAreaStart = 1 + uint64(sb.InodeBitmapBlocks)
	fs.dataAreaStart = fs.inodeAreaStart + uint64(sb.InodeAreaBlocks) + uint64(sb.DataBitmapBlocks)
	fs.inodeBitmap = bitmap.New(cache, 1, uint64(sb.InodeBitmapBlocks))
	fs.dataBitmap = bitmap.New(cache, fs.inodeAreaStart+uint64(sb.InodeAreaBlocks), uint64(sb.DataBitmapBlocks))
	return fs, nil
}

// GetDiskInodePos maps an inode id to its (block_id, offset) position in
// the inode area.
func (fs *FileSystem) GetDiskInodePos(id uint32) (blockID uint64, offset int) {
	perBlock := uint32(disklayout.InodesPerBlock)
	blockID = fs.inodeAreaStart + uint64(id/perBlock)
	offset = int(id%perBlock) * disklayout.DiskInodeSize
	return
}

// RootDiskInodePos returns the position of the root directory's DiskInode.
func (fs *FileSystem) RootDiskInodePos() (blockID uint64, offset int) {
	return fs.GetDiskInodePos(RootInodeID)
}

// AllocInode reserves a free inode slot. Allocator exhaustion here is fatal:
// there is no recovery path for running out of inode slots mid-operation.
func (fs *FileSystem) AllocInode() uint32 {
	idx, ok := fs.inodeBitmap.Alloc()
	if !ok {
		panic("efs: inode bitmap exhausted")
	}
	return uint32(idx)
}

// DeallocInode frees an inode slot.
func (fs *FileSystem) DeallocInode(id uint32) {
	fs.inodeBitmap.Dealloc(uint64(id))
}

// AllocData reserves a free data block and returns its absolute block id.
func (fs *FileSystem) AllocData() uint64 {
	idx, ok := fs.dataBitmap.Alloc()
	if !ok {
		panic("efs: data bitmap exhausted")
	}
	return fs.dataAreaStart + idx
}

// DeallocData frees a data block given its absolute block id.
func (fs *FileSystem) DeallocData(blockID uint64) {
	fs.dataBitmap.Dealloc(blockID - fs.dataAreaStart)
}

// SyncAll flushes every dirty block cache frame.
func (fs *FileSystem) SyncAll() { fs.cache.SyncAll() }

// Cache exposes the block cache for internal/vfs, which needs direct
// Get/Read/Modify access to implement disklayout.BlockIO.
func (fs *FileSystem) Cache() *blockcache.Cache { return fs.cache }
