// Package blockdev defines the block device contract the filesystem stack
// is built against: a thin virtio-style read_block/write_block trait. This
// package supplies that contract plus two concrete devices — an in-memory
// one for tests and the CLI demo, and a file-backed one for mkfs/persistence.
package blockdev

import (
	"fmt"
	"os"
	"sync"
)

// BlockSize is the fixed size of every block on disk.
const BlockSize = 512

// Device is the contract a block device driver must satisfy.
type Device interface {
	// ReadBlock reads the block with the given id into buf.
	ReadBlock(id uint64, buf *[BlockSize]byte) error

	// WriteBlock writes buf to the block with the given id.
	WriteBlock(id uint64, buf *[BlockSize]byte) error

	// NumBlocks returns the total number of addressable blocks.
	NumBlocks() uint64
}

// MemDevice is an in-memory block device. I/O errors never occur; an
// out-of-range access panics, since a block-device I/O error is unrecoverable
// here and not worth threading through every caller as an error return.
type MemDevice struct {
	mu     sync.Mutex
	blocks [][BlockSize]byte
}

// NewMemDevice allocates a zero-filled in-memory device of the given size.
func NewMemDevice(numBlocks uint64) *MemDevice {
	return &MemDevice{blocks: make([][BlockSize]byte, numBlocks)}
}

func (d *MemDevice) ReadBlock(id uint64, buf *[BlockSize]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id >= uint64(len(d.blocks)) {
		panic(fmt.Sprintf("blockdev: read of out-of-range block %d (have %d)", id, len(d.blocks)))
	}
	*buf = d.blocks[id]
	return nil
}

func (d *MemDevice) WriteBlock(id uint64, buf *[BlockSize]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id >= uint64(len(d.blocks)) {
		panic(fmt.Sprintf("blockdev: write of out-of-range block %d (have %d)", id, len(d.blocks)))
	}
	d.blocks[id] = *buf
	return nil
}

func (d *MemDevice) NumBlocks() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint64(len(d.blocks))
}

// FileDevice is a block device backed by a regular file, used by `mkfs` and
// by anything that wants the image to survive process exit. It pre-sizes the
// file to numBlocks*BlockSize with a single Truncate call.
type FileDevice struct {
	mu        sync.Mutex
	f         *os.File
	numBlocks uint64
}

// OpenFileDevice opens (creating if necessary) the image at path and
// ensures it is exactly numBlocks*BlockSize bytes long.
func OpenFileDevice(path string, numBlocks uint64) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("blockdev: opening image %q: %w", path, err)
	}

	size := int64(numBlocks) * BlockSize
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: sizing image %q to %d bytes: %w", path, size, err)
	}

	return &FileDevice{f: f, numBlocks: numBlocks}, nil
}

func (d *FileDevice) ReadBlock(id uint64, buf *[BlockSize]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id >= d.numBlocks {
		panic(fmt.Sprintf("blockdev: read of out-of-range block %d (have %d)", id, d.numBlocks))
	}
	if _, err := d.f.ReadAt(buf[:], int64(id)*BlockSize); err != nil {
		panic(fmt.Sprintf("blockdev: fatal I/O error reading block %d: %v", id, err))
	}
	return nil
}

func (d *FileDevice) WriteBlock(id uint64, buf *[BlockSize]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id >= d.numBlocks {
		panic(fmt.Sprintf("blockdev: write of out-of-range block %d (have %d)", id, d.numBlocks))
	}
	if _, err := d.f.WriteAt(buf[:], int64(id)*BlockSize); err != nil {
		panic(fmt.Sprintf("blockdev: fatal I/O error writing block %d: %v", id, err))
	}
	return nil
}

func (d *FileDevice) NumBlocks() uint64 {
	return d.numBlocks
}

// Close releases the underlying file handle.
func (d *FileDevice) Close() error {
	return d.f.Close()
}

var (
	_ Device = (*MemDevice)(nil)
	_ Device = (*FileDevice)(nil)
)
