package disklayout_test

import (
	"testing"

	"github.com/oslab/easykernel/internal/blockdev"
	"github.com/oslab/easykernel/internal/disklayout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// memBlockIO is a minimal in-memory disklayout.BlockIO used only to unit
// test DiskInode's growth/read/write/clear logic in isolation from the
// block cache and allocator.
type memBlockIO struct {
	blocks map[uint64]*[blockdev.BlockSize]byte
}

func newMemBlockIO() *memBlockIO {
	return &memBlockIO{blocks: make(map[uint64]*[blockdev.BlockSize]byte)}
}

func (m *memBlockIO) block(id uint64) *[blockdev.BlockSize]byte {
	b, ok := m.blocks[id]
	if !ok {
		b = &[blockdev.BlockSize]byte{}
		m.blocks[id] = b
	}
	return b
}

func (m *memBlockIO) ReadPointers(id uint64) [blockdev.BlockSize / 4]uint32 {
	var out [blockdev.BlockSize / 4]uint32
	buf := m.block(id)
	for i := range out {
		out[i] = uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
	}
	return out
}

func (m *memBlockIO) WritePointer(id uint64, idx int, value uint32) {
	buf := m.block(id)
	buf[idx*4] = byte(value)
	buf[idx*4+1] = byte(value >> 8)
	buf[idx*4+2] = byte(value >> 16)
	buf[idx*4+3] = byte(value >> 24)
}

func (m *memBlockIO) ReadData(id uint64, offset int, dst []byte) int {
	buf := m.block(id)
	n := copy(dst, buf[offset:])
	return n
}

func (m *memBlockIO) WriteData(id uint64, offset int, src []byte) {
	buf := m.block(id)
	copy(buf[offset:], src)
}

var nextBlockID uint64 = 100

func allocBlocks(n uint32) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(nextBlockID)
		nextBlockID++
	}
	return out
}

type DiskInodeTest struct {
	suite.Suite
	io *memBlockIO
}

func TestDiskInodeSuite(t *testing.T) { suite.Run(t, new(DiskInodeTest)) }

func (t *DiskInodeTest) SetupTest() {
	t.io = newMemBlockIO()
}

func (t *DiskInodeTest) TestWriteThenReadRoundTrip() {
	var inode disklayout.DiskInode
	want := []byte("hello, easykernel")

	needed := inode.BlocksNumNeeded(uint32(len(want)))
	inode.IncreaseSize(uint32(len(want)), allocBlocks(needed), t.io)
	n := inode.WriteAt(0, want, t.io)
	require.Equal(t.T(), len(want), n)

	got := make([]byte, len(want))
	n = inode.ReadAt(0, got, t.io)
	require.Equal(t.T(), len(want), n)
	assert.Equal(t.T(), want, got)
}

func (t *DiskInodeTest) TestReadClampsToSize() {
	var inode disklayout.DiskInode
	data := []byte("abc")
	inode.IncreaseSize(uint32(len(data)), allocBlocks(inode.BlocksNumNeeded(uint32(len(data)))), t.io)
	inode.WriteAt(0, data, t.io)

	buf := make([]byte, 10)
	n := inode.ReadAt(0, buf, t.io)
	assert.Equal(t.T(), 3, n)
}

func (t *DiskInodeTest) TestGrowthSpansIndirect1() {
	var inode disklayout.DiskInode
	// Past the direct region (DirectCount blocks) into indirect1.
	newSize := uint32((disklayout.DirectCount + 3) * blockdev.BlockSize)
	needed := inode.BlocksNumNeeded(newSize)
	inode.IncreaseSize(newSize, allocBlocks(needed), t.io)

	data := make([]byte, blockdev.BlockSize)
	for i := range data {
		data[i] = byte(i)
	}
	offset := (disklayout.DirectCount + 2) * blockdev.BlockSize
	inode.WriteAt(offset, data, t.io)

	got := make([]byte, blockdev.BlockSize)
	inode.ReadAt(offset, got, t.io)
	assert.Equal(t.T(), data, got)
	assert.NotZero(t.T(), inode.Indirect1)
}

func (t *DiskInodeTest) TestClearSizeReturnsAllReachableBlocksAndResets() {
	var inode disklayout.DiskInode
	newSize := uint32((disklayout.DirectCount + 3) * blockdev.BlockSize)
	needed := inode.BlocksNumNeeded(newSize)
	blocks := allocBlocks(needed)
	inode.IncreaseSize(newSize, blocks, t.io)

	freed := inode.ClearSize(t.io)

	assert.Equal(t.T(), uint32(0), inode.Size)
	assert.Zero(t.T(), inode.Indirect1)
	assert.NotEmpty(t.T(), freed)
	for _, b := range inode.Direct {
		assert.Zero(t.T(), b)
	}
}

func (t *DiskInodeTest) TestBlocksNumNeededIncrementalGrowth() {
	var inode disklayout.DiskInode
	total := uint32(0)
	for _, sz := range []uint32{100, 2000, 20000, 200000} {
		needed := inode.BlocksNumNeeded(sz)
		blocks := allocBlocks(needed)
		inode.IncreaseSize(sz, blocks, t.io)
		total += needed
		assert.Equal(t.T(), sz, inode.Size)
	}
}

func TestDirEntryRoundTrip(t *testing.T) {
	e := disklayout.NewDirEntry("hello.txt", 7)
	var buf [disklayout.DirEntrySize]byte
	e.Encode(buf[:])

	got := disklayout.DecodeDirEntry(buf[:])
	assert.Equal(t, "hello.txt", got.NameString())
	assert.Equal(t, uint32(7), got.Inum)
}

func TestDirEntryNameTooLongPanics(t *testing.T) {
	longName := make([]byte, disklayout.DirEntrySize)
	for i := range longName {
		longName[i] = 'a'
	}
	assert.Panics(t, func() {
		disklayout.NewDirEntry(string(longName), 1)
	})
}

func TestSuperblockRoundTrip(t *testing.T) {
	sb := disklayout.Superblock{
		Magic:             disklayout.Magic,
		TotalBlocks:       4096,
		InodeBitmapBlocks: 1,
		InodeAreaBlocks:   32,
		DataBitmapBlocks:  1,
		DataAreaBlocks:    4000,
	}
	var buf [blockdev.BlockSize]byte
	sb.Encode(&buf)
	got := disklayout.DecodeSuperblock(&buf)
	assert.Equal(t, sb, got)
	assert.True(t, got.Valid())
}

func TestSuperblockInvalidMagicOrOverflow(t *testing.T) {
	bad := disklayout.Superblock{Magic: 0xdeadbeef, TotalBlocks: 10}
	assert.False(t, bad.Valid())

	overflow := disklayout.Superblock{
		Magic:            disklayout.Magic,
		TotalBlocks:      10,
		InodeAreaBlocks:  20,
	}
	assert.False(t, overflow.Valid())
}
