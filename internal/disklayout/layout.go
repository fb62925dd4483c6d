// Package disklayout defines the on-disk binary format: the superblock, the
// packed DiskInode record, and the 32-byte DirEntry record, plus DiskInode's
// direct/indirect1/indirect2 block-growth logic. The binary encode/decode
// idiom (manual encoding/binary.LittleEndian offsets into a flat byte
// buffer) follows common ext2/ext4-style on-disk readers.
package disklayout

import (
	"encoding/binary"
	"fmt"

	"github.com/oslab/easykernel/internal/blockdev"
)

// Magic identifies a formatted easykernel image.
const Magic uint32 = 0x3b800001

// SuperblockSize is the on-disk size of the Superblock record.
const SuperblockSize = 24

// Superblock is the block-0 header describing the geometry of the rest of
// the image.
type Superblock struct {
	Magic            uint32
	TotalBlocks      uint32
	InodeBitmapBlocks uint32
	InodeAreaBlocks  uint32
	DataBitmapBlocks uint32
	DataAreaBlocks   uint32
}

// Valid reports whether the superblock's magic matches and its regions fit
// within TotalBlocks.
func (sb *Superblock) Valid() bool {
	if sb.Magic != Magic {
		return false
	}
	used := uint64(1) + uint64(sb.InodeBitmapBlocks) + uint64(sb.InodeAreaBlocks) +
		uint64(sb.DataBitmapBlocks) + uint64(sb.DataAreaBlocks)
	return used <= uint64(sb.TotalBlocks)
}

// Encode serializes sb into a block-sized buffer.
func (sb *Superblock) Encode(buf *[blockdev.BlockSize]byte) {
	binary.LittleEndian.PutUint32(buf[0:4], sb.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], sb.TotalBlocks)
	binary.LittleEndian.PutUint32(buf[8:12], sb.InodeBitmapBlocks)
	binary.LittleEndian.PutUint32(buf[12:16], sb.InodeAreaBlocks)
	binary.LittleEndian.PutUint32(buf[16:20], sb.DataBitmapBlocks)
	binary.LittleEndian.PutUint32(buf[20:24], sb.DataAreaBlocks)
}

// DecodeSuperblock parses a Superblock out of a block-sized buffer.
func DecodeSuperblock(buf *[blockdev.BlockSize]byte) Superblock {
	return Superblock{
		Magic:             binary.LittleEndian.Uint32(buf[0:4]),
		TotalBlocks:       binary.LittleEndian.Uint32(buf[4:8]),
		InodeBitmapBlocks: binary.LittleEndian.Uint32(buf[8:12]),
		InodeAreaBlocks:   binary.LittleEndian.Uint32(buf[12:16]),
		DataBitmapBlocks:  binary.LittleEndian.Uint32(buf[16:20]),
		DataAreaBlocks:    binary.LittleEndian.Uint32(buf[20:24]),
	}
}

// InodeType distinguishes a File DiskInode from a Directory one.
type InodeType uint32

const (
	TypeFile InodeType = iota
	TypeDirectory
)

// DirectCount is the number of direct block pointers a DiskInode carries.
// Chosen so DiskInodeSize divides blockdev.BlockSize evenly once the Links
// field needed for hard-link support is added to the record (see the Open
// Questions entry in DESIGN.md).
const DirectCount = 27

// pointersPerBlock is how many u32 block indices fit in one indirect block.
const pointersPerBlock = blockdev.BlockSize / 4

// DiskInodeSize is the packed, on-disk size of one DiskInode record:
// size(4) + direct(4*DirectCount) + indirect1(4) + indirect2(4) + type(4) +
// links(2) + pad(2).
const DiskInodeSize = 4 + 4*DirectCount + 4 + 4 + 4 + 2 + 2

// InodesPerBlock is how many DiskInode records pack into one block.
const InodesPerBlock = blockdev.BlockSize / DiskInodeSize

// DiskInode is the fixed-size metadata record for a file or directory.
type DiskInode struct {
	Size      uint32
	Direct    [DirectCount]uint32
	Indirect1 uint32
	Indirect2 uint32
	Type      InodeType
	Links     uint16
}

// IsDir reports whether this inode is a directory.
func (d *DiskInode) IsDir() bool { return d.Type == TypeDirectory }

// Encode serializes d into buf at the given byte offset within the block.
func (d *DiskInode) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], d.Size)
	for i, b := range d.Direct {
		off := 4 + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], b)
	}
	off := 4 + DirectCount*4
	binary.LittleEndian.PutUint32(buf[off:off+4], d.Indirect1)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], d.Indirect2)
	binary.LittleEndian.PutUint32(buf[off+8:off+12], uint32(d.Type))
	binary.LittleEndian.PutUint16(buf[off+12:off+14], d.Links)
	binary.LittleEndian.PutUint16(buf[off+14:off+16], 0)
}

// DecodeDiskInode parses a DiskInode out of buf at offset 0.
func DecodeDiskInode(buf []byte) DiskInode {
	var d DiskInode
	d.Size = binary.LittleEndian.Uint32(buf[0:4])
	for i := range d.Direct {
		off := 4 + i*4
		d.Direct[i] = binary.LittleEndian.Uint32(buf[off : off+4])
	}
	off := 4 + DirectCount*4
	d.Indirect1 = binary.LittleEndian.Uint32(buf[off : off+4])
	d.Indirect2 = binary.LittleEndian.Uint32(buf[off+4 : off+8])
	d.Type = InodeType(binary.LittleEndian.Uint32(buf[off+8 : off+12]))
	d.Links = binary.LittleEndian.Uint16(buf[off+12 : off+14])
	return d
}

// TotalBlocks returns ceil(size/BlockSize), the number of data blocks live
// at the given byte size.
func TotalBlocks(size uint32) uint32 {
	return (size + blockdev.BlockSize - 1) / blockdev.BlockSize
}

// dataBlocksForDirect is how many blocks the direct pointers alone can hold.
const dataBlocksForDirect = DirectCount

// totalBlocksForIndirect1 is how many more data blocks indirect1 can address.
const totalBlocksForIndirect1 = dataBlocksForDirect + pointersPerBlock

// BlocksNumNeeded returns the additional data blocks (including indirect
// bookkeeping blocks) needed to grow from d's current size to newSize.
func (d *DiskInode) BlocksNumNeeded(newSize uint32) uint32 {
	needed := dataBlocksNeeded(newSize) - dataBlocksNeeded(d.Size)

	// Bookkeeping blocks: the indirect1 pointer block itself, and the
	// indirect2 pointer block plus its second-level pointer blocks.
	before := TotalBlocks(d.Size)
	after := TotalBlocks(newSize)

	if before <= dataBlocksForDirect && after > dataBlocksForDirect {
		needed++ // indirect1 pointer block comes into existence
	}
	if after > totalBlocksForIndirect1 {
		if before <= totalBlocksForIndirect1 {
			needed++ // indirect2 pointer block comes into existence
		}
		beforeL2 := l2BlocksNeeded(before)
		afterL2 := l2BlocksNeeded(after)
		needed += afterL2 - beforeL2
	}

	return needed
}

func dataBlocksNeeded(size uint32) uint32 {
	return TotalBlocks(size)
}

// l2BlocksNeeded returns how many second-level indirect2 pointer blocks are
// needed to address totalBlocks data blocks (0 if totalBlocks doesn't reach
// into the indirect2 range).
func l2BlocksNeeded(totalBlocks uint32) uint32 {
	if totalBlocks <= totalBlocksForIndirect1 {
		return 0
	}
	remaining := totalBlocks - totalBlocksForIndirect1
	return (remaining + pointersPerBlock - 1) / pointersPerBlock
}

// BlockIO abstracts the indirect-block pointer reads/writes needed by
// IncreaseSize/ClearSize/ReadAt/WriteAt without importing blockcache;
// internal/vfs supplies a concrete implementation (cacheIO) backed by the
// filesystem's block cache.
type BlockIO interface {
	// ReadPointers reads all pointersPerBlock u32 entries from blockID.
	ReadPointers(blockID uint64) [pointersPerBlock]uint32
	// WritePointer writes a single u32 entry at index idx within blockID.
	WritePointer(blockID uint64, idx int, value uint32)
	// ReadData reads up to len(buf) bytes from blockID starting at
	// blockOffset into buf, returning the count read.
	ReadData(blockID uint64, blockOffset int, buf []byte) int
	// WriteData writes buf into blockID starting at blockOffset.
	WriteData(blockID uint64, blockOffset int, buf []byte)
}

// dataBlockID resolves the inner-index'th data block of a DiskInode whose
// size already covers it, per the direct -> indirect1 -> indirect2 order.
func (d *DiskInode) dataBlockID(innerID uint32, io BlockIO) uint32 {
	switch {
	case innerID < dataBlocksForDirect:
		return d.Direct[innerID]
	case innerID < totalBlocksForIndirect1:
		ptrs := io.ReadPointers(uint64(d.Indirect1))
		return ptrs[innerID-dataBlocksForDirect]
	default:
		innerID -= totalBlocksForIndirect1
		l1 := innerID / pointersPerBlock
		l2 := innerID % pointersPerBlock
		l1Ptrs := io.ReadPointers(uint64(d.Indirect2))
		l2Ptrs := io.ReadPointers(uint64(l1Ptrs[l1]))
		return l2Ptrs[l2]
	}
}

// IncreaseSize grows d to newSize using exactly len(blocks) freshly
// allocated block indices, assigning them direct slots first, then
// indirect1 (and its pointer block), then indirect2 (and its tree).
func (d *DiskInode) IncreaseSize(newSize uint32, blocks []uint32, io BlockIO) {
	if newSize < d.Size {
		return
	}

	current := TotalBlocks(d.Size)
	target := TotalBlocks(newSize)
	next := 0
	take := func() uint32 { v := blocks[next]; next++; return v }

	for current < target {
		switch {
		case current < dataBlocksForDirect:
			d.Direct[current] = take()

		case current < totalBlocksForIndirect1:
			if current == dataBlocksForDirect {
				d.Indirect1 = take()
			}
			io.WritePointer(uint64(d.Indirect1), int(current-dataBlocksForDirect), take())

		default:
			if current == totalBlocksForIndirect1 {
				d.Indirect2 = take()
			}
			rel := current - totalBlocksForIndirect1
			l1 := rel / pointersPerBlock
			l2 := rel % pointersPerBlock
			if l2 == 0 {
				l1Block := take()
				io.WritePointer(uint64(d.Indirect2), int(l1), l1Block)
			}
			l1Ptrs := io.ReadPointers(uint64(d.Indirect2))
			io.WritePointer(uint64(l1Ptrs[l1]), int(l2), take())
		}
		current++
	}

	if next != len(blocks) {
		panic(fmt.Sprintf("disklayout: IncreaseSize consumed %d of %d provided blocks", next, len(blocks)))
	}

	d.Size = newSize
}

// ReadAt reads into buf starting at offset, clamped to d.Size, scattering
// the read across block boundaries as needed.
func (d *DiskInode) ReadAt(offset int, buf []byte, io BlockIO) int {
	end := offset + len(buf)
	if end > int(d.Size) {
		end = int(d.Size)
	}
	if offset >= end {
		return 0
	}

	read := 0
	for offset < end {
		innerID := uint32(offset / blockdev.BlockSize)
		blockOffset := offset % blockdev.BlockSize
		want := end - offset
		if want > blockdev.BlockSize-blockOffset {
			want = blockdev.BlockSize - blockOffset
		}

		blockID := d.dataBlockID(innerID, io)
		n := io.ReadData(uint64(blockID), blockOffset, buf[read:read+want])
		read += n
		offset += n
		if n == 0 {
			break
		}
	}
	return read
}

// WriteAt writes buf starting at offset. The caller must have already grown
// the inode (via IncreaseSize) to accommodate offset+len(buf); behavior is
// undefined otherwise.
func (d *DiskInode) WriteAt(offset int, buf []byte, io BlockIO) int {
	end := offset + len(buf)
	written := 0
	for offset < end {
		innerID := uint32(offset / blockdev.BlockSize)
		blockOffset := offset % blockdev.BlockSize
		want := end - offset
		if want > blockdev.BlockSize-blockOffset {
			want = blockdev.BlockSize - blockOffset
		}

		blockID := d.dataBlockID(innerID, io)
		io.WriteData(uint64(blockID), blockOffset, buf[written:written+want])
		written += want
		offset += want
	}
	return written
}

// ClearSize returns every data and indirect bookkeeping block that was
// reachable, sets Size to 0, and zeroes all pointer fields. The caller is
// responsible for deallocating the returned blocks.
func (d *DiskInode) ClearSize(io BlockIO) []uint32 {
	total := TotalBlocks(d.Size)
	var freed []uint32

	for i := uint32(0); i < total; i++ {
		freed = append(freed, d.dataBlockID(i, io))
	}
	if total > dataBlocksForDirect && d.Indirect1 != 0 {
		freed = append(freed, d.Indirect1)
	}
	if total > totalBlocksForIndirect1 && d.Indirect2 != 0 {
		l1Ptrs := io.ReadPointers(uint64(d.Indirect2))
		l1Count := l2BlocksNeeded(total)
		for i := uint32(0); i < l1Count; i++ {
			freed = append(freed, l1Ptrs[i])
		}
		freed = append(freed, d.Indirect2)
	}

	d.Size = 0
	d.Direct = [DirectCount]uint32{}
	d.Indirect1 = 0
	d.Indirect2 = 0

	return freed
}

// DirEntrySize is the fixed size of one directory entry: a 27-byte
// NUL-padded name plus a u32 inode id plus one pad byte.
const DirEntrySize = 32
const dirEntryNameLen = 27

// DirEntry is one record of a directory's packed content.
type DirEntry struct {
	Name [dirEntryNameLen]byte
	Inum uint32
}

// NewDirEntry builds a DirEntry for name/inum, panicking if name doesn't fit
// the fixed 27-byte field.
func NewDirEntry(name string, inum uint32) DirEntry {
	if len(name) >= dirEntryNameLen {
		panic(fmt.Sprintf("disklayout: name %q too long for a %d-byte dir entry field", name, dirEntryNameLen))
	}
	var e DirEntry
	copy(e.Name[:], name)
	e.Inum = inum
	return e
}

// NameString returns the entry's name up to its first NUL byte.
func (e *DirEntry) NameString() string {
	n := 0
	for n < len(e.Name) && e.Name[n] != 0 {
		n++
	}
	return string(e.Name[:n])
}

// Encode serializes e into a 32-byte buffer.
func (e *DirEntry) Encode(buf []byte) {
	copy(buf[0:dirEntryNameLen], e.Name[:])
	binary.LittleEndian.PutUint32(buf[dirEntryNameLen:dirEntryNameLen+4], e.Inum)
	buf[DirEntrySize-1] = 0
}

// DecodeDirEntry parses a DirEntry out of a 32-byte buffer.
func DecodeDirEntry(buf []byte) DirEntry {
	var e DirEntry
	copy(e.Name[:], buf[0:dirEntryNameLen])
	e.Inum = binary.LittleEndian.Uint32(buf[dirEntryNameLen : dirEntryNameLen+4])
	return e
}
