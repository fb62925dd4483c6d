// Package bitmap implements a bitmap allocator: a span of blocks treated as
// packed bits, one bit per slot in the region it governs. The filesystem
// object (internal/efs) owns two instances — one for inode slots, one for
// data blocks.
package bitmap

import (
	"encoding/binary"
	"fmt"

	"github.com/oslab/easykernel/internal/blockcache"
	"github.com/oslab/easykernel/internal/blockdev"
)

// bitsPerBlock is the number of bits packed into one block: block index,
// then word index, then bit within the word.
const (
	wordsPerBlock = blockdev.BlockSize / 8
	bitsPerBlock  = blockdev.BlockSize * 8
)

// Allocator manages a contiguous span of blocks as a packed bitmap. idx is
// always relative to the start of the span: index 0 is the first bit of the
// first block in the span.
type Allocator struct {
	cache      *blockcache.Cache
	startBlock uint64
	numBlocks  uint64
}

// New creates an Allocator governing the span [startBlock, startBlock+numBlocks)
// of cache. Callers are responsible for zeroing that span when formatting a
// fresh filesystem.
func New(cache *blockcache.Cache, startBlock, numBlocks uint64) *Allocator {
	return &Allocator{cache: cache, startBlock: startBlock, numBlocks: numBlocks}
}

// Capacity returns the total number of bits (slots) the span can hold.
func (a *Allocator) Capacity() uint64 {
	return a.numBlocks * bitsPerBlock
}

// Alloc returns the lowest clear bit, sets it, and returns its index. It
// returns (0, false) if the span is full.
func (a *Allocator) Alloc() (uint64, bool) {
	for block := uint64(0); block < a.numBlocks; block++ {
		frame := a.cache.Get(a.startBlock + block)

		var found bool
		var wordIdx, bitIdx int
		frame.Read(0, func(buf []byte) {
			for w := 0; w < wordsPerBlock; w++ {
				word := binary.LittleEndian.Uint64(buf[w*8 : w*8+8])
				if word == ^uint64(0) {
					continue
				}
				for b := 0; b < 64; b++ {
					if word&(1<<uint(b)) == 0 {
						wordIdx, bitIdx, found = w, b, true
						return
					}
				}
			}
		})

		if !found {
			continue
		}

		frame.Modify(0, func(buf []byte) {
			word := binary.LittleEndian.Uint64(buf[wordIdx*8 : wordIdx*8+8])
			word |= 1 << uint(bitIdx)
			binary.LittleEndian.PutUint64(buf[wordIdx*8:wordIdx*8+8], word)
		})

		return block*bitsPerBlock + uint64(wordIdx)*64 + uint64(bitIdx), true
	}
	return 0, false
}

// Dealloc clears the bit at idx. It panics if the bit was already clear.
func (a *Allocator) Dealloc(idx uint64) {
	if idx >= a.Capacity() {
		panic(fmt.Sprintf("bitmap: dealloc index %d out of range (capacity %d)", idx, a.Capacity()))
	}

	block := idx / bitsPerBlock
	within := idx % bitsPerBlock
	wordIdx := within / 64
	bitIdx := within % 64

	frame := a.cache.Get(a.startBlock + block)

	var wasSet bool
	frame.Modify(0, func(buf []byte) {
		word := binary.LittleEndian.Uint64(buf[wordIdx*8 : wordIdx*8+8])
		wasSet = word&(1<<bitIdx) != 0
		word &^= 1 << bitIdx
		binary.LittleEndian.PutUint64(buf[wordIdx*8:wordIdx*8+8], word)
	})

	if !wasSet {
		panic(fmt.Sprintf("bitmap: dealloc of already-clear bit %d", idx))
	}
}

// IsSet reports whether idx is currently allocated. Used by tests and by
// invariant checks elsewhere in the filesystem stack.
func (a *Allocator) IsSet(idx uint64) bool {
	block := idx / bitsPerBlock
	within := idx % bitsPerBlock
	wordIdx := within / 64
	bitIdx := within % 64

	frame := a.cache.Get(a.startBlock + block)
	var set bool
	frame.Read(0, func(buf []byte) {
		word := binary.LittleEndian.Uint64(buf[wordIdx*8 : wordIdx*8+8])
		set = word&(1<<bitIdx) != 0
	})
	return set
}
