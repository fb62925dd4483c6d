package vfs_test

import (
	"fmt"
	"testing"

	"github.com/oslab/easykernel/internal/blockdev"
	"github.com/oslab/easykernel/internal/efs"
	"github.com/oslab/easykernel/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	testTotalBlocks       = 4300
	testInodeBitmapBlocks = 1
	testInodeAreaBlocks   = 150
	testDataBitmapBlocks  = 1
	testDataAreaBlocks    = 4096
	testCacheCapacity     = 64
)

type InodeTest struct {
	suite.Suite
	fs *efs.FileSystem
}

func TestInodeSuite(t *testing.T) { suite.Run(t, new(InodeTest)) }

func (t *InodeTest) SetupTest() {
	dev := blockdev.NewMemDevice(testTotalBlocks)
	fs, err := efs.Create(dev, testCacheCapacity,
		testTotalBlocks, testInodeBitmapBlocks, testInodeAreaBlocks,
		testDataBitmapBlocks, testDataAreaBlocks)
	require.NoError(t.T(), err)
	t.fs = fs
}

func (t *InodeTest) TestCreateWriteReadRoundTrip() {
	root := vfs.Root(t.fs)
	file, ok := root.Create("hello.txt", false)
	require.True(t.T(), ok)

	data := []byte("hello, easykernel filesystem")
	n := file.WriteAt(0, data)
	require.Equal(t.T(), len(data), n)

	got := make([]byte, len(data))
	n = file.ReadAt(0, got)
	require.Equal(t.T(), len(data), n)
	assert.Equal(t.T(), data, got)
}

func (t *InodeTest) TestLsListsCreatedEntries() {
	root := vfs.Root(t.fs)
	_, ok := root.Create("a.txt", false)
	require.True(t.T(), ok)
	_, ok = root.Create("b.txt", false)
	require.True(t.T(), ok)
	_, ok = root.Create("sub", true)
	require.True(t.T(), ok)

	names := root.Ls()
	assert.ElementsMatch(t.T(), []string{"a.txt", "b.txt", "sub"}, names)
}

func (t *InodeTest) TestCreateNameCollisionFails() {
	root := vfs.Root(t.fs)
	_, ok := root.Create("dup.txt", false)
	require.True(t.T(), ok)

	_, ok = root.Create("dup.txt", false)
	assert.False(t.T(), ok)
}

func (t *InodeTest) TestFindResolvesExistingEntry() {
	root := vfs.Root(t.fs)
	created, _ := root.Create("findme.txt", false)

	found, ok := root.Find("findme.txt")
	require.True(t.T(), ok)
	assert.Equal(t.T(), created.ID(), found.ID())

	_, ok = root.Find("missing.txt")
	assert.False(t.T(), ok)
}

func (t *InodeTest) TestLinkAndUnlinkPreserveContentUntilLastLink() {
	root := vfs.Root(t.fs)
	a, ok := root.Create("a.txt", false)
	require.True(t.T(), ok)
	a.WriteAt(0, []byte("shared content"))

	ok = root.Link("b.txt", a)
	require.True(t.T(), ok)
	assert.Equal(t.T(), uint16(2), a.Links())

	ok = root.Unlink("a.txt")
	require.True(t.T(), ok)

	b, ok := root.Find("b.txt")
	require.True(t.T(), ok)
	assert.Equal(t.T(), uint16(1), b.Links())

	got := make([]byte, len("shared content"))
	b.ReadAt(0, got)
	assert.Equal(t.T(), "shared content", string(got))

	ok = root.Unlink("b.txt")
	require.True(t.T(), ok)
	_, ok = root.Find("b.txt")
	assert.False(t.T(), ok)
}

func (t *InodeTest) TestLinkNameCollisionFails() {
	root := vfs.Root(t.fs)
	a, _ := root.Create("a.txt", false)
	_, _ = root.Create("b.txt", false)

	ok := root.Link("b.txt", a)
	assert.False(t.T(), ok)
}

func (t *InodeTest) TestUnlinkUnknownNameFails() {
	root := vfs.Root(t.fs)
	assert.False(t.T(), root.Unlink("nope.txt"))
}

// TestCreateManyThenUnlinkEvenIndexed exercises directory-entry compaction
// and inode-id reuse across a large create/unlink workload.
func (t *InodeTest) TestCreateManyThenUnlinkEvenIndexed() {
	const total = 600
	root := vfs.Root(t.fs)

	for i := 0; i < total; i++ {
		_, ok := root.Create(fmt.Sprintf("file-%d", i), false)
		require.True(t.T(), ok, "create file-%d", i)
	}
	assert.Len(t.T(), root.Ls(), total)

	for i := 0; i < total; i += 2 {
		ok := root.Unlink(fmt.Sprintf("file-%d", i))
		require.True(t.T(), ok, "unlink file-%d", i)
	}
	assert.Len(t.T(), root.Ls(), total/2)

	for i := 1; i < total; i += 2 {
		_, ok := root.Find(fmt.Sprintf("file-%d", i))
		assert.True(t.T(), ok, "file-%d should still exist", i)
	}
	for i := 0; i < total; i += 2 {
		_, ok := root.Find(fmt.Sprintf("file-%d", i))
		assert.False(t.T(), ok, "file-%d should be gone", i)
	}

	// Inode slots freed by the unlinks should be reusable.
	reused, ok := root.Create("reuse-check", false)
	require.True(t.T(), ok)
	assert.NotNil(t.T(), reused)
}
