// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oslab/easykernel/internal/blockdev"
	"github.com/oslab/easykernel/internal/disklayout"
	"github.com/stretchr/testify/suite"
)

type MkfsTest struct {
	suite.Suite
}

func TestMkfsSuite(t *testing.T) { suite.Run(t, new(MkfsTest)) }

func (t *MkfsTest) TestLayoutForRejectsImagesTooSmallToFormat() {
	_, _, _, _, err := layoutFor(3)
	t.Error(err)
}

func (t *MkfsTest) TestLayoutForAccountsForEveryBlock() {
	const total = 4300
	inodeBitmap, inodeArea, dataBitmap, dataArea, err := layoutFor(total)
	t.Require().NoError(err)
	t.Equal(uint32(total), 1+inodeBitmap+inodeArea+dataBitmap+dataArea)
}

func (t *MkfsTest) TestLayoutForGivesEnoughInodeBitmapCapacityForTheInodeArea() {
	const total = 20000
	inodeBitmap, inodeArea, _, _, err := layoutFor(total)
	t.Require().NoError(err)
	capacity := uint64(inodeBitmap) * bitsPerBlock
	t.GreaterOrEqual(capacity, uint64(inodeArea)*uint64(disklayout.InodesPerBlock))
}

func (t *MkfsTest) TestLoadLayoutPresetReadsInodeAreaFraction() {
	path := filepath.Join(t.T().TempDir(), "preset.yaml")
	t.Require().NoError(os.WriteFile(path, []byte("inode-area-fraction: 10\n"), 0644))

	preset, err := loadLayoutPreset(path)
	t.Require().NoError(err)
	t.Equal(uint32(10), preset.InodeAreaFraction)
}

func (t *MkfsTest) TestLoadLayoutPresetDefaultsWhenFractionOmitted() {
	path := filepath.Join(t.T().TempDir(), "preset.yaml")
	t.Require().NoError(os.WriteFile(path, []byte("{}\n"), 0644))

	preset, err := loadLayoutPreset(path)
	t.Require().NoError(err)
	t.Equal(uint32(defaultInodeAreaFraction), preset.InodeAreaFraction)
}

func (t *MkfsTest) TestLayoutForFractionDevotesMoreBlocksToInodesWithASmallerFraction() {
	const total = 20000
	_, defaultArea, _, _, err := layoutFor(total)
	t.Require().NoError(err)

	_, widerArea, _, _, err := layoutForFraction(total, 10)
	t.Require().NoError(err)

	t.Greater(widerArea, defaultArea)
}

func (t *MkfsTest) TestRunMkfsFormatsAFreshImage() {
	imagePath := filepath.Join(t.T().TempDir(), "scratch.img")
	t.Require().NoError(runMkfs(imagePath, 4300, 16))

	dev, err := blockdev.OpenFileDevice(imagePath, 4300)
	t.Require().NoError(err)
	defer dev.Close()

	var raw [blockdev.BlockSize]byte
	t.Require().NoError(dev.ReadBlock(0, &raw))
	sb := disklayout.DecodeSuperblock(&raw)
	t.True(sb.Valid())
	t.Equal(uint32(4300), sb.TotalBlocks)
}
