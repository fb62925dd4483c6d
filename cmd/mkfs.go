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
	"fmt"
	"os"
	"strconv"

	"github.com/oslab/easykernel/internal/blockdev"
	"github.com/oslab/easykernel/internal/disklayout"
	"github.com/oslab/easykernel/internal/efs"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// bitsPerBlock mirrors internal/bitmap's own unexported constant: one bit
// per slot, 8 bits per byte, blockdev.BlockSize bytes per block.
const bitsPerBlock = blockdev.BlockSize * 8

// defaultInodeAreaFraction is the fraction of non-superblock space devoted
// to inodes when no layout preset overrides it.
const defaultInodeAreaFraction = 25

// layoutPreset is the YAML shape accepted by mkfs's --layout-preset flag,
// letting a caller devote a different fraction of the image to inodes than
// the default without recompiling.
type layoutPreset struct {
	InodeAreaFraction uint32 `yaml:"inode-area-fraction"`
}

func loadLayoutPreset(path string) (layoutPreset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return layoutPreset{}, fmt.Errorf("reading layout preset: %w", err)
	}
	var p layoutPreset
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return layoutPreset{}, fmt.Errorf("parsing layout preset: %w", err)
	}
	if p.InodeAreaFraction == 0 {
		p.InodeAreaFraction = defaultInodeAreaFraction
	}
	return p, nil
}

func newMkfsCmd() *cobra.Command {
	var layoutPresetPath string
	cmd := &cobra.Command{
		Use:   "mkfs <image-path> <total-blocks>",
		Short: "Format a fresh on-disk filesystem image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			totalBlocks, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("parsing total-blocks: %w", err)
			}
			fraction := uint32(defaultInodeAreaFraction)
			if layoutPresetPath != "" {
				preset, err := loadLayoutPreset(layoutPresetPath)
				if err != nil {
					return err
				}
				fraction = preset.InodeAreaFraction
			}
			return runMkfsWithFraction(args[0], uint32(totalBlocks), runtimeConfig.BlockCache.CapacityFrames, fraction)
		},
	}
	cmd.Flags().StringVar(&layoutPresetPath, "layout-preset", "", "Path to a YAML file overriding the inode-area-fraction superblock layout default.")
	return cmd
}

// layoutFor divides totalBlocks among the superblock, inode bitmap, inode
// area, data bitmap, and data area, devoting a fixed fraction of the image
// to inodes. efs.Create takes region sizes as given; mkfs is the one place
// that has to pick concrete region sizes for an arbitrary image size.
func layoutFor(totalBlocks uint32) (inodeBitmapBlocks, inodeAreaBlocks, dataBitmapBlocks, dataAreaBlocks uint32, err error) {
	return layoutForFraction(totalBlocks, defaultInodeAreaFraction)
}

// layoutForFraction is layoutFor generalized to a caller-chosen inode-area
// fraction, driven by mkfs's --layout-preset flag.
func layoutForFraction(totalBlocks, inodeAreaFraction uint32) (inodeBitmapBlocks, inodeAreaBlocks, dataBitmapBlocks, dataAreaBlocks uint32, err error) {
	const reserved = 1 // superblock
	if totalBlocks < reserved+4 {
		return 0, 0, 0, 0, fmt.Errorf("mkfs: %d blocks is too small for a filesystem image", totalBlocks)
	}
	if inodeAreaFraction == 0 {
		inodeAreaFraction = defaultInodeAreaFraction
	}
	remaining := totalBlocks - reserved

	inodeAreaBlocks = remaining / inodeAreaFraction
	if inodeAreaBlocks < 1 {
		inodeAreaBlocks = 1
	}
	inodeBitmapBlocks = uint32((uint64(inodeAreaBlocks)*uint64(disklayout.InodesPerBlock) + bitsPerBlock - 1) / bitsPerBlock)
	if inodeBitmapBlocks < 1 {
		inodeBitmapBlocks = 1
	}

	used := inodeBitmapBlocks + inodeAreaBlocks
	if used >= remaining {
		return 0, 0, 0, 0, fmt.Errorf("mkfs: %d blocks leaves no room for a data area", totalBlocks)
	}
	dataAreaBlocks = remaining - used
	dataBitmapBlocks = uint32((uint64(dataAreaBlocks) + bitsPerBlock - 1) / bitsPerBlock)
	dataAreaBlocks -= dataBitmapBlocks
	return inodeBitmapBlocks, inodeAreaBlocks, dataBitmapBlocks, dataAreaBlocks, nil
}

func runMkfs(imagePath string, totalBlocks uint32, cacheCapacity int) error {
	return runMkfsWithFraction(imagePath, totalBlocks, cacheCapacity, defaultInodeAreaFraction)
}

// runMkfsWithFraction is runMkfs generalized to a caller-chosen
// inode-area-fraction, the knob a --layout-preset YAML file overrides.
func runMkfsWithFraction(imagePath string, totalBlocks uint32, cacheCapacity int, inodeAreaFraction uint32) error {
	inodeBitmapBlocks, inodeAreaBlocks, dataBitmapBlocks, dataAreaBlocks, err := layoutForFraction(totalBlocks, inodeAreaFraction)
	if err != nil {
		return err
	}

	dev, err := blockdev.OpenFileDevice(imagePath, uint64(totalBlocks))
	if err != nil {
		return fmt.Errorf("mkfs: opening image: %w", err)
	}
	defer dev.Close()

	fs, err := efs.Create(dev, cacheCapacity, totalBlocks, inodeBitmapBlocks, inodeAreaBlocks, dataBitmapBlocks, dataAreaBlocks)
	if err != nil {
		return fmt.Errorf("mkfs: formatting: %w", err)
	}
	fs.SyncAll()

	fmt.Printf("formatted %s: %d blocks (%d inode, %d data), root inode %d\n",
		imagePath, totalBlocks, inodeAreaBlocks, dataAreaBlocks, efs.RootInodeID)
	return nil
}
