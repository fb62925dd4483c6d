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
	"io"
	"time"

	"github.com/oslab/easykernel/clock"
	"github.com/oslab/easykernel/internal/blockdev"
	"github.com/oslab/easykernel/internal/efs"
	"github.com/oslab/easykernel/internal/kernel/ksync"
	"github.com/oslab/easykernel/internal/kernel/proc"
	sc "github.com/oslab/easykernel/internal/syscall"
	"github.com/oslab/easykernel/internal/vfs"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const demoTotalBlocks = 4300

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run an end-to-end scenario exercising the filesystem and process subsystems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.OutOrStdout())
		},
	}
}

func runDemo(out io.Writer) error {
	printf := func(format string, args ...any) { fmt.Fprintf(out, format, args...) }

	dev := blockdev.NewMemDevice(demoTotalBlocks)
	inodeBitmapBlocks, inodeAreaBlocks, dataBitmapBlocks, dataAreaBlocks, err := layoutFor(demoTotalBlocks)
	if err != nil {
		return err
	}
	fs, err := efs.Create(dev, runtimeConfig.BlockCache.CapacityFrames, demoTotalBlocks,
		inodeBitmapBlocks, inodeAreaBlocks, dataBitmapBlocks, dataAreaBlocks)
	if err != nil {
		return fmt.Errorf("demo: formatting scratch image: %w", err)
	}
	root := vfs.Root(fs)

	printf("== filesystem: create/write/read/ls ==\n")
	file, ok := root.Create("greeting.txt", false)
	if !ok {
		return fmt.Errorf("demo: could not create greeting.txt")
	}
	payload := []byte("hello from the easykernel demo scenario")
	file.WriteAt(0, payload)
	buf := make([]byte, len(payload))
	n := file.ReadAt(0, buf)
	printf("wrote %d bytes, read back %q\n", n, string(buf[:n]))
	printf("root directory: %v\n", root.Ls())

	k := sc.New(clock.RealClock{}, sc.NewVFSLoader(root))

	printf("\n== mutex deadlock scenario (detection off) ==\n")
	runDeadlockScenario(printf, k, false)

	printf("\n== mutex deadlock scenario (detection on) ==\n")
	runDeadlockScenario(printf, k, true)

	printf("\n== mmap/munmap address-space round trip ==\n")
	runMmapScenario(printf, k)

	printf("\n== fork three children, waitpid a fourth time ==\n")
	return runForkScenario(printf, k)
}

// runDeadlockScenario has two threads of the same process each hold one of
// two mutexes, then each request the other's, the classic circular-wait
// setup. Thread A's cross-request runs on its own goroutine since, with
// only one side's request on record, the Banker's check still finds the
// state safe and a real (blocking) lock follows; only once thread B's
// cross-request lands, completing the cycle on record, does the detector
// have enough information to refuse one side outright. With detection off
// neither request is ever refused and the two threads genuinely deadlock,
// so the demo stops short of making thread B's call in that case.
func runDeadlockScenario(printf func(string, ...any), k *sc.Kernel, detect bool) {
	p := k.Spawn()
	p.SetDeadlockDetect(detect)
	m0 := int(k.MutexCreate(p, true))
	m1 := int(k.MutexCreate(p, true))
	tidA := p.MainThread()
	tidB := p.SpawnThread()

	k.MutexLock(p, tidA, m0)
	k.MutexLock(p, tidB, m1)

	aBlocked := make(chan struct{})
	go func() {
		k.MutexLock(p, tidA, m1) // parks until m1 is freed below
		close(aBlocked)
	}()
	time.Sleep(10 * time.Millisecond) // let A's request land before B's

	if !detect {
		printf("detection disabled: thread A is now blocked waiting on mutex %d,\n", m1)
		printf("and thread B requesting mutex %d next would complete the deadlock with no way\n", m0)
		printf("out, so the demo stops short of making that call.\n")
		k.MutexUnlock(p, tidB, m1)
		<-aBlocked
		k.MutexUnlock(p, tidA, m1)
		k.MutexUnlock(p, tidA, m0)
		return
	}

	codeB := k.MutexLock(p, tidB, m0)
	if codeB != int64(ksync.ErrDeadlockAvoided) {
		printf("unexpected result %d for thread B's cross-request\n", codeB)
		return
	}
	printf("thread B's request for mutex %d was refused: %#x (deadlock avoided)\n", m0, uint32(codeB))
	k.MutexUnlock(p, tidB, m1)
	<-aBlocked
	k.MutexUnlock(p, tidA, m1)
	k.MutexUnlock(p, tidA, m0)
}

func runMmapScenario(printf func(string, ...any), k *sc.Kernel) {
	p := k.Spawn()
	const start = 4096 * 16
	const length = 4096 * 2
	const port = 0x3 // read | write

	if code := k.Mmap(p, start, length, port); code != 0 {
		printf("mmap failed unexpectedly: %d\n", code)
		return
	}
	printf("mapped %d bytes at %#x\n", length, start)

	if code := k.Munmap(p, start, length); code != 0 {
		printf("munmap failed unexpectedly: %d\n", code)
		return
	}
	printf("unmapped %d bytes at %#x; remapping the same range now succeeds again\n", length, start)

	if code := k.Mmap(p, start, length, port); code != 0 {
		printf("remap after munmap failed: %d (address space was not fully restored)\n", code)
		return
	}
	printf("remap after munmap succeeded: address space restoration confirmed\n")
}

// runForkScenario has a parent fork three children concurrently (each
// exiting with a distinct code), waits for all three, then calls waitpid a
// fourth time, which must report no children left (-1).
func runForkScenario(printf func(string, ...any), k *sc.Kernel) error {
	parent := k.Spawn()

	var g errgroup.Group
	children := make(chan proc.Pid, 3)
	for i := int32(0); i < 3; i++ {
		exitCode := i + 1
		g.Go(func() error {
			childPid := k.Fork(parent)
			child, _ := k.Lookup(childPid)
			k.Exit(child, exitCode)
			children <- childPid
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	close(children)

	reaped := map[proc.Pid]int32{}
	for range children {
		childPid, exitCode, _ := k.Waitpid(parent, -1)
		reaped[childPid] = exitCode
	}
	printf("reaped %d children: %v\n", len(reaped), reaped)

	_, _, status := k.Waitpid(parent, -1)
	printf("fourth waitpid on an empty child set returned status %d\n", status)
	return nil
}
