// Copyright 2024 Google LLC
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

package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the root configuration struct, bound from flags and (optionally)
// a YAML config file.
type Config struct {
	AppName string `yaml:"app-name"`

	Debug DebugConfig `yaml:"debug"`

	BlockCache BlockCacheConfig `yaml:"block-cache"`

	Scheduler SchedulerConfig `yaml:"scheduler"`

	Detector DetectorConfig `yaml:"detector"`

	Logging LoggingConfig `yaml:"logging"`

	FileSystem FileSystemConfig `yaml:"file-system"`
}

type DebugConfig struct {
	// PanicOnInvariantViolation is bound from the debug_invariants flag. No
	// code in this module reads it: the kernel's invariant checks panic
	// whatever its value.
	PanicOnInvariantViolation bool `yaml:"panic-on-invariant-violation"`

	// LogMutex is bound from the debug_mutex flag. No code in this module
	// reads it, so it produces no mutex debug output.
	LogMutex bool `yaml:"log-mutex"`
}

type BlockCacheConfig struct {
	// CapacityFrames is the number of block-sized frames the LRU block cache holds.
	CapacityFrames int `yaml:"capacity-frames"`

	// DeviceBlockSize is the size in bytes of one on-disk block.
	DeviceBlockSize int `yaml:"device-block-size"`
}

type SchedulerConfig struct {
	// TimesliceMs is informational bookkeeping only: the ready queue is a
	// FIFO ordering structure, not a preemption timer, since real goroutines
	// (not cooperative tasks) do the actual running.
	TimesliceMs int `yaml:"timeslice-ms"`
}

type DetectorConfig struct {
	// EnabledByDefault is the initial value of a process's deadlock-detection
	// flag, before any enable_deadlock_detect syscall is made.
	EnabledByDefault bool `yaml:"enabled-by-default"`
}

type LoggingConfig struct {
	Severity LogSeverity `yaml:"severity"`

	Format string `yaml:"format"`

	FilePath ResolvedPath `yaml:"file-path"`

	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`
}

type LogRotateLoggingConfig struct {
	MaxFileSizeMb int `yaml:"max-file-size-mb"`

	BackupFileCount int `yaml:"backup-file-count"`

	Compress bool `yaml:"compress"`
}

type FileSystemConfig struct {
	FileMode Octal `yaml:"file-mode"`

	Uid int `yaml:"uid"`
}

func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("app-name", "", "easykernel", "The application name reported in logs.")
	if err = viper.BindPFlag("app-name", flagSet.Lookup("app-name")); err != nil {
		return err
	}

	flagSet.BoolP("debug_invariants", "", false, "Panic when internal kernel invariants are violated.")
	if err = viper.BindPFlag("debug.panic-on-invariant-violation", flagSet.Lookup("debug_invariants")); err != nil {
		return err
	}

	flagSet.BoolP("debug_mutex", "", false, "Sets debug.log-mutex; no code reads this setting.")
	if err = viper.BindPFlag("debug.log-mutex", flagSet.Lookup("debug_mutex")); err != nil {
		return err
	}

	flagSet.IntP("block-cache-frames", "", 16, "Number of frames held by the block cache.")
	if err = viper.BindPFlag("block-cache.capacity-frames", flagSet.Lookup("block-cache-frames")); err != nil {
		return err
	}

	flagSet.IntP("device-block-size", "", 512, "Size in bytes of one on-disk block.")
	if err = viper.BindPFlag("block-cache.device-block-size", flagSet.Lookup("device-block-size")); err != nil {
		return err
	}

	flagSet.IntP("timeslice-ms", "", 10, "Informational scheduler timeslice, in milliseconds.")
	if err = viper.BindPFlag("scheduler.timeslice-ms", flagSet.Lookup("timeslice-ms")); err != nil {
		return err
	}

	flagSet.BoolP("enable-deadlock-detect", "", false, "Enable Banker's-algorithm deadlock detection by default for new processes.")
	if err = viper.BindPFlag("detector.enabled-by-default", flagSet.Lookup("enable-deadlock-detect")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", string(InfoLogSeverity), "Logging severity: TRACE, DEBUG, INFO, WARNING, ERROR, or OFF.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "json", "Logging output format: json or text.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "Path of the log file. Empty means log to stderr.")
	if err = viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.IntP("file-mode", "", 0644, "Permission bits for files, in octal.")
	if err = viper.BindPFlag("file-system.file-mode", flagSet.Lookup("file-mode")); err != nil {
		return err
	}

	flagSet.IntP("uid", "", -1, "UID owner of all inodes.")
	if err = viper.BindPFlag("file-system.uid", flagSet.Lookup("uid")); err != nil {
		return err
	}

	return nil
}
