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

	"github.com/oslab/easykernel/cfg"
	"github.com/oslab/easykernel/internal/config"
	"github.com/oslab/easykernel/internal/logger"
	"github.com/oslab/easykernel/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	runtimeConfig cfg.Config
)

// NewRootCmd builds the easykernel root command. Subcommands attach under
// it with AddCommand; PersistentPreRunE validates the fully bound config
// before any of them run.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "easykernel",
		Short: "A teaching operating system kernel: filesystem image tooling and scenario demos",
		Long: `easykernel formats and inspects on-disk filesystem images and runs
scenario demonstrations of its process/thread subsystem: address-space
mapping, synchronization primitives, and Banker's-algorithm deadlock
avoidance.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if bindErr != nil {
				return bindErr
			}
			if configFileErr != nil {
				return configFileErr
			}
			if unmarshalErr != nil {
				return unmarshalErr
			}
			if err := cfg.ValidateConfig(&runtimeConfig); err != nil {
				return err
			}
			return logger.InitLogFile(config.LogConfig{LogRotateConfig: config.LogRotateConfig{
				MaxFileSizeMB:   runtimeConfig.Logging.LogRotate.MaxFileSizeMb,
				BackupFileCount: runtimeConfig.Logging.LogRotate.BackupFileCount,
				Compress:        runtimeConfig.Logging.LogRotate.Compress,
			}}, runtimeConfig.Logging)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to the config file")
	bindErr = cfg.BindFlags(root.PersistentFlags())
	cobra.OnInitialize(initConfig)

	root.AddCommand(newMkfsCmd())
	root.AddCommand(newDemoCmd())
	return root
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&runtimeConfig, viper.DecodeHook(cfg.DecodeHook()))
		return
	}
	resolved, err := util.GetResolvedPath(cfgFile)
	if err != nil {
		configFileErr = fmt.Errorf("resolving config file path: %w", err)
		return
	}
	viper.SetConfigFile(resolved)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&runtimeConfig, viper.DecodeHook(cfg.DecodeHook()))
}

// Execute runs the root command, printing any error and exiting non-zero
// on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
