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

package util

import (
	"os"
	"path/filepath"
	"strings"
)

// KernelParentProcessDir lets a child process (spawned by cmd's own process,
// not a kernel-simulated one) resolve relative paths against its parent's
// working directory instead of its own.
const KernelParentProcessDir = "EASYKERNEL_PARENT_PROCESS_DIR"

// GetResolvedPath resolves path to an absolute path. A leading "~" expands to
// the user's home directory; anything else relative is joined against
// KernelParentProcessDir if set, or the current working directory otherwise.
func GetResolvedPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}

	if filepath.IsAbs(path) {
		return path, nil
	}

	base := os.Getenv(KernelParentProcessDir)
	if base == "" {
		var err error
		base, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(base, path), nil
}
