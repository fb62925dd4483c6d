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

package metrics

// NewNoopMetrics returns a Handle whose methods do nothing, for components
// constructed without a registry (most unit tests).
func NewNoopMetrics() Handle {
	var n noopMetrics
	return &n
}

type noopMetrics struct{}

func (*noopMetrics) BlockCacheHit()      {}
func (*noopMetrics) BlockCacheMiss()     {}
func (*noopMetrics) BlockCacheEviction() {}
func (*noopMetrics) DeadlockVeto()       {}
func (*noopMetrics) Syscall(int)         {}
