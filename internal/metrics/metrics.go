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

// Package metrics exposes the kernel's runtime counters through
// prometheus/client_golang: block cache hit/miss/eviction, deadlock-detector
// vetoes, and per-syscall-number invocation counts (the same counts
// task_info reports back to a process, surfaced here process-wide).
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Handle is the interface kernel components log counters through: a narrow,
// domain-named method set rather than exposing raw prometheus types to
// callers.
type Handle interface {
	BlockCacheHit()
	BlockCacheMiss()
	BlockCacheEviction()
	DeadlockVeto()
	Syscall(num int)
}

type prometheusMetrics struct {
	blockCacheHits      prometheus.Counter
	blockCacheMisses    prometheus.Counter
	blockCacheEvictions prometheus.Counter
	deadlockVetoes      prometheus.Counter
	syscalls            *prometheus.CounterVec
}

// NewPrometheusMetrics registers the kernel's counters against reg and
// returns a Handle backed by them.
func NewPrometheusMetrics(reg prometheus.Registerer) Handle {
	m := &prometheusMetrics{
		blockCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "easykernel",
			Subsystem: "block_cache",
			Name:      "hits_total",
			Help:      "Number of block cache lookups served from a resident frame.",
		}),
		blockCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "easykernel",
			Subsystem: "block_cache",
			Name:      "misses_total",
			Help:      "Number of block cache lookups that required a device read.",
		}),
		blockCacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "easykernel",
			Subsystem: "block_cache",
			Name:      "evictions_total",
			Help:      "Number of frames evicted to make room for a new block.",
		}),
		deadlockVetoes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "easykernel",
			Subsystem: "detector",
			Name:      "vetoes_total",
			Help:      "Number of mutex/semaphore requests refused because granting them would leave the system unsafe.",
		}),
		syscalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "easykernel",
			Subsystem: "syscall",
			Name:      "invocations_total",
			Help:      "Number of times each syscall number has been dispatched.",
		}, []string{"num"}),
	}
	reg.MustRegister(m.blockCacheHits, m.blockCacheMisses, m.blockCacheEvictions, m.deadlockVetoes, m.syscalls)
	return m
}

func (m *prometheusMetrics) BlockCacheHit()      { m.blockCacheHits.Inc() }
func (m *prometheusMetrics) BlockCacheMiss()      { m.blockCacheMisses.Inc() }
func (m *prometheusMetrics) BlockCacheEviction() { m.blockCacheEvictions.Inc() }
func (m *prometheusMetrics) DeadlockVeto()       { m.deadlockVetoes.Inc() }
func (m *prometheusMetrics) Syscall(num int) {
	m.syscalls.WithLabelValues(strconv.Itoa(num)).Inc()
}
