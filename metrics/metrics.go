// Copyright 2021 TiKV Authors
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

// Package metrics exposes the prometheus vectors the executor updates at
// each scheduling stage.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// SchedStageCounterVec counts command-tag x stage transitions:
	// snapshot_ok, snapshot_err, write, async_write_err,
	// prepare_write_err.
	SchedStageCounterVec = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txnkv",
			Subsystem: "scheduler",
			Name:      "stage_total",
			Help:      "Counter of scheduler stage transitions by command tag and stage.",
		}, []string{"tag", "stage"})

	// KeyWriteHistogramVec observes the row count written by a completed
	// write command, keyed by command tag.
	KeyWriteHistogramVec = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "txnkv",
			Subsystem: "scheduler",
			Name:      "command_key_write_total",
			Help:      "Bucketed count of keys written per completed write command.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"tag"})

	// CommandDurationHistogramVec observes the wall-clock time a worker
	// spends inside process_read/process_write per command tag.
	CommandDurationHistogramVec = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "txnkv",
			Subsystem: "scheduler",
			Name:      "command_duration_seconds",
			Help:      "Time spent inside process_read/process_write per command, by tag.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tag"})
)

func init() {
	prometheus.MustRegister(SchedStageCounterVec)
	prometheus.MustRegister(KeyWriteHistogramVec)
	prometheus.MustRegister(CommandDurationHistogramVec)
}
