// Copyright 2026 fanjia1024
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

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API/CLI 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		ExampleDuration, ExampleTotal, AbstainTotal,
		StageDuration, EvidenceSkippedTotal, FaithfulnessTotal,
		ContractRepairTotal, CacheLookupTotal, GraphEdgesDroppedTotal,
		HTTPRequestTotal,
	)
}

// ExampleDuration 单个样本处理耗时（秒）
var ExampleDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "text2diag_example_duration_seconds",
		Help:    "单个样本处理耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
)

// ExampleTotal 样本总数（按结果）
var ExampleTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "text2diag_example_total",
		Help: "样本总数（按结果）",
	},
	[]string{"outcome"}, // decided | abstained | failed
)

// AbstainTotal 弃权原因计数
var AbstainTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "text2diag_abstain_total",
		Help: "弃权原因计数",
	},
	[]string{"kind"}, // short_input | contract | low_confidence
)

// StageDuration 各阶段耗时（秒）
var StageDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "text2diag_stage_duration_seconds",
		Help:    "各阶段耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"stage"}, // sanitize | forward | attribution | spans | faithfulness | contract
)

// EvidenceSkippedTotal 证据跳过计数
var EvidenceSkippedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "text2diag_evidence_skipped_total",
		Help: "证据跳过计数",
	},
	[]string{"reason"},
)

// FaithfulnessTotal 遮挡验证结果计数
var FaithfulnessTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "text2diag_faithfulness_total",
		Help: "遮挡验证结果计数",
	},
	[]string{"status"},
)

// ContractRepairTotal 契约修复计数
var ContractRepairTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "text2diag_contract_repair_total",
		Help: "契约修复计数",
	},
	[]string{"result"}, // repaired | residual
)

// CacheLookupTotal logits 缓存命中情况
var CacheLookupTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "text2diag_cache_lookup_total",
		Help: "logits 缓存查询",
	},
	[]string{"result"}, // hit | miss | error
)

// GraphEdgesDroppedTotal 为消除环而丢弃的边数
var GraphEdgesDroppedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "text2diag_graph_edges_dropped_total",
		Help: "为消除环而丢弃的边数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// HTTPRequestTotal API 请求计数
var HTTPRequestTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "text2diag_http_requests_total",
		Help: "API 请求计数",
	},
	[]string{"route", "code"},
)
