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

package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"text2diag/internal/contract"
	"text2diag/internal/decision"
	"text2diag/internal/explain/attribution"
	"text2diag/internal/explain/faithfulness"
	"text2diag/internal/explain/spans"
	"text2diag/internal/model"
	"text2diag/pkg/errors"
	"text2diag/pkg/evidence"
	"text2diag/pkg/log"
	"text2diag/pkg/metrics"
	"text2diag/pkg/sanitize"
	"text2diag/pkg/tracing"
	"text2diag/pkg/utils"
)

// Example 输入样本；ID 为空时由清洗后文本生成
type Example struct {
	ID   string `json:"example_id,omitempty"`
	Text string `json:"text"`
}

// SkippedReasonLowProb 低概率跳过证据抽取
const SkippedReasonLowProb = "low_prob"

// SkippedReasonComputationPrefix 计算失败时的跳过原因前缀，后接失败阶段
const SkippedReasonComputationPrefix = "computation_error:"

// Predictor 单样本编排器，构建后只读，可并发调用 Predict
type Predictor struct {
	model      model.Classifier
	tok        model.Tokenizer
	thresholds decision.ThresholdSource
	sanitizer  *sanitize.Engine
	priors     evidence.Priors
	graphs     *evidence.Builder
	verifier   *faithfulness.Verifier
	opts       Options

	gate   *model.Gate
	logger *log.Logger
	now    func() time.Time
	runID  string
}

// Option 可选依赖
type Option func(*Predictor)

// WithGate 模型副本闸门
func WithGate(g *model.Gate) Option { return func(p *Predictor) { p.gate = g } }

// WithLogger 日志
func WithLogger(l *log.Logger) Option { return func(p *Predictor) { p.logger = l } }

// WithClock 时钟，测试用
func WithClock(now func() time.Time) Option { return func(p *Predictor) { p.now = now } }

// WithRunID 写入 meta.run_id
func WithRunID(id string) Option { return func(p *Predictor) { p.runID = id } }

// WithPriors 依赖图先验，默认 evidence.DefaultPriors
func WithPriors(pr evidence.Priors) Option { return func(p *Predictor) { p.priors = pr } }

// NewPredictor 创建编排器；sanitizer 为 nil 时使用默认策略
func NewPredictor(c model.Classifier, tok model.Tokenizer, thresholds decision.ThresholdSource, sanitizer *sanitize.Engine, opts Options, options ...Option) (*Predictor, error) {
	if c == nil || tok == nil {
		return nil, errors.Wrap(errors.ErrInvalidArg, "classifier and tokenizer are required")
	}
	if len(c.Labels()) == 0 {
		return nil, errors.Wrap(errors.ErrResourceUnavailable, "classifier has no labels")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if sanitizer == nil {
		sanitizer = sanitize.NewEngine(sanitize.DefaultPolicy())
	}
	p := &Predictor{
		model:      c,
		tok:        tok,
		thresholds: thresholds,
		sanitizer:  sanitizer,
		priors:     evidence.DefaultPriors(),
		graphs:     evidence.NewBuilder(),
		verifier:   faithfulness.NewVerifier(c, tok, opts.MinDelta),
		opts:       opts,
		now:        time.Now,
	}
	for _, o := range options {
		o(p)
	}
	if p.logger == nil {
		p.logger = log.Discard()
	}
	p.logger = p.logger.Component("pipeline")
	return p, nil
}

// Options 当前参数
func (p *Predictor) Options() Options { return p.opts }

// Labels 模型 label 顺序
func (p *Predictor) Labels() []string { return p.model.Labels() }

// Predict 产出一条定稿记录；只有全文前向失败或 ctx 取消时返回错误
func (p *Predictor) Predict(ctx context.Context, ex Example) (contract.Output, error) {
	start := time.Now()
	ctx, span := tracing.StartExampleSpan(ctx, ex.ID, len(ex.Text))
	out, err := p.predict(ctx, ex)
	tracing.End(span, err)
	metrics.ExampleDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		metrics.ExampleTotal.WithLabelValues("failed").Inc()
		p.logger.Error("predict failed", "example_id", ex.ID, "error", err)
	case out.Abstain.IsAbstain:
		metrics.ExampleTotal.WithLabelValues("abstained").Inc()
	default:
		metrics.ExampleTotal.WithLabelValues("decided").Inc()
	}
	return out, err
}

func (p *Predictor) predict(ctx context.Context, ex Example) (contract.Output, error) {
	if p.gate != nil {
		if err := p.gate.Acquire(ctx); err != nil {
			return contract.Output{}, err
		}
		defer p.gate.Release()
	}

	// 1. 清洗
	done := observe("sanitize")
	cleaned := sanitize.Skip(ex.Text)
	if p.opts.Sanitize {
		cleaned = p.sanitizer.Sanitize(ex.Text)
	}
	done()
	text := cleaned.Text

	exampleID := ex.ID
	if exampleID == "" {
		sum := sha256.Sum256([]byte(text))
		exampleID = "gen_" + hex.EncodeToString(sum[:])[:12]
	}
	logger := p.logger.With("example_id", exampleID)

	// 2. 全文前向
	logits, err := p.forward(ctx, text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return contract.Output{}, ctxErr
		}
		return contract.Output{}, NewPipelineError("forward", exampleID, "full-text forward pass failed", err)
	}
	probs := model.Calibrate(logits, p.opts.Temperature)

	// 3. 阈值与决策
	names := p.model.Labels()
	labels := make([]contract.Label, len(names))
	decisions := make([]int, len(names))
	for i, name := range names {
		prob := utils.Round4(probs[i])
		th, src := p.thresholds.Resolve(name)
		d := decision.Decide(prob, th)
		labels[i] = contract.Label{
			Name:            name,
			ProbCalibrated:  prob,
			Decision:        d,
			ThresholdUsed:   th,
			ThresholdSource: string(src),
			EvidenceSpans:   []contract.EvidenceSpan{},
			Faithfulness:    contract.Faithfulness{Status: string(faithfulness.StatusNotRequested)},
			EvidenceMeta:    p.evidenceMeta(),
		}
		decisions[i] = d
	}

	// 4. 证据
	if p.opts.Explain {
		for _, idx := range topIndices(roundedProbs(labels), p.opts.TopLabels) {
			if err := p.explain(ctx, text, idx, &labels[idx], logger); err != nil {
				return contract.Output{}, err
			}
		}
	}

	now := p.now().UTC()
	timestamp := p.opts.CalibrationTimestamp
	if timestamp == "" {
		timestamp = now.Format(time.RFC3339)
	}
	out := contract.Output{
		Version:   contract.Version,
		ExampleID: exampleID,
		ModelInfo: contract.ModelInfo{
			ModelName:  p.opts.ModelName,
			Checkpoint: p.opts.Checkpoint,
			MaxLen:     p.opts.MaxLen,
			WindowSize: p.opts.WindowSize,
		},
		Calibration: contract.Calibration{
			Method:      p.opts.CalibrationMethod,
			Temperature: p.opts.Temperature,
			Timestamp:   timestamp,
		},
		Labels:  labels,
		Abstain: contract.Abstain{Reasons: []string{}},
		Meta: contract.Meta{
			CreatedAt: now.Format(time.RFC3339),
			RunID:     p.runID,
			Preprocessing: contract.Preprocessing{
				Sanitized:    p.opts.Sanitize,
				RulesApplied: cleaned.RulesApplied,
				SanitizationAudit: contract.SanitizationAudit{
					Version: cleaned.Audit.Version,
					SHA256:  cleaned.Audit.SHA256,
				},
			},
		},
	}

	// 5. 依赖图
	if p.opts.Graph {
		p.attachGraphs(&out, names, decisions, logger)
	}

	// 6. 契约定稿
	done = observe("contract")
	final, rep := contract.Finalize(out)
	done()
	if rep.Repaired {
		metrics.ContractRepairTotal.WithLabelValues("repaired").Inc()
	}
	if len(rep.Residual) > 0 {
		metrics.ContractRepairTotal.WithLabelValues("residual").Inc()
		logger.Warn("contract violations remain after repair", "violations", rep.Residual, "dropped_labels", rep.DroppedLabels)
	}

	// 7. 弃权
	state, kinds := p.opts.Abstain.Evaluate(decision.AbstainInput{
		TextLen:    utf8.RuneCountInString(text),
		ContractOK: len(rep.Residual) == 0,
		Probs:      final.Probs(),
	})
	final.Abstain.Reasons = append(final.Abstain.Reasons, state.Reasons...)
	final.Abstain.IsAbstain = final.Abstain.IsAbstain || state.IsAbstain
	for _, k := range kinds {
		metrics.AbstainTotal.WithLabelValues(string(k)).Inc()
	}

	if p.opts.ExplanationGraph {
		final.ExplanationGraph = p.graphs.BuildExplanationGraph(final.ExplanationInput())
	}

	logger.Info("example processed",
		"labels", len(final.Labels),
		"active", len(evidence.ActiveNodes(names, decisions)),
		"abstain", final.Abstain.IsAbstain,
		"reasons", len(final.Abstain.Reasons),
	)
	return final, nil
}

func (p *Predictor) forward(ctx context.Context, text string) ([]float64, error) {
	ctx, span := tracing.StartStageSpan(ctx, "forward")
	done := observe("forward")
	logits, err := p.model.Forward(ctx, p.tok.Encode(text))
	done()
	if err == nil && len(logits) != len(p.model.Labels()) {
		err = fmt.Errorf("forward returned %d logits for %d labels", len(logits), len(p.model.Labels()))
	}
	tracing.End(span, err)
	return logits, err
}

func (p *Predictor) evidenceMeta() contract.EvidenceMeta {
	meta := contract.EvidenceMeta{Method: string(p.opts.Method)}
	if p.opts.Method == attribution.MethodIntegratedGradients {
		meta.IGSteps = p.opts.IGSteps
	}
	return meta
}

// explain 单个 label 的证据抽取与遮挡验证；计算失败记为 skipped_computation_error，只有 ctx 取消时返回错误
func (p *Predictor) explain(ctx context.Context, text string, idx int, lbl *contract.Label, logger *slog.Logger) (err error) {
	ctx, span := tracing.StartLabelSpan(ctx, lbl.Name, string(p.opts.Method))
	defer func() { tracing.End(span, err) }()

	if lbl.ProbCalibrated < p.opts.EvidenceMinProb {
		minProb := p.opts.EvidenceMinProb
		lbl.EvidenceMeta.SkippedReason = SkippedReasonLowProb
		lbl.EvidenceMeta.MinProb = &minProb
		lbl.Faithfulness.Status = string(faithfulness.StatusSkippedLowProb)
		metrics.EvidenceSkippedTotal.WithLabelValues(string(faithfulness.StatusSkippedLowProb)).Inc()
		return nil
	}

	skip := func(stage string, cause error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		lbl.EvidenceMeta.SkippedReason = SkippedReasonComputationPrefix + stage
		lbl.Faithfulness.Status = string(faithfulness.StatusSkippedComputationError)
		metrics.EvidenceSkippedTotal.WithLabelValues(string(faithfulness.StatusSkippedComputationError)).Inc()
		logger.Warn("evidence computation failed", "label", lbl.Name, "stage", stage, "error", cause)
		return nil
	}

	done := observe("attribution")
	attrs, aerr := attribution.Compute(ctx, p.model, p.tok, text, idx, attribution.Options{Method: p.opts.Method, Steps: p.opts.IGSteps})
	done()
	if aerr != nil {
		return skip("attribution", aerr)
	}

	done = observe("spans")
	selected := spans.Select(attrs, text, spans.Options{TopK: p.opts.TopKTokens, MaxSpans: p.opts.MaxSpans})
	done()
	if len(selected) == 0 {
		lbl.Faithfulness.Status = string(faithfulness.StatusSkippedNoSpans)
		metrics.EvidenceSkippedTotal.WithLabelValues(string(faithfulness.StatusSkippedNoSpans)).Inc()
		return nil
	}

	done = observe("faithfulness")
	res, verr := p.verifier.Verify(ctx, text, selected, idx, p.opts.Temperature)
	done()
	if verr != nil {
		return skip("faithfulness", verr)
	}

	lbl.EvidenceSpans = make([]contract.EvidenceSpan, len(selected))
	for i, s := range selected {
		lbl.EvidenceSpans[i] = contract.EvidenceSpan{Start: s.Start, End: s.End, Score: s.Score, Snippet: s.Snippet}
	}
	pFull, pMasked := res.PFull, res.PMasked
	lbl.Faithfulness = contract.Faithfulness{
		Delta:      res.Delta,
		IsFaithful: res.IsFaithful,
		Status:     string(res.Status),
		PFull:      &pFull,
		PMasked:    &pMasked,
		Flag:       res.Flag,
	}
	metrics.FaithfulnessTotal.WithLabelValues(string(res.Status)).Inc()
	return nil
}

// attachGraphs topk 图写入 dependency_graph 与 dependency_graph_topk，active 图可选
func (p *Predictor) attachGraphs(out *contract.Output, names []string, decisions []int, logger *slog.Logger) {
	probs := make(map[string]float64, len(out.Labels))
	for _, l := range out.Labels {
		probs[l.Name] = l.ProbCalibrated
	}
	topk := evidence.BuildDependencyGraph(p.priors, evidence.TopKNodes(probs, p.opts.GraphTopK), probs)
	p.recordDropped(topk, "topk", logger)
	out.DependencyGraphTopK = &topk
	out.DependencyGraph = topk.Clone()

	if p.opts.GraphActive {
		active := evidence.BuildDependencyGraph(p.priors, evidence.ActiveNodes(names, decisions), probs)
		p.recordDropped(active, "active", logger)
		out.DependencyGraphActive = &active
	}
}

func (p *Predictor) recordDropped(g evidence.DependencyGraph, mode string, logger *slog.Logger) {
	if len(g.Dropped) == 0 {
		return
	}
	metrics.GraphEdgesDroppedTotal.Add(float64(len(g.Dropped)))
	logger.Warn("dependency graph cycle broken", "mode", mode, "dropped", len(g.Dropped))
}

// topIndices 按概率降序取前 n 个下标，同概率按下标
func topIndices(probs []float64, n int) []int {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})
	if n < len(idx) {
		idx = idx[:n]
	}
	return idx
}

func roundedProbs(labels []contract.Label) []float64 {
	out := make([]float64, len(labels))
	for i, l := range labels {
		out[i] = l.ProbCalibrated
	}
	return out
}

// observe 返回结束计时函数
func observe(stage string) func() {
	start := time.Now()
	return func() {
		metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
