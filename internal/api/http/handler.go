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

// Package http 基于 Hertz 的推理 API：单条/批量预测、契约校验、模型列表与指标
package http

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"text2diag/internal/contract"
	"text2diag/internal/pipeline"
	"text2diag/pkg/errors"
	"text2diag/pkg/log"
	"text2diag/pkg/metrics"
)

// MaxBatchSize 单次批量请求的样本上限
const MaxBatchSize = 256

// prometheusContentType Prometheus 文本格式
const prometheusContentType = "text/plain; version=0.0.4; charset=utf-8"

// Handler HTTP 处理器
type Handler struct {
	predictor *pipeline.Predictor
	batch     *pipeline.Batch
	models    func() []string
	logger    *log.Logger
	started   time.Time
}

// NewHandler 创建新的 HTTP 处理器；models 返回已注册模型名，可为 nil
func NewHandler(predictor *pipeline.Predictor, batch *pipeline.Batch, models func() []string, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Discard()
	}
	return &Handler{
		predictor: predictor,
		batch:     batch,
		models:    models,
		logger:    logger.Component("http"),
		started:   time.Now(),
	}
}

type predictRequest struct {
	ExampleID string  `json:"example_id"`
	Text      *string `json:"text"`
}

type batchRequest struct {
	Examples []predictRequest `json:"examples"`
}

type errorResponse struct {
	Error      string   `json:"error"`
	Violations []string `json:"violations,omitempty"`
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, map[string]any{
		"status":         "ok",
		"service":        "text2diag",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// ListModels 已注册模型与 label
func (h *Handler) ListModels(ctx context.Context, c *app.RequestContext) {
	var names []string
	if h.models != nil {
		names = h.models()
	}
	resp := map[string]any{"models": names}
	if h.predictor != nil {
		resp["labels"] = h.predictor.Labels()
		resp["contract_version"] = contract.Version
	}
	c.JSON(consts.StatusOK, resp)
}

// Predict 单条预测
// POST /api/predict {"example_id": "...", "text": "..."}
func (h *Handler) Predict(ctx context.Context, c *app.RequestContext) {
	if h.predictor == nil {
		c.JSON(consts.StatusServiceUnavailable, errorResponse{Error: "predictor is not configured"})
		return
	}
	var req predictRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if req.Text == nil {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "text is required"})
		return
	}
	out, err := h.predictor.Predict(ctx, pipeline.Example{ID: req.ExampleID, Text: *req.Text})
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, out)
}

// PredictBatch 批量预测，输出顺序与输入一致
// POST /api/predict/batch {"examples": [{"example_id": "...", "text": "..."}]}
func (h *Handler) PredictBatch(ctx context.Context, c *app.RequestContext) {
	if h.batch == nil {
		c.JSON(consts.StatusServiceUnavailable, errorResponse{Error: "batch runner is not configured"})
		return
	}
	var req batchRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if len(req.Examples) == 0 {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "examples must not be empty"})
		return
	}
	if len(req.Examples) > MaxBatchSize {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: fmt.Sprintf("too many examples: %d > %d", len(req.Examples), MaxBatchSize)})
		return
	}
	examples := make([]pipeline.Example, len(req.Examples))
	for i, e := range req.Examples {
		if e.Text == nil {
			c.JSON(consts.StatusBadRequest, errorResponse{Error: fmt.Sprintf("examples[%d]: text is required", i)})
			return
		}
		examples[i] = pipeline.Example{ID: e.ExampleID, Text: *e.Text}
	}
	outs, err := h.batch.Run(ctx, examples)
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]any{"records": outs, "total": len(outs)})
}

// Validate 校验外部契约记录
// POST /api/validate <record JSON>
func (h *Handler) Validate(ctx context.Context, c *app.RequestContext) {
	err := contract.ValidateJSON(c.Request.Body())
	var cv *errors.ContractViolation
	switch {
	case err == nil:
		c.JSON(consts.StatusOK, map[string]any{"valid": true, "violations": []string{}})
	case stderrors.As(err, &cv):
		c.JSON(consts.StatusUnprocessableEntity, map[string]any{"valid": false, "violations": cv.Violations})
	default:
		c.JSON(consts.StatusBadRequest, errorResponse{Error: err.Error()})
	}
}

// Metrics Prometheus 指标
// GET /metrics
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		h.logger.Error("gather metrics failed", "error", err)
		c.JSON(consts.StatusInternalServerError, errorResponse{Error: "gather metrics failed"})
		return
	}
	c.Data(consts.StatusOK, prometheusContentType, buf.Bytes())
}

// fail 编排错误 → HTTP 状态码
func (h *Handler) fail(ctx context.Context, c *app.RequestContext, err error) {
	status := consts.StatusInternalServerError
	switch {
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		status = consts.StatusServiceUnavailable
	case stderrors.Is(err, errors.ErrInvalidArg):
		status = consts.StatusBadRequest
	}
	h.logger.Error("request failed", "path", string(c.Path()), "status", status, "error", err)
	c.JSON(status, errorResponse{Error: err.Error()})
}
