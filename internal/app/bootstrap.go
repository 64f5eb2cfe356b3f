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

// Package app 按配置装配模型、缓存、闸门与编排器，供 api 与 cli 复用
package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"text2diag/internal/model"
	"text2diag/internal/pipeline"
	"text2diag/internal/storage/cache"
	"text2diag/pkg/config"
	"text2diag/pkg/log"
	"text2diag/pkg/sanitize"
	"text2diag/pkg/tracing"
)

// Bootstrap 统一初始化：供 api 与 cli 复用，避免在 cmd 内写业务与 pipeline
type Bootstrap struct {
	Config    *config.Config
	Logger    *log.Logger
	Registry  *model.Registry
	Cache     cache.Store
	Gate      *model.Gate
	Predictor *pipeline.Predictor
	RunID     string

	tracer *sdktrace.TracerProvider
}

// NewBootstrap 根据配置创建 Bootstrap（Logger/Tracing/Model/Cache/Predictor）
func NewBootstrap(cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger, err := log.NewLogger(&log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return nil, fmt.Errorf("初始化日志failed: %w", err)
	}
	b, err := newBootstrap(cfg, logger)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	return b, nil
}

// NewBootstrapWithLogger 使用外部 Logger，测试与 CLI 用
func NewBootstrapWithLogger(cfg *config.Config, logger *log.Logger) (*Bootstrap, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = log.Discard()
	}
	return newBootstrap(cfg, logger)
}

func newBootstrap(cfg *config.Config, logger *log.Logger) (b *Bootstrap, err error) {
	b = &Bootstrap{
		Config:   cfg,
		Logger:   logger,
		Registry: model.NewRegistry(),
		RunID:    uuid.NewString(),
	}
	defer func() {
		if err != nil {
			_ = b.Close(context.Background())
		}
	}()

	if cfg.Monitoring.Tracing.Enable {
		b.tracer, err = tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    cfg.Monitoring.Tracing.ServiceName,
			ExportEndpoint: cfg.Monitoring.Tracing.ExportEndpoint,
			Insecure:       cfg.Monitoring.Tracing.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化 tracing failed: %w", err)
		}
	}

	loaded, err := LoadModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	if loaded.Demo {
		logger.Warn("model.checkpoint not set, using built-in demo weights", "model", loaded.Name)
	}
	var regOpts []model.RegisterOption
	if cfg.Explain.Enabled {
		regOpts = append(regOpts, model.RequireDifferentiable())
	}
	caps, err := b.Registry.Register(loaded.Name, loaded.Classifier, loaded.Tokenizer, regOpts...)
	if err != nil {
		return nil, err
	}
	logger.Info("model registered", "model", loaded.Name, "labels", caps.NumLabels,
		"differentiable", caps.Differentiable, "max_len", caps.MaxLen)

	b.Cache, err = cache.NewCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存failed: %w", err)
	}
	classifier := cache.Wrap(loaded.Name, loaded.Classifier, b.Cache, cfg.Cache.TTLDuration(), logger)

	temperature, err := ResolveTemperature(cfg.Calibration)
	if err != nil {
		return nil, err
	}
	thresholds, err := ResolveThresholds(cfg.Thresholds)
	if err != nil {
		return nil, err
	}
	priors, err := ResolvePriors(cfg.Graph)
	if err != nil {
		return nil, err
	}

	opts := pipeline.OptionsFromConfig(cfg)
	opts.ModelName = loaded.Name
	opts.Temperature = temperature
	replicas := model.Replicas(cfg.Model.Replicas, caps.Reentrant)
	if replicas < cfg.Model.Replicas {
		logger.Warn("classifier is not reentrant, serializing model access",
			"model", loaded.Name, "requested_replicas", cfg.Model.Replicas)
	}
	b.Gate = model.NewGate(model.GateConfig{
		Replicas:      replicas,
		RatePerSecond: cfg.Batch.RatePerSecond,
		Burst:         cfg.Batch.Burst,
	})
	b.Predictor, err = pipeline.NewPredictor(classifier, loaded.Tokenizer, thresholds, sanitize.NewEngine(SanitizePolicy(cfg.Sanitization)), opts,
		pipeline.WithGate(b.Gate),
		pipeline.WithLogger(logger),
		pipeline.WithRunID(b.RunID),
		pipeline.WithPriors(priors),
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// NewBatch 按配置并发度创建批处理器
func (b *Bootstrap) NewBatch() *pipeline.Batch {
	return pipeline.NewBatch(b.Predictor, b.Config.Batch.Concurrency)
}

// Close 关闭缓存、tracer 与日志文件
func (b *Bootstrap) Close(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if b.Cache != nil {
		keep(b.Cache.Close())
	}
	if b.tracer != nil {
		keep(b.tracer.Shutdown(ctx))
	}
	if b.Logger != nil {
		keep(b.Logger.Close())
	}
	return firstErr
}
