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

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 应用配置结构体（release 配置）
type Config struct {
	Model           ModelConfig           `mapstructure:"model"`
	Calibration     CalibrationConfig     `mapstructure:"calibration"`
	Thresholds      ThresholdsConfig      `mapstructure:"thresholds"`
	Sanitization    SanitizationConfig    `mapstructure:"sanitization"`
	Explain         ExplainConfig         `mapstructure:"explain"`
	Faithfulness    FaithfulnessConfig    `mapstructure:"faithfulness"`
	Abstain         AbstainConfig         `mapstructure:"abstain"`
	Graph           GraphConfig           `mapstructure:"graph"`
	Batch           BatchConfig           `mapstructure:"batch"`
	Cache           CacheConfig           `mapstructure:"cache"`
	API             APIConfig             `mapstructure:"api"`
	Log             LogConfig             `mapstructure:"log"`
	Monitoring      MonitoringConfig      `mapstructure:"monitoring"`
	Reproducibility ReproducibilityConfig `mapstructure:"reproducibility"`
}

// ModelConfig 分类器与分词器
type ModelConfig struct {
	Name       string `mapstructure:"name"`
	Checkpoint string `mapstructure:"checkpoint"` // 权重 JSON 路径
	MaxLen     int    `mapstructure:"max_len" validate:"gt=1"`
	WindowSize int    `mapstructure:"window_size" validate:"gte=0"`
	Replicas   int    `mapstructure:"replicas" validate:"gte=1"` // 模型副本数，每个副本同一时刻只服务一个请求
}

// CalibrationConfig 温度标定
type CalibrationConfig struct {
	Method          string  `mapstructure:"method"`
	Temperature     float64 `mapstructure:"temperature" validate:"gt=0"`
	TemperatureFile string  `mapstructure:"temperature_file"` // {"temperature": x}，存在时覆盖 Temperature
	Timestamp       string  `mapstructure:"timestamp"`
}

// ThresholdsConfig 阈值来源；File 与 PerLabel 合并，File 优先
type ThresholdsConfig struct {
	File     string             `mapstructure:"file"`
	Global   float64            `mapstructure:"global" validate:"gte=0,lte=1"`
	PerLabel map[string]float64 `mapstructure:"per_label"`
}

// SanitizationConfig 文本清洗策略
type SanitizationConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	StripURLs       bool `mapstructure:"strip_urls"`
	StripRedditRefs bool `mapstructure:"strip_reddit_refs"`
	StripUserRefs   bool `mapstructure:"strip_user_refs"`
	MaskConditions  bool `mapstructure:"mask_conditions"`
}

// ExplainConfig 证据抽取
type ExplainConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Method     string  `mapstructure:"method" validate:"oneof=grad_x_input integrated_gradients"`
	IGSteps    int     `mapstructure:"ig_steps" validate:"gte=2"`
	TopKTokens int     `mapstructure:"top_k_tokens" validate:"gte=1"`
	MaxSpans   int     `mapstructure:"max_spans" validate:"gte=1"`
	TopLabels  int     `mapstructure:"top_labels" validate:"gte=0"`
	MinProb    float64 `mapstructure:"min_prob" validate:"gte=0,lte=1"`
}

// FaithfulnessConfig 遮挡验证
type FaithfulnessConfig struct {
	MinDelta float64 `mapstructure:"min_delta" validate:"gte=0,lte=1"`
}

// AbstainConfig 弃权策略
type AbstainConfig struct {
	MinTextLen      int     `mapstructure:"min_text_len" validate:"gte=0"`
	ConfidenceFloor float64 `mapstructure:"confidence_floor" validate:"gte=0,lte=1"`
}

// GraphConfig 依赖图 / 解释图
type GraphConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	IncludeActive bool   `mapstructure:"include_active"`
	TopK          int    `mapstructure:"top_k" validate:"gte=1"`
	Explanation   bool   `mapstructure:"explanation"`
	PriorsFile    string `mapstructure:"priors_file"`
}

// BatchConfig 批处理
type BatchConfig struct {
	Concurrency   int     `mapstructure:"concurrency" validate:"gte=1"`
	RatePerSecond float64 `mapstructure:"rate_per_second" validate:"gte=0"` // 0 表示不限速
	Burst         int     `mapstructure:"burst" validate:"gte=0"`
}

// CacheConfig logits 缓存配置
type CacheConfig struct {
	Type     string `mapstructure:"type" validate:"oneof=none memory redis"`
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	TTL      string `mapstructure:"ttl"`
}

// TTLDuration 解析 TTL，空或非法时返回 0（不过期）
func (c CacheConfig) TTLDuration() time.Duration {
	if c.TTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 0
	}
	return d
}

// APIConfig API 服务配置
type APIConfig struct {
	Port int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	Host string `mapstructure:"host"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置；Enable 控制 API 服务是否暴露 /metrics
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// ReproducibilityConfig golden 运行所需的随机种子
type ReproducibilityConfig struct {
	Seed int64 `mapstructure:"seed"`
}

// setDefaults 与原始 release 配置的默认值保持一致
func setDefaults(v *viper.Viper) {
	v.SetDefault("model.name", "text2diag-mlp")
	v.SetDefault("model.max_len", 512)
	v.SetDefault("model.window_size", 3)
	v.SetDefault("model.replicas", 1)
	v.SetDefault("calibration.method", "temperature_scaling")
	v.SetDefault("calibration.temperature", 1.0)
	v.SetDefault("thresholds.global", 0.5)
	v.SetDefault("sanitization.enabled", true)
	v.SetDefault("sanitization.strip_urls", true)
	v.SetDefault("sanitization.strip_reddit_refs", true)
	v.SetDefault("sanitization.strip_user_refs", false)
	v.SetDefault("sanitization.mask_conditions", false)
	v.SetDefault("explain.enabled", true)
	v.SetDefault("explain.method", "grad_x_input")
	v.SetDefault("explain.ig_steps", 16)
	v.SetDefault("explain.top_k_tokens", 12)
	v.SetDefault("explain.max_spans", 3)
	v.SetDefault("explain.top_labels", 2)
	v.SetDefault("explain.min_prob", 0.10)
	v.SetDefault("faithfulness.min_delta", 0.03)
	v.SetDefault("abstain.min_text_len", 5)
	v.SetDefault("abstain.confidence_floor", 0.40)
	v.SetDefault("graph.enabled", false)
	v.SetDefault("graph.include_active", true)
	v.SetDefault("graph.top_k", 3)
	v.SetDefault("graph.explanation", false)
	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("batch.rate_per_second", 0)
	v.SetDefault("batch.burst", 1)
	v.SetDefault("cache.type", "none")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.prometheus.enable", true)
	v.SetDefault("monitoring.tracing.service_name", "text2diag")
	v.SetDefault("reproducibility.seed", 42)
}

// LoadConfig 加载配置文件；configPath 为空时仅使用默认值与环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TEXT2DIAG")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default 返回仅含默认值的配置
func Default() *Config {
	cfg, err := LoadConfig("")
	if err != nil {
		// 默认值自身必须通过校验
		panic(fmt.Sprintf("config defaults invalid: %v", err))
	}
	return cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 结构校验
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	return nil
}
