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

// Package api 装配 Hertz 服务：路由、中间件、日志与链路追踪
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"text2diag/internal/api/http"
	"text2diag/internal/api/http/middleware"
	"text2diag/internal/app"
	"text2diag/pkg/log"
)

// App API 应用（装配 HTTP Router、Handler、Middleware）
type App struct {
	bootstrap *app.Bootstrap
	router    *http.Router
	hertz     *server.Hertz
	logFile   io.Closer
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	if bootstrap == nil || bootstrap.Predictor == nil {
		return nil, fmt.Errorf("bootstrap with predictor is required")
	}
	handler := http.NewHandler(bootstrap.Predictor, bootstrap.NewBatch(), bootstrap.Registry.Names, bootstrap.Logger)
	mw := middleware.NewMiddleware(
		middleware.WithLogger(bootstrap.Logger),
		middleware.WithRateLimit(bootstrap.Config.Batch.RatePerSecond, bootstrap.Config.Batch.Burst),
	)
	return &App{
		bootstrap: bootstrap,
		router:    http.NewRouter(handler, mw),
	}, nil
}

// Addr 监听地址
func (a *App) Addr() string {
	cfg := a.bootstrap.Config
	return fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
}

// Run 启动 HTTP 服务，阻塞直到服务关闭
func (a *App) Run(addr string) error {
	a.bootstrap.Logger.Info("API 服务启动", "addr", addr)

	// 使用 Hertz slog 扩展，与 bootstrap 配置对齐
	cfg := a.bootstrap.Config
	var output io.Writer = os.Stdout
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		output = f
		a.logFile = f
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(cfg.Log.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	a.router.SetMetricsEnabled(cfg.Monitoring.Prometheus.Enable)

	// 可选：链路追踪（全局 provider 由 bootstrap 初始化）
	if cfg.Monitoring.Tracing.Enable {
		tracerOpt, tracerCfg := hertztracing.NewServerTracer()
		a.hertz = a.router.Build(addr, tracerOpt)
		a.hertz.Use(hertztracing.ServerMiddleware(tracerCfg))
		a.bootstrap.Logger.Info("链路追踪已启用", "service_name", cfg.Monitoring.Tracing.ServiceName)
	} else {
		a.hertz = a.router.Build(addr)
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("关闭 HTTP 服务失败: %w", err)
		}
	}
	if err := a.bootstrap.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
	return firstErr
}
