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

package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"

	"text2diag/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	metrics    bool
}

// NewRouter 创建新的 HTTP 路由器；默认暴露 /metrics
func NewRouter(handler *Handler, middleware *middleware.Middleware) *Router {
	return &Router{
		handler:    handler,
		middleware: middleware,
		metrics:    true,
	}
}

// SetMetricsEnabled 是否注册 /metrics，需在 Build/Register 之前调用
func (r *Router) SetMetricsEnabled(enabled bool) {
	r.metrics = enabled
}

// Build 创建 Hertz 服务并注册路由；opts 追加在监听地址之后（如 tracing 选项）
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	all := append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(all...)
	r.Register(h)
	return h
}

// Register 在已有服务上注册中间件与路由
func (r *Router) Register(h *server.Hertz) {
	h.Use(r.middleware.AccessLog(), r.middleware.CORS())

	if r.metrics {
		h.GET("/metrics", r.handler.Metrics)
	}

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)
	api.GET("/models", r.handler.ListModels)
	api.POST("/validate", r.handler.Validate)

	api.POST("/predict", r.middleware.RateLimit(), r.handler.Predict)
	api.POST("/predict/batch", r.middleware.RateLimit(), r.handler.PredictBatch)
}
