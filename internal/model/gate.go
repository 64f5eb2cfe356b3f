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

package model

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// GateConfig 模型访问闸门配置
type GateConfig struct {
	Replicas      int     // 副本数 = 最大并发，每个副本同一时刻只服务一个样本
	RatePerSecond float64 // 每秒样本数，0 表示不限速
	Burst         int
}

// Replicas 可安全并发的副本数：不可重入的分类器只有一个实例，固定为 1
func Replicas(requested int, reentrant bool) int {
	if requested < 1 || !reentrant {
		return 1
	}
	return requested
}

// Gate 限制对模型副本的并发访问，可选限速
type Gate struct {
	semaphore chan struct{}
	limiter   *rate.Limiter
}

// NewGate 创建闸门
func NewGate(cfg GateConfig) *Gate {
	replicas := cfg.Replicas
	if replicas < 1 {
		replicas = 1
	}
	g := &Gate{semaphore: make(chan struct{}, replicas)}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return g
}

// Acquire 等待获取执行许可（阻塞直到可以执行）
func (g *Gate) Acquire(ctx context.Context) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("model rate limit wait failed: %w", err)
		}
	}
	select {
	case g.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release 释放副本
func (g *Gate) Release() {
	select {
	case <-g.semaphore:
	default:
	}
}

// InFlight 当前占用的副本数
func (g *Gate) InFlight() int {
	return len(g.semaphore)
}

// Capacity 副本总数
func (g *Gate) Capacity() int {
	return cap(g.semaphore)
}
