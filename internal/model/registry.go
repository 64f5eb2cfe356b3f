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
	"fmt"
	"sort"
	"sync"

	"text2diag/pkg/errors"
)

// Capabilities 注册时协商出的模型能力
type Capabilities struct {
	Differentiable bool
	EmbeddingDim   int
	NumLabels      int
	MaxLen         int
	Reentrant      bool
}

// Entry 注册表条目
type Entry struct {
	Name       string
	Classifier Classifier
	Tokenizer  Tokenizer
	Caps       Capabilities
}

// Differentiable 返回可求导视图；不具备该能力时返回 ErrComputation
func (e *Entry) Differentiable() (Differentiable, error) {
	d, ok := e.Classifier.(Differentiable)
	if !ok || !e.Caps.Differentiable {
		return nil, errors.Wrapf(errors.ErrComputation, "model %s has no differentiable path", e.Name)
	}
	return d, nil
}

// RegisterOption 注册选项
type RegisterOption func(*registerOptions)

type registerOptions struct {
	requireDifferentiable bool
}

// RequireDifferentiable 要求模型可求导（开启证据抽取时使用）
func RequireDifferentiable() RegisterOption {
	return func(o *registerOptions) { o.requireDifferentiable = true }
}

// Registry 模型注册表，按名称解析分类器与分词器，便于运行时切换
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register 注册模型并协商能力；不满足要求时直接失败，不留半注册状态
func (r *Registry) Register(name string, c Classifier, tok Tokenizer, opts ...RegisterOption) (Capabilities, error) {
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if name == "" || c == nil || tok == nil {
		return Capabilities{}, errors.Wrap(errors.ErrInvalidArg, "register: name, classifier and tokenizer are required")
	}
	labels := c.Labels()
	if len(labels) == 0 {
		return Capabilities{}, errors.Wrapf(errors.ErrResourceUnavailable, "model %s exposes no labels", name)
	}
	caps := Capabilities{NumLabels: len(labels), MaxLen: tok.MaxLen(), Reentrant: IsReentrant(c)}
	if d, ok := c.(Differentiable); ok {
		if emb := d.EmbeddingLayer(); emb != nil && emb.Dim() > 0 {
			caps.Differentiable = true
			caps.EmbeddingDim = emb.Dim()
		}
	}
	if o.requireDifferentiable && !caps.Differentiable {
		return Capabilities{}, errors.Wrapf(errors.ErrResourceUnavailable, "model %s is not differentiable", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &Entry{Name: name, Classifier: c, Tokenizer: tok, Caps: caps}
	return caps, nil
}

// Get 按名称获取模型
func (r *Registry) Get(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("model not registered: %s: %w", name, errors.ErrNotFound)
	}
	return e, nil
}

// Names 已注册名称（排序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
