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

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"text2diag/internal/model"
	"text2diag/pkg/errors"
	"text2diag/pkg/log"
	"text2diag/pkg/metrics"
)

// Classifier 带 logits 缓存的分类器装饰器；键由模型名与编码后的 ids/mask 决定
type Classifier struct {
	model.Classifier
	name   string
	store  Store
	ttl    time.Duration
	logger *log.Logger
}

// differentiable 被装饰者可求导时保留求导能力；梯度计算不走缓存
type differentiable struct {
	*Classifier
	inner model.Differentiable
}

func (d *differentiable) EmbeddingLayer() model.EmbeddingLayer { return d.inner.EmbeddingLayer() }

func (d *differentiable) Gradients(ctx context.Context, batch [][][]float64, mask []int, label int) ([][]float64, [][][]float64, error) {
	return d.inner.Gradients(ctx, batch, mask, label)
}

// Wrap 为分类器加缓存；store 为 nil 时原样返回
func Wrap(name string, c model.Classifier, store Store, ttl time.Duration, logger *log.Logger) model.Classifier {
	if store == nil {
		return c
	}
	cc := &Classifier{Classifier: c, name: name, store: store, ttl: ttl, logger: logger}
	if d, ok := c.(model.Differentiable); ok {
		return &differentiable{Classifier: cc, inner: d}
	}
	return cc
}

// Key 缓存键
func (c *Classifier) Key(enc model.Encoding) string {
	h := sha256.New()
	buf := make([]byte, 8)
	for i, id := range enc.IDs {
		binary.LittleEndian.PutUint64(buf, uint64(int64(id)))
		h.Write(buf)
		m := 1
		if i < len(enc.Mask) {
			m = enc.Mask[i]
		}
		h.Write([]byte{byte(m)})
	}
	return "logits:" + c.name + ":" + hex.EncodeToString(h.Sum(nil))
}

// Forward 先查缓存；缓存读写失败只记日志，不影响前向结果
func (c *Classifier) Forward(ctx context.Context, enc model.Encoding) ([]float64, error) {
	key := c.Key(enc)
	var logits []float64
	err := c.store.Get(ctx, key, &logits)
	switch {
	case err == nil && len(logits) == len(c.Labels()):
		metrics.CacheLookupTotal.WithLabelValues("hit").Inc()
		return logits, nil
	case err == nil || errors.Is(err, errors.ErrNotFound):
		metrics.CacheLookupTotal.WithLabelValues("miss").Inc()
	default:
		metrics.CacheLookupTotal.WithLabelValues("error").Inc()
		c.warn("logits cache get failed", "key", key, "error", err)
	}

	logits, err = c.Classifier.Forward(ctx, enc)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, logits, c.ttl); err != nil {
		c.warn("logits cache set failed", "key", key, "error", err)
	}
	return logits, nil
}

func (c *Classifier) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
