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
	"fmt"

	"github.com/redis/go-redis/v9"

	"text2diag/pkg/config"
)

// NewCache 根据配置创建缓存；type=none 时返回 nil
func NewCache(cfg config.CacheConfig) (Store, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		opts, err := RedisOptionsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(redis.NewClient(opts), DefaultKeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// RedisOptionsFromConfig 从 CacheConfig 构造 redis.Options
func RedisOptionsFromConfig(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.DB < 0 {
		return nil, fmt.Errorf("invalid redis db: %d", cfg.DB)
	}
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	return opts, nil
}
