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

package proof

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// MaskedValue 易变字段的占位值
const MaskedValue = "MASKED"

// VolatileFields 哈希前被遮蔽的字段路径
var VolatileFields = []string{"meta.created_at", "meta.run_id", "calibration.timestamp"}

// CanonicalJSON 记录 → 规范 JSON：键排序，易变字段替换为 MASKED
func CanonicalJSON(record any) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("record must be a JSON object: %w", err)
	}
	for _, path := range VolatileFields {
		maskField(obj, path)
	}
	// map 序列化时按键排序
	return json.Marshal(obj)
}

// maskField 字段存在时替换为 MASKED
func maskField(obj map[string]any, path string) {
	parts := strings.Split(path, ".")
	current := obj
	for i := 0; i < len(parts)-1; i++ {
		next, ok := current[parts[i]].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	last := parts[len(parts)-1]
	if _, exists := current[last]; exists {
		current[last] = MaskedValue
	}
}

// HashRecord 规范 JSON 的 SHA-256
func HashRecord(record any) (string, error) {
	data, err := CanonicalJSON(record)
	if err != nil {
		return "", err
	}
	return ComputeFileHash(data), nil
}

// MasterHash 按输入顺序拼接各记录哈希后再取 SHA-256
func MasterHash(hashes []string) string {
	h := sha256.New()
	for _, s := range hashes {
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ComputeFileHash 计算内容的 SHA256 哈希
func ComputeFileHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
