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

package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"text2diag/pkg/errors"
)

// ReadExamples 读取 JSONL 样本；空行跳过，每行需含 text 字段
func ReadExamples(r io.Reader) ([]Example, error) {
	var out []Example
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var item struct {
			ExampleID *string `json:"example_id"`
			ID        *string `json:"id"`
			Text      *string `json:"text"`
		}
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidArg, "line %d: %v", line, err)
		}
		if item.Text == nil {
			return nil, errors.Wrapf(errors.ErrInvalidArg, "line %d: missing text", line)
		}
		ex := Example{Text: *item.Text}
		switch {
		case item.ExampleID != nil:
			ex.ID = *item.ExampleID
		case item.ID != nil:
			ex.ID = *item.ID
		}
		out = append(out, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read examples: %w", err)
	}
	return out, nil
}

// WriteJSONL 每行写一条 JSON
func WriteJSONL[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, it := range items {
		if err := enc.Encode(it); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	return nil
}
