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
	"errors"
	"fmt"
)

// PipelineError 编排阶段错误；只用于整条样本无法产出记录的情况
type PipelineError struct {
	Stage     string
	ExampleID string
	Message   string
	Err       error
}

// Error 实现 error 接口
func (e *PipelineError) Error() string {
	prefix := fmt.Sprintf("[Pipeline] %s", e.Stage)
	if e.ExampleID != "" {
		prefix += fmt.Sprintf(" (%s)", e.ExampleID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap 实现 errors.Unwrap 接口
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError 创建新的 Pipeline 错误
func NewPipelineError(stage, exampleID, message string, err error) *PipelineError {
	return &PipelineError{
		Stage:     stage,
		ExampleID: exampleID,
		Message:   message,
		Err:       err,
	}
}

// GetPipelineError 获取 Pipeline 错误
func GetPipelineError(err error) (*PipelineError, bool) {
	var pipelineErr *PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr, true
	}
	return nil, false
}
