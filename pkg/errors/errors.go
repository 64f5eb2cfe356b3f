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

// Package errors 提供统一错误辅助与三类错误分类（计算错误 / 契约违例 / 资源不可用）
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// 常用哨兵错误
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")

	// ErrComputation attribution/faithfulness 无法计算（如无可微路径）；仅影响单个 label
	ErrComputation = errors.New("computation error")
	// ErrContractViolation 输出契约校验失败
	ErrContractViolation = errors.New("contract violation")
	// ErrResourceUnavailable 模型/分词器/配置加载失败；进程级致命
	ErrResourceUnavailable = errors.New("resource unavailable")
)

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ComputationError 某个 label 的证据计算失败
type ComputationError struct {
	Stage string // attribution | faithfulness
	Label string
	Err   error
}

// Error 实现 error 接口
func (e *ComputationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("computation error at %s (label=%s): %v", e.Stage, e.Label, e.Err)
	}
	return fmt.Sprintf("computation error at %s (label=%s)", e.Stage, e.Label)
}

// Unwrap 实现 errors.Unwrap 接口
func (e *ComputationError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, ErrComputation) 成立
func (e *ComputationError) Is(target error) bool {
	return target == ErrComputation
}

// NewComputationError 创建计算错误
func NewComputationError(stage, label string, err error) *ComputationError {
	return &ComputationError{Stage: stage, Label: label, Err: err}
}

// IsComputationError 检查是否为计算错误
func IsComputationError(err error) bool {
	var ce *ComputationError
	return errors.As(err, &ce)
}

// ContractViolation 契约违例集合，Violations 保留原始描述
type ContractViolation struct {
	Violations []string
}

// Error 实现 error 接口
func (e *ContractViolation) Error() string {
	return "contract violation: " + strings.Join(e.Violations, "; ")
}

// Is 使 errors.Is(err, ErrContractViolation) 成立
func (e *ContractViolation) Is(target error) bool {
	return target == ErrContractViolation
}

// NewContractViolation 创建契约违例；violations 为空时返回 nil
func NewContractViolation(violations []string) *ContractViolation {
	if len(violations) == 0 {
		return nil
	}
	out := make([]string, len(violations))
	copy(out, violations)
	return &ContractViolation{Violations: out}
}

// GetContractViolation 获取契约违例
func GetContractViolation(err error) (*ContractViolation, bool) {
	var cv *ContractViolation
	if errors.As(err, &cv) {
		return cv, true
	}
	return nil, false
}

// Is 透传标准库 errors.Is，避免调用方同时导入两个 errors 包
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 透传标准库 errors.As
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New 透传标准库 errors.New
func New(text string) error {
	return errors.New(text)
}
