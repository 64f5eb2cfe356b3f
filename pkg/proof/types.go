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

// Package proof 决策记录的回归哈希：规范化哈希、金标集合与证据包
package proof

import "time"

// ExampleHash 单条记录的哈希
type ExampleHash struct {
	ExampleID string `json:"example_id"`
	Hash      string `json:"hash"`
}

// GoldenSet 金标哈希集合
type GoldenSet struct {
	MasterHash string            `json:"master_hash"`
	Examples   map[string]string `json:"examples"` // example_id -> hash
}

// Mismatch 与金标不一致的样本；Expected 为空表示金标中不存在
type Mismatch struct {
	ExampleID string `json:"example_id"`
	Expected  string `json:"expected"`
	Got       string `json:"got"`
}

// VerifyResult 比对结果
type VerifyResult struct {
	OK          bool
	MasterMatch bool
	Mismatches  []Mismatch
	Missing     []string // 金标中有、本次未产出
	Errors      []string
}

// Manifest 证据包清单
type Manifest struct {
	Version         string            `json:"version"`
	RunID           string            `json:"run_id"`
	ExportedAt      time.Time         `json:"exported_at"`
	RecordCount     int               `json:"record_count"`
	MasterHash      string            `json:"master_hash"`
	FileHashes      map[string]string `json:"file_hashes"` // filename -> SHA256
	ContractVersion string            `json:"contract_version"`
	ModelName       string            `json:"model_name"`
	GeneratedBy     string            `json:"generated_by"`
}

// ExportOptions 导出选项
type ExportOptions struct {
	RunID           string
	ContractVersion string
	ModelName       string
	Version         string
	// Signer 非空时对 manifest.json 签名并写入 manifest.sig
	Signer ManifestSigner
}

// ManifestSigner 清单签名器
type ManifestSigner interface {
	SignPackage(data []byte) (string, error)
}

// SignatureFile 签名在证据包中的文件名
const SignatureFile = "manifest.sig"
