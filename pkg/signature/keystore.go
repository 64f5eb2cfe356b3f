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

// Package signature 证据包清单的 Ed25519 签名与密钥存储
package signature

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"text2diag/pkg/errors"
)

// Algorithm 签名串前缀
const Algorithm = "ed25519"

// KeyStore 签名密钥存储接口
type KeyStore interface {
	// GetSigningKey 获取签名私钥
	GetSigningKey(ctx context.Context, keyID string) (ed25519.PrivateKey, error)

	// GetVerifyKey 获取验证公钥
	GetVerifyKey(ctx context.Context, keyID string) (ed25519.PublicKey, error)

	// GenerateKey 生成新密钥对
	GenerateKey(ctx context.Context, keyID string) error

	// ListKeys 列出所有密钥，按 keyID 排序
	ListKeys(ctx context.Context) ([]string, error)
}

// Signer 签名器
type Signer struct {
	keyStore KeyStore
	keyID    string
}

// NewSigner 创建签名器
func NewSigner(keyStore KeyStore, keyID string) *Signer {
	return &Signer{
		keyStore: keyStore,
		keyID:    keyID,
	}
}

// KeyID 签名使用的密钥
func (s *Signer) KeyID() string { return s.keyID }

// SignPackage 签名数据
// 返回格式: "ed25519:<keyID>:<base64_signature>"
func (s *Signer) SignPackage(data []byte) (string, error) {
	privKey, err := s.keyStore.GetSigningKey(context.Background(), s.keyID)
	if err != nil {
		return "", fmt.Errorf("failed to get signing key: %w", err)
	}
	sig := ed25519.Sign(privKey, data)
	return fmt.Sprintf("%s:%s:%s", Algorithm, s.keyID, base64.StdEncoding.EncodeToString(sig)), nil
}

// ParseSignature 拆分签名串为 keyID 与签名字节
func ParseSignature(signatureStr string) (string, []byte, error) {
	parts := strings.SplitN(strings.TrimSpace(signatureStr), ":", 3)
	if len(parts) != 3 {
		return "", nil, errors.Wrap(errors.ErrInvalidArg, "malformed signature")
	}
	if parts[0] != Algorithm {
		return "", nil, errors.Wrapf(errors.ErrInvalidArg, "unsupported signature algorithm %q", parts[0])
	}
	sig, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", nil, errors.Wrapf(errors.ErrInvalidArg, "decode signature: %v", err)
	}
	return parts[1], sig, nil
}

// VerifyPackage 验证签名
func VerifyPackage(data []byte, signatureStr string, pubKey ed25519.PublicKey) bool {
	_, sig, err := ParseSignature(signatureStr)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pubKey, data, sig)
}

// Verifier 按签名串中的 keyID 从密钥存储取公钥后验证
func Verifier(ctx context.Context, ks KeyStore) func(data []byte, signatureStr string) bool {
	return func(data []byte, signatureStr string) bool {
		keyID, _, err := ParseSignature(signatureStr)
		if err != nil {
			return false
		}
		pub, err := ks.GetVerifyKey(ctx, keyID)
		if err != nil {
			return false
		}
		return VerifyPackage(data, signatureStr, pub)
	}
}

// MemoryKeyStore 内存密钥存储（用于开发和测试）
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]keyPair
}

type keyPair struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// NewMemoryKeyStore 创建内存密钥存储
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{
		keys: make(map[string]keyPair),
	}
}

// GenerateKey 生成新密钥对
func (m *MemoryKeyStore) GenerateKey(ctx context.Context, keyID string) error {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.keys[keyID] = keyPair{privateKey: privKey, publicKey: pubKey}
	m.mu.Unlock()
	return nil
}

// GetSigningKey 获取签名私钥
func (m *MemoryKeyStore) GetSigningKey(ctx context.Context, keyID string) (ed25519.PrivateKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kp, ok := m.keys[keyID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "key %s", keyID)
	}
	return kp.privateKey, nil
}

// GetVerifyKey 获取验证公钥
func (m *MemoryKeyStore) GetVerifyKey(ctx context.Context, keyID string) (ed25519.PublicKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kp, ok := m.keys[keyID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "key %s", keyID)
	}
	return kp.publicKey, nil
}

// ListKeys 列出所有密钥
func (m *MemoryKeyStore) ListKeys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.keys))
	for keyID := range m.keys {
		keys = append(keys, keyID)
	}
	sort.Strings(keys)
	return keys, nil
}

// FileKeyStore 目录密钥存储：<keyID>.key 保存私钥种子，<keyID>.pub 保存公钥，均为 base64
//
// 只有 .pub 的目录可用于验证。
type FileKeyStore struct {
	dir string
}

// NewFileKeyStore 创建目录密钥存储
func NewFileKeyStore(dir string) *FileKeyStore {
	return &FileKeyStore{dir: dir}
}

// GenerateKey 生成新密钥对并写入目录；私钥文件权限 0600
func (f *FileKeyStore) GenerateKey(ctx context.Context, keyID string) error {
	if err := checkKeyID(keyID); err != nil {
		return err
	}
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	seed := base64.StdEncoding.EncodeToString(privKey.Seed())
	if err := os.WriteFile(f.path(keyID, ".key"), []byte(seed+"\n"), 0o600); err != nil {
		return fmt.Errorf("write signing key: %w", err)
	}
	pub := base64.StdEncoding.EncodeToString(pubKey)
	if err := os.WriteFile(f.path(keyID, ".pub"), []byte(pub+"\n"), 0o644); err != nil {
		return fmt.Errorf("write verify key: %w", err)
	}
	return nil
}

// GetSigningKey 读取私钥种子
func (f *FileKeyStore) GetSigningKey(ctx context.Context, keyID string) (ed25519.PrivateKey, error) {
	raw, err := f.read(keyID, ".key", ed25519.SeedSize)
	if err != nil {
		return nil, err
	}
	return ed25519.NewKeyFromSeed(raw), nil
}

// GetVerifyKey 读取公钥
func (f *FileKeyStore) GetVerifyKey(ctx context.Context, keyID string) (ed25519.PublicKey, error) {
	raw, err := f.read(keyID, ".pub", ed25519.PublicKeySize)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(raw), nil
}

// ListKeys 目录中所有公钥对应的 keyID
func (f *FileKeyStore) ListKeys(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, "*.pub"))
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, strings.TrimSuffix(filepath.Base(m), ".pub"))
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *FileKeyStore) path(keyID, ext string) string {
	return filepath.Join(f.dir, keyID+ext)
}

func (f *FileKeyStore) read(keyID, ext string, size int) ([]byte, error) {
	if err := checkKeyID(keyID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(keyID, ext))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrNotFound, "key %s%s", keyID, ext)
		}
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidArg, "decode key %s%s: %v", keyID, ext, err)
	}
	if len(raw) != size {
		return nil, errors.Wrapf(errors.ErrInvalidArg, "key %s%s has %d bytes, want %d", keyID, ext, len(raw), size)
	}
	return raw, nil
}

// checkKeyID keyID 只能是单段文件名
func checkKeyID(keyID string) error {
	if keyID == "" || strings.ContainsAny(keyID, "/\\:") || keyID == "." || keyID == ".." {
		return errors.Wrapf(errors.ErrInvalidArg, "invalid key id %q", keyID)
	}
	return nil
}
