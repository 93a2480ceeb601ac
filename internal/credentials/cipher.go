package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/crypto/hkdf"
)

const (
	sealedPrefix = "v1:"
	hkdfInfo     = "hiregenai/llm-credential"
)

var (
	// ErrNoMasterKey 未配置主密钥
	ErrNoMasterKey = errors.New("未配置凭据主密钥")
	// ErrMalformed 密文格式错误
	ErrMalformed = errors.New("凭据密文格式错误")
)

// deriveKey 从主密钥派生 AES-256 密钥
func deriveKey(masterSecret string) ([]byte, error) {
	if masterSecret == "" {
		return nil, ErrNoMasterKey
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(masterSecret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("派生密钥失败: %w", err)
	}
	return key, nil
}

func newGCM(masterSecret string) (cipher.AEAD, error) {
	key, err := deriveKey(masterSecret)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal 生成存储格式: "v1:" + base64(nonce || ciphertext)
func Seal(masterSecret, plaintext string) (string, error) {
	gcm, err := newGCM(masterSecret)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("生成 nonce 失败: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open 解密 Seal 的输出
func Open(masterSecret, stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return "", ErrMalformed
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	gcm, err := newGCM(masterSecret)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize()+gcm.Overhead() {
		return "", ErrMalformed
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("解密失败: %w", err)
	}
	return string(plain), nil
}

// IsSealed 值是否为加密存储格式
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, sealedPrefix)
}

// ExtractAPIKey 兼容旧的 JSON 包装格式 {value|apiKey|api_key|key}，否则视为纯字符串
func ExtractAPIKey(payload string) string {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "{") && gjson.Valid(trimmed) {
		for _, field := range []string{"value", "apiKey", "api_key", "key"} {
			if v := gjson.Get(trimmed, field); v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
				return strings.TrimSpace(v.String())
			}
		}
		return ""
	}
	// 旧数据可能带引号
	return strings.Trim(trimmed, `"`)
}
