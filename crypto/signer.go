package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrBadKeyLength = errors.New("bad ed25519 key length")
)

type Signer interface {
	Sign(rawData []byte) ([]byte, error)
	SignToString(rawData []byte) (string, error)
	Verify(rawData []byte, signature []byte) bool
	VerifyFromString(rawData []byte, base64Signature string) bool
	Len() int
}

type Ed25519Signer struct {
	RemotePublicKey ed25519.PublicKey  // 远端的公钥，用于验证远端发来数据的签名
	SelfPrivateKey  ed25519.PrivateKey // 本地的私钥，用于对发出的数据签名
}

func (e *Ed25519Signer) Len() int { return ed25519.SignatureSize }

// 私钥长度不对时返回 ErrBadKeyLength，ed25519.Sign 在这种情况下会 panic
func (e *Ed25519Signer) Sign(rawData []byte) ([]byte, error) {
	if len(e.SelfPrivateKey) != ed25519.PrivateKeySize {
		return nil, ErrBadKeyLength
	}
	return ed25519.Sign(e.SelfPrivateKey, rawData), nil
}

// 对指定输入进行签名, 输出 base64 字符串
func (e *Ed25519Signer) SignToString(rawData []byte) (string, error) {
	sign, err := e.Sign(rawData)
	if err != nil {
		return "", err
	}
	return Base64Encode(sign), nil
}

func (e *Ed25519Signer) Verify(rawData []byte, signature []byte) bool {
	if len(e.RemotePublicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(e.RemotePublicKey, rawData, signature)
}

// 验证签名，签名为 base64 字符串
func (e *Ed25519Signer) VerifyFromString(rawData []byte, base64Signature string) bool {
	sign, err := Base64Decode(base64Signature)
	if err != nil {
		return false
	}
	return e.Verify(rawData, sign)
}

func NewEd25519Signer(remotePublicKey ed25519.PublicKey, selfPrivateKey ed25519.PrivateKey) *Ed25519Signer {
	return &Ed25519Signer{RemotePublicKey: remotePublicKey, SelfPrivateKey: selfPrivateKey}
}

// 从 base64 字符串初始化签名器
func NewEd25519SignerFromString(remotePublicKey, selfPrivateKey string) (*Ed25519Signer, error) {
	pub, err := Base64Decode(remotePublicKey)
	if err != nil {
		return nil, err
	}
	pri, err := Base64Decode(selfPrivateKey)
	if err != nil {
		return nil, err
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key %d bytes", ErrBadKeyLength, len(pub))
	}
	if len(pri) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key %d bytes", ErrBadKeyLength, len(pri))
	}
	return NewEd25519Signer(pub, pri), nil
}

func NewEd25519KeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(nil)
}

func Base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func Base64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// Digest 计算负载的 blake2b-256 摘要，十六进制输出
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
