package id

import (
	"strings"

	"github.com/google/uuid"
)

func NewUUID() string {
	return uuid.NewString()
}

// 去掉连字符的 uuid，用作请求 nonce
func NewUUIDWithoutDash() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
