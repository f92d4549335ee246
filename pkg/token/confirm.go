// Package token 提供了用于生成和验证二次确认令牌的功能。
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken 表示令牌签名错误、已过期或与操作不匹配。
var ErrInvalidToken = errors.New("invalid confirmation token")

// ConfirmManager 负责签发和校验需要用户二次确认的操作令牌。
type ConfirmManager struct {
	secretKey []byte        // secretKey 用于签名和验证 token 的密钥
	ttl       time.Duration // ttl 定义了确认令牌的有效期
	now       func() time.Time
}

// ConfirmClaims 定义了确认令牌中携带的数据。
// ID（jti）用于和服务端记录的待确认操作做一次性匹配。
type ConfirmClaims struct {
	Action  string `json:"action"`
	Subject string `json:"sub_id"`
	jwt.RegisteredClaims
}

// NewConfirmManager 创建一个新的 ConfirmManager 实例。
func NewConfirmManager(secret string, ttl time.Duration) *ConfirmManager {
	return &ConfirmManager{
		secretKey: []byte(secret),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Issue 为 action 作用于 subject 签发一个令牌，返回令牌字符串及其 jti。
func (m *ConfirmManager) Issue(action, subject string) (string, string, error) {
	now := m.now()
	jti := GenerateRandomString(16)
	claims := ConfirmClaims{
		Action:  action,
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	// 使用 HS256 签名方法创建新的 token 对象
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

// Verify 校验令牌的签名、有效期，以及 action 和 subject 是否匹配，成功时返回 jti。
func (m *ConfirmManager) Verify(tokenString, action, subject string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &ConfirmClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*ConfirmClaims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Action != action || claims.Subject != subject {
		return "", ErrInvalidToken
	}
	return claims.ID, nil
}

// GenerateRandomString generates a random hex string of a given length.
func GenerateRandomString(length int) string {
	b := make([]byte, (length+1)/2)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)[:length]
}
