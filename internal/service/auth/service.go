// Package auth 签发和校验运维接口使用的 HS256 令牌
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrDisabled 未配置密钥
	ErrDisabled = errors.New("auth secret not configured")
	// ErrInvalidToken 令牌无效或已过期
	ErrInvalidToken = errors.New("invalid token")
)

// Principal 令牌主体
type Principal struct {
	Subject   string
	TokenID   string
	ExpiresAt time.Time
}

// Service 认证服务
// secret 为空时 Enabled 返回 false，中间件放行所有请求
type Service struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewService 创建认证服务
func NewService(secret, issuer string) *Service {
	return &Service{
		secret: []byte(strings.TrimSpace(secret)),
		issuer: issuer,
		now:    time.Now,
	}
}

// Enabled 是否启用认证
func (s *Service) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// IssueToken 为 subject 签发访问令牌
func (s *Service) IssueToken(subject string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	if subject == "" {
		return "", fmt.Errorf("subject is required")
	}
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"iss":  s.issuer,
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
		"type": "access",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateToken 验证令牌
func (s *Service) ValidateToken(tokenString string) (*Principal, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if tokenType, _ := claims["type"].(string); tokenType != "access" {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	p := &Principal{Subject: subject}
	p.TokenID, _ = claims["jti"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		p.ExpiresAt = exp.Time
	}
	return p, nil
}
