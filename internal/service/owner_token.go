package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/repository"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid 令牌无效
var ErrTokenInvalid = errors.New("owner token invalid")

// OwnerClaims 归属身份令牌载荷
type OwnerClaims struct {
	OwnerScope string `json:"owner_scope"`
	OwnerID    uint   `json:"owner_id"`
	jwt.RegisteredClaims
}

// Owner 返回归属引用
func (c *OwnerClaims) Owner() repository.PostbackOwnerRef {
	return repository.PostbackOwnerRef{Scope: c.OwnerScope, ID: c.OwnerID}
}

// IssueOwnerToken 签发归属令牌
func IssueOwnerToken(secret string, owner repository.PostbackOwnerRef, expireHours int) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("%w: jwt secret is empty", ErrTokenInvalid)
	}
	if !isOwnerScope(owner.Scope) || owner.ID == 0 {
		return "", time.Time{}, fmt.Errorf("%w: invalid owner", ErrValidation)
	}
	if expireHours <= 0 {
		expireHours = 24
	}
	now := time.Now()
	expiresAt := now.Add(time.Duration(expireHours) * time.Hour)
	claims := OwnerClaims{
		OwnerScope: owner.Scope,
		OwnerID:    owner.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%s:%d", owner.Scope, owner.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseOwnerToken 校验并解析归属令牌
func ParseOwnerToken(secret, tokenString string) (*OwnerClaims, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: jwt secret is empty", ErrTokenInvalid)
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &OwnerClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !isOwnerScope(claims.OwnerScope) || claims.OwnerID == 0 {
		return nil, fmt.Errorf("%w: missing owner claims", ErrTokenInvalid)
	}
	return claims, nil
}

func isOwnerScope(scope string) bool {
	switch scope {
	case constants.PostbackOwnerScopeOwner, constants.PostbackOwnerScopeAdvertiser, constants.PostbackOwnerScopePartner:
		return true
	default:
		return false
	}
}
