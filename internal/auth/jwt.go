package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"season_pass/internal/access"
	"season_pass/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	UID  uint   `json:"uid"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer 签发和校验会话令牌（HS256）。
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue 为用户签发令牌。
func (i *Issuer) Issue(userID uint, role model.Role) (string, error) {
	if userID == 0 {
		return "", fmt.Errorf("user id is required")
	}
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UID:  userID,
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})
	return token.SignedString(i.secret)
}

// Parse 校验令牌并还原操作者。
func (i *Issuer) Parse(raw string) (access.Actor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return access.Actor{}, ErrInvalidToken
	}
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return access.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	role := model.Role(strings.ToUpper(c.Role))
	if c.UID == 0 || !access.IsKnownRole(role) {
		return access.Actor{}, ErrInvalidToken
	}
	return access.Actor{UserID: c.UID, Role: role}, nil
}
