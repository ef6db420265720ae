package auth

import (
	"cleancycle/internal/entity"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenExpiry = 24 * time.Hour

var (
	// ErrTokenExpired 令牌签名有效但已过期
	ErrTokenExpired = errors.New("auth: session token expired")
	// ErrTokenInvalid 令牌格式、签名或签发方不正确
	ErrTokenInvalid = errors.New("auth: invalid session token")
)

// Claims 会话令牌携带的用户信息，角色与社区仅作展示，鉴权以名册为准
type Claims struct {
	UserID      string `json:"uid"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	CommunityID string `json:"cid,omitempty"`
	jwt.RegisteredClaims
}

// Manager 负责签发与校验 HS256 会话令牌
type Manager struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

func NewManager(secret, issuer string, expiry time.Duration) (*Manager, error) {
	key := strings.TrimSpace(secret)
	if key == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if expiry <= 0 {
		expiry = defaultTokenExpiry
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = "cleancycle"
	}
	return &Manager{
		secret: []byte(key),
		issuer: issuer,
		expiry: expiry,
		now:    time.Now,
	}, nil
}

// Expiry 返回令牌有效期
func (m *Manager) Expiry() time.Duration {
	return m.expiry
}

// GenerateToken 为用户签发令牌，每次签发带独立的 jti，同一秒内两次登录得到不同令牌
func (m *Manager) GenerateToken(user *entity.User) (string, time.Time, error) {
	if m == nil {
		return "", time.Time{}, errors.New("jwt manager is nil")
	}
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return "", time.Time{}, errors.New("cannot issue token for user without id")
	}

	issuedAt := m.now().UTC()
	expiresAt := issuedAt.Add(m.expiry)
	claims := Claims{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        user.Role,
		CommunityID: user.CommunityID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken 校验签名、签发方与有效期，失败时返回 ErrTokenExpired 或 ErrTokenInvalid
func (m *Manager) ParseToken(tokenString string) (*Claims, error) {
	if m == nil {
		return nil, errors.New("jwt manager is nil")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	case !token.Valid || claims.UserID == "":
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
