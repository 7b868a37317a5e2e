package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const (
	tokenAccess     = "access"
	tokenMagicLink  = "magic_link"
	tokenOAuthState = "oauth_state"
)

type TokenConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	MagicLinkTTL   time.Duration
	OAuthStateTTL  time.Duration
}

func DefaultTokenConfig(secret string) TokenConfig {
	return TokenConfig{
		Secret:         secret,
		Issuer:         "taskboard",
		AccessTokenTTL: 24 * time.Hour,
		MagicLinkTTL:   15 * time.Minute,
		OAuthStateTTL:  10 * time.Minute,
	}
}

type Claims struct {
	Email      string `json:"email,omitempty"`
	TokenType  string `json:"token_type"`
	RedirectTo string `json:"redirect_to,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and parses HS256 tokens.
type TokenManager struct {
	cfg TokenConfig
	now func() time.Time
}

func NewTokenManager(cfg TokenConfig) *TokenManager {
	return &TokenManager{cfg: cfg, now: time.Now}
}

func (m *TokenManager) ttl(tokenType string) time.Duration {
	switch tokenType {
	case tokenMagicLink:
		return m.cfg.MagicLinkTTL
	case tokenOAuthState:
		return m.cfg.OAuthStateTTL
	}
	return m.cfg.AccessTokenTTL
}

func (m *TokenManager) issue(subject, email, tokenType, redirectTo string) (string, *Claims, error) {
	now := m.now()
	claims := &Claims{
		Email:      email,
		TokenType:  tokenType,
		RedirectTo: redirectTo,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.cfg.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl(tokenType))),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.Secret))
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

func (m *TokenManager) parse(tokenString, tokenType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(m.cfg.Secret), nil
	}, jwt.WithTimeFunc(m.now), jwt.WithIssuer(m.cfg.Issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != tokenType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
