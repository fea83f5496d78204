package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcos1394/agritrust-fieldsync/internal/config"

	"github.com/golang-jwt/jwt/v4"
)

// Source yields a bearer token valid for one backend call. Callers fetch a
// fresh token per network attempt; nothing is cached here.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// Static hands out a pre-issued token from configuration.
type Static struct {
	token string
}

func NewStatic(token string) *Static {
	return &Static{token: token}
}

func (s *Static) Token(ctx context.Context) (string, error) {
	if s.token == "" {
		return "", errors.New("no auth token configured")
	}
	return s.token, nil
}

// HS256 signs a short-lived device JWT with the shared device secret,
// matching the HMAC bearer check on the backend.
type HS256 struct {
	secret   []byte
	deviceID string
	tenantID string
	ttl      time.Duration
}

func NewHS256(secret, deviceID, tenantID string, ttl time.Duration) *HS256 {
	return &HS256{
		secret:   []byte(secret),
		deviceID: deviceID,
		tenantID: tenantID,
		ttl:      ttl,
	}
}

func (s *HS256) Token(ctx context.Context) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":       s.deviceID,
		"tenant_id": s.tenantID,
		"iat":       now.Unix(),
		"exp":       now.Add(s.ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign device token: %w", err)
	}
	return signed, nil
}

// FromConfig picks the source: a device secret wins over a static token.
func FromConfig(cfg *config.Config) (Source, error) {
	if cfg.DeviceSecret != "" {
		return NewHS256(cfg.DeviceSecret, cfg.DeviceID, cfg.TenantID, cfg.TokenTTL), nil
	}
	if cfg.AuthToken != "" {
		return NewStatic(cfg.AuthToken), nil
	}
	return nil, errors.New("no credential configured")
}
