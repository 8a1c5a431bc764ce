// internal/auth/service.go
// Token issuance and validation. The rest of the identity lifecycle
// (registration, password reset, OAuth) lives outside this service.

package auth

import (
	"context"
	"time"

	"github.com/KhurshidShaikh/Alumni-Bridge-sub001/internal/common/utils"
)

// Service validates identity tokens and issues them for first-party callers.
type Service interface {
	ValidateToken(ctx context.Context, token string) (*Identity, error)
	GenerateToken(ctx context.Context, identity *Identity) (string, error)
}

// Config holds auth settings
type Config struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
}

type service struct {
	config *Config
}

// NewService creates an auth service
func NewService(config *Config) Service {
	return &service{config: config}
}

func (s *service) ValidateToken(ctx context.Context, token string) (*Identity, error) {
	claims, err := utils.ValidateJWT(token, s.config.JWTSecret)
	if err != nil {
		return nil, err
	}

	return &Identity{
		UserID:     claims.UserID,
		Email:      claims.Email,
		Name:       claims.Name,
		Role:       claims.Role,
		IsVerified: claims.IsVerified,
	}, nil
}

func (s *service) GenerateToken(ctx context.Context, identity *Identity) (string, error) {
	claims := &utils.JWTClaims{
		UserID:     identity.UserID,
		Email:      identity.Email,
		Name:       identity.Name,
		Role:       identity.Role,
		IsVerified: identity.IsVerified,
	}

	return utils.GenerateJWT(claims, s.config.JWTSecret, s.config.AccessTokenExpiry)
}
