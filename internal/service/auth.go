package service

import (
	"context"
	"errors"

	"chat_gateway/internal/config"
	"chat_gateway/internal/domain"
	"chat_gateway/internal/repository"
	pkgerrors "chat_gateway/pkg/errors"
	"chat_gateway/pkg/jwt"
	"chat_gateway/pkg/logger"
)

// AuthService resolves a bearer token to a user identity. An unknown user
// and a deactivated user fail identically so the token path does not leak
// account existence.
type AuthService interface {
	ValidateToken(ctx context.Context, tokenString string) (*domain.User, error)
}

type authService struct {
	userRepo repository.UserRepository
	jwtCfg   config.JWTConfig
	log      logger.Logger
}

func NewAuthService(userRepo repository.UserRepository, jwtCfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{
		userRepo: userRepo,
		jwtCfg:   jwtCfg,
		log:      log,
	}
}

func (s *authService) ValidateToken(ctx context.Context, tokenString string) (*domain.User, error) {
	claims, err := jwt.ValidateToken(tokenString, s.jwtCfg.AccessSecret)
	if err != nil {
		return nil, pkgerrors.ErrInvalidCredentials
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, pkgerrors.ErrInvalidCredentials
		}
		s.log.Error("user lookup failed during token validation", "error", err, "user_id", claims.UserID)
		return nil, err
	}

	if !user.IsActive {
		return nil, pkgerrors.ErrInvalidCredentials
	}

	return user, nil
}
