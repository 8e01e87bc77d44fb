package jwttoken

import (
	"nymreg/internal/platform/middleware"
	id "nymreg/pkg/domain"
	dErrors "nymreg/pkg/domain-errors"
)

// JWTServiceAdapter bridges JWTService to the auth middleware's validator
// interface.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) Validate(tokenString string) (*middleware.TokenClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	account, err := id.ParseAccount(claims.Account)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return &middleware.TokenClaims{Account: account, Admin: claims.Admin}, nil
}
