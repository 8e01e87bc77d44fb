// Package jwttoken issues and validates the HS256 access tokens that carry a
// caller's account between requests. A token is minted once key ownership has
// been proven (register, re-login) or the administrator secret has been
// presented, and stands in for the caller's identity afterwards.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "nymreg/pkg/domain"
	dErrors "nymreg/pkg/domain-errors"
)

// Claims are the token claims for ledger and registry access tokens.
type Claims struct {
	Account string `json:"account"`
	Admin   bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// JWTService handles token creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateAccessToken mints a token binding the account (and, for the
// administrator, the admin flag) for expiresIn.
func (s *JWTService) GenerateAccessToken(account id.Account, admin bool, expiresIn time.Duration) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Account: account.Hex(),
		Admin:   admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// ExtractAccountFromToken validates the token and parses the account claim.
func (s *JWTService) ExtractAccountFromToken(tokenString string) (id.Account, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return id.Account{}, err
	}
	account, err := id.ParseAccount(claims.Account)
	if err != nil {
		return id.Account{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return account, nil
}
