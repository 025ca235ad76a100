package jwttoken

import (
	authmw "castline/pkg/platform/middleware/auth"
	platformstrings "castline/pkg/platform/strings"
)

// JWTServiceAdapter satisfies authmw.JWTValidator. Role names are matched
// case-insensitively against ROLE_BINDINGS, so they are normalised here.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{
		AccountID: claims.Subject,
		Roles:     platformstrings.DedupeLower(claims.Roles),
	}, nil
}
