package jwt_parse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity fields the payout service reads from an access
// token.
type Claims struct {
	UserID   string
	Name     string
	TenantID string
	Role     string
}

var (
	ErrMissingToken  = errors.New("no authorization token")
	ErrInvalidFormat = errors.New("invalid authorization format")
	ErrInvalidToken  = errors.New("invalid token")
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingToken
	}
	if len(authHeader) > 7 && strings.ToLower(authHeader[:7]) == "bearer " {
		return authHeader[7:], nil
	}
	return "", ErrInvalidFormat
}

// ParseToken validates an HMAC-signed token and returns its identity claims.
// The user id comes from user_id, falling back to sub.
func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims := &Claims{
		Name:     stringClaim(mapClaims, "name"),
		TenantID: stringClaim(mapClaims, "tenant_id"),
		Role:     stringClaim(mapClaims, "role"),
	}
	claims.UserID = stringClaim(mapClaims, "user_id")
	if claims.UserID == "" {
		claims.UserID = stringClaim(mapClaims, "sub")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: no user identifier", ErrInvalidToken)
	}
	if claims.TenantID == "" {
		return nil, fmt.Errorf("%w: no tenant", ErrInvalidToken)
	}
	return claims, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}
