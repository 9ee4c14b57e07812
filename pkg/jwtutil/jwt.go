package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"docvision-service/pkg/config"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrWrongTokenType = errors.New("wrong token type")
)

var (
	secret             = []byte("development-secret-key")
	accessTokenExpire  = 30 * time.Minute
	refreshTokenExpire = 7 * 24 * time.Hour
)

// UserClaims identifies the user by email in the subject claim
type UserClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is returned by the token endpoints
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Initialize sets the signing key and token lifetimes
func Initialize(cfg *config.JWTConfig) {
	secret = []byte(cfg.SecretKey)
	if cfg.AccessTokenExpire != 0 {
		accessTokenExpire = cfg.AccessTokenExpire
	}
	if cfg.RefreshTokenExpire != 0 {
		refreshTokenExpire = cfg.RefreshTokenExpire
	}
}

// GenerateAccessToken creates a short lived token for the given email
func GenerateAccessToken(email string) (string, error) {
	return generate(email, TokenTypeAccess, accessTokenExpire)
}

// GenerateRefreshToken creates a long lived token used to mint new access tokens
func GenerateRefreshToken(email string) (string, error) {
	return generate(email, TokenTypeRefresh, refreshTokenExpire)
}

// GenerateTokenPair creates both tokens for the given email
func GenerateTokenPair(email string) (*TokenPair, error) {
	access, err := GenerateAccessToken(email)
	if err != nil {
		return nil, err
	}
	refresh, err := GenerateRefreshToken(email)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

func generate(email, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := UserClaims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses the token and checks signature, expiry and type
func ValidateToken(tokenString, expectedType string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	if expectedType != "" && claims.TokenType != expectedType {
		return nil, ErrWrongTokenType
	}

	return claims, nil
}
