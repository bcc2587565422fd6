// Package devicetoken mints short-lived JWTs that bind a device to a
// license after a successful activation. Clients present the token to
// skip full key verification on routine check-ins.
package devicetoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rflexhq/license-server/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// Payload captures the data available when minting a device token.
type Payload struct {
	LicenseID         uuid.UUID
	DeviceFingerprint string
	ProductID         string
}

// Claims is the typed JWT handed to activated devices.
type Claims struct {
	LicenseID         uuid.UUID `json:"license_id"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	ProductID         string    `json:"product_id"`
	jwt.RegisteredClaims
}

// Mint issues a signed device token using the configured TTL.
func Mint(cfg config.DeviceTokenConfig, now time.Time, payload Payload) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("device token secret is required")
	}
	if cfg.Issuer == "" {
		return "", fmt.Errorf("device token issuer is required")
	}
	if cfg.TTL() <= 0 {
		return "", fmt.Errorf("device token ttl must be positive")
	}
	if payload.LicenseID == uuid.Nil {
		return "", fmt.Errorf("license id is required")
	}
	if payload.DeviceFingerprint == "" {
		return "", fmt.Errorf("device fingerprint is required")
	}

	claims := Claims{
		LicenseID:         payload.LicenseID,
		DeviceFingerprint: payload.DeviceFingerprint,
		ProductID:         payload.ProductID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.LicenseID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL())),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing device token: %w", err)
	}
	return signed, nil
}

// Parse validates the token string and returns typed claims.
func Parse(cfg config.DeviceTokenConfig, tokenString string) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("device token secret is required")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
