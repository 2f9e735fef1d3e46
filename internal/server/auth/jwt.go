// Package auth issues and checks the access tokens of the sync API.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/crewclock/internal/common"
)

// Claims carries the worker the token was issued to.
type Claims struct {
	jwt.RegisteredClaims
	WorkerID int64 `json:"wid"`
}

func GenerateToken(workerID int64, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		WorkerID: workerID,
	})

	return token.SignedString(secretKey)
}

// GetWorkerIDFromToken validates tokenString. An expired token yields
// common.ErrTokenExpired, any other failure common.ErrInvalidToken.
func GetWorkerIDFromToken(tokenString string, secretKey []byte) (int64, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, common.ErrTokenExpired
		}
		return 0, common.ErrInvalidToken
	}

	if !token.Valid || claims.WorkerID <= 0 {
		return 0, common.ErrInvalidToken
	}

	return claims.WorkerID, nil
}
