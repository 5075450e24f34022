package credentials

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/rtc-broker/internal/brokererr"
)

const (
	userIdClaim = "user_id"
	// TokenTTL is fixed at 7 days.
	TokenTTL = 7 * 24 * time.Hour
)

// TokenService mints and verifies HS256 bearer tokens carrying a
// userId claim.
type TokenService struct {
	signingKey []byte
}

func NewTokenService(signingKey []byte) *TokenService {
	return &TokenService{signingKey: signingKey}
}

func (t *TokenService) Mint(userId int) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		"exp":       time.Now().Add(TokenTTL).Unix(),
	})

	return token.SignedString(t.signingKey)
}

func (t *TokenService) Verify(tokenString string) (int, error) {
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return t.signingKey, nil
	})
	if err != nil {
		return 0, brokererr.NewUnauthorized(fmt.Sprintf("parse token: %s", err))
	}

	if !token.Valid {
		return 0, brokererr.NewUnauthorized("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, brokererr.NewUnauthorized("invalid token claims")
	}

	userIdFloat, ok := claims[userIdClaim].(float64)
	if !ok {
		return 0, brokererr.NewUnauthorized("invalid user id claim")
	}

	return int(userIdFloat), nil
}
