// Package jwt signs and verifies HS256 user tokens.
package jwt

import (
	"strconv"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/golang-jwt/jwt/v5"
)

// JWT signs and parses user tokens with a shared secret
type JWT struct {
	secret []byte
}

// New creates a JWT helper, secret must not be empty
func New(secret []byte) (*JWT, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}

	return &JWT{secret: secret}, nil
}

// Sign issues a token for the user that expires after ttl
func (j *JWT) Sign(userID uint64, admin bool, now time.Time, ttl time.Duration) (string, error) {
	claims := &UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Admin: admin,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return token, nil
}

// Parse verifies the token signature and expiry and returns its claims
func (j *JWT) Parse(token string) (*UserClaims, error) {
	claims := new(UserClaims)
	if _, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			return j.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	); err != nil {
		return nil, errors.Wrap(err, "parse token")
	}

	return claims, nil
}
