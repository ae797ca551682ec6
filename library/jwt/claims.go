package jwt

import (
	"strconv"

	"github.com/Laisky/errors/v2"
	"github.com/golang-jwt/jwt/v5"
)

// UserClaims identifies the portal user behind a request.
// Subject carries the numeric user id.
type UserClaims struct {
	jwt.RegisteredClaims
	Admin bool `json:"admin,omitempty"`
}

// UserID parses the numeric user id from the subject
func (uc *UserClaims) UserID() (uint64, error) {
	if uc.Subject == "" {
		return 0, errors.New("token subject is empty")
	}

	id, err := strconv.ParseUint(uc.Subject, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse subject %q", uc.Subject)
	}
	return id, nil
}
