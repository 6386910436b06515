package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("bearer token is malformed")
	ErrTokenExpired = errors.New("bearer token has expired")
)

// Identity is the technician identity carried by the login token. It is
// established once per authenticated session and never changes afterwards.
type Identity struct {
	TechID    string
	ExpiresAt time.Time
}

// ParseIdentity extracts the technician identity from the login token's
// claims. The signature is the server's to verify; the device only reads the
// subject and expiry, the way any bearer-token holder does.
func ParseIdentity(token string) (Identity, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	id := Identity{TechID: sub}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
		if time.Now().After(exp.Time) {
			return Identity{}, ErrTokenExpired
		}
	}
	return id, nil
}
