package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const appleIssuer = "https://appleid.apple.com"

var errAppleUnconfigured = errors.New("apple provider needs a client id and signing keys")

// Apple verifies Sign in with Apple ID tokens: RS256 signature against
// Keyfunc, issuer, expiry and an audience equal to ClientID.
type Apple struct {
	ClientID string
	Keyfunc  jwt.Keyfunc
	Now      func() time.Time
}

// NewApple checks tokens issued for clientID against the key set at keysURL
// (Apple's published keys when empty).
func NewApple(clientID, keysURL string) *Apple {
	return &Apple{ClientID: clientID, Keyfunc: NewAppleKeys(keysURL).Keyfunc}
}

func (a *Apple) Kind() Kind { return KindApple }

func (a *Apple) Verify(_ context.Context, token string) (Profile, error) {
	if a.ClientID == "" || a.Keyfunc == nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrInvalidToken, errAppleUnconfigured)
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(appleIssuer),
		jwt.WithAudience(a.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if _, err := parser.ParseWithClaims(token, claims, a.Keyfunc); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return Profile{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	email, _ := claims["email"].(string)

	profile := Profile{UID: sub, Email: email}
	// apple has sent this as both a string and a bool
	switch private := claims["is_private_email"].(type) {
	case string:
		profile.Fields = map[string]string{"is_private_email": private}
	case bool:
		profile.Fields = map[string]string{"is_private_email": fmt.Sprint(private)}
	}
	return profile, nil
}
