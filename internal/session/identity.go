package session

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/golang-jwt/jwt/v5"

	"gqlchat/internal/chat"
)

// UserLister lists every known user. The messaging API satisfies it.
type UserLister interface {
	Users(ctx context.Context) ([]chat.User, error)
}

var ErrNoSubject = errors.New("credential carries no subject")

// TokenSubject extracts the sub claim of a bearer token without verifying
// its signature; the identity service remains the authority on validity.
func TokenSubject(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("decode credential: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("decode credential: %w", err)
	}
	if sub == "" {
		return "", ErrNoSubject
	}
	return sub, nil
}

// RecoverIdentity rebuilds the user record for a credential when the login
// response did not carry one. The subject is matched against the user
// listing by username; when the listing fails or has no match a minimal
// record named after the subject is returned.
func RecoverIdentity(ctx context.Context, token string, users UserLister) (chat.User, error) {
	sub, err := TokenSubject(token)
	if err != nil {
		return chat.User{}, err
	}
	if users != nil {
		all, err := users.Users(ctx)
		if err != nil {
			log.Printf("session: user listing failed during identity recovery: %v", err)
		}
		for _, candidate := range all {
			if candidate.Username == sub && candidate.Valid() {
				return candidate, nil
			}
		}
	}
	return chat.User{ID: sub, Username: sub, DisplayName: sub}, nil
}
