// Package auth turns request credentials into a principal.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"notekeeper/internal/domain"
	"notekeeper/internal/service"
)

// ErrIdentityUnavailable means the identity store could not be consulted.
// It is never returned for credentials that are merely wrong.
var ErrIdentityUnavailable = errors.New("identity store unavailable")

// Directory is the subset of the user service the resolver consults.
type Directory interface {
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Resolver maps credentials to a principal. Missing, malformed, expired or
// unknown credentials resolve to the anonymous principal without an error.
type Resolver struct {
	users  Directory
	tokens *TokenManager
	log    logrus.FieldLogger
}

func NewResolver(users Directory, tokens *TokenManager, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{users: users, tokens: tokens, log: log}
}

// ResolveToken resolves a bearer token.
func (r *Resolver) ResolveToken(ctx context.Context, token string) (domain.Principal, error) {
	if token == "" {
		return domain.Principal{}, nil
	}
	userID, err := r.tokens.Parse(token)
	if err != nil {
		r.log.WithError(err).Debug("rejecting session token")
		return domain.Principal{}, nil
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			r.log.WithField("user_id", userID).Debug("session token for unknown user")
			return domain.Principal{}, nil
		}
		return domain.Principal{}, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	return domain.Principal{UserID: user.ID}, nil
}

// ResolveCredentials resolves an email and password pair.
func (r *Resolver) ResolveCredentials(ctx context.Context, email, password string) (domain.Principal, error) {
	user, err := r.users.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return domain.Principal{}, nil
		}
		return domain.Principal{}, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	return domain.Principal{UserID: user.ID}, nil
}

// Issue returns a session token for a resolved principal.
func (r *Resolver) Issue(p domain.Principal) (string, time.Time, error) {
	if p.Anonymous() {
		return "", time.Time{}, service.ErrUnauthorized
	}
	return r.tokens.Issue(p.UserID)
}
