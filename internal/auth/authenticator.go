package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"imagegen/internal/apperr"
	"imagegen/internal/model"
	"imagegen/internal/repository"
)

// Authenticator resolves a bearer token to the caller's identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.Identity, error)
}

type authenticator struct {
	tokens *Tokens
	users  repository.UserRepository
}

// NewAuthenticator verifies tokens with tokens and checks that the subject still exists in users.
func NewAuthenticator(tokens *Tokens, users repository.UserRepository) Authenticator {
	return &authenticator{tokens: tokens, users: users}
}

func (a *authenticator) Authenticate(ctx context.Context, token string) (model.Identity, error) {
	claims, err := a.tokens.Parse(token)
	if err != nil {
		return model.Identity{}, err
	}
	u, err := a.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Identity{}, fmt.Errorf("%w: unknown user", apperr.ErrUnauthorized)
		}
		return model.Identity{}, err
	}
	return model.Identity{UserID: u.ID, Email: u.Email, Token: token}, nil
}
