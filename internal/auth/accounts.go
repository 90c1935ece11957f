package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"imagegen/internal/apperr"
	"imagegen/internal/model"
	"imagegen/internal/repository"
)

// SignUpInput is the registration form.
type SignUpInput struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"eqfield=Password"`
	Name            string `json:"name" validate:"required,min=2,max=100"`
}

// SignInInput is the login form.
type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is returned after a successful sign up or sign in.
type Session struct {
	Token     string      `json:"access_token"`
	TokenType string      `json:"token_type"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// Accounts manages users and their profile.
type Accounts interface {
	SignUp(ctx context.Context, in SignUpInput) (*Session, error)
	SignIn(ctx context.Context, in SignInInput) (*Session, error)
	Profile(ctx context.Context, caller model.Identity) (*model.User, error)
	UpdateName(ctx context.Context, caller model.Identity, name string) (*model.User, error)
}

type accounts struct {
	users    repository.UserRepository
	tokens   *Tokens
	validate *validator.Validate
	cost     int
	now      func() time.Time
}

// NewAccounts constructs Accounts.
func NewAccounts(users repository.UserRepository, tokens *Tokens) Accounts {
	return &accounts{
		users:    users,
		tokens:   tokens,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
}

func (a *accounts) SignUp(ctx context.Context, in SignUpInput) (*Session, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := a.validate.Struct(in); err != nil {
		return nil, signUpError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrPasswordPolicy, err)
	}

	now := a.now().UTC()
	u, err := a.users.Create(ctx, &model.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.ErrEmailTaken
		}
		return nil, err
	}
	return a.session(u)
}

func (a *accounts) SignIn(ctx context.Context, in SignInInput) (*Session, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, apperr.ErrInvalidCredentials
	}
	u, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return nil, apperr.ErrInvalidCredentials
	}
	return a.session(u)
}

func (a *accounts) Profile(ctx context.Context, caller model.Identity) (*model.User, error) {
	if caller.Anonymous() {
		return nil, apperr.ErrUnauthorized
	}
	u, err := a.users.FindByID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (a *accounts) UpdateName(ctx context.Context, caller model.Identity, name string) (*model.User, error) {
	if caller.Anonymous() {
		return nil, apperr.ErrUnauthorized
	}
	name = strings.TrimSpace(name)
	if err := a.validate.Var(name, "required,min=2,max=100"); err != nil {
		return nil, apperr.ErrNameTooShort
	}
	u, err := a.users.UpdateName(ctx, caller.UserID, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (a *accounts) session(u *model.User) (*Session, error) {
	token, exp, err := a.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, TokenType: "Bearer", ExpiresAt: exp, User: u}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// signUpError maps the first failing field to its sentinel.
func signUpError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	switch verrs[0].Field() {
	case "Email":
		return apperr.ErrInvalidEmail
	case "Password":
		return apperr.ErrPasswordPolicy
	case "ConfirmPassword":
		return apperr.ErrPasswordMismatch
	case "Name":
		return apperr.ErrNameTooShort
	}
	return err
}
