package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/iliyamo/contacts-manager/internal/model"
	"github.com/iliyamo/contacts-manager/internal/repository"
	"github.com/iliyamo/contacts-manager/internal/telemetry"
	"github.com/iliyamo/contacts-manager/internal/utils"
)

var tracer = telemetry.Tracer("service")

const msgInvalidCredentials = "Invalid credentials"

// AuthConfig holds the token and hashing parameters of AuthService.
type AuthConfig struct {
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token string            `json:"token"`
	User  model.UserSummary `json:"user"`
}

// AuthService registers accounts, checks credentials and issues tokens.
type AuthService struct {
	users  *repository.UserRepo
	cfg    AuthConfig
	events EventPublisher
	log    *zap.Logger
}

func NewAuthService(users *repository.UserRepo, cfg AuthConfig, events EventPublisher, log *zap.Logger) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	if events == nil {
		events = NopPublisher{}
	}
	return &AuthService{users: users, cfg: cfg, events: events, log: log}
}

// Register creates a user with role "user" and signs it in.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Register")
	defer span.End()

	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" {
		return nil, invalid("name is required")
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, conflict("Email already in use")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	u := &model.User{Name: name, Email: email, PasswordHash: hash, Role: model.RoleUser}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, conflict("Email already in use")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	span.SetAttributes(attribute.String("user.id", u.ID))

	emit(ctx, s.events, s.log, Event{Type: EventUserRegistered, SubjectID: u.ID})
	return s.issue(u)
}

// Login checks email and password.  Unknown email and wrong password fail
// with the same message.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer span.End()

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, unauthorized(msgInvalidCredentials)
		}
		return nil, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, unauthorized(msgInvalidCredentials)
	}
	return s.issue(u)
}

// Verify resolves a bearer token to the identity it was issued for.
func (s *AuthService) Verify(token string) (Identity, error) {
	claims, err := utils.ParseAccessToken(s.cfg.Secret, token)
	if err != nil {
		return Identity{}, unauthorized("Invalid token")
	}
	return Identity{ID: claims.Subject, Role: claims.Role}, nil
}

// Me returns the caller's account.
func (s *AuthService) Me(ctx context.Context, who Identity) (model.UserSummary, error) {
	u, err := s.users.GetByID(ctx, who.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.UserSummary{}, notFound("User not found")
		}
		return model.UserSummary{}, err
	}
	return u.Summary(), nil
}

// EnsureAdmin makes sure an administrator account with the given email
// exists, creating it or promoting the existing account.  It is a no-op when
// email or password is empty.  The password of an existing account is left
// untouched.
func (s *AuthService) EnsureAdmin(ctx context.Context, name, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil
	}
	u, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if u.Role == model.RoleAdmin {
			return nil
		}
		if err := s.users.UpdateRole(ctx, u.ID, model.RoleAdmin); err != nil {
			return fmt.Errorf("promote admin: %w", err)
		}
		s.log.Info("promoted account to admin", zap.String("user_id", u.ID))
		return nil
	case !errors.Is(err, repository.ErrUserNotFound):
		return err
	}

	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	if name == "" {
		name = "Administrator"
	}
	admin := &model.User{Name: name, Email: email, PasswordHash: hash, Role: model.RoleAdmin}
	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	s.log.Info("created admin account", zap.String("user_id", admin.ID))
	return nil
}

func (s *AuthService) hash(password string) (string, error) {
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, utils.ErrPasswordTooLong) {
			return "", invalid("password must be at most 72 bytes")
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func (s *AuthService) issue(u *model.User) (*AuthResult, error) {
	tok, err := utils.NewAccessToken(s.cfg.Secret, u.ID, u.Role, s.cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &AuthResult{Token: tok.Token, User: u.Summary()}, nil
}
