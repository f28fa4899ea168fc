package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/flowchat/internal/auth"
	"github.com/capitalize-ai/flowchat/internal/model"
	"github.com/capitalize-ai/flowchat/internal/store"
	"github.com/capitalize-ai/flowchat/pkg/logger"
)

const invalidCredentials = "Invalid email or password."

// AuthService registers and signs in users.
type AuthService struct {
	users  store.UserStore
	issuer *auth.Issuer
	logger *logger.Logger
	now    func() time.Time
}

// NewAuthService creates a new auth service.
func NewAuthService(users store.UserStore, issuer *auth.Issuer, log *logger.Logger) *AuthService {
	return &AuthService{
		users:  users,
		issuer: issuer,
		logger: log,
		now:    time.Now,
	}
}

// Register creates a user with the default role and returns a signed token.
func (s *AuthService) Register(ctx context.Context, req *model.CredentialsRequest) (*model.RegisterResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, validation("Email and password required")
	}

	user, err := s.createUser(ctx, req.Email, req.Password, model.RoleUser)
	if err != nil {
		return nil, err
	}

	token, err := s.issuer.Issue(user)
	if err != nil {
		return nil, internal("Server error", err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))

	return &model.RegisterResponse{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
		Token: token,
	}, nil
}

// Login checks credentials. Unknown emails and wrong passwords are not
// errors: they produce a response with Success false.
func (s *AuthService) Login(ctx context.Context, req *model.CredentialsRequest) (*model.LoginResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, validation("Email and password required")
	}

	user, err := s.users.GetUserByEmail(ctx, model.NormalizeEmail(req.Email))
	if errors.Is(err, store.ErrNotFound) {
		return &model.LoginResponse{Success: false, Message: invalidCredentials}, nil
	}
	if err != nil {
		return nil, internal("Server error", err)
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		return &model.LoginResponse{Success: false, Message: invalidCredentials}, nil
	}

	token, err := s.issuer.Issue(user)
	if err != nil {
		return nil, internal("Server error", err)
	}

	return &model.LoginResponse{
		Success: true,
		Email:   user.Email,
		Role:    user.Role,
		UserID:  user.ID,
		Token:   token,
	}, nil
}

// EnsureAdmin creates an admin account unless a user with that email exists.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	_, err := s.users.GetUserByEmail(ctx, model.NormalizeEmail(email))
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	user, err := s.createUser(ctx, email, password, model.RoleAdmin)
	if err != nil {
		return err
	}

	s.logger.Info("admin account created", zap.String("user_id", user.ID))
	return nil
}

func (s *AuthService) createUser(ctx context.Context, email, password string, role model.Role) (*model.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, internal("Server error", err)
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        model.NormalizeEmail(email),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, conflict("User already exists", err)
		}
		return nil, internal("Server error", err)
	}
	return user, nil
}
