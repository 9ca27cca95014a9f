package service

import (
	"context"
	"errors"
	"fmt"

	"script_console/internal/common"
	"script_console/internal/common/security"
	"script_console/internal/domain/model"
	"script_console/internal/domain/repository"

	"github.com/google/uuid"
)

type AuthService struct {
	userRepo repository.UserRepository
	activity *ActivityService
}

func NewAuthService(userRepo repository.UserRepository, activity *ActivityService) *AuthService {
	return &AuthService{userRepo: userRepo, activity: activity}
}

type RegisterRequest struct {
	Name       string `json:"name" validate:"required,min=2,max=100"`
	Username   string `json:"username" validate:"required,min=3,max=50"`
	Password   string `json:"password" validate:"required,min=8,max=100,strongpassword"`
	Department string `json:"department" validate:"required,oneof=Development Support"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=8,max=100"`
}

type AuthResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	hashedPassword, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:             uuid.NewString(),
		Name:           req.Name,
		Username:       req.Username,
		Department:     req.Department,
		HashedPassword: hashedPassword,
		Role:           model.RoleUser,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// Repo might return common.ErrConflict
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := security.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	s.activity.Record(ctx, model.ActionAuth, model.LevelInfo, "User registered", identityOf(user), nil)

	user.HashedPassword = "" // Clear password before returning
	return &AuthResponse{User: user, Token: token}, nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.recordFailedLogin(ctx, req.Username)
			return nil, common.ErrUnauthorized // Generic message for security
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if !security.CheckPasswordHash(req.Password, user.HashedPassword) {
		s.recordFailedLogin(ctx, req.Username)
		return nil, common.ErrUnauthorized
	}

	token, err := security.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	s.activity.Record(ctx, model.ActionAuth, model.LevelInfo, "User logged in", identityOf(user), nil)

	user.HashedPassword = ""
	return &AuthResponse{User: user, Token: token}, nil
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.HashedPassword = ""
	return user, nil
}

func (s *AuthService) recordFailedLogin(ctx context.Context, username string) {
	s.activity.Record(ctx, model.ActionSecurity, model.LevelWarning, "Failed login attempt",
		security.Identity{}, map[string]any{"username": username})
}

func identityOf(u *model.User) security.Identity {
	return security.Identity{
		UserID:     u.ID,
		Username:   u.Username,
		Name:       u.Name,
		Role:       u.Role,
		Department: u.Department,
	}
}
