package service

import (
	"errors"
	"ethics_gate_backend/internal/config"
	"ethics_gate_backend/internal/model"
	"ethics_gate_backend/internal/repository"
	"ethics_gate_backend/internal/util"

	"golang.org/x/crypto/bcrypt"
)

// AuthService handles account registration and login for the gate's own
// HTTP surface. Gate decisions themselves trust the externalId carried in
// the token; identity federation stays upstream.
type AuthService struct {
	users *repository.UserRepository
	cfg   *config.Config
}

func NewAuthService(users *repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{users: users, cfg: cfg}
}

type RegisterInput struct {
	ExternalID string `json:"externalId" binding:"required"`
	OrgID      string `json:"orgId" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
	Role       string `json:"role"`
}

func (s *AuthService) Register(in *RegisterInput) (*model.User, error) {
	if _, err := s.users.FindByEmail(in.Email); err == nil {
		return nil, util.ErrEmailRegistered
	} else if !errors.Is(err, util.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	role := model.UserRole(in.Role)
	switch role {
	case model.Member, model.Manager, model.Admin:
	default:
		role = model.Member
	}

	user := &model.User{
		ExternalID: in.ExternalID,
		OrgID:      in.OrgID,
		Name:       in.Name,
		Email:      in.Email,
		Password:   string(hashed),
		Role:       role,
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Login(email, password string) (string, *model.User, error) {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		return "", nil, err
	}
	if user.Disabled {
		return "", nil, util.ErrPermissionDenied
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, util.ErrUserNotFound
	}

	token, err := util.GenerateJWT(user, s.cfg.JWT.Secret, s.cfg.JWT.ExpireTime)
	if err != nil {
		return "", nil, err
	}

	if err := s.users.UpdateLastLogin(user.ID); err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *AuthService) Profile(userID uint) (*model.User, error) {
	return s.users.FindByID(userID)
}
