package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-timetable/internal/config"
	"github.com/stemsi/exstem-timetable/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Role distinguishes admin vs teacher tokens.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	Role   Role   `json:"role"`
	UserID int    `json:"user_id"`
	Term   string `json:"term,omitempty"` // Teacher only
}

// AdminRepository is the admin storage used for login.
type AdminRepository interface {
	GetByUsername(ctx context.Context, username string) (*model.Admin, error)
	Create(ctx context.Context, a *model.Admin) error
}

// AuthService handles password hashing, login and JWT validation.
type AuthService struct {
	cfg         *config.Config
	adminRepo   AdminRepository
	teacherRepo TeacherRepository
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, adminRepo AdminRepository, teacherRepo TeacherRepository) *AuthService {
	return &AuthService{cfg: cfg, adminRepo: adminRepo, teacherRepo: teacherRepo}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login authenticates an admin first, then a teacher. A teacher username may
// exist in several terms; the most recent matching account wins.
func (s *AuthService) Login(ctx context.Context, username, password string) (*model.LoginResponse, error) {
	admin, err := s.adminRepo.GetByUsername(ctx, username)
	switch {
	case err == nil:
		if s.CheckPassword(admin.PasswordHash, password) == nil {
			token, err := s.GenerateToken(RoleAdmin, admin.ID, "")
			if err != nil {
				return nil, err
			}
			return &model.LoginResponse{Token: token, Role: string(RoleAdmin), Admin: admin}, nil
		}
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("lookup admin: %w", err)
	}

	teachers, err := s.teacherRepo.ListByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("lookup teacher: %w", err)
	}
	for i := range teachers {
		t := &teachers[i]
		if s.CheckPassword(t.PasswordHash, password) != nil {
			continue
		}
		token, err := s.GenerateToken(RoleTeacher, t.ID, t.Term)
		if err != nil {
			return nil, err
		}
		return &model.LoginResponse{Token: token, Role: string(RoleTeacher), Teacher: t}, nil
	}

	return nil, ErrInvalidCredentials
}

// GenerateToken signs a JWT for the given principal.
func (s *AuthService) GenerateToken(role Role, userID int, term string) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		Role:   role,
		UserID: userID,
		Term:   term,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Role != RoleAdmin && claims.Role != RoleTeacher {
		return nil, errors.New("unknown token role")
	}

	return claims, nil
}

// CanAccessTeacher reports whether the principal may read or write the
// timetable of teacherID in term. Admins may access every teacher.
func (c *Claims) CanAccessTeacher(term string, teacherID int) bool {
	if c.Role == RoleAdmin {
		return true
	}
	return c.Role == RoleTeacher && c.UserID == teacherID && c.Term == term
}
