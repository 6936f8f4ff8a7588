// Package account handles registration and credential checks for students
// and teachers.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidRole        = errors.New("role must be student or teacher")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Account is a registered user.
type Account struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
}

// Repository is the persistence boundary. FindByEmail returns (nil, nil)
// when absent.
type Repository interface {
	CreateAccount(ctx context.Context, acc Account) (Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
}

// Service validates and registers accounts and checks login credentials.
type Service struct {
	repo Repository
}

// NewService creates a service backed by a repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register hashes the password and creates the account. Emails are stored
// lowercased so lookups are case-insensitive.
func (s *Service) Register(ctx context.Context, name, email, password, role string) (Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if role != RoleStudent && role != RoleTeacher {
		return Account{}, ErrInvalidRole
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return Account{}, fmt.Errorf("find account: %w", err)
	}
	if existing != nil {
		return Account{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}

	return s.repo.CreateAccount(ctx, Account{
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
	})
}

// Login checks email+password and, when role is non-empty, that the account
// holds that role. Bad email, password and role all collapse into
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password, role string) (Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	acc, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return Account{}, fmt.Errorf("find account: %w", err)
	}
	if acc == nil {
		return Account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	if role != "" && acc.Role != role {
		return Account{}, ErrInvalidCredentials
	}
	return *acc, nil
}
