// Package roster manages classes and their student enrollments.
package roster

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"

	"rollcall/internal/geo"
	"rollcall/internal/schedule"
)

var (
	ErrNotFound      = errors.New("class not found")
	ErrNotOwner      = errors.New("only the owning teacher may do this")
	ErrBadEntryCode  = errors.New("unknown entry code")
	ErrAlreadyJoined = errors.New("already enrolled in this class")
)

// Class is a scheduled class with a registered location.
type Class struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	EntryCode string                 `json:"entry_code,omitempty"`
	TeacherID string                 `json:"teacher_id"`
	Location  geo.Point              `json:"location"`
	Timings   []schedule.TimingEntry `json:"timings"`
}

// Repository is the persistence boundary.
type Repository interface {
	CreateClass(ctx context.Context, cls Class) (Class, error)
	FindClassByID(ctx context.Context, id string) (*Class, error)
	FindClassByEntryCode(ctx context.Context, code string) (*Class, error)
	DeleteClass(ctx context.Context, id string) error
	Enroll(ctx context.Context, classID, userID string) error
	Unenroll(ctx context.Context, classID, userID string) error
	IsEnrolled(ctx context.Context, classID, userID string) (bool, error)
	ClassesForUser(ctx context.Context, userID string) ([]Class, error)
	Students(ctx context.Context, classID string) ([]Student, error)
}

// Student is the roster view of an enrolled user.
type Student struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Present bool   `json:"present"`
}

// CreateClassInput is the validated payload for class creation.
type CreateClassInput struct {
	Name      string                 `json:"name" validate:"required,min=1,max=255"`
	Latitude  float64                `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64                `json:"longitude" validate:"min=-180,max=180"`
	Timings   []schedule.TimingEntry `json:"timings" validate:"required,min=1,dive"`
}

// Service coordinates roster operations.
type Service struct {
	repo Repository
}

// NewService creates a service backed by a repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateClass validates the schedule, generates an entry code and persists
// the class for the teacher.
func (s *Service) CreateClass(ctx context.Context, teacherID string, in CreateClassInput) (Class, error) {
	if err := ValidateCreateClass(in); err != nil {
		return Class{}, err
	}

	code, err := newEntryCode()
	if err != nil {
		return Class{}, fmt.Errorf("entry code: %w", err)
	}

	return s.repo.CreateClass(ctx, Class{
		Name:      in.Name,
		EntryCode: code,
		TeacherID: teacherID,
		Location:  geo.Point{Latitude: in.Latitude, Longitude: in.Longitude},
		Timings:   in.Timings,
	})
}

// JoinClass enrolls the user into the class matching the entry code.
func (s *Service) JoinClass(ctx context.Context, userID, entryCode string) (Class, error) {
	cls, err := s.repo.FindClassByEntryCode(ctx, strings.TrimSpace(entryCode))
	if err != nil {
		return Class{}, fmt.Errorf("find class: %w", err)
	}
	if cls == nil {
		return Class{}, ErrBadEntryCode
	}

	enrolled, err := s.repo.IsEnrolled(ctx, cls.ID, userID)
	if err != nil {
		return Class{}, fmt.Errorf("check enrollment: %w", err)
	}
	if enrolled {
		return Class{}, ErrAlreadyJoined
	}

	if err := s.repo.Enroll(ctx, cls.ID, userID); err != nil {
		return Class{}, fmt.Errorf("enroll: %w", err)
	}
	cls.EntryCode = "" // not echoed back to students
	return *cls, nil
}

// LeaveClass removes the user's enrollment.
func (s *Service) LeaveClass(ctx context.Context, userID, classID string) error {
	cls, err := s.repo.FindClassByID(ctx, classID)
	if err != nil {
		return fmt.Errorf("find class: %w", err)
	}
	if cls == nil {
		return ErrNotFound
	}
	return s.repo.Unenroll(ctx, classID, userID)
}

// DeleteClass removes a class and all its enrollments in one transaction.
// Only the owning teacher may delete.
func (s *Service) DeleteClass(ctx context.Context, teacherID, classID string) error {
	cls, err := s.repo.FindClassByID(ctx, classID)
	if err != nil {
		return fmt.Errorf("find class: %w", err)
	}
	if cls == nil {
		return ErrNotFound
	}
	if cls.TeacherID != teacherID {
		return ErrNotOwner
	}
	return s.repo.DeleteClass(ctx, classID)
}

// ClassesForUser lists classes the user teaches or attends.
func (s *Service) ClassesForUser(ctx context.Context, userID string) ([]Class, error) {
	return s.repo.ClassesForUser(ctx, userID)
}

// Students lists the roster of a class for its owning teacher.
func (s *Service) Students(ctx context.Context, teacherID, classID string) ([]Student, error) {
	cls, err := s.repo.FindClassByID(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("find class: %w", err)
	}
	if cls == nil {
		return nil, ErrNotFound
	}
	if cls.TeacherID != teacherID {
		return nil, ErrNotOwner
	}
	return s.repo.Students(ctx, classID)
}

// newEntryCode returns a short shareable join code, e.g. "hg6rf1".
func newEntryCode() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	code := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf[:])
	return strings.ToLower(code[:6]), nil
}
