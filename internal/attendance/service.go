package attendance

import (
	"context"
	"fmt"
	"time"

	"rollcall/internal/geo"
	"rollcall/internal/metrics"
	"rollcall/internal/schedule"
)

// User is the storage view the engine needs: identity plus the two fields
// it mutates.
type User struct {
	ID           string
	Email        string
	Present      bool
	LastLocation geo.Point
}

// Class is the storage view the engine needs: schedule and registered
// location.
type Class struct {
	ID       string
	Name     string
	Timings  []schedule.TimingEntry
	Location geo.Point
}

// Store is the persistence boundary of the engine. Implementations return
// (nil, nil) when a row is absent.
type Store interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindClassByID(ctx context.Context, id string) (*Class, error)
	UpdateUserLocation(ctx context.Context, userID string, pos geo.Point) error
	SetUserPresent(ctx context.Context, userID string, present bool) error
}

// Reason classifies why an attempt was not recorded.
type Reason string

const (
	ReasonUserNotFound      Reason = "user_not_found"
	ReasonClassNotFound     Reason = "class_not_found"
	ReasonOutsideTimeWindow Reason = "outside_time_window"
	ReasonOutsideGeofence   Reason = "outside_geofence"
)

// Result is the outcome of one attendance attempt. DistanceFeet is the
// measured distance to the class location when both lookups succeeded.
type Result struct {
	Marked       bool
	Reason       Reason
	DistanceFeet float64
}

// Config holds the admission policy knobs.
type Config struct {
	GeofenceRadiusFeet float64
	WindowBefore       time.Duration
	WindowAfter        time.Duration
}

// Service is the attendance eligibility and recording engine.
type Service struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// NewService creates the engine with the given admission policy. Zero
// config values fall back to the 20 ft / ±5 min defaults.
func NewService(store Store, cfg Config) *Service {
	if cfg.GeofenceRadiusFeet <= 0 {
		cfg.GeofenceRadiusFeet = 20
	}
	if cfg.WindowBefore <= 0 {
		cfg.WindowBefore = 5 * time.Minute
	}
	if cfg.WindowAfter <= 0 {
		cfg.WindowAfter = 5 * time.Minute
	}
	return &Service{store: store, cfg: cfg, now: time.Now}
}

// WithinGeofence reports whether pos is inside the configured radius of the
// class location, boundary inclusive. Invalid positions (geolocation denied
// or missing) fail closed.
func (s *Service) WithinGeofence(pos, classLoc geo.Point) (bool, float64) {
	if !pos.Valid() {
		return false, 0
	}
	d := geo.Distance(pos, classLoc)
	return d <= s.cfg.GeofenceRadiusFeet, d
}

// Mark runs one attendance attempt for the user identified by email against
// the class. The reported location is persisted before the admission checks
// and stays persisted even when the attempt is rejected. An error return
// means infrastructure failure, not rejection.
func (s *Service) Mark(ctx context.Context, email, classID string, pos geo.Point) (Result, error) {
	usr, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		metrics.AttendanceAttempts.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("find user: %w", err)
	}
	if usr == nil {
		metrics.AttendanceAttempts.WithLabelValues(string(ReasonUserNotFound)).Inc()
		return Result{Reason: ReasonUserNotFound}, nil
	}

	cls, err := s.store.FindClassByID(ctx, classID)
	if err != nil {
		metrics.AttendanceAttempts.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("find class: %w", err)
	}
	if cls == nil {
		metrics.AttendanceAttempts.WithLabelValues(string(ReasonClassNotFound)).Inc()
		return Result{Reason: ReasonClassNotFound}, nil
	}

	// Record the reported location regardless of the admission outcome so
	// near-misses stay diagnosable.
	if pos.Valid() {
		if err := s.store.UpdateUserLocation(ctx, usr.ID, pos); err != nil {
			metrics.AttendanceAttempts.WithLabelValues("error").Inc()
			return Result{}, fmt.Errorf("update location: %w", err)
		}
	}

	if !schedule.WithinWindow(s.now(), cls.Timings, s.cfg.WindowBefore, s.cfg.WindowAfter) {
		metrics.AttendanceAttempts.WithLabelValues(string(ReasonOutsideTimeWindow)).Inc()
		return Result{Reason: ReasonOutsideTimeWindow}, nil
	}

	ok, dist := s.WithinGeofence(pos, cls.Location)
	if !ok {
		metrics.AttendanceAttempts.WithLabelValues(string(ReasonOutsideGeofence)).Inc()
		return Result{Reason: ReasonOutsideGeofence, DistanceFeet: dist}, nil
	}

	// Idempotent: the written value does not depend on the previous one,
	// so concurrent attempts are safe without locking.
	if err := s.store.SetUserPresent(ctx, usr.ID, true); err != nil {
		metrics.AttendanceAttempts.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("set present: %w", err)
	}

	metrics.AttendanceAttempts.WithLabelValues("marked").Inc()
	return Result{Marked: true, DistanceFeet: dist}, nil
}
