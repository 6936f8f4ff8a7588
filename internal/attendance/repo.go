package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/geo"
)

// Repository persists attendance data in Postgres. It implements Store.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindUserByEmail returns the engine's view of a user, or nil when absent.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, present, COALESCE(location_latitude, 'NaN'), COALESCE(location_longitude, 'NaN')
		FROM users
		WHERE email = $1
	`, email)
	var usr User
	if err := row.Scan(&usr.ID, &usr.Email, &usr.Present, &usr.LastLocation.Latitude, &usr.LastLocation.Longitude); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &usr, nil
}

// FindClassByID returns a class with its schedule and registered location,
// or nil when absent. Timings are stored as one JSONB array; a column that
// fails to decode is treated as an empty schedule rather than an error.
func (r *Repository) FindClassByID(ctx context.Context, id string) (*Class, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, latitude, longitude, timings
		FROM classes
		WHERE id = $1
	`, id)
	var (
		cls Class
		raw []byte
	)
	if err := row.Scan(&cls.ID, &cls.Name, &cls.Location.Latitude, &cls.Location.Longitude, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cls.Timings); err != nil {
			log.Printf("class %s: undecodable timings column: %v", cls.ID, err)
			cls.Timings = nil
		}
	}
	return &cls, nil
}

// UpdateUserLocation writes the last reported location as a single update.
func (r *Repository) UpdateUserLocation(ctx context.Context, userID string, pos geo.Point) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET location_latitude = $2, location_longitude = $3
		WHERE id = $1
	`, userID, pos.Latitude, pos.Longitude)
	return err
}

// SetUserPresent writes the presence flag as a single update.
func (r *Repository) SetUserPresent(ctx context.Context, userID string, present bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET present = $2
		WHERE id = $1
	`, userID, present)
	return err
}

// AuditRecord is one attempt outcome written by the worker.
type AuditRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ClassID    string    `json:"class_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Outcome    string    `json:"outcome"`
}

// InsertAudit writes one audit record.
func (r *Repository) InsertAudit(ctx context.Context, rec AuditRecord) (AuditRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_log (id, user_id, class_id, occurred_at, latitude, longitude, outcome)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, rec.ID, rec.UserID, rec.ClassID, rec.OccurredAt, rec.Latitude, rec.Longitude, rec.Outcome)
	if err != nil {
		return AuditRecord{}, err
	}
	return rec, nil
}

// ListAudit returns audit records with basic filters, newest first.
func (r *Repository) ListAudit(ctx context.Context, userID, classID string, limit, offset int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, user_id, class_id, occurred_at, latitude, longitude, outcome FROM attendance_log`
	args := []any{}
	clauses := []string{}
	if userID != "" {
		args = append(args, userID)
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if classID != "" {
		args = append(args, classID)
		clauses = append(clauses, fmt.Sprintf("class_id = $%d", len(args)))
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ClassID, &rec.OccurredAt, &rec.Latitude, &rec.Longitude, &rec.Outcome); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
