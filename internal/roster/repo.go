package roster

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"rollcall/internal/schedule"
)

// PGRepository persists classes and enrollments in Postgres. It implements
// Repository.
type PGRepository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *PGRepository {
	return &PGRepository{db: db}
}

// CreateClass inserts a class with its timings as one JSONB array.
func (r *PGRepository) CreateClass(ctx context.Context, cls Class) (Class, error) {
	if cls.ID == "" {
		cls.ID = uuid.NewString()
	}
	timings, err := json.Marshal(cls.Timings)
	if err != nil {
		return Class{}, fmt.Errorf("encode timings: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO classes (id, name, entry_code, teacher_id, latitude, longitude, timings)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, cls.ID, cls.Name, cls.EntryCode, cls.TeacherID, cls.Location.Latitude, cls.Location.Longitude, timings)
	if err != nil {
		return Class{}, err
	}
	return cls, nil
}

const classColumns = `id, name, entry_code, teacher_id, latitude, longitude, timings`

func scanClass(row interface{ Scan(...any) error }) (*Class, error) {
	var (
		cls Class
		raw []byte
	)
	err := row.Scan(&cls.ID, &cls.Name, &cls.EntryCode, &cls.TeacherID,
		&cls.Location.Latitude, &cls.Location.Longitude, &raw)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &cls.Timings)
	}
	if cls.Timings == nil {
		cls.Timings = []schedule.TimingEntry{}
	}
	return &cls, nil
}

// FindClassByID returns a class, or nil when absent.
func (r *PGRepository) FindClassByID(ctx context.Context, id string) (*Class, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+classColumns+` FROM classes WHERE id = $1`, id)
	cls, err := scanClass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cls, err
}

// FindClassByEntryCode returns a class by its join code, or nil when absent.
func (r *PGRepository) FindClassByEntryCode(ctx context.Context, code string) (*Class, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+classColumns+` FROM classes WHERE entry_code = $1`, code)
	cls, err := scanClass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cls, err
}

// DeleteClass removes the class and its enrollments atomically.
func (r *PGRepository) DeleteClass(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE class_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Enroll adds a user to a class roster.
func (r *PGRepository) Enroll(ctx context.Context, classID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (class_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (class_id, user_id) DO NOTHING
	`, classID, userID)
	return err
}

// Unenroll removes a user from a class roster.
func (r *PGRepository) Unenroll(ctx context.Context, classID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM enrollments WHERE class_id = $1 AND user_id = $2
	`, classID, userID)
	return err
}

// IsEnrolled reports whether a user is on a class roster.
func (r *PGRepository) IsEnrolled(ctx context.Context, classID, userID string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM enrollments WHERE class_id = $1 AND user_id = $2)
	`, classID, userID)
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// ClassesForUser lists classes the user teaches or is enrolled in. Entry
// codes are only included for classes the user teaches.
func (r *PGRepository) ClassesForUser(ctx context.Context, userID string) ([]Class, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+classColumns+` FROM classes WHERE teacher_id = $1
		UNION
		SELECT c.id, c.name, c.entry_code, c.teacher_id, c.latitude, c.longitude, c.timings
		FROM classes c
		JOIN enrollments e ON e.class_id = c.id
		WHERE e.user_id = $1
		ORDER BY name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Class
	for rows.Next() {
		cls, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		if cls.TeacherID != userID {
			cls.EntryCode = ""
		}
		res = append(res, *cls)
	}
	return res, rows.Err()
}

// Students lists the enrolled users of a class with their presence flag.
func (r *PGRepository) Students(ctx context.Context, classID string) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.email, u.present
		FROM users u
		JOIN enrollments e ON e.user_id = u.id
		WHERE e.class_id = $1
		ORDER BY u.name
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.ID, &st.Name, &st.Email, &st.Present); err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}
