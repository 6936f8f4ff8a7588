package account

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// PGRepository persists accounts in Postgres. It implements Repository.
type PGRepository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *PGRepository {
	return &PGRepository{db: db}
}

// CreateAccount inserts a new account row.
func (r *PGRepository) CreateAccount(ctx context.Context, acc Account) (Account, error) {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, present)
		VALUES ($1, $2, $3, $4, $5, FALSE)
	`, acc.ID, acc.Name, acc.Email, acc.PasswordHash, acc.Role)
	if err != nil {
		return Account{}, err
	}
	return acc, nil
}

// FindByEmail returns an account by email, or nil when absent.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role
		FROM users
		WHERE email = $1
	`, email)
	var acc Account
	if err := row.Scan(&acc.ID, &acc.Name, &acc.Email, &acc.PasswordHash, &acc.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &acc, nil
}
