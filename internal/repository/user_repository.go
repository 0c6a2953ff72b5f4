package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-academic-api/internal/models"
)

// UserRepository resolves notification recipients from the user directory.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindContact returns the display name and email of a user.
func (r *UserRepository) FindContact(ctx context.Context, id string) (*models.UserContact, error) {
	const query = `SELECT id, full_name, email FROM users WHERE id = $1 LIMIT 1`
	var contact models.UserContact
	if err := r.db.GetContext(ctx, &contact, query, id); err != nil {
		return nil, err
	}
	return &contact, nil
}
