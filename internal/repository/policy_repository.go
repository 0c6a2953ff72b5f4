package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-academic-api/internal/models"
)

// PolicyRepository reads administrator-maintained policy values. The core never writes them.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository constructs the repository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// ListByKeys returns policies whose key is in the provided slice.
func (r *PolicyRepository) ListByKeys(ctx context.Context, keys []string) ([]models.Policy, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT key, value, updated_at FROM policies WHERE key IN (%s) ORDER BY key ASC`, placeholders(len(keys)))
	args := make([]interface{}, len(keys))
	for i, key := range keys {
		args[i] = key
	}
	var policies []models.Policy
	if err := r.db.SelectContext(ctx, &policies, query, args...); err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	return policies, nil
}
