package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-academic-api/internal/models"
)

const classDetailColumns = `c.id, c.code, c.name, c.subject_id, c.branch_id, c.modality, c.max_capacity, c.status, c.start_date,
       (SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id AND e.status = 'ENROLLED') AS enrolled_count`

// ClassRepository reads class offerings and their live enrollment counts.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// GetDetail loads a class with its enrolled count.
func (r *ClassRepository) GetDetail(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassDetail, error) {
	query := `SELECT ` + classDetailColumns + ` FROM classes c WHERE c.id = $1`
	var class models.ClassDetail
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// LockDetail is GetDetail holding a row lock on the class so concurrent enrollments serialize.
func (r *ClassRepository) LockDetail(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassDetail, error) {
	query := `SELECT ` + classDetailColumns + ` FROM classes c WHERE c.id = $1 FOR UPDATE`
	var class models.ClassDetail
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ListOpenBySubject returns open classes of a subject other than excludeID.
func (r *ClassRepository) ListOpenBySubject(ctx context.Context, subjectID, excludeID string) ([]models.ClassDetail, error) {
	query := `SELECT ` + classDetailColumns + ` FROM classes c
WHERE c.subject_id = $1 AND c.id <> $2 AND c.status IN ('SCHEDULED', 'ONGOING')
ORDER BY c.code ASC`
	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, subjectID, excludeID); err != nil {
		return nil, fmt.Errorf("list open classes by subject: %w", err)
	}
	return classes, nil
}
