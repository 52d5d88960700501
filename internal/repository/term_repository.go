package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campusplan/timetable-api/internal/models"
)

const termColumns = "id, code, name, start_date, end_date, created_at, updated_at"

// TermRepository provides persistence for academic terms.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository constructs the repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

// List returns all terms ordered by start date, newest first.
func (r *TermRepository) List(ctx context.Context) ([]models.Term, error) {
	query := fmt.Sprintf("SELECT %s FROM terms ORDER BY start_date DESC", termColumns)
	var terms []models.Term
	if err := r.db.SelectContext(ctx, &terms, query); err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	return terms, nil
}

// FindByID loads a term by id.
func (r *TermRepository) FindByID(ctx context.Context, id string) (*models.Term, error) {
	query := fmt.Sprintf("SELECT %s FROM terms WHERE id = $1", termColumns)
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query, id); err != nil {
		return nil, err
	}
	return &term, nil
}

// FindByDate returns the term whose date range contains the reference date.
func (r *TermRepository) FindByDate(ctx context.Context, ref time.Time) (*models.Term, error) {
	query := fmt.Sprintf("SELECT %s FROM terms WHERE start_date <= $1 AND end_date >= $1 ORDER BY start_date DESC LIMIT 1", termColumns)
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query, ref); err != nil {
		return nil, err
	}
	return &term, nil
}
