package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusplan/timetable-api/internal/models"
)

const rangeColumns = "id, curriculum_id, parent_id, program_id, pool_id, subject_id, lft, rgt, level"

// CurriculumRepository answers nested-set hierarchy queries and owns the
// boundary arithmetic for subtree mutation. All lft/rgt shifts happen inside
// one transaction so callers never see a partially shifted tree.
type CurriculumRepository struct {
	db *sqlx.DB
}

// NewCurriculumRepository constructs the repository.
func NewCurriculumRepository(db *sqlx.DB) *CurriculumRepository {
	return &CurriculumRepository{db: db}
}

// FindRange loads one range by id.
func (r *CurriculumRepository) FindRange(ctx context.Context, id string) (*models.CurriculumRange, error) {
	query := fmt.Sprintf("SELECT %s FROM curriculum_ranges WHERE id = $1", rangeColumns)
	var rng models.CurriculumRange
	if err := r.db.GetContext(ctx, &rng, query, id); err != nil {
		return nil, err
	}
	return &rng, nil
}

// RangesFor returns every range mapping the given resource. A resource may be
// mapped into multiple curricula, so multiple ranges are expected.
func (r *CurriculumRepository) RangesFor(ctx context.Context, resource models.RangeResource, resourceID string) ([]models.CurriculumRange, error) {
	if resourceID == "" {
		return nil, nil
	}

	var column string
	switch resource {
	case models.ResourceProgram:
		column = "program_id"
	case models.ResourcePool:
		column = "pool_id"
	case models.ResourceSubject:
		column = "subject_id"
	default:
		return nil, fmt.Errorf("unknown range resource %q", resource)
	}

	query := fmt.Sprintf("SELECT %s FROM curriculum_ranges WHERE %s = $1 ORDER BY lft ASC", rangeColumns, column)
	var ranges []models.CurriculumRange
	if err := r.db.SelectContext(ctx, &ranges, query, resourceID); err != nil {
		return nil, fmt.Errorf("ranges for %s %s: %w", resource, resourceID, err)
	}
	return ranges, nil
}

// DescendantsOf returns all ranges strictly contained by rng. With directOnly
// the result is limited to one level below; direct children of programs are
// additionally restricted to pools, since only pools are valid direct children
// of programs.
func (r *CurriculumRepository) DescendantsOf(ctx context.Context, rng models.CurriculumRange, directOnly bool) ([]models.CurriculumRange, error) {
	if !rng.Valid() {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT %s FROM curriculum_ranges WHERE curriculum_id = $1 AND lft > $2 AND rgt < $3", rangeColumns)
	args := []interface{}{rng.CurriculumID, rng.Lft, rng.Rgt}
	if directOnly {
		query += fmt.Sprintf(" AND level = $%d", len(args)+1)
		args = append(args, rng.Level+1)
		if rng.ProgramID != nil {
			query += " AND pool_id IS NOT NULL"
		}
	}
	query += " ORDER BY lft ASC"

	var ranges []models.CurriculumRange
	if err := r.db.SelectContext(ctx, &ranges, query, args...); err != nil {
		return nil, fmt.Errorf("descendants of range %s: %w", rng.ID, err)
	}
	return ranges, nil
}

// AncestorsOf returns all ranges strictly containing rng, outermost first.
func (r *CurriculumRepository) AncestorsOf(ctx context.Context, rng models.CurriculumRange) ([]models.CurriculumRange, error) {
	if !rng.Valid() {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT %s FROM curriculum_ranges WHERE curriculum_id = $1 AND lft < $2 AND rgt > $3 ORDER BY lft ASC", rangeColumns)
	var ranges []models.CurriculumRange
	if err := r.db.SelectContext(ctx, &ranges, query, rng.CurriculumID, rng.Lft, rng.Rgt); err != nil {
		return nil, fmt.Errorf("ancestors of range %s: %w", rng.ID, err)
	}
	return ranges, nil
}

// InsertRange maps a resource under the given parent range. The new node is
// appended as the parent's rightmost child; every boundary at or beyond the
// insertion point shifts right by two.
func (r *CurriculumRepository) InsertRange(ctx context.Context, parentID string, node *models.CurriculumRange) error {
	if node == nil {
		return fmt.Errorf("range payload is nil")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert range: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	parentQuery := fmt.Sprintf("SELECT %s FROM curriculum_ranges WHERE id = $1 FOR UPDATE", rangeColumns)
	var parent models.CurriculumRange
	if err = tx.GetContext(ctx, &parent, parentQuery, parentID); err != nil {
		return fmt.Errorf("load parent range: %w", err)
	}
	if !parent.Valid() {
		err = fmt.Errorf("parent range %s has no boundaries", parentID)
		return err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE curriculum_ranges SET rgt = rgt + 2 WHERE curriculum_id = $1 AND rgt >= $2`,
		parent.CurriculumID, parent.Rgt); err != nil {
		return fmt.Errorf("shift right boundaries: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE curriculum_ranges SET lft = lft + 2 WHERE curriculum_id = $1 AND lft > $2`,
		parent.CurriculumID, parent.Rgt); err != nil {
		return fmt.Errorf("shift left boundaries: %w", err)
	}

	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	node.CurriculumID = parent.CurriculumID
	node.ParentID = &parent.ID
	node.Lft = parent.Rgt
	node.Rgt = parent.Rgt + 1
	node.Level = parent.Level + 1

	if _, err = tx.NamedExecContext(ctx, `
INSERT INTO curriculum_ranges (id, curriculum_id, parent_id, program_id, pool_id, subject_id, lft, rgt, level)
VALUES (:id, :curriculum_id, :parent_id, :program_id, :pool_id, :subject_id, :lft, :rgt, :level)`, node); err != nil {
		return fmt.Errorf("insert range: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit insert range: %w", err)
	}
	return nil
}

// DeleteRange removes a range and its whole subtree, then closes the gap left
// in the boundary sequence.
func (r *CurriculumRepository) DeleteRange(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete range: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	nodeQuery := fmt.Sprintf("SELECT %s FROM curriculum_ranges WHERE id = $1 FOR UPDATE", rangeColumns)
	var node models.CurriculumRange
	if err = tx.GetContext(ctx, &node, nodeQuery, id); err != nil {
		if err == sql.ErrNoRows {
			_ = tx.Rollback()
			return sql.ErrNoRows
		}
		return fmt.Errorf("load range: %w", err)
	}

	width := node.Rgt - node.Lft + 1

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM curriculum_ranges WHERE curriculum_id = $1 AND lft >= $2 AND rgt <= $3`,
		node.CurriculumID, node.Lft, node.Rgt); err != nil {
		return fmt.Errorf("delete subtree: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE curriculum_ranges SET lft = lft - $2 WHERE curriculum_id = $1 AND lft > $3`,
		node.CurriculumID, width, node.Rgt); err != nil {
		return fmt.Errorf("close left boundaries: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE curriculum_ranges SET rgt = rgt - $2 WHERE curriculum_id = $1 AND rgt > $3`,
		node.CurriculumID, width, node.Rgt); err != nil {
		return fmt.Errorf("close right boundaries: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete range: %w", err)
	}
	return nil
}

// SubjectIDsWithin returns the subject ids mapped anywhere inside the range.
func (r *CurriculumRepository) SubjectIDsWithin(ctx context.Context, rng models.CurriculumRange) ([]string, error) {
	if !rng.Valid() {
		return nil, nil
	}

	const query = `SELECT DISTINCT subject_id FROM curriculum_ranges
WHERE curriculum_id = $1 AND lft > $2 AND rgt < $3 AND subject_id IS NOT NULL`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, rng.CurriculumID, rng.Lft, rng.Rgt); err != nil {
		return nil, fmt.Errorf("subjects within range %s: %w", rng.ID, err)
	}
	return ids, nil
}

// touchModified is shared by association updates; kept here so curriculum and
// instance repositories stamp rows the same way.
func touchModified() time.Time {
	return time.Now().UTC()
}
