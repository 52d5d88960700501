package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusplan/timetable-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func rangeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "curriculum_id", "parent_id", "program_id", "pool_id", "subject_id", "lft", "rgt", "level"})
}

func TestCurriculumRepositoryRangesFor(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCurriculumRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, curriculum_id, parent_id, program_id, pool_id, subject_id, lft, rgt, level FROM curriculum_ranges WHERE pool_id = $1 ORDER BY lft ASC")).
		WithArgs("pool-1").
		WillReturnRows(rangeRows().AddRow("r1", "cur-1", nil, nil, "pool-1", nil, 4, 9, 2))

	ranges, err := repo.RangesFor(context.Background(), models.ResourcePool, "pool-1")
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, 4, ranges[0].Lft)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurriculumRepositoryRangesForEmptyID(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCurriculumRepository(db)

	ranges, err := repo.RangesFor(context.Background(), models.ResourceSubject, "")
	require.NoError(t, err)
	assert.Nil(t, ranges)
}

func TestCurriculumRepositoryDirectChildrenOfProgram(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCurriculumRepository(db)

	programID := "prog-1"
	parent := models.CurriculumRange{
		ID: "r-prog", CurriculumID: "cur-1", ProgramID: &programID,
		Lft: 1, Rgt: 20, Level: 1,
	}

	// Program children are restricted to pools.
	mock.ExpectQuery(`SELECT .+ FROM curriculum_ranges WHERE curriculum_id = \$1 AND lft > \$2 AND rgt < \$3 AND level = \$4 AND pool_id IS NOT NULL ORDER BY lft ASC`).
		WithArgs("cur-1", 1, 20, 2).
		WillReturnRows(rangeRows().AddRow("r-pool", "cur-1", "r-prog", nil, "pool-1", nil, 2, 9, 2))

	children, err := repo.DescendantsOf(context.Background(), parent, true)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "r-pool", children[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurriculumRepositoryDescendantsInvalidRange(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCurriculumRepository(db)

	ranges, err := repo.DescendantsOf(context.Background(), models.CurriculumRange{Lft: 7, Rgt: 2}, false)
	require.NoError(t, err)
	assert.Nil(t, ranges)
}

func TestCurriculumRepositoryInsertRangeShiftsBoundaries(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCurriculumRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM curriculum_ranges WHERE id = \$1 FOR UPDATE`).
		WithArgs("r-parent").
		WillReturnRows(rangeRows().AddRow("r-parent", "cur-1", nil, "prog-1", nil, nil, 1, 10, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE curriculum_ranges SET rgt = rgt + 2 WHERE curriculum_id = $1 AND rgt >= $2")).
		WithArgs("cur-1", 10).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE curriculum_ranges SET lft = lft + 2 WHERE curriculum_id = $1 AND lft > $2")).
		WithArgs("cur-1", 10).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO curriculum_ranges").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	subjectID := "subj-1"
	node := &models.CurriculumRange{SubjectID: &subjectID}
	require.NoError(t, repo.InsertRange(context.Background(), "r-parent", node))

	assert.Equal(t, 10, node.Lft)
	assert.Equal(t, 11, node.Rgt)
	assert.Equal(t, 2, node.Level)
	assert.Equal(t, "cur-1", node.CurriculumID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurriculumRepositoryDeleteRangeClosesGap(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCurriculumRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM curriculum_ranges WHERE id = \$1 FOR UPDATE`).
		WithArgs("r-pool").
		WillReturnRows(rangeRows().AddRow("r-pool", "cur-1", "r-prog", nil, "pool-1", nil, 4, 9, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM curriculum_ranges WHERE curriculum_id = $1 AND lft >= $2 AND rgt <= $3")).
		WithArgs("cur-1", 4, 9).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE curriculum_ranges SET lft = lft - $2 WHERE curriculum_id = $1 AND lft > $3")).
		WithArgs("cur-1", 6, 9).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE curriculum_ranges SET rgt = rgt - $2 WHERE curriculum_id = $1 AND rgt > $3")).
		WithArgs("cur-1", 6, 9).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteRange(context.Background(), "r-pool"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurriculumRepositorySubjectIDsWithin(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCurriculumRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT subject_id FROM curriculum_ranges")).
		WithArgs("cur-1", 1, 20).
		WillReturnRows(sqlmock.NewRows([]string{"subject_id"}).AddRow("s1").AddRow("s2"))

	ids, err := repo.SubjectIDsWithin(context.Background(), models.CurriculumRange{CurriculumID: "cur-1", Lft: 1, Rgt: 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
