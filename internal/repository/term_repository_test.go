package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func termRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "code", "name", "start_date", "end_date", "created_at", "updated_at"})
}

func TestTermRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTermRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, name, start_date, end_date, created_at, updated_at FROM terms ORDER BY start_date DESC")).
		WillReturnRows(termRows().
			AddRow("t2", "2024S", "Summer 2024", now, now.AddDate(0, 5, 0), now, now).
			AddRow("t1", "2023W", "Winter 2023", now.AddDate(-1, 0, 0), now, now, now))

	terms, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, terms, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTermRepositoryFindByDate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTermRepository(db)

	ref := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE start_date <= $1 AND end_date >= $1 ORDER BY start_date DESC LIMIT 1")).
		WithArgs(ref).
		WillReturnRows(termRows().AddRow("t1", "2024S", "Summer 2024", ref.AddDate(0, -2, 0), ref.AddDate(0, 3, 0), now, now))

	term, err := repo.FindByDate(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "t1", term.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTermRepositoryFindByDateNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTermRepository(db)

	ref := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE start_date <= $1 AND end_date >= $1")).
		WithArgs(ref).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByDate(context.Background(), ref)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
