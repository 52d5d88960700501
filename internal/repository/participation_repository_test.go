package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectSiblingLock(mock sqlmock.Sqlmock, ids ...string) {
	rows := sqlmock.NewRows([]string{"id"})
	for _, id := range ids {
		rows.AddRow(id)
	}
	mock.ExpectQuery(`SELECT id FROM instances`).
		WithArgs("i1").
		WillReturnRows(rows)
}

func expectSiblingRoomRows(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery(`SELECT DISTINCT r\.id, r\.name, r\.effective_capacity, r\.virtual`).
		WithArgs("i1").
		WillReturnRows(rows)
}

func TestParticipationRepositoryRegisterSucceeds(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParticipationRepository(db)

	mock.ExpectBegin()
	expectSiblingLock(mock, "i1", "i2")
	expectSiblingRoomRows(mock, sqlmock.NewRows([]string{"id", "name", "effective_capacity", "virtual"}).
		AddRow("room-a", "Hall A", 30, false))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM participations p`).
		WithArgs("i1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectExec("INSERT INTO participations").
		WithArgs(sqlmock.AnyArg(), "i1", "person-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Register(context.Background(), "i1", "person-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipationRepositoryRegisterFullPool(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParticipationRepository(db)

	mock.ExpectBegin()
	expectSiblingLock(mock, "i1")
	expectSiblingRoomRows(mock, sqlmock.NewRows([]string{"id", "name", "effective_capacity", "virtual"}).
		AddRow("room-a", "Hall A", 10, false))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM participations p`).
		WithArgs("i1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectRollback()

	err := repo.Register(context.Background(), "i1", "person-1")
	assert.ErrorIs(t, err, ErrInstanceFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipationRepositoryRegisterUnboundedSkipsCount(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParticipationRepository(db)

	mock.ExpectBegin()
	expectSiblingLock(mock, "i1")
	// Only a virtual room: capacity sums to zero, so no re-count happens.
	expectSiblingRoomRows(mock, sqlmock.NewRows([]string{"id", "name", "effective_capacity", "virtual"}).
		AddRow("room-v", "Stream", 0, true))
	mock.ExpectExec("INSERT INTO participations").
		WithArgs(sqlmock.AnyArg(), "i1", "person-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Register(context.Background(), "i1", "person-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipationRepositoryDeregisterMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParticipationRepository(db)

	mock.ExpectExec("UPDATE participations SET registered = FALSE").
		WithArgs("i1", "person-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Deregister(context.Background(), "i1", "person-1")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipationRepositoryUpdateNumbers(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParticipationRepository(db)

	mock.ExpectExec("UPDATE instances i SET").
		WithArgs("i1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateNumbers(context.Background(), "i1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipationRepositoryIsBusy(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParticipationRepository(db)

	date := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("person-1", date, "09:00", "10:30").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	busy, err := repo.IsBusy(context.Background(), "person-1", date, "09:00", "10:30")
	require.NoError(t, err)
	assert.True(t, busy)
	assert.NoError(t, mock.ExpectationsWereMet())
}
