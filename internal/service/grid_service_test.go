package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusplan/timetable-api/internal/models"
	"github.com/campusplan/timetable-api/pkg/config"
)

type termRepoMock struct {
	term *models.Term
}

func (m *termRepoMock) FindByDate(ctx context.Context, ref time.Time) (*models.Term, error) {
	if m.term == nil {
		return nil, sql.ErrNoRows
	}
	cp := *m.term
	return &cp, nil
}

func day(value string) time.Time {
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func monSatGrid() *GridService {
	return NewGridService(&termRepoMock{}, config.GridConfig{StartDay: 1, EndDay: 6}, zap.NewNop())
}

func TestGridResolveDay(t *testing.T) {
	svc := monSatGrid()

	// Wednesday stays put.
	window, err := svc.Resolve(context.Background(), day("2024-05-15"), IntervalDay, false)
	require.NoError(t, err)
	assert.Equal(t, day("2024-05-15"), window.Start)
	assert.Equal(t, day("2024-05-15"), window.End)
}

func TestGridResolveWeek(t *testing.T) {
	svc := monSatGrid()

	window, err := svc.Resolve(context.Background(), day("2024-05-15"), IntervalWeek, false)
	require.NoError(t, err)
	assert.Equal(t, day("2024-05-13"), window.Start)
	assert.Equal(t, day("2024-05-18"), window.End)
}

func TestGridNudgeForwardFromSunday(t *testing.T) {
	svc := monSatGrid()

	// Sunday falls outside Mon-Sat and moves to Monday.
	window, err := svc.Resolve(context.Background(), day("2024-05-19"), IntervalDay, false)
	require.NoError(t, err)
	assert.Equal(t, day("2024-05-20"), window.Start)
}

func TestGridNudgeBackwardFromSaturday(t *testing.T) {
	svc := NewGridService(&termRepoMock{}, config.GridConfig{StartDay: 1, EndDay: 5}, zap.NewNop())

	// Saturday with a Mon-Fri window: the next day is Sunday, still outside,
	// so the reference moves back to Friday.
	window, err := svc.Resolve(context.Background(), day("2024-05-18"), IntervalDay, false)
	require.NoError(t, err)
	assert.Equal(t, day("2024-05-17"), window.Start)
}

func TestGridResolveMonth(t *testing.T) {
	svc := monSatGrid()

	window, err := svc.Resolve(context.Background(), day("2024-02-10"), IntervalMonth, false)
	require.NoError(t, err)
	assert.Equal(t, day("2024-02-01"), window.Start)
	assert.Equal(t, day("2024-02-29"), window.End)
}

func TestGridResolveQuarter(t *testing.T) {
	svc := monSatGrid()

	window, err := svc.Resolve(context.Background(), day("2024-05-15"), IntervalQuarter, false)
	require.NoError(t, err)
	assert.Equal(t, day("2024-05-15"), window.Start)
	assert.Equal(t, day("2024-05-15").AddDate(0, 0, 90), window.End)
}

func TestGridResolveQuarterExportSnapsToWeekStart(t *testing.T) {
	svc := monSatGrid()

	window, err := svc.Resolve(context.Background(), day("2024-05-15"), IntervalQuarter, true)
	require.NoError(t, err)
	assert.Equal(t, day("2024-05-13"), window.Start)
	assert.Equal(t, day("2024-05-13").AddDate(0, 0, 90), window.End)
}

func TestGridResolveTerm(t *testing.T) {
	repo := &termRepoMock{term: &models.Term{
		ID:        "t1",
		StartDate: day("2024-02-01"),
		EndDate:   day("2024-06-30"),
	}}
	svc := NewGridService(repo, config.GridConfig{StartDay: 1, EndDay: 6}, zap.NewNop())

	window, err := svc.Resolve(context.Background(), day("2024-05-15"), IntervalTerm, false)
	require.NoError(t, err)
	assert.Equal(t, day("2024-02-01"), window.Start)
	assert.Equal(t, day("2024-06-30"), window.End)
}

func TestGridResolveTermNotFound(t *testing.T) {
	svc := monSatGrid()

	_, err := svc.Resolve(context.Background(), day("2024-05-15"), IntervalTerm, false)
	assert.Error(t, err)
}

func TestParseInterval(t *testing.T) {
	assert.Equal(t, IntervalDay, ParseInterval("DAY"))
	assert.Equal(t, IntervalQuarter, ParseInterval("quarter"))
	assert.Equal(t, IntervalWeek, ParseInterval(""))
	assert.Equal(t, IntervalWeek, ParseInterval("decade"))
}
