package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campusplan/timetable-api/internal/models"
	"github.com/campusplan/timetable-api/pkg/config"
	appErrors "github.com/campusplan/timetable-api/pkg/errors"
)

// Interval names the supported window sizes.
type Interval string

const (
	IntervalDay     Interval = "day"
	IntervalWeek    Interval = "week"
	IntervalMonth   Interval = "month"
	IntervalQuarter Interval = "quarter"
	IntervalHalf    Interval = "half"
	IntervalTerm    Interval = "term"
)

// ParseInterval normalises an interval name, defaulting to week.
func ParseInterval(raw string) Interval {
	switch Interval(strings.ToLower(raw)) {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalQuarter, IntervalHalf, IntervalTerm:
		return Interval(strings.ToLower(raw))
	default:
		return IntervalWeek
	}
}

// Window is a resolved date range, inclusive on both ends.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type termDateRepository interface {
	FindByDate(ctx context.Context, ref time.Time) (*models.Term, error)
}

// GridService computes display windows from a reference date and a named
// interval, honoring the configured week window.
type GridService struct {
	terms  termDateRepository
	grid   config.GridConfig
	logger *zap.Logger
}

// NewGridService instantiates GridService.
func NewGridService(terms termDateRepository, grid config.GridConfig, logger *zap.Logger) *GridService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if grid.StartDay == 0 && grid.EndDay == 0 {
		grid = config.GridConfig{StartDay: int(time.Monday), EndDay: int(time.Saturday)}
	}
	return &GridService{terms: terms, grid: grid, logger: logger}
}

// Resolve computes the window for the reference date. forExport triggers the
// fixed-page special case: quarter windows snap to the start of the week.
func (s *GridService) Resolve(ctx context.Context, ref time.Time, interval Interval, forExport bool) (Window, error) {
	ref = s.nudge(truncateToDay(ref))

	switch interval {
	case IntervalDay:
		return Window{Start: ref, End: ref}, nil

	case IntervalWeek:
		return Window{Start: s.weekStart(ref), End: s.weekEnd(ref)}, nil

	case IntervalMonth:
		first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
		last := first.AddDate(0, 1, -1)
		return Window{Start: first, End: last}, nil

	case IntervalQuarter:
		start := ref
		if forExport {
			start = s.weekStart(ref)
		}
		return Window{Start: start, End: start.AddDate(0, 0, 90)}, nil

	case IntervalHalf:
		return Window{Start: ref, End: ref.AddDate(0, 6, 0)}, nil

	case IntervalTerm:
		if s.terms == nil {
			return Window{}, appErrors.Clone(appErrors.ErrNotFound, "no term lookup available")
		}
		term, err := s.terms.FindByDate(ctx, ref)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Window{}, appErrors.Clone(appErrors.ErrNotFound, "no term contains the reference date")
			}
			return Window{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve term window")
		}
		return Window{Start: truncateToDay(term.StartDate), End: truncateToDay(term.EndDate)}, nil

	default:
		return Window{}, appErrors.Clone(appErrors.ErrValidation, "unknown interval")
	}
}

// nudge moves a reference date that falls on a weekday outside the configured
// window one day into it: the following day when that lands in the window,
// otherwise the preceding day.
func (s *GridService) nudge(ref time.Time) time.Time {
	if s.inWindow(ref.Weekday()) {
		return ref
	}
	forward := ref.AddDate(0, 0, 1)
	if s.inWindow(forward.Weekday()) {
		return forward
	}
	return ref.AddDate(0, 0, -1)
}

func (s *GridService) inWindow(day time.Weekday) bool {
	return int(day) >= s.grid.StartDay && int(day) <= s.grid.EndDay
}

// weekStart walks back to the configured first display day.
func (s *GridService) weekStart(ref time.Time) time.Time {
	for int(ref.Weekday()) != s.grid.StartDay {
		ref = ref.AddDate(0, 0, -1)
	}
	return ref
}

// weekEnd walks forward to the configured last display day.
func (s *GridService) weekEnd(ref time.Time) time.Time {
	for int(ref.Weekday()) != s.grid.EndDay {
		ref = ref.AddDate(0, 0, 1)
	}
	return ref
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
