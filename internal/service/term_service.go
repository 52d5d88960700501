package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/campusplan/timetable-api/internal/models"
	appErrors "github.com/campusplan/timetable-api/pkg/errors"
)

type termRepository interface {
	List(ctx context.Context) ([]models.Term, error)
	FindByID(ctx context.Context, id string) (*models.Term, error)
	FindByDate(ctx context.Context, ref time.Time) (*models.Term, error)
}

// TermService exposes the academic term calendar.
type TermService struct {
	repo   termRepository
	logger *zap.Logger
}

// NewTermService instantiates TermService.
func NewTermService(repo termRepository, logger *zap.Logger) *TermService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TermService{repo: repo, logger: logger}
}

// List returns all terms, newest first.
func (s *TermService) List(ctx context.Context) ([]models.Term, error) {
	terms, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list terms")
	}
	return terms, nil
}

// Get loads one term by id.
func (s *TermService) Get(ctx context.Context, id string) (*models.Term, error) {
	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return term, nil
}

// Current returns the term containing the given date.
func (s *TermService) Current(ctx context.Context, ref time.Time) (*models.Term, error) {
	term, err := s.repo.FindByDate(ctx, ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no term contains the given date")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve current term")
	}
	return term, nil
}
