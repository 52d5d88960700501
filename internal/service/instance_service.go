package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"go.uber.org/zap"

	"github.com/campusplan/timetable-api/internal/models"
	"github.com/campusplan/timetable-api/pkg/config"
	appErrors "github.com/campusplan/timetable-api/pkg/errors"
)

type instanceQueryRepository interface {
	SelectIDs(ctx context.Context, f models.InstanceFilter) ([]string, error)
	Get(ctx context.Context, id string) (*models.InstanceDetail, error)
	NextDate(ctx context.Context, f models.InstanceFilter, horizon time.Duration) (*time.Time, error)
	PreviousDate(ctx context.Context, f models.InstanceFilter, horizon time.Duration) (*time.Time, error)
}

type subjectScopeResolver interface {
	SubjectScope(ctx context.Context, programID, poolID string) ([]string, error)
}

type queryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// InstanceQuery is the external query surface. Program and pool filters are
// translated into subject scopes before the filter hits storage.
type InstanceQuery struct {
	Filter    models.InstanceFilter
	ProgramID string
	PoolID    string
}

// InstanceService resolves timetable queries into ordered instance ids and
// hydrated details.
type InstanceService struct {
	repo       instanceQueryRepository
	curriculum subjectScopeResolver
	cache      queryCache
	cfg        config.InstancesConfig
	logger     *zap.Logger
}

// NewInstanceService instantiates InstanceService.
func NewInstanceService(repo instanceQueryRepository, curriculum subjectScopeResolver, cache queryCache, cfg config.InstancesConfig, logger *zap.Logger) *InstanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstanceService{repo: repo, curriculum: curriculum, cache: cache, cfg: cfg, logger: logger}
}

// List resolves the query into the ordered instance ids inside its window.
func (s *InstanceService) List(ctx context.Context, q InstanceQuery) ([]string, error) {
	filter, empty, err := s.resolveFilter(ctx, q)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	if s.cache != nil && s.cfg.CacheEnabled && filter.My == nil {
		key := s.cacheKey(filter)
		var cached []string
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("instance cache read failed", zap.Error(err))
		}

		ids, err := s.repo.SelectIDs(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve instances")
		}
		if err := s.cache.Set(ctx, key, ids, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("instance cache write failed", zap.Error(err))
		}
		return ids, nil
	}

	ids, err := s.repo.SelectIDs(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve instances")
	}
	return ids, nil
}

// ListDetails resolves the query and hydrates every hit. An instance that
// fails hydration is skipped with a log entry rather than failing the page.
func (s *InstanceService) ListDetails(ctx context.Context, q InstanceQuery) ([]models.InstanceDetail, error) {
	ids, err := s.List(ctx, q)
	if err != nil {
		return nil, err
	}

	details := make([]models.InstanceDetail, 0, len(ids))
	for _, id := range ids {
		detail, err := s.repo.Get(ctx, id)
		if err != nil {
			s.logger.Warn("skipping instance that failed hydration",
				zap.String("instance_id", id), zap.Error(err))
			continue
		}
		details = append(details, *detail)
	}
	return details, nil
}

// Get hydrates one instance.
func (s *InstanceService) Get(ctx context.Context, id string) (*models.InstanceDetail, error) {
	detail, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instance")
	}
	return detail, nil
}

// NextDate finds the nearest matching block date after the query's window,
// bounded by the configured jump horizon.
func (s *InstanceService) NextDate(ctx context.Context, q InstanceQuery) (*time.Time, error) {
	filter, empty, err := s.resolveFilter(ctx, q)
	if err != nil || empty {
		return nil, err
	}
	date, err := s.repo.NextDate(ctx, filter, s.cfg.JumpHorizon)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to probe next date")
	}
	return date, nil
}

// PreviousDate finds the nearest matching block date before the query's
// window.
func (s *InstanceService) PreviousDate(ctx context.Context, q InstanceQuery) (*time.Time, error) {
	filter, empty, err := s.resolveFilter(ctx, q)
	if err != nil || empty {
		return nil, err
	}
	date, err := s.repo.PreviousDate(ctx, filter, s.cfg.JumpHorizon)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to probe previous date")
	}
	return date, nil
}

// resolveFilter translates curriculum filters into subject scopes. A program
// filter that maps to no subjects makes the whole query empty instead of
// silently widening to the next filter level.
func (s *InstanceService) resolveFilter(ctx context.Context, q InstanceQuery) (models.InstanceFilter, bool, error) {
	filter := q.Filter
	if q.ProgramID == "" {
		return filter, false, nil
	}
	if s.curriculum == nil {
		return filter, true, nil
	}

	subjectIDs, err := s.curriculum.SubjectScope(ctx, q.ProgramID, q.PoolID)
	if err != nil {
		return filter, false, err
	}
	if len(subjectIDs) == 0 {
		return filter, true, nil
	}
	filter.SubjectIDs = append(filter.SubjectIDs, subjectIDs...)
	return filter, false, nil
}

func (s *InstanceService) cacheKey(f models.InstanceFilter) string {
	payload, _ := json.Marshal(f)
	h := fnv.New64a()
	_, _ = h.Write(payload)
	return fmt.Sprintf("instances:q:%x", h.Sum64())
}
