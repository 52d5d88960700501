package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/campusplan/timetable-api/internal/models"
	appErrors "github.com/campusplan/timetable-api/pkg/errors"
)

type curriculumRepository interface {
	FindRange(ctx context.Context, id string) (*models.CurriculumRange, error)
	RangesFor(ctx context.Context, resource models.RangeResource, resourceID string) ([]models.CurriculumRange, error)
	DescendantsOf(ctx context.Context, rng models.CurriculumRange, directOnly bool) ([]models.CurriculumRange, error)
	AncestorsOf(ctx context.Context, rng models.CurriculumRange) ([]models.CurriculumRange, error)
	InsertRange(ctx context.Context, parentID string, node *models.CurriculumRange) error
	DeleteRange(ctx context.Context, id string) error
	SubjectIDsWithin(ctx context.Context, rng models.CurriculumRange) ([]string, error)
}

// CurriculumService answers hierarchy questions over the nested-set curriculum
// tree. Missing or malformed ranges resolve to empty results throughout; "no
// structure" is a valid terminal state, not an error.
type CurriculumService struct {
	repo   curriculumRepository
	logger *zap.Logger
}

// NewCurriculumService instantiates CurriculumService.
func NewCurriculumService(repo curriculumRepository, logger *zap.Logger) *CurriculumService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CurriculumService{repo: repo, logger: logger}
}

// RangesFor returns every curriculum node mapping the resource.
func (s *CurriculumService) RangesFor(ctx context.Context, resource models.RangeResource, resourceID string) ([]models.CurriculumRange, error) {
	if resourceID == "" {
		return nil, nil
	}
	ranges, err := s.repo.RangesFor(ctx, resource, resourceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve curriculum ranges")
	}
	return ranges, nil
}

// Children returns the nodes one level below the range. Under programs only
// pools qualify as direct children.
func (s *CurriculumService) Children(ctx context.Context, rangeID string) ([]models.CurriculumRange, error) {
	rng, err := s.loadRange(ctx, rangeID)
	if err != nil || rng == nil {
		return nil, err
	}
	children, err := s.repo.DescendantsOf(ctx, *rng, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve children")
	}
	return children, nil
}

// Descendants returns the full subtree below the range.
func (s *CurriculumService) Descendants(ctx context.Context, rangeID string) ([]models.CurriculumRange, error) {
	rng, err := s.loadRange(ctx, rangeID)
	if err != nil || rng == nil {
		return nil, err
	}
	descendants, err := s.repo.DescendantsOf(ctx, *rng, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve descendants")
	}
	return descendants, nil
}

// Ancestors returns the containment chain above the range, outermost first.
func (s *CurriculumService) Ancestors(ctx context.Context, rangeID string) ([]models.CurriculumRange, error) {
	rng, err := s.loadRange(ctx, rangeID)
	if err != nil || rng == nil {
		return nil, err
	}
	ancestors, err := s.repo.AncestorsOf(ctx, *rng)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve ancestors")
	}
	return ancestors, nil
}

// MapResource inserts a new node for the resource under the given parent.
func (s *CurriculumService) MapResource(ctx context.Context, parentRangeID string, resource models.RangeResource, resourceID string) (*models.CurriculumRange, error) {
	node := &models.CurriculumRange{}
	switch resource {
	case models.ResourceProgram:
		node.ProgramID = &resourceID
	case models.ResourcePool:
		node.PoolID = &resourceID
	case models.ResourceSubject:
		node.SubjectID = &resourceID
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown resource type")
	}

	if err := s.repo.InsertRange(ctx, parentRangeID, node); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "parent range not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to map resource into curriculum")
	}
	return node, nil
}

// UnmapResource removes the range and its subtree from the curriculum.
func (s *CurriculumService) UnmapResource(ctx context.Context, rangeID string) error {
	if err := s.repo.DeleteRange(ctx, rangeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "curriculum range not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unmap curriculum range")
	}
	return nil
}

// SubjectScope resolves the subject ids reachable under a program, narrowed to
// a pool when the pool actually sits inside that program. A pool claimed via a
// filter but not subordinate to the program is ignored rather than trusted.
func (s *CurriculumService) SubjectScope(ctx context.Context, programID, poolID string) ([]string, error) {
	programRanges, err := s.RangesFor(ctx, models.ResourceProgram, programID)
	if err != nil {
		return nil, err
	}

	scope := programRanges
	if poolID != "" {
		poolRanges, err := s.RangesFor(ctx, models.ResourcePool, poolID)
		if err != nil {
			return nil, err
		}
		var subordinate []models.CurriculumRange
		for _, poolRange := range poolRanges {
			for _, programRange := range programRanges {
				if IsSubordinate(poolRange, programRange) {
					subordinate = append(subordinate, poolRange)
					break
				}
			}
		}
		if len(subordinate) > 0 {
			scope = subordinate
		}
	}

	seen := make(map[string]struct{})
	var subjectIDs []string
	for _, rng := range scope {
		ids, err := s.repo.SubjectIDsWithin(ctx, rng)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subject scope")
		}
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			subjectIDs = append(subjectIDs, id)
		}
	}
	return subjectIDs, nil
}

func (s *CurriculumService) loadRange(ctx context.Context, rangeID string) (*models.CurriculumRange, error) {
	if rangeID == "" {
		return nil, nil
	}
	rng, err := s.repo.FindRange(ctx, rangeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load curriculum range")
	}
	if rng == nil || !rng.Valid() {
		return nil, nil
	}
	return rng, nil
}

// IsSubordinate reports strict containment of the pool range inside the
// program range.
func IsSubordinate(poolRange, programRange models.CurriculumRange) bool {
	return poolRange.Lft > programRange.Lft && poolRange.Rgt < programRange.Rgt
}

// ExcludeSubranges computes the complement of a boundary range minus the given
// excluded subordinate ranges, producing zero or more residual sub-ranges.
// Exclusions touching the working left edge advance it; interior exclusions
// close off a segment and continue past their right boundary. Exclusions
// without a usable span are discarded.
func ExcludeSubranges(rng models.CurriculumRange, exclusions []models.CurriculumRange) []models.CurriculumRange {
	if !rng.Valid() {
		return nil
	}

	sorted := make([]models.CurriculumRange, 0, len(exclusions))
	for _, ex := range exclusions {
		if !ex.Valid() {
			continue
		}
		sorted = append(sorted, ex)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Lft < sorted[j].Lft })

	var result []models.CurriculumRange
	left := rng.Lft

	for _, ex := range sorted {
		if left >= rng.Rgt {
			break
		}
		if ex.Rgt <= left || ex.Lft >= rng.Rgt {
			continue
		}
		if ex.Lft <= left {
			left = ex.Rgt
			continue
		}
		result = append(result, models.CurriculumRange{
			CurriculumID: rng.CurriculumID,
			Lft:          left,
			Rgt:          ex.Lft,
			Level:        rng.Level,
		})
		left = ex.Rgt
	}

	if left < rng.Rgt {
		result = append(result, models.CurriculumRange{
			CurriculumID: rng.CurriculumID,
			Lft:          left,
			Rgt:          rng.Rgt,
			Level:        rng.Level,
		})
	}
	return result
}
