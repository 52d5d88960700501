package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusplan/timetable-api/internal/models"
)

type curriculumRepoMock struct {
	ranges   map[string]*models.CurriculumRange
	byRes    map[string][]models.CurriculumRange
	subjects map[string][]string
}

func (m *curriculumRepoMock) FindRange(ctx context.Context, id string) (*models.CurriculumRange, error) {
	if rng, ok := m.ranges[id]; ok {
		cp := *rng
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *curriculumRepoMock) RangesFor(ctx context.Context, resource models.RangeResource, resourceID string) ([]models.CurriculumRange, error) {
	return m.byRes[string(resource)+":"+resourceID], nil
}

func (m *curriculumRepoMock) DescendantsOf(ctx context.Context, rng models.CurriculumRange, directOnly bool) ([]models.CurriculumRange, error) {
	return nil, nil
}

func (m *curriculumRepoMock) AncestorsOf(ctx context.Context, rng models.CurriculumRange) ([]models.CurriculumRange, error) {
	return nil, nil
}

func (m *curriculumRepoMock) InsertRange(ctx context.Context, parentID string, node *models.CurriculumRange) error {
	return nil
}

func (m *curriculumRepoMock) DeleteRange(ctx context.Context, id string) error {
	return nil
}

func (m *curriculumRepoMock) SubjectIDsWithin(ctx context.Context, rng models.CurriculumRange) ([]string, error) {
	return m.subjects[rng.ID], nil
}

func boundaries(ranges []models.CurriculumRange) [][2]int {
	out := make([][2]int, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, [2]int{r.Lft, r.Rgt})
	}
	return out
}

func TestExcludeSubrangesNoExclusions(t *testing.T) {
	rng := models.CurriculumRange{Lft: 1, Rgt: 10}
	result := ExcludeSubranges(rng, nil)
	assert.Equal(t, [][2]int{{1, 10}}, boundaries(result))
}

func TestExcludeSubrangesFullCoverage(t *testing.T) {
	rng := models.CurriculumRange{Lft: 1, Rgt: 10}
	result := ExcludeSubranges(rng, []models.CurriculumRange{{Lft: 1, Rgt: 10}})
	assert.Empty(t, result)
}

func TestExcludeSubrangesInteriorSplit(t *testing.T) {
	rng := models.CurriculumRange{Lft: 1, Rgt: 10}
	result := ExcludeSubranges(rng, []models.CurriculumRange{{Lft: 3, Rgt: 4}})
	assert.Equal(t, [][2]int{{1, 3}, {4, 10}}, boundaries(result))
}

func TestExcludeSubrangesMultipleSorted(t *testing.T) {
	rng := models.CurriculumRange{Lft: 1, Rgt: 20}
	// Supplied out of order; the result must still walk left to right.
	exclusions := []models.CurriculumRange{
		{Lft: 12, Rgt: 15},
		{Lft: 2, Rgt: 5},
	}
	result := ExcludeSubranges(rng, exclusions)
	assert.Equal(t, [][2]int{{1, 2}, {5, 12}, {15, 20}}, boundaries(result))
}

func TestExcludeSubrangesLeadingEdge(t *testing.T) {
	rng := models.CurriculumRange{Lft: 1, Rgt: 10}
	result := ExcludeSubranges(rng, []models.CurriculumRange{{Lft: 1, Rgt: 4}})
	assert.Equal(t, [][2]int{{4, 10}}, boundaries(result))
}

func TestExcludeSubrangesIgnoresInvalid(t *testing.T) {
	rng := models.CurriculumRange{Lft: 1, Rgt: 10}
	result := ExcludeSubranges(rng, []models.CurriculumRange{
		{Lft: 6, Rgt: 3},
		{Lft: 0, Rgt: 0},
	})
	assert.Equal(t, [][2]int{{1, 10}}, boundaries(result))

	invalid := models.CurriculumRange{Lft: 8, Rgt: 2}
	assert.Nil(t, ExcludeSubranges(invalid, nil))
}

func TestExcludeSubrangesDisjointExclusion(t *testing.T) {
	rng := models.CurriculumRange{Lft: 5, Rgt: 10}
	result := ExcludeSubranges(rng, []models.CurriculumRange{
		{Lft: 1, Rgt: 4},
		{Lft: 12, Rgt: 20},
	})
	assert.Equal(t, [][2]int{{5, 10}}, boundaries(result))
}

func TestIsSubordinate(t *testing.T) {
	program := models.CurriculumRange{Lft: 1, Rgt: 20}

	assert.True(t, IsSubordinate(models.CurriculumRange{Lft: 3, Rgt: 8}, program))
	assert.False(t, IsSubordinate(program, program))
	assert.False(t, IsSubordinate(models.CurriculumRange{Lft: 25, Rgt: 30}, program))
	assert.False(t, IsSubordinate(models.CurriculumRange{Lft: 1, Rgt: 8}, program))
}

func TestCurriculumServiceHierarchyEmptyOnMissing(t *testing.T) {
	repo := &curriculumRepoMock{ranges: map[string]*models.CurriculumRange{}}
	svc := NewCurriculumService(repo, zap.NewNop())

	children, err := svc.Children(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, children)

	ancestors, err := svc.Ancestors(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, ancestors)
}

func TestCurriculumServiceHierarchyEmptyOnInvalidRange(t *testing.T) {
	repo := &curriculumRepoMock{ranges: map[string]*models.CurriculumRange{
		"broken": {ID: "broken", Lft: 9, Rgt: 2},
	}}
	svc := NewCurriculumService(repo, zap.NewNop())

	descendants, err := svc.Descendants(context.Background(), "broken")
	require.NoError(t, err)
	assert.Empty(t, descendants)
}

func TestSubjectScopePoolNarrowsWhenSubordinate(t *testing.T) {
	programRange := models.CurriculumRange{ID: "r-prog", Lft: 1, Rgt: 20}
	poolRange := models.CurriculumRange{ID: "r-pool", Lft: 3, Rgt: 8}
	repo := &curriculumRepoMock{
		byRes: map[string][]models.CurriculumRange{
			"program:prog-1": {programRange},
			"pool:pool-1":    {poolRange},
		},
		subjects: map[string][]string{
			"r-prog": {"s1", "s2", "s3"},
			"r-pool": {"s2"},
		},
	}
	svc := NewCurriculumService(repo, zap.NewNop())

	subjects, err := svc.SubjectScope(context.Background(), "prog-1", "pool-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, subjects)
}

func TestSubjectScopeIgnoresForeignPool(t *testing.T) {
	programRange := models.CurriculumRange{ID: "r-prog", Lft: 1, Rgt: 20}
	foreignPool := models.CurriculumRange{ID: "r-other", Lft: 30, Rgt: 40}
	repo := &curriculumRepoMock{
		byRes: map[string][]models.CurriculumRange{
			"program:prog-1": {programRange},
			"pool:pool-x":    {foreignPool},
		},
		subjects: map[string][]string{
			"r-prog":  {"s1", "s2"},
			"r-other": {"zz"},
		},
	}
	svc := NewCurriculumService(repo, zap.NewNop())

	subjects, err := svc.SubjectScope(context.Background(), "prog-1", "pool-x")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, subjects)
}

func TestSubjectScopeDeduplicates(t *testing.T) {
	first := models.CurriculumRange{ID: "r-a", Lft: 1, Rgt: 10}
	second := models.CurriculumRange{ID: "r-b", Lft: 12, Rgt: 20}
	repo := &curriculumRepoMock{
		byRes: map[string][]models.CurriculumRange{
			"program:prog-1": {first, second},
		},
		subjects: map[string][]string{
			"r-a": {"s1", "s2"},
			"r-b": {"s2", "s3"},
		},
	}
	svc := NewCurriculumService(repo, zap.NewNop())

	subjects, err := svc.SubjectScope(context.Background(), "prog-1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, subjects)
}
