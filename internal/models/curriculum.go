package models

import "time"

// RangeResource discriminates which academic resource a curriculum range maps.
type RangeResource string

const (
	ResourceProgram RangeResource = "program"
	ResourcePool    RangeResource = "pool"
	ResourceSubject RangeResource = "subject"
)

// CurriculumRange is one node of the nested-set curriculum tree. Containment is
// expressed through the lft/rgt boundaries: a node contains another iff its
// boundaries strictly enclose the other's.
type CurriculumRange struct {
	ID           string  `db:"id" json:"id"`
	CurriculumID string  `db:"curriculum_id" json:"curriculum_id"`
	ParentID     *string `db:"parent_id" json:"parent_id,omitempty"`
	ProgramID    *string `db:"program_id" json:"program_id,omitempty"`
	PoolID       *string `db:"pool_id" json:"pool_id,omitempty"`
	SubjectID    *string `db:"subject_id" json:"subject_id,omitempty"`
	Lft          int     `db:"lft" json:"lft"`
	Rgt          int     `db:"rgt" json:"rgt"`
	Level        int     `db:"level" json:"level"`
}

// Valid reports whether the range carries usable boundaries. Hierarchy walks
// over an invalid range must return empty results, never an error.
func (r CurriculumRange) Valid() bool {
	return r.Lft > 0 && r.Rgt > r.Lft
}

// Leaf reports whether the range has no deeper structure.
func (r CurriculumRange) Leaf() bool {
	return r.Rgt == r.Lft+1
}

// Contains reports strict containment of other within r.
func (r CurriculumRange) Contains(other CurriculumRange) bool {
	return r.Lft < other.Lft && r.Rgt > other.Rgt
}

// Disjoint reports whether the two ranges share no span.
func (r CurriculumRange) Disjoint(other CurriculumRange) bool {
	return r.Rgt < other.Lft || other.Rgt < r.Lft
}

// Resource returns which resource column is set on the range.
func (r CurriculumRange) Resource() RangeResource {
	switch {
	case r.ProgramID != nil:
		return ResourceProgram
	case r.PoolID != nil:
		return ResourcePool
	default:
		return ResourceSubject
	}
}

// Program is a degree program that roots a curriculum.
type Program struct {
	ID             string    `db:"id" json:"id"`
	Code           string    `db:"code" json:"code"`
	Name           string    `db:"name" json:"name"`
	Degree         string    `db:"degree" json:"degree"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Pool groups subjects inside a program (elective pools, specialisations).
type Pool struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	MinCredits     int       `db:"min_credits" json:"min_credits"`
	MaxCredits     int       `db:"max_credits" json:"max_credits"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Subject is a teachable subject mapped into curricula as a leaf.
type Subject struct {
	ID             string    `db:"id" json:"id"`
	Code           string    `db:"code" json:"code"`
	Name           string    `db:"name" json:"name"`
	Credits        int       `db:"credits" json:"credits"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
