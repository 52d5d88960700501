package models

import "time"

// Delta is the soft change-tracking state carried by instances, units and all
// resource associations. Removed rows stay in place so "what changed since
// date X" queries remain answerable.
type Delta string

const (
	DeltaNone    Delta = ""
	DeltaNew     Delta = "new"
	DeltaRemoved Delta = "removed"
)

// StatusFilter selects how delta states are resolved during instance queries.
type StatusFilter string

const (
	StatusNormal  StatusFilter = "NORMAL"
	StatusCurrent StatusFilter = "CURRENT"
	StatusNew     StatusFilter = "NEW"
	StatusRemoved StatusFilter = "REMOVED"
	StatusChanged StatusFilter = "CHANGED"
)

// Presence classifies the delivery mode of an instance by its rooms.
type Presence string

const (
	PresenceOnline   Presence = "ONLINE"
	PresencePhysical Presence = "PRESENCE"
	PresenceHybrid   Presence = "HYBRID"
)

// MyMode narrows a personal timetable view.
type MyMode string

const (
	MyModeRegistrations MyMode = "REGISTRATIONS"
	MyModeBookmarks     MyMode = "BOOKMARKS"
)

// Instance is one concrete scheduled occurrence of a unit within a block.
type Instance struct {
	ID         string    `db:"id" json:"id"`
	BlockID    string    `db:"block_id" json:"block_id"`
	UnitID     string    `db:"unit_id" json:"unit_id"`
	EventID    *string   `db:"event_id" json:"event_id,omitempty"`
	MethodID   string    `db:"method_id" json:"method_id"`
	Delta      Delta     `db:"delta" json:"delta"`
	Modified   time.Time `db:"modified" json:"modified"`
	Attended   int       `db:"attended" json:"attended"`
	Registered int       `db:"registered" json:"registered"`
	Bookmarked int       `db:"bookmarked" json:"bookmarked"`
}

// Block is a date with a start/end time pair.
type Block struct {
	ID        string    `db:"id" json:"id"`
	BlockDate time.Time `db:"block_date" json:"block_date"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
}

// Unit is a course offering within a term.
type Unit struct {
	ID             string    `db:"id" json:"id"`
	CourseID       string    `db:"course_id" json:"course_id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	TermID         string    `db:"term_id" json:"term_id"`
	GridID         string    `db:"grid_id" json:"grid_id"`
	Delta          Delta     `db:"delta" json:"delta"`
	Modified       time.Time `db:"modified" json:"modified"`
}

// InstancePerson links a person (teacher, tutor, speaker) to an instance. The
// association carries its own delta so a person can be added or removed
// independently of the instance itself.
type InstancePerson struct {
	ID         string    `db:"id" json:"id"`
	InstanceID string    `db:"instance_id" json:"instance_id"`
	PersonID   string    `db:"person_id" json:"person_id"`
	RoleID     string    `db:"role_id" json:"role_id"`
	Delta      Delta     `db:"delta" json:"delta"`
	Modified   time.Time `db:"modified" json:"modified"`
}

// InstanceGroup attaches a participating group to a person association.
type InstanceGroup struct {
	ID       string    `db:"id" json:"id"`
	AssocID  string    `db:"assoc_id" json:"assoc_id"`
	GroupID  string    `db:"group_id" json:"group_id"`
	Delta    Delta     `db:"delta" json:"delta"`
	Modified time.Time `db:"modified" json:"modified"`
}

// InstanceRoom attaches a room to a person association.
type InstanceRoom struct {
	ID       string    `db:"id" json:"id"`
	AssocID  string    `db:"assoc_id" json:"assoc_id"`
	RoomID   string    `db:"room_id" json:"room_id"`
	Delta    Delta     `db:"delta" json:"delta"`
	Modified time.Time `db:"modified" json:"modified"`
}

// Participation records a student's registration or bookmark on an instance.
type Participation struct {
	ID         string    `db:"id" json:"id"`
	InstanceID string    `db:"instance_id" json:"instance_id"`
	PersonID   string    `db:"person_id" json:"person_id"`
	Registered bool      `db:"registered" json:"registered"`
	Bookmarked bool      `db:"bookmarked" json:"bookmarked"`
	Attended   bool      `db:"attended" json:"attended"`
	Delta      Delta     `db:"delta" json:"delta"`
	Modified   time.Time `db:"modified" json:"modified"`
}

// Room is a physical or virtual venue.
type Room struct {
	ID                string `db:"id" json:"id"`
	Name              string `db:"name" json:"name"`
	EffectiveCapacity int    `db:"effective_capacity" json:"effective_capacity"`
	Virtual           bool   `db:"virtual" json:"virtual"`
}

// Group is a student cohort.
type Group struct {
	ID             string `db:"id" json:"id"`
	Name           string `db:"name" json:"name"`
	CategoryID     string `db:"category_id" json:"category_id"`
	OrganizationID string `db:"organization_id" json:"organization_id"`
}

// GroupPublishing records whether a group's timetable is published for a term.
type GroupPublishing struct {
	GroupID   string `db:"group_id" json:"group_id"`
	TermID    string `db:"term_id" json:"term_id"`
	Published bool   `db:"published" json:"published"`
}

// InstanceDetail is a hydrated instance merged with block, unit, event, method
// and course data.
type InstanceDetail struct {
	Instance
	Date       time.Time `db:"block_date" json:"date"`
	StartTime  string    `db:"start_time" json:"start_time"`
	EndTime    string    `db:"end_time" json:"end_time"`
	CourseID   string    `db:"course_id" json:"course_id"`
	CourseName string    `db:"course_name" json:"course_name"`
	SubjectID  *string   `db:"subject_id" json:"subject_id,omitempty"`
	EventName  *string   `db:"event_name" json:"event_name,omitempty"`
	MethodName string    `db:"method_name" json:"method_name"`
	TermID     string    `db:"term_id" json:"term_id"`
	OrgID      string    `db:"organization_id" json:"organization_id"`
}

// MyContext restricts a query to the requesting user's own instances.
type MyContext struct {
	UserID string
	Mode   MyMode
}

// InstanceFilter is the structured condition set resolved into instance ids.
type InstanceFilter struct {
	StartDate   time.Time
	EndDate     time.Time
	DeltaCutoff *time.Time
	Status      StatusFilter

	EventIDs        []string
	CourseIDs       []string
	GroupIDs        []string
	CategoryIDs     []string
	OrganizationIDs []string
	PersonIDs       []string
	RoomIDs         []string
	UnitIDs         []string
	SubjectIDs      []string

	RoleID          string
	ShowUnpublished bool
	My              *MyContext
}

// Availability summarises capacity figures for an instance's sibling pool.
type Availability struct {
	InstanceID string   `json:"instance_id"`
	Capacity   int      `json:"capacity"`
	Registered int      `json:"registered"`
	Interested int      `json:"interested"`
	Full       bool     `json:"full"`
	Presence   Presence `json:"presence"`
}
