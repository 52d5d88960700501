package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campusplan/timetable-api/internal/models"
)

// instanceJoinBase is the join fabric every filtered instance query shares.
// Associations are left-joined because instances without persons, groups or
// rooms must still be selectable.
const instanceJoinBase = `FROM instances i
JOIN blocks b ON b.id = i.block_id
JOIN units u ON u.id = i.unit_id
JOIN courses c ON c.id = u.course_id
LEFT JOIN instance_persons ip ON ip.instance_id = i.id
LEFT JOIN instance_groups ig ON ig.assoc_id = ip.id
LEFT JOIN instance_rooms ir ON ir.assoc_id = ip.id`

// InstanceRepository resolves structured condition sets into instance ids and
// hydrates single instances with their block, unit, course and event data.
type InstanceRepository struct {
	db *sqlx.DB
}

// NewInstanceRepository constructs the repository.
func NewInstanceRepository(db *sqlx.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// instanceConditions assembles the WHERE clause for a filter. Returned
// conditions are ANDed; args line up with the positional placeholders.
func instanceConditions(f models.InstanceFilter) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}

	bind := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions = append(conditions, fmt.Sprintf("b.block_date BETWEEN %s AND %s", bind(f.StartDate), bind(f.EndDate)))

	if len(f.PersonIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("ip.person_id = ANY(%s)", bind(pq.Array(f.PersonIDs))))
	}
	if len(f.RoomIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("ir.room_id = ANY(%s)", bind(pq.Array(f.RoomIDs))))
	}
	if f.RoleID != "" {
		conditions = append(conditions, fmt.Sprintf("ip.role_id = %s", bind(f.RoleID)))
	}

	if cond := resourceCondition(f, bind); cond != "" {
		conditions = append(conditions, cond)
	}
	if cond := statusCondition(f, bind); cond != "" {
		conditions = append(conditions, cond)
	}

	// Publishing state lives on the group/term pairing, not the instance, so
	// suppression must be a negative join rather than a flag check.
	if !f.ShowUnpublished {
		conditions = append(conditions, `i.id NOT IN (
SELECT i2.id FROM instances i2
JOIN units u2 ON u2.id = i2.unit_id
JOIN instance_persons ip2 ON ip2.instance_id = i2.id
JOIN instance_groups ig2 ON ig2.assoc_id = ip2.id
JOIN group_publishing gp ON gp.group_id = ig2.group_id AND gp.term_id = u2.term_id
WHERE gp.published = FALSE)`)
	}

	return conditions, args
}

// resourceCondition applies the filter precedence ladder: the first matching
// branch wins and disables the organization-level fallback. A mine-context
// without an identifiable user yields an unsatisfiable predicate so personal
// views never leak foreign instances.
func resourceCondition(f models.InstanceFilter, bind func(interface{}) string) string {
	switch {
	case f.My != nil:
		if f.My.UserID == "" {
			return "1 = 0"
		}
		participation := "p.registered = TRUE OR p.bookmarked = TRUE"
		switch f.My.Mode {
		case models.MyModeRegistrations:
			participation = "p.registered = TRUE"
		case models.MyModeBookmarks:
			participation = "p.bookmarked = TRUE"
		}
		userArg := bind(f.My.UserID)
		return fmt.Sprintf(`(ip.person_id = %s OR i.id IN (
SELECT p.instance_id FROM participations p
WHERE p.person_id = %s AND p.delta <> 'removed' AND (%s)))`, userArg, userArg, participation)

	case len(f.EventIDs) > 0 || len(f.SubjectIDs) > 0:
		var parts []string
		if len(f.EventIDs) > 0 {
			parts = append(parts, fmt.Sprintf("i.event_id = ANY(%s)", bind(pq.Array(f.EventIDs))))
		}
		if len(f.SubjectIDs) > 0 {
			parts = append(parts, fmt.Sprintf("c.subject_id = ANY(%s)", bind(pq.Array(f.SubjectIDs))))
		}
		return "(" + strings.Join(parts, " OR ") + ")"

	case len(f.UnitIDs) > 0:
		return fmt.Sprintf("u.id = ANY(%s)", bind(pq.Array(f.UnitIDs)))

	case len(f.CourseIDs) > 0:
		return fmt.Sprintf("u.course_id = ANY(%s)", bind(pq.Array(f.CourseIDs)))

	case len(f.GroupIDs) > 0:
		return fmt.Sprintf("ig.group_id = ANY(%s)", bind(pq.Array(f.GroupIDs)))

	case len(f.CategoryIDs) > 0:
		return fmt.Sprintf("ig.group_id IN (SELECT id FROM groups WHERE category_id = ANY(%s))", bind(pq.Array(f.CategoryIDs)))

	case len(f.OrganizationIDs) > 0:
		return fmt.Sprintf("u.organization_id = ANY(%s)", bind(pq.Array(f.OrganizationIDs)))
	}
	return ""
}

// statusCondition resolves the delta mode across the instance, its unit and
// all three association tables.
func statusCondition(f models.InstanceFilter, bind func(interface{}) string) string {
	cutoff := ""
	if f.DeltaCutoff != nil {
		cutoff = bind(*f.DeltaCutoff)
	}

	deltaAt := func(state string) string {
		tables := []string{"i", "u"}
		assocs := []string{"ip", "ig", "ir"}
		var parts []string
		for _, t := range tables {
			parts = append(parts, fmt.Sprintf("(%s.delta = '%s' AND %s.modified >= %s)", t, state, t, cutoff))
		}
		for _, a := range assocs {
			parts = append(parts, fmt.Sprintf("(%s.delta = '%s' AND %s.modified >= %s)", a, state, a, cutoff))
		}
		return strings.Join(parts, " OR ")
	}

	notRemoved := `i.delta <> 'removed' AND u.delta <> 'removed'
AND COALESCE(ip.delta, '') <> 'removed' AND COALESCE(ig.delta, '') <> 'removed' AND COALESCE(ir.delta, '') <> 'removed'`

	switch f.Status {
	case models.StatusCurrent:
		return "(" + notRemoved + ")"
	case models.StatusNew:
		if cutoff == "" {
			return "1 = 0"
		}
		return "(" + deltaAt("new") + ")"
	case models.StatusRemoved:
		if cutoff == "" {
			return "1 = 0"
		}
		return "(" + deltaAt("removed") + ")"
	case models.StatusChanged:
		if cutoff == "" {
			return "1 = 0"
		}
		return "(" + deltaAt("new") + " OR " + deltaAt("removed") + ")"
	default:
		// NORMAL: current state, but removals at or after the cutoff still
		// surface so callers can highlight recent changes.
		if cutoff == "" {
			return "(i.delta <> 'removed' AND u.delta <> 'removed')"
		}
		return fmt.Sprintf("((i.delta <> 'removed' OR i.modified >= %s) AND (u.delta <> 'removed' OR u.modified >= %s))", cutoff, cutoff)
	}
}

// SelectIDs returns the ids of all instances matching the filter, ordered by
// block date and start time.
func (r *InstanceRepository) SelectIDs(ctx context.Context, f models.InstanceFilter) ([]string, error) {
	conditions, args := instanceConditions(f)

	query := fmt.Sprintf(`SELECT DISTINCT i.id, b.block_date, b.start_time %s
WHERE %s
ORDER BY b.block_date ASC, b.start_time ASC, i.id ASC`, instanceJoinBase, strings.Join(conditions, "\nAND "))

	var rows []struct {
		ID        string    `db:"id"`
		BlockDate time.Time `db:"block_date"`
		StartTime string    `db:"start_time"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select instance ids: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

// Get hydrates one instance with its block, unit, course, event and method
// data merged in.
func (r *InstanceRepository) Get(ctx context.Context, id string) (*models.InstanceDetail, error) {
	const query = `SELECT i.id, i.block_id, i.unit_id, i.event_id, i.method_id, i.delta, i.modified,
i.attended, i.registered, i.bookmarked,
b.block_date, b.start_time, b.end_time,
u.course_id, u.term_id, u.organization_id,
c.name AS course_name, c.subject_id,
e.name AS event_name,
m.name AS method_name
FROM instances i
JOIN blocks b ON b.id = i.block_id
JOIN units u ON u.id = i.unit_id
JOIN courses c ON c.id = u.course_id
LEFT JOIN events e ON e.id = i.event_id
JOIN methods m ON m.id = i.method_id
WHERE i.id = $1`

	var detail models.InstanceDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Siblings returns all instances sharing the anchor's (unit_id, block_id)
// pair, the anchor included. Parallel instances of one session form a single
// logical capacity pool.
func (r *InstanceRepository) Siblings(ctx context.Context, instanceID string) ([]models.Instance, error) {
	const query = `SELECT s.id, s.block_id, s.unit_id, s.event_id, s.method_id, s.delta, s.modified,
s.attended, s.registered, s.bookmarked
FROM instances s
JOIN instances a ON a.unit_id = s.unit_id AND a.block_id = s.block_id
WHERE a.id = $1
ORDER BY s.id ASC`

	var siblings []models.Instance
	if err := r.db.SelectContext(ctx, &siblings, query, instanceID); err != nil {
		return nil, fmt.Errorf("sibling instances of %s: %w", instanceID, err)
	}
	return siblings, nil
}

// SiblingRooms returns the distinct rooms attached to the sibling set via
// non-removed associations.
func (r *InstanceRepository) SiblingRooms(ctx context.Context, instanceID string) ([]models.Room, error) {
	return siblingRooms(ctx, r.db, instanceID)
}

func siblingRooms(ctx context.Context, exec sqlx.ExtContext, instanceID string) ([]models.Room, error) {
	const query = `SELECT DISTINCT r.id, r.name, r.effective_capacity, r.virtual
FROM instances s
JOIN instances a ON a.unit_id = s.unit_id AND a.block_id = s.block_id
JOIN instance_persons ip ON ip.instance_id = s.id AND ip.delta <> 'removed'
JOIN instance_rooms ir ON ir.assoc_id = ip.id AND ir.delta <> 'removed'
JOIN rooms r ON r.id = ir.room_id
WHERE a.id = $1`

	var rooms []models.Room
	if err := sqlx.SelectContext(ctx, exec, &rooms, query, instanceID); err != nil {
		return nil, fmt.Errorf("sibling rooms of %s: %w", instanceID, err)
	}
	return rooms, nil
}

// Interested counts the distinct participants holding a bookmark anywhere in
// the sibling set.
func (r *InstanceRepository) Interested(ctx context.Context, instanceID string) (int, error) {
	const query = `SELECT COUNT(DISTINCT p.person_id)
FROM participations p
JOIN instances s ON s.id = p.instance_id
JOIN instances a ON a.unit_id = s.unit_id AND a.block_id = s.block_id
WHERE a.id = $1 AND p.bookmarked = TRUE AND p.delta <> 'removed'`

	var count int
	if err := r.db.GetContext(ctx, &count, query, instanceID); err != nil {
		return 0, fmt.Errorf("interested count for %s: %w", instanceID, err)
	}
	return count, nil
}

// NextDate probes forward for the nearest block date carrying matching
// instances after the filter's window, bounded by the horizon. A nil result
// means nothing was found inside the horizon.
func (r *InstanceRepository) NextDate(ctx context.Context, f models.InstanceFilter, horizon time.Duration) (*time.Time, error) {
	probe := f
	probe.StartDate = f.EndDate.AddDate(0, 0, 1)
	probe.EndDate = f.EndDate.Add(horizon)
	return r.probeDate(ctx, probe, "MIN")
}

// PreviousDate probes backward for the nearest block date carrying matching
// instances before the filter's window.
func (r *InstanceRepository) PreviousDate(ctx context.Context, f models.InstanceFilter, horizon time.Duration) (*time.Time, error) {
	probe := f
	probe.EndDate = f.StartDate.AddDate(0, 0, -1)
	probe.StartDate = f.StartDate.Add(-horizon)
	return r.probeDate(ctx, probe, "MAX")
}

func (r *InstanceRepository) probeDate(ctx context.Context, f models.InstanceFilter, agg string) (*time.Time, error) {
	conditions, args := instanceConditions(f)
	query := fmt.Sprintf("SELECT %s(b.block_date) %s\nWHERE %s", agg, instanceJoinBase, strings.Join(conditions, "\nAND "))

	var found sql.NullTime
	if err := r.db.GetContext(ctx, &found, query, args...); err != nil {
		return nil, fmt.Errorf("probe %s block date: %w", strings.ToLower(agg), err)
	}
	if !found.Valid {
		return nil, nil
	}
	date := found.Time
	return &date, nil
}
