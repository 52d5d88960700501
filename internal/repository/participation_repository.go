package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrInstanceFull is returned when a registration would exceed the sibling
// pool's physical capacity.
var ErrInstanceFull = errors.New("instance capacity exhausted")

// ParticipationRepository persists registrations and bookmarks and keeps the
// aggregated instance counters in sync.
type ParticipationRepository struct {
	db *sqlx.DB
}

// NewParticipationRepository constructs the repository.
func NewParticipationRepository(db *sqlx.DB) *ParticipationRepository {
	return &ParticipationRepository{db: db}
}

// Register records a registration after re-checking capacity inside one
// transaction. The sibling rows are locked first so two concurrent
// registrations cannot both pass the check.
func (r *ParticipationRepository) Register(ctx context.Context, instanceID, personID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin register: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var siblingIDs []string
	if err = tx.SelectContext(ctx, &siblingIDs, `
SELECT id FROM instances
WHERE (unit_id, block_id) IN (SELECT unit_id, block_id FROM instances WHERE id = $1)
FOR UPDATE`, instanceID); err != nil {
		return fmt.Errorf("lock sibling instances: %w", err)
	}
	if len(siblingIDs) == 0 {
		err = fmt.Errorf("instance %s not found", instanceID)
		return err
	}

	rooms, roomsErr := siblingRooms(ctx, tx, instanceID)
	if roomsErr != nil {
		err = roomsErr
		return err
	}
	capacity := 0
	seen := make(map[string]struct{}, len(rooms))
	for _, room := range rooms {
		if room.Virtual {
			continue
		}
		if _, dup := seen[room.ID]; dup {
			continue
		}
		seen[room.ID] = struct{}{}
		capacity += room.EffectiveCapacity
	}

	// Capacity zero means unbounded; only bounded pools are re-checked.
	if capacity > 0 {
		var registered int
		if err = tx.GetContext(ctx, &registered, `
SELECT COUNT(*) FROM participations p
JOIN instances s ON s.id = p.instance_id
JOIN instances a ON a.unit_id = s.unit_id AND a.block_id = s.block_id
WHERE a.id = $1 AND p.registered = TRUE AND p.delta <> 'removed'`, instanceID); err != nil {
			return fmt.Errorf("count registrations: %w", err)
		}
		if registered >= capacity {
			err = ErrInstanceFull
			return err
		}
	}

	now := touchModified()
	if _, err = tx.ExecContext(ctx, `
INSERT INTO participations (id, instance_id, person_id, registered, bookmarked, attended, delta, modified)
VALUES ($1, $2, $3, TRUE, FALSE, FALSE, '', $4)
ON CONFLICT (instance_id, person_id)
DO UPDATE SET registered = TRUE, delta = '', modified = $4`,
		uuid.NewString(), instanceID, personID, now); err != nil {
		return fmt.Errorf("upsert participation: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit register: %w", err)
	}
	return nil
}

// Deregister soft-removes a registration.
func (r *ParticipationRepository) Deregister(ctx context.Context, instanceID, personID string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE participations SET registered = FALSE, delta = 'removed', modified = $3
WHERE instance_id = $1 AND person_id = $2`, instanceID, personID, touchModified())
	if err != nil {
		return fmt.Errorf("deregister participation: %w", err)
	}
	if affected, raErr := result.RowsAffected(); raErr == nil && affected == 0 {
		return fmt.Errorf("no participation for person %s on instance %s", personID, instanceID)
	}
	return nil
}

// Bookmark toggles the bookmark flag on the participation, creating it when
// absent.
func (r *ParticipationRepository) Bookmark(ctx context.Context, instanceID, personID string, bookmarked bool) error {
	if _, err := r.db.ExecContext(ctx, `
INSERT INTO participations (id, instance_id, person_id, registered, bookmarked, attended, delta, modified)
VALUES ($1, $2, $3, FALSE, $4, FALSE, '', $5)
ON CONFLICT (instance_id, person_id)
DO UPDATE SET bookmarked = $4, modified = $5`,
		uuid.NewString(), instanceID, personID, bookmarked, touchModified()); err != nil {
		return fmt.Errorf("bookmark participation: %w", err)
	}
	return nil
}

// UpdateNumbers recomputes the aggregated counters for one instance from its
// participations. Invoked asynchronously after registration changes.
func (r *ParticipationRepository) UpdateNumbers(ctx context.Context, instanceID string) error {
	if _, err := r.db.ExecContext(ctx, `
UPDATE instances i SET
attended = (SELECT COUNT(*) FROM participations p WHERE p.instance_id = i.id AND p.attended = TRUE AND p.delta <> 'removed'),
registered = (SELECT COUNT(*) FROM participations p WHERE p.instance_id = i.id AND p.registered = TRUE AND p.delta <> 'removed'),
bookmarked = (SELECT COUNT(*) FROM participations p WHERE p.instance_id = i.id AND p.bookmarked = TRUE AND p.delta <> 'removed')
WHERE i.id = $1`, instanceID); err != nil {
		return fmt.Errorf("update instance numbers: %w", err)
	}
	return nil
}

// IsBusy reports whether the person already holds a non-removed participation
// whose block overlaps the given window on the given date. The overlap test is
// the standard three-clause form: containment, left overlap, right overlap.
func (r *ParticipationRepository) IsBusy(ctx context.Context, personID string, date time.Time, startTime, endTime string) (bool, error) {
	const query = `SELECT EXISTS (
SELECT 1 FROM participations p
JOIN instances i ON i.id = p.instance_id
JOIN blocks b ON b.id = i.block_id
WHERE p.person_id = $1 AND p.delta <> 'removed' AND p.registered = TRUE AND i.delta <> 'removed'
AND b.block_date = $2
AND ((b.start_time <= $3 AND b.end_time >= $4)
  OR (b.start_time >= $3 AND b.start_time < $4)
  OR (b.end_time > $3 AND b.end_time <= $4)))`

	var busy bool
	if err := r.db.GetContext(ctx, &busy, query, personID, date, startTime, endTime); err != nil {
		return false, fmt.Errorf("busy check for person %s: %w", personID, err)
	}
	return busy, nil
}
