package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusplan/timetable-api/internal/models"
	"github.com/campusplan/timetable-api/internal/repository"
	appErrors "github.com/campusplan/timetable-api/pkg/errors"
	"github.com/campusplan/timetable-api/pkg/jobs"
)

// JobTypeUpdateNumbers recomputes the aggregate counters on one instance.
const JobTypeUpdateNumbers = "update_instance_numbers"

type availabilityInstanceRepository interface {
	Siblings(ctx context.Context, instanceID string) ([]models.Instance, error)
	SiblingRooms(ctx context.Context, instanceID string) ([]models.Room, error)
	Interested(ctx context.Context, instanceID string) (int, error)
}

type participationRepository interface {
	Register(ctx context.Context, instanceID, personID string) error
	Deregister(ctx context.Context, instanceID, personID string) error
	Bookmark(ctx context.Context, instanceID, personID string, bookmarked bool) error
	IsBusy(ctx context.Context, personID string, date time.Time, startTime, endTime string) (bool, error)
}

type counterQueue interface {
	Enqueue(job jobs.Job) error
}

// AvailabilityService computes capacity figures over sibling instance pools
// and drives registration, deregistration and bookmarking.
type AvailabilityService struct {
	instances      availabilityInstanceRepository
	participations participationRepository
	queue          counterQueue
	logger         *zap.Logger
}

// NewAvailabilityService instantiates AvailabilityService.
func NewAvailabilityService(instances availabilityInstanceRepository, participations participationRepository, queue counterQueue, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{instances: instances, participations: participations, queue: queue, logger: logger}
}

// Capacity sums the effective capacity of the distinct physical rooms attached
// to the sibling pool. Virtual rooms contribute nothing.
func (s *AvailabilityService) Capacity(ctx context.Context, instanceID string) (int, error) {
	rooms, err := s.instances.SiblingRooms(ctx, instanceID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve room capacity")
	}
	return poolCapacity(rooms), nil
}

// CurrentCapacity sums the registered counters across the sibling pool.
func (s *AvailabilityService) CurrentCapacity(ctx context.Context, instanceID string) (int, error) {
	siblings, err := s.instances.Siblings(ctx, instanceID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve sibling instances")
	}
	total := 0
	for _, sibling := range siblings {
		total += sibling.Registered
	}
	return total, nil
}

// Interested counts the distinct bookmark holders across the sibling pool.
func (s *AvailabilityService) Interested(ctx context.Context, instanceID string) (int, error) {
	count, err := s.instances.Interested(ctx, instanceID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count interested participants")
	}
	return count, nil
}

// IsFull reports whether the sibling pool has no free seats. A pool whose
// rooms sum to zero capacity is unbounded and never full.
func (s *AvailabilityService) IsFull(ctx context.Context, instanceID string) (bool, error) {
	capacity, err := s.Capacity(ctx, instanceID)
	if err != nil {
		return false, err
	}
	if capacity == 0 {
		return false, nil
	}
	registered, err := s.CurrentCapacity(ctx, instanceID)
	if err != nil {
		return false, err
	}
	return registered >= capacity, nil
}

// Presence classifies the delivery mode of the sibling pool from its rooms.
func (s *AvailabilityService) Presence(ctx context.Context, instanceID string) (models.Presence, error) {
	rooms, err := s.instances.SiblingRooms(ctx, instanceID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve presence")
	}
	return classifyPresence(rooms), nil
}

// Availability bundles every capacity figure for one instance.
func (s *AvailabilityService) Availability(ctx context.Context, instanceID string) (*models.Availability, error) {
	rooms, err := s.instances.SiblingRooms(ctx, instanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve availability")
	}
	registered, err := s.CurrentCapacity(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	interested, err := s.Interested(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	capacity := poolCapacity(rooms)
	return &models.Availability{
		InstanceID: instanceID,
		Capacity:   capacity,
		Registered: registered,
		Interested: interested,
		Full:       capacity > 0 && registered >= capacity,
		Presence:   classifyPresence(rooms),
	}, nil
}

// Register stores a registration. Capacity is re-checked inside the storage
// transaction; afterwards the aggregate counters of the whole sibling pool are
// recomputed in the background.
func (s *AvailabilityService) Register(ctx context.Context, instanceID, personID string) error {
	if err := s.participations.Register(ctx, instanceID, personID); err != nil {
		if errors.Is(err, repository.ErrInstanceFull) {
			return appErrors.Clone(appErrors.ErrInstanceFull, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register")
	}
	s.enqueueCounterUpdates(ctx, instanceID)
	return nil
}

// Deregister soft-removes a registration.
func (s *AvailabilityService) Deregister(ctx context.Context, instanceID, personID string) error {
	if err := s.participations.Deregister(ctx, instanceID, personID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "no registration to remove")
	}
	s.enqueueCounterUpdates(ctx, instanceID)
	return nil
}

// Bookmark toggles the bookmark flag on the participation.
func (s *AvailabilityService) Bookmark(ctx context.Context, instanceID, personID string, bookmarked bool) error {
	if err := s.participations.Bookmark(ctx, instanceID, personID, bookmarked); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update bookmark")
	}
	s.enqueueCounterUpdates(ctx, instanceID)
	return nil
}

// IsBusy reports whether the person already has a registered, non-removed
// block overlapping the given window.
func (s *AvailabilityService) IsBusy(ctx context.Context, personID string, date time.Time, startTime, endTime string) (bool, error) {
	busy, err := s.participations.IsBusy(ctx, personID, date, startTime, endTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed busy check")
	}
	return busy, nil
}

// enqueueCounterUpdates schedules counter recomputation for every sibling so
// the whole pool reflects the change, not only the touched instance.
func (s *AvailabilityService) enqueueCounterUpdates(ctx context.Context, instanceID string) {
	if s.queue == nil {
		return
	}
	siblings, err := s.instances.Siblings(ctx, instanceID)
	if err != nil {
		s.logger.Warn("counter update skipped, sibling lookup failed",
			zap.String("instance_id", instanceID), zap.Error(err))
		return
	}
	for _, sibling := range siblings {
		job := jobs.Job{ID: uuid.NewString(), Type: JobTypeUpdateNumbers, Payload: sibling.ID}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue counter update",
				zap.String("instance_id", sibling.ID), zap.Error(err))
		}
	}
}

func poolCapacity(rooms []models.Room) int {
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
	return capacity
}

func classifyPresence(rooms []models.Room) models.Presence {
	virtual, physical := false, false
	for _, room := range rooms {
		if room.Virtual {
			virtual = true
		} else {
			physical = true
		}
	}
	switch {
	case virtual && physical:
		return models.PresenceHybrid
	case virtual:
		return models.PresenceOnline
	default:
		return models.PresencePhysical
	}
}
