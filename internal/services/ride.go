package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ride-pool-backend/internal/models"
	"ride-pool-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// UserStore is the user persistence used by the services
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetProfilePicture(ctx context.Context, userID, key string) error
}

// RideStore is the ride persistence used by RideService
type RideStore interface {
	Create(ctx context.Context, ride *models.Ride) error
	GetByID(ctx context.Context, id string) (*models.Ride, error)
	Search(ctx context.Context, filter models.RideFilter) ([]*models.Ride, error)
	WithLockedRide(ctx context.Context, id string, fn func(ctx context.Context, tx repository.RideTx) error) error
}

// Notifier delivers a notification to a set of users. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, userIDs []string, n models.Notification)
}

// CreateRideInput is the body of a ride creation request
type CreateRideInput struct {
	FromPlace      models.Optional[models.Place] `json:"fromPlace"`
	ToPlace        models.Optional[models.Place] `json:"toPlace"`
	Seats          models.Optional[int]          `json:"seats"`
	TimeRangeStart models.Optional[time.Time]    `json:"timeRangeStart"`
	TimeRangeStop  models.Optional[time.Time]    `json:"timeRangeStop"`
	Description    models.Optional[string]       `json:"description"`
}

// RideService implements the ride join-request lifecycle
type RideService struct {
	rides    RideStore
	users    UserStore
	notifier Notifier
	now      func() time.Time
}

// NewRideService creates a new ride service
func NewRideService(rides RideStore, users UserStore, notifier Notifier) *RideService {
	return &RideService{
		rides:    rides,
		users:    users,
		notifier: notifier,
		now:      time.Now,
	}
}

// CreateRide posts a new ride owned by ownerID. The owner is its first participant.
func (s *RideService) CreateRide(ctx context.Context, ownerID string, in CreateRideInput) (*models.Ride, error) {
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	owner, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrForbidden, "User not found!")
		}
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}

	now := s.now()
	ride := &models.Ride{
		ID:             uuid.New().String(),
		OwnerID:        owner.ID,
		Owner:          owner,
		FromPlace:      in.FromPlace.Value,
		ToPlace:        in.ToPlace.Value,
		Seats:          in.Seats.Value,
		Capacity:       in.Seats.Value,
		TimeRangeStart: in.TimeRangeStart.Value,
		TimeRangeStop:  in.TimeRangeStop.Value,
		Description:    in.Description.Value,
		Participants:   []*models.User{owner},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.rides.Create(ctx, ride); err != nil {
		return nil, err
	}

	log.Info().Str("ride_id", ride.ID).Str("user_id", owner.ID).Msg("Ride created")
	return ride, nil
}

func (s *RideService) validateCreate(in CreateRideInput) error {
	switch {
	case !in.FromPlace.Set:
		return invalid("fromPlace is required")
	case !in.ToPlace.Set:
		return invalid("toPlace is required")
	case !in.Seats.Set:
		return invalid("seats is required")
	case !in.TimeRangeStart.Set:
		return invalid("timeRangeStart is required")
	case !in.TimeRangeStop.Set:
		return invalid("timeRangeStop is required")
	}
	if !in.FromPlace.Value.Valid() || !in.ToPlace.Value.Valid() {
		return invalid("place must be one of the listed locations")
	}
	if in.FromPlace.Value == in.ToPlace.Value {
		return invalid("fromPlace and toPlace must differ")
	}
	if in.Seats.Value <= 0 {
		return invalid("seats must be a positive integer")
	}
	now := s.now()
	if !in.TimeRangeStart.Value.After(now) {
		return invalid("timeRangeStart must occur after the time of posting")
	}
	if !in.TimeRangeStop.Value.After(now) {
		return invalid("timeRangeStop must occur after the time of posting")
	}
	if in.TimeRangeStart.Value.After(in.TimeRangeStop.Value) {
		return invalid("timeRangeStart must not be after timeRangeStop")
	}
	return nil
}

// RequestToJoin puts userID in the ride's queue and notifies the owner
func (s *RideService) RequestToJoin(ctx context.Context, rideID, userID string) error {
	user, err := s.getUserByID(ctx, userID)
	if err != nil {
		return err
	}

	var owner *models.User
	err = s.withRide(ctx, rideID, func(ctx context.Context, tx repository.RideTx) error {
		ride := tx.Ride()
		if ride.OwnerID == user.ID {
			return withStatus(http.StatusBadRequest, newError(ErrForbidden, "Cannot request to join your own ride."))
		}
		switch ride.StateOf(user.ID) {
		case models.StateQueued:
			return newError(ErrConflict, "User has already requested to join this ride.")
		case models.StateParticipant:
			return newError(ErrConflict, "User has already been accepted into this ride.")
		}
		if ride.Seats <= 0 {
			return newError(ErrFull, "Ride is full.")
		}
		owner = ride.Owner
		return tx.SetMemberState(ctx, user, models.StateQueued)
	})
	if err != nil {
		return err
	}

	log.Info().Str("ride_id", rideID).Str("user_id", user.ID).Msg("Join requested")
	s.notify(ctx, []string{owner.ID}, rideRequestNotification(user, rideID))
	return nil
}

// Accept admits a queued user onto the ride and takes one seat
func (s *RideService) Accept(ctx context.Context, rideID, callerID, targetEmail string) error {
	var (
		owner  *models.User
		target *models.User
	)
	err := s.withRide(ctx, rideID, func(ctx context.Context, tx repository.RideTx) error {
		ride := tx.Ride()
		if ride.OwnerID != callerID {
			return withStatus(http.StatusUnauthorized, newError(ErrForbidden, "Unauthorized to accept users into this ride."))
		}
		var err error
		if target, err = s.getUserByEmail(ctx, targetEmail); err != nil {
			return err
		}
		if ride.StateOf(target.ID) != models.StateQueued {
			return newError(ErrNotFound, "User not found in trip's join queue")
		}
		if ride.Seats <= 0 {
			return newError(ErrFull, "Ride is full.")
		}
		if err := tx.SetMemberState(ctx, target, models.StateParticipant); err != nil {
			return err
		}
		owner = ride.Owner
		return tx.AddSeats(ctx, -1)
	})
	if err != nil {
		return err
	}

	log.Info().Str("ride_id", rideID).Str("user_id", target.ID).Msg("Join request accepted")
	s.notify(ctx, []string{target.ID}, requestAcceptedNotification(owner, rideID))
	return nil
}

// Reject drops a queued user from the ride's queue
func (s *RideService) Reject(ctx context.Context, rideID, callerID, targetEmail string) error {
	var (
		owner  *models.User
		target *models.User
	)
	err := s.withRide(ctx, rideID, func(ctx context.Context, tx repository.RideTx) error {
		ride := tx.Ride()
		if ride.OwnerID != callerID {
			return newError(ErrForbidden, "Unauthorized to remove users from this ride.")
		}
		var err error
		if target, err = s.getUserByEmail(ctx, targetEmail); err != nil {
			return err
		}
		if ride.StateOf(target.ID) != models.StateQueued {
			return newError(ErrNotFound, "User not found in trip's join queue")
		}
		owner = ride.Owner
		return tx.SetMemberState(ctx, target, models.StateNone)
	})
	if err != nil {
		return err
	}

	log.Info().Str("ride_id", rideID).Str("user_id", target.ID).Msg("Join request declined")
	s.notify(ctx, []string{target.ID}, requestDeclinedNotification(owner, rideID))
	return nil
}

// Revoke withdraws the caller's own pending request
func (s *RideService) Revoke(ctx context.Context, rideID, callerID string) error {
	user, err := s.getUserByID(ctx, callerID)
	if err != nil {
		return err
	}

	var owner *models.User
	err = s.withRide(ctx, rideID, func(ctx context.Context, tx repository.RideTx) error {
		ride := tx.Ride()
		if ride.OwnerID == user.ID {
			return withStatus(http.StatusBadRequest, newError(ErrForbidden, "OP cannot be removed from the join queue"))
		}
		if ride.StateOf(user.ID) != models.StateQueued {
			return newError(ErrConflict, "User has not requested to join this ride.")
		}
		owner = ride.Owner
		return tx.SetMemberState(ctx, user, models.StateNone)
	})
	if err != nil {
		return err
	}

	log.Info().Str("ride_id", rideID).Str("user_id", user.ID).Msg("Join request revoked")
	s.notify(ctx, []string{owner.ID}, requestRevokedNotification(user, rideID))
	return nil
}

// RemoveRequest removes a pending request: the owner declines it, the
// requester withdraws it. Nobody else may touch the queue.
func (s *RideService) RemoveRequest(ctx context.Context, rideID, callerID, targetEmail string) error {
	if targetEmail == "" {
		return invalid("email cannot be empty")
	}

	var owner, target *models.User
	err := s.withRide(ctx, rideID, func(ctx context.Context, tx repository.RideTx) error {
		ride := tx.Ride()
		owner = ride.Owner

		var err error
		target, err = s.users.GetByEmail(ctx, targetEmail)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to get user: %w", err)
		}

		isOwner := ride.OwnerID == callerID
		isSelf := target != nil && target.ID == callerID
		switch {
		case isOwner && isSelf:
			return withStatus(http.StatusBadRequest, newError(ErrForbidden, "Cannot remove user from his own ride."))
		case !isOwner && !isSelf:
			return newError(ErrForbidden, "Unauthorized to remove users from this ride.")
		case target == nil || ride.StateOf(target.ID) != models.StateQueued:
			return newError(ErrConflict, "User has not requested to join this ride.")
		}
		return tx.SetMemberState(ctx, target, models.StateNone)
	})
	if err != nil {
		return err
	}

	if owner.ID == callerID {
		log.Info().Str("ride_id", rideID).Str("user_id", target.ID).Msg("Join request declined")
		s.notify(ctx, []string{target.ID}, requestDeclinedNotification(owner, rideID))
		return nil
	}
	log.Info().Str("ride_id", rideID).Str("user_id", target.ID).Msg("Join request revoked")
	s.notify(ctx, []string{owner.ID}, requestRevokedNotification(target, rideID))
	return nil
}

// RemoveOrKick takes an accepted participant off the ride and frees their seat.
// The owner may kick anyone but themselves; a participant may remove themselves.
func (s *RideService) RemoveOrKick(ctx context.Context, rideID, callerID, targetEmail string) error {
	target, err := s.getUserByEmail(ctx, targetEmail)
	if err != nil {
		return err
	}

	var (
		owner  *models.User
		kicked bool
	)
	err = s.withRide(ctx, rideID, func(ctx context.Context, tx repository.RideTx) error {
		ride := tx.Ride()
		kicked = ride.OwnerID == callerID
		if !kicked && target.ID != callerID {
			return newError(ErrForbidden, "Unauthorized to kick users from this ride.")
		}
		if target.ID == ride.OwnerID {
			return withStatus(http.StatusBadRequest, newError(ErrForbidden, "Cannot kick user from his own ride."))
		}
		if ride.StateOf(target.ID) != models.StateParticipant {
			return newError(ErrConflict, "User has not been accepted into this ride.")
		}
		if err := tx.SetMemberState(ctx, target, models.StateNone); err != nil {
			return err
		}
		owner = ride.Owner
		return tx.AddSeats(ctx, 1)
	})
	if err != nil {
		return err
	}

	if kicked {
		log.Info().Str("ride_id", rideID).Str("user_id", target.ID).Msg("Participant kicked")
		s.notify(ctx, []string{target.ID}, userKickedNotification(owner, rideID))
		return nil
	}
	log.Info().Str("ride_id", rideID).Str("user_id", target.ID).Msg("Participant left")
	s.notify(ctx, []string{owner.ID}, userRemovedNotification(target, rideID))
	return nil
}

// DeleteRide removes the ride and tells everyone who was on it or waiting for it
func (s *RideService) DeleteRide(ctx context.Context, rideID, callerID string) error {
	var (
		owner    *models.User
		audience []string
	)
	err := s.withRide(ctx, rideID, func(ctx context.Context, tx repository.RideTx) error {
		ride := tx.Ride()
		if ride.OwnerID != callerID {
			return withStatus(http.StatusUnauthorized, newError(ErrForbidden, "User is not the OP"))
		}
		owner = ride.Owner
		audience = ride.Audience()
		return tx.Delete(ctx)
	})
	if err != nil {
		return err
	}

	log.Info().Str("ride_id", rideID).Int("notified", len(audience)).Msg("Ride deleted")
	s.notify(ctx, audience, rideDeletedNotification(owner, rideID))
	return nil
}

// UpdateRide applies patch to the ride. Unset fields keep their value. A new
// seats value resets the capacity; the remaining seats follow from the
// participants already accepted.
func (s *RideService) UpdateRide(ctx context.Context, rideID, callerID string, patch models.RidePatch) (*models.Ride, error) {
	if err := s.validatePatch(patch); err != nil {
		return nil, err
	}

	var updated *models.Ride
	err := s.withRide(ctx, rideID, func(ctx context.Context, tx repository.RideTx) error {
		ride := tx.Ride()
		if ride.OwnerID != callerID {
			return withStatus(http.StatusUnauthorized, newError(ErrForbidden, "User is not the OP"))
		}

		ride.FromPlace = patch.FromPlace.Or(ride.FromPlace)
		ride.ToPlace = patch.ToPlace.Or(ride.ToPlace)
		ride.TimeRangeStart = patch.TimeRangeStart.Or(ride.TimeRangeStart)
		ride.TimeRangeStop = patch.TimeRangeStop.Or(ride.TimeRangeStop)
		ride.Description = patch.Description.Or(ride.Description)
		if ride.FromPlace == ride.ToPlace {
			return invalid("fromPlace and toPlace must differ")
		}
		if ride.TimeRangeStart.After(ride.TimeRangeStop) {
			return invalid("timeRangeStart must not be after timeRangeStop")
		}
		if patch.Seats.Set {
			accepted := ride.Accepted()
			if patch.Seats.Value < accepted {
				return newError(ErrConflict, fmt.Sprintf("seats cannot be lower than the %d accepted participants", accepted))
			}
			ride.Capacity = patch.Seats.Value
			ride.Seats = ride.Capacity - accepted
		}
		ride.UpdatedAt = s.now()
		if err := tx.Update(ctx); err != nil {
			return err
		}
		updated = ride
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("ride_id", rideID).Msg("Ride updated")
	s.notify(ctx, updated.Audience(), rideUpdatedNotification(updated.Owner, rideID))
	return updated, nil
}

func (s *RideService) validatePatch(patch models.RidePatch) error {
	if patch.Empty() {
		return invalid("no fields to update")
	}
	if patch.FromPlace.Set && !patch.FromPlace.Value.Valid() {
		return invalid("fromPlace must be one of the listed locations")
	}
	if patch.ToPlace.Set && !patch.ToPlace.Value.Valid() {
		return invalid("toPlace must be one of the listed locations")
	}
	if patch.Seats.Set && patch.Seats.Value <= 0 {
		return invalid("seats must be a positive integer")
	}
	now := s.now()
	if patch.TimeRangeStart.Set && !patch.TimeRangeStart.Value.After(now) {
		return invalid("timeRangeStart must occur after the time of updating")
	}
	if patch.TimeRangeStop.Set && !patch.TimeRangeStop.Value.After(now) {
		return invalid("timeRangeStop must occur after the time of updating")
	}
	return nil
}

// FindRide returns the ride. Only the owner sees the join queue.
func (s *RideService) FindRide(ctx context.Context, rideID, callerID string) (*models.Ride, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.OwnerID != callerID {
		ride.ParticipantQueue = nil
	}
	return ride, nil
}

// SearchRides lists rides matching filter. Queues are never included.
func (s *RideService) SearchRides(ctx context.Context, filter models.RideFilter) ([]*models.Ride, error) {
	if filter.StartTime.IsZero() {
		filter.StartTime = s.now()
	}
	if filter.EndTime.Set && filter.EndTime.Value.Before(filter.StartTime) {
		return nil, invalid("endTime must not be before startTime")
	}
	if filter.AvailableSeats.Set && filter.AvailableSeats.Value < 0 {
		return nil, invalid("availableSeats must be non-negative")
	}
	rides, err := s.rides.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	if rides == nil {
		rides = []*models.Ride{}
	}
	return rides, nil
}

// withRide runs fn against the locked ride, translating a missing ride
func (s *RideService) withRide(ctx context.Context, rideID string, fn func(ctx context.Context, tx repository.RideTx) error) error {
	if _, err := uuid.Parse(rideID); err != nil {
		return invalid("rideId must be a valid uuid")
	}
	err := s.rides.WithLockedRide(ctx, rideID, fn)
	if errors.Is(err, repository.ErrNotFound) {
		return rideNotFound()
	}
	return err
}

func (s *RideService) getRide(ctx context.Context, rideID string) (*models.Ride, error) {
	if _, err := uuid.Parse(rideID); err != nil {
		return nil, invalid("rideId must be a valid uuid")
	}
	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, rideNotFound()
		}
		return nil, err
	}
	return ride, nil
}

func (s *RideService) getUserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, userNotFound()
		}
		return nil, err
	}
	return user, nil
}

func (s *RideService) getUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, invalid("email cannot be empty")
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, userNotFound()
		}
		return nil, err
	}
	return user, nil
}

func (s *RideService) notify(ctx context.Context, userIDs []string, n models.Notification) {
	if s.notifier == nil || len(userIDs) == 0 {
		return
	}
	s.notifier.Notify(ctx, userIDs, n)
}
