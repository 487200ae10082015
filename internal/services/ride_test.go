package services

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"ride-pool-backend/internal/models"
	"ride-pool-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentNotification struct {
	userIDs []string
	n       models.Notification
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) Notify(_ context.Context, userIDs []string, n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{userIDs: append([]string(nil), userIDs...), n: n})
}

func (r *recordingNotifier) last(t *testing.T) sentNotification {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.sent)
	return r.sent[len(r.sent)-1]
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type rideFixture struct {
	svc      *RideService
	store    *repository.MemoryStore
	notifier *recordingNotifier
}

func newRideFixture(t *testing.T) *rideFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	notifier := &recordingNotifier{}
	return &rideFixture{
		svc:      NewRideService(store.Rides(), store.Users(), notifier),
		store:    store,
		notifier: notifier,
	}
}

func (f *rideFixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     name + "@example.com",
		Phone:     "phone-" + name,
		CreatedAt: time.Now(),
	}
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	return u
}

func (f *rideFixture) ride(t *testing.T, owner *models.User, seats int) string {
	t.Helper()
	start := time.Now().Add(time.Hour)
	ride, err := f.svc.CreateRide(context.Background(), owner.ID, CreateRideInput{
		FromPlace:      models.Some(models.PlaceCampus),
		ToPlace:        models.Some(models.PlaceAirport),
		Seats:          models.Some(seats),
		TimeRangeStart: models.Some(start),
		TimeRangeStop:  models.Some(start.Add(time.Hour)),
		Description:    models.Some("to the airport"),
	})
	require.NoError(t, err)
	return ride.ID
}

func (f *rideFixture) load(t *testing.T, rideID string) *models.Ride {
	t.Helper()
	ride, err := f.store.Rides().GetByID(context.Background(), rideID)
	require.NoError(t, err)
	assertRideInvariants(t, ride)
	return ride
}

func assertRideInvariants(t *testing.T, ride *models.Ride) {
	t.Helper()
	assert.GreaterOrEqual(t, ride.Seats, 0)
	assert.LessOrEqual(t, ride.Seats, ride.Capacity)
	assert.Equal(t, ride.Capacity, ride.Seats+ride.Accepted())
	assert.Equal(t, models.StateParticipant, ride.StateOf(ride.OwnerID))

	queued := make(map[string]bool)
	for _, u := range ride.ParticipantQueue {
		queued[u.ID] = true
	}
	for _, u := range ride.Participants {
		assert.False(t, queued[u.ID], "user %s both queued and participant", u.ID)
	}
}

func requireServiceError(t *testing.T, err error, kind error, status int) {
	t.Helper()
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, kind)
	assert.Equal(t, status, se.Status)
}

func TestRideLifecycle_SeatScenario(t *testing.T) {
	f := newRideFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	a := f.user(t, "a")
	b := f.user(t, "b")
	c := f.user(t, "c")
	rideID := f.ride(t, owner, 2)

	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, a.ID))
	ride := f.load(t, rideID)
	assert.Equal(t, 2, ride.Seats)
	assert.Equal(t, models.StateQueued, ride.StateOf(a.ID))
	assert.Equal(t, ActionRideRequest, f.notifier.last(t).n.Action)
	assert.Equal(t, []string{owner.ID}, f.notifier.last(t).userIDs)

	require.NoError(t, f.svc.Accept(ctx, rideID, owner.ID, a.Email))
	ride = f.load(t, rideID)
	assert.Equal(t, 1, ride.Seats)
	assert.Equal(t, models.StateParticipant, ride.StateOf(a.ID))
	assert.Empty(t, ride.ParticipantQueue)
	assert.Equal(t, ActionRequestAccepted, f.notifier.last(t).n.Action)

	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, b.ID))
	require.NoError(t, f.svc.Accept(ctx, rideID, owner.ID, b.Email))
	assert.Equal(t, 0, f.load(t, rideID).Seats)

	err := f.svc.RequestToJoin(ctx, rideID, c.ID)
	requireServiceError(t, err, ErrFull, http.StatusMethodNotAllowed)

	require.NoError(t, f.svc.RemoveOrKick(ctx, rideID, owner.ID, a.Email))
	ride = f.load(t, rideID)
	assert.Equal(t, 1, ride.Seats)
	assert.Equal(t, models.StateNone, ride.StateOf(a.ID))
	last := f.notifier.last(t)
	assert.Equal(t, ActionUserKicked, last.n.Action)
	assert.Equal(t, []string{a.ID}, last.userIDs)
}

func TestAccept_ConcurrentSingleSeat(t *testing.T) {
	f := newRideFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	a := f.user(t, "a")
	b := f.user(t, "b")
	rideID := f.ride(t, owner, 1)
	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, a.ID))
	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, b.ID))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, u := range []*models.User{a, b} {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			errs[i] = f.svc.Accept(ctx, rideID, owner.ID, email)
		}(i, u.Email)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireServiceError(t, err, ErrFull, http.StatusMethodNotAllowed)
	}
	assert.Equal(t, 1, succeeded)

	ride := f.load(t, rideID)
	assert.Equal(t, 0, ride.Seats)
	assert.Len(t, ride.Participants, 2)
	assert.Len(t, ride.ParticipantQueue, 1)
}

func TestAccept_ManyConcurrentRequests(t *testing.T) {
	f := newRideFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	rideID := f.ride(t, owner, 3)

	var users []*models.User
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		u := f.user(t, name)
		require.NoError(t, f.svc.RequestToJoin(ctx, rideID, u.ID))
		users = append(users, u)
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			_ = f.svc.Accept(ctx, rideID, owner.ID, email)
		}(u.Email)
	}
	wg.Wait()

	ride := f.load(t, rideID)
	assert.Equal(t, 0, ride.Seats)
	assert.Equal(t, 3, ride.Accepted())
	assert.Len(t, ride.ParticipantQueue, 5)
}

func TestDeleteRide_NotifiesEveryoneThenGone(t *testing.T) {
	f := newRideFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	accepted := f.user(t, "accepted")
	queued := f.user(t, "queued")
	rideID := f.ride(t, owner, 2)

	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, accepted.ID))
	require.NoError(t, f.svc.Accept(ctx, rideID, owner.ID, accepted.Email))
	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, queued.ID))

	require.NoError(t, f.svc.DeleteRide(ctx, rideID, owner.ID))

	last := f.notifier.last(t)
	assert.Equal(t, ActionRideDeleted, last.n.Action)
	assert.Equal(t, rideID, last.n.RideID)
	assert.ElementsMatch(t, []string{accepted.ID, queued.ID}, last.userIDs)

	_, err := f.svc.FindRide(ctx, rideID, owner.ID)
	requireServiceError(t, err, ErrNotFound, http.StatusNotFound)
}

func TestDeleteRide_NonOwner(t *testing.T) {
	f := newRideFixture(t)
	owner := f.user(t, "owner")
	other := f.user(t, "other")
	rideID := f.ride(t, owner, 2)

	err := f.svc.DeleteRide(context.Background(), rideID, other.ID)
	requireServiceError(t, err, ErrForbidden, http.StatusUnauthorized)
	f.load(t, rideID)

	err = f.svc.DeleteRide(context.Background(), uuid.New().String(), owner.ID)
	requireServiceError(t, err, ErrNotFound, http.StatusNotFound)
}

func TestReject_SecondCallIsNotFound(t *testing.T) {
	f := newRideFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	a := f.user(t, "a")
	rideID := f.ride(t, owner, 2)
	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, a.ID))

	require.NoError(t, f.svc.Reject(ctx, rideID, owner.ID, a.Email))
	assert.Equal(t, ActionRequestDeclined, f.notifier.last(t).n.Action)
	ride := f.load(t, rideID)
	assert.Equal(t, models.StateNone, ride.StateOf(a.ID))
	assert.Equal(t, 2, ride.Seats)

	err := f.svc.Reject(ctx, rideID, owner.ID, a.Email)
	requireServiceError(t, err, ErrNotFound, http.StatusNotFound)
}

func TestOwnerOnlyOperations_RejectNonOwner(t *testing.T) {
	ctx := context.Background()

	for _, state := range []models.MemberState{models.StateNone, models.StateQueued, models.StateParticipant} {
		t.Run(string(state), func(t *testing.T) {
			f := newRideFixture(t)
			owner := f.user(t, "owner")
			intruder := f.user(t, "intruder")
			target := f.user(t, "target")
			rideID := f.ride(t, owner, 2)
			if state != models.StateNone {
				require.NoError(t, f.svc.RequestToJoin(ctx, rideID, target.ID))
			}
			if state == models.StateParticipant {
				require.NoError(t, f.svc.Accept(ctx, rideID, owner.ID, target.Email))
			}
			before := f.notifier.count()

			err := f.svc.Accept(ctx, rideID, intruder.ID, target.Email)
			requireServiceError(t, err, ErrForbidden, http.StatusUnauthorized)

			err = f.svc.Reject(ctx, rideID, intruder.ID, target.Email)
			requireServiceError(t, err, ErrForbidden, http.StatusForbidden)

			err = f.svc.RemoveOrKick(ctx, rideID, intruder.ID, target.Email)
			requireServiceError(t, err, ErrForbidden, http.StatusForbidden)

			_, err = f.svc.UpdateRide(ctx, rideID, intruder.ID, models.RidePatch{Description: models.Some("mine now")})
			requireServiceError(t, err, ErrForbidden, http.StatusUnauthorized)

			assert.Equal(t, state, f.load(t, rideID).StateOf(target.ID))
			assert.Equal(t, before, f.notifier.count())
		})
	}
}

func TestRequestToJoin_Errors(t *testing.T) {
	f := newRideFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	a := f.user(t, "a")
	rideID := f.ride(t, owner, 2)

	err := f.svc.RequestToJoin(ctx, rideID, owner.ID)
	requireServiceError(t, err, ErrForbidden, http.StatusBadRequest)

	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, a.ID))
	err = f.svc.RequestToJoin(ctx, rideID, a.ID)
	requireServiceError(t, err, ErrConflict, http.StatusBadRequest)

	require.NoError(t, f.svc.Accept(ctx, rideID, owner.ID, a.Email))
	err = f.svc.RequestToJoin(ctx, rideID, a.ID)
	requireServiceError(t, err, ErrConflict, http.StatusBadRequest)

	err = f.svc.RequestToJoin(ctx, uuid.New().String(), a.ID)
	requireServiceError(t, err, ErrNotFound, http.StatusNotFound)

	err = f.svc.RequestToJoin(ctx, "not-a-uuid", a.ID)
	requireServiceError(t, err, ErrInvalid, http.StatusBadRequest)

	err = f.svc.RequestToJoin(ctx, rideID, uuid.New().String())
	requireServiceError(t, err, ErrNotFound, http.StatusNotFound)
}

func TestAccept_UnknownOrNotQueued(t *testing.T) {
	f := newRideFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	a := f.user(t, "a")
	rideID := f.ride(t, owner, 2)

	err := f.svc.Accept(ctx, rideID, owner.ID, a.Email)
	requireServiceError(t, err, ErrNotFound, http.StatusNotFound)

	err = f.svc.Accept(ctx, rideID, owner.ID, "nobody@example.com")
	requireServiceError(t, err, ErrNotFound, http.StatusNotFound)

	assert.Equal(t, 2, f.load(t, rideID).Seats)
}

func TestRevoke(t *testing.T) {
	f := newRideFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	a := f.user(t, "a")
	rideID := f.ride(t, owner, 2)

	err := f.svc.Revoke(ctx, rideID, a.ID)
	requireServiceError(t, err, ErrConflict, http.StatusBadRequest)

	err = f.svc.Revoke(ctx, rideID, owner.ID)
	requireServiceError(t, err, ErrForbidden, http.StatusBadRequest)

	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, a.ID))
	require.NoError(t, f.svc.Revoke(ctx, rideID, a.ID))

	last := f.notifier.last(t)
	assert.Equal(t, ActionRequestRevoked, last.n.Action)
	assert.Equal(t, []string{owner.ID}, last.userIDs)
	assert.Equal(t, a.ID, last.n.UserID)
	assert.Equal(t, models.StateNone, f.load(t, rideID).StateOf(a.ID))
}

func TestRemoveRequest_RoutesByCaller(t *testing.T) {
	f := newRideFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	a := f.user(t, "a")
	b := f.user(t, "b")
	rideID := f.ride(t, owner, 2)
	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, a.ID))
	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, b.ID))

	require.NoError(t, f.svc.RemoveRequest(ctx, rideID, owner.ID, a.Email))
	assert.Equal(t, ActionRequestDeclined, f.notifier.last(t).n.Action)

	err := f.svc.RemoveRequest(ctx, rideID, a.ID, b.Email)
	requireServiceError(t, err, ErrForbidden, http.StatusForbidden)

	require.NoError(t, f.svc.RemoveRequest(ctx, rideID, b.ID, b.Email))
	assert.Equal(t, ActionRequestRevoked, f.notifier.last(t).n.Action)

	assert.Empty(t, f.load(t, rideID).ParticipantQueue)
}

func TestRemoveRequest_Errors(t *testing.T) {
	f := newRideFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	a := f.user(t, "a")
	b := f.user(t, "b")
	rideID := f.ride(t, owner, 2)
	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, a.ID))

	err := f.svc.RemoveRequest(ctx, rideID, owner.ID, owner.Email)
	requireServiceError(t, err, ErrForbidden, http.StatusBadRequest)
	assert.Equal(t, "Cannot remove user from his own ride.", err.Error())

	// b never asked to join
	err = f.svc.RemoveRequest(ctx, rideID, owner.ID, b.Email)
	requireServiceError(t, err, ErrConflict, http.StatusBadRequest)
	err = f.svc.RemoveRequest(ctx, rideID, b.ID, b.Email)
	requireServiceError(t, err, ErrConflict, http.StatusBadRequest)
	err = f.svc.RemoveRequest(ctx, rideID, owner.ID, "ghost@example.com")
	requireServiceError(t, err, ErrConflict, http.StatusBadRequest)

	err = f.svc.RemoveRequest(ctx, rideID, b.ID, "ghost@example.com")
	requireServiceError(t, err, ErrForbidden, http.StatusForbidden)
	err = f.svc.RemoveRequest(ctx, rideID, b.ID, a.Email)
	requireServiceError(t, err, ErrForbidden, http.StatusForbidden)

	err = f.svc.RemoveRequest(ctx, "8b1f6f4e-6a53-4a4f-9d55-6d5b8f3d0c11", owner.ID, a.Email)
	requireServiceError(t, err, ErrNotFound, http.StatusNotFound)

	ride := f.load(t, rideID)
	assert.Equal(t, models.StateQueued, ride.StateOf(a.ID))
	assertRideInvariants(t, ride)
}

func TestRemoveOrKick_SelfRemoval(t *testing.T) {
	f := newRideFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	a := f.user(t, "a")
	rideID := f.ride(t, owner, 1)
	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, a.ID))
	require.NoError(t, f.svc.Accept(ctx, rideID, owner.ID, a.Email))

	require.NoError(t, f.svc.RemoveOrKick(ctx, rideID, a.ID, a.Email))
	last := f.notifier.last(t)
	assert.Equal(t, ActionUserRemoved, last.n.Action)
	assert.Equal(t, []string{owner.ID}, last.userIDs)
	assert.Equal(t, 1, f.load(t, rideID).Seats)

	err := f.svc.RemoveOrKick(ctx, rideID, a.ID, a.Email)
	requireServiceError(t, err, ErrConflict, http.StatusBadRequest)

	err = f.svc.RemoveOrKick(ctx, rideID, owner.ID, owner.Email)
	requireServiceError(t, err, ErrForbidden, http.StatusBadRequest)
	assert.Equal(t, models.StateParticipant, f.load(t, rideID).StateOf(owner.ID))
}

func TestRemoveOrKick_QueuedUserIsNotParticipant(t *testing.T) {
	f := newRideFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	a := f.user(t, "a")
	rideID := f.ride(t, owner, 1)
	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, a.ID))

	err := f.svc.RemoveOrKick(ctx, rideID, owner.ID, a.Email)
	requireServiceError(t, err, ErrConflict, http.StatusBadRequest)

	ride := f.load(t, rideID)
	assert.Equal(t, 1, ride.Seats)
	assert.Equal(t, models.StateQueued, ride.StateOf(a.ID))
}

func TestUpdateRide(t *testing.T) {
	f := newRideFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	a := f.user(t, "a")
	b := f.user(t, "b")
	rideID := f.ride(t, owner, 3)
	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, a.ID))
	require.NoError(t, f.svc.Accept(ctx, rideID, owner.ID, a.Email))
	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, b.ID))

	t.Run("seats resets capacity", func(t *testing.T) {
		ride, err := f.svc.UpdateRide(ctx, rideID, owner.ID, models.RidePatch{Seats: models.Some(2)})
		require.NoError(t, err)
		assert.Equal(t, 2, ride.Capacity)
		assert.Equal(t, 1, ride.Seats)
		assert.Equal(t, "to the airport", ride.Description)

		last := f.notifier.last(t)
		assert.Equal(t, ActionRideUpdated, last.n.Action)
		assert.ElementsMatch(t, []string{a.ID, b.ID}, last.userIDs)

		stored := f.load(t, rideID)
		assert.Equal(t, 2, stored.Capacity)
		assert.Equal(t, 1, stored.Seats)
	})

	t.Run("seats below accepted", func(t *testing.T) {
		_, err := f.svc.UpdateRide(ctx, rideID, owner.ID, models.RidePatch{Seats: models.Some(1)})
		require.NoError(t, err)
		assert.Equal(t, 0, f.load(t, rideID).Seats)

		_, err = f.svc.UpdateRide(ctx, rideID, owner.ID, models.RidePatch{Seats: models.Some(0)})
		requireServiceError(t, err, ErrInvalid, http.StatusBadRequest)
	})

	t.Run("merged places must differ", func(t *testing.T) {
		_, err := f.svc.UpdateRide(ctx, rideID, owner.ID, models.RidePatch{ToPlace: models.Some(models.PlaceCampus)})
		requireServiceError(t, err, ErrInvalid, http.StatusBadRequest)
		assert.Equal(t, models.PlaceAirport, f.load(t, rideID).ToPlace)
	})

	t.Run("merged time range", func(t *testing.T) {
		late := time.Now().Add(10 * time.Hour)
		_, err := f.svc.UpdateRide(ctx, rideID, owner.ID, models.RidePatch{TimeRangeStart: models.Some(late)})
		requireServiceError(t, err, ErrInvalid, http.StatusBadRequest)

		_, err = f.svc.UpdateRide(ctx, rideID, owner.ID, models.RidePatch{
			TimeRangeStart: models.Some(late),
			TimeRangeStop:  models.Some(late.Add(time.Hour)),
		})
		require.NoError(t, err)
	})

	t.Run("past time", func(t *testing.T) {
		_, err := f.svc.UpdateRide(ctx, rideID, owner.ID, models.RidePatch{TimeRangeStop: models.Some(time.Now().Add(-time.Hour))})
		requireServiceError(t, err, ErrInvalid, http.StatusBadRequest)
	})

	t.Run("explicit zero description is applied", func(t *testing.T) {
		ride, err := f.svc.UpdateRide(ctx, rideID, owner.ID, models.RidePatch{Description: models.Some("")})
		require.NoError(t, err)
		assert.Equal(t, "", ride.Description)
	})

	t.Run("empty patch", func(t *testing.T) {
		_, err := f.svc.UpdateRide(ctx, rideID, owner.ID, models.RidePatch{})
		requireServiceError(t, err, ErrInvalid, http.StatusBadRequest)
	})

	t.Run("missing ride", func(t *testing.T) {
		_, err := f.svc.UpdateRide(ctx, uuid.New().String(), owner.ID, models.RidePatch{Description: models.Some("x")})
		requireServiceError(t, err, ErrNotFound, http.StatusNotFound)
	})
}

func TestUpdateRide_CapacityBelowAccepted(t *testing.T) {
	f := newRideFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	a := f.user(t, "a")
	b := f.user(t, "b")
	rideID := f.ride(t, owner, 2)
	for _, u := range []*models.User{a, b} {
		require.NoError(t, f.svc.RequestToJoin(ctx, rideID, u.ID))
		require.NoError(t, f.svc.Accept(ctx, rideID, owner.ID, u.Email))
	}

	_, err := f.svc.UpdateRide(ctx, rideID, owner.ID, models.RidePatch{Seats: models.Some(1)})
	requireServiceError(t, err, ErrConflict, http.StatusBadRequest)
	assert.Equal(t, 2, f.load(t, rideID).Capacity)
}

func TestFindRide_QueueOnlyForOwner(t *testing.T) {
	f := newRideFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	a := f.user(t, "a")
	rideID := f.ride(t, owner, 2)
	require.NoError(t, f.svc.RequestToJoin(ctx, rideID, a.ID))

	ride, err := f.svc.FindRide(ctx, rideID, owner.ID)
	require.NoError(t, err)
	assert.Len(t, ride.ParticipantQueue, 1)
	assert.Equal(t, owner.ID, ride.Owner.ID)

	ride, err = f.svc.FindRide(ctx, rideID, a.ID)
	require.NoError(t, err)
	assert.Nil(t, ride.ParticipantQueue)
}

func TestSearchRides(t *testing.T) {
	f := newRideFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner")
	a := f.user(t, "a")
	first := f.ride(t, owner, 1)
	second := f.ride(t, owner, 4)
	require.NoError(t, f.svc.RequestToJoin(ctx, first, a.ID))

	rides, err := f.svc.SearchRides(ctx, models.RideFilter{Order: models.Ordering{Key: models.SortBySeats}})
	require.NoError(t, err)
	require.Len(t, rides, 2)
	assert.Equal(t, first, rides[0].ID)
	assert.Equal(t, second, rides[1].ID)
	for _, r := range rides {
		assert.Nil(t, r.ParticipantQueue)
	}

	rides, err = f.svc.SearchRides(ctx, models.RideFilter{AvailableSeats: models.Some(2), Order: models.DefaultOrdering})
	require.NoError(t, err)
	require.Len(t, rides, 1)
	assert.Equal(t, second, rides[0].ID)

	rides, err = f.svc.SearchRides(ctx, models.RideFilter{StartTime: time.Now().Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.NotNil(t, rides)
	assert.Empty(t, rides)

	_, err = f.svc.SearchRides(ctx, models.RideFilter{
		StartTime: time.Now(),
		EndTime:   models.Some(time.Now().Add(-time.Hour)),
	})
	requireServiceError(t, err, ErrInvalid, http.StatusBadRequest)
}

func TestCreateRide_Validation(t *testing.T) {
	f := newRideFixture(t)
	owner := f.user(t, "owner")
	start := time.Now().Add(time.Hour)
	valid := CreateRideInput{
		FromPlace:      models.Some(models.PlaceCampus),
		ToPlace:        models.Some(models.PlaceAirport),
		Seats:          models.Some(2),
		TimeRangeStart: models.Some(start),
		TimeRangeStop:  models.Some(start.Add(time.Hour)),
	}

	tests := []struct {
		name   string
		mutate func(in *CreateRideInput)
	}{
		{"missing fromPlace", func(in *CreateRideInput) { in.FromPlace = models.Optional[models.Place]{} }},
		{"same places", func(in *CreateRideInput) { in.ToPlace = models.Some(models.PlaceCampus) }},
		{"unknown place", func(in *CreateRideInput) { in.ToPlace = models.Some(models.Place(42)) }},
		{"zero seats", func(in *CreateRideInput) { in.Seats = models.Some(0) }},
		{"past start", func(in *CreateRideInput) { in.TimeRangeStart = models.Some(time.Now().Add(-time.Minute)) }},
		{"start after stop", func(in *CreateRideInput) { in.TimeRangeStart = models.Some(start.Add(2 * time.Hour)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := f.svc.CreateRide(context.Background(), owner.ID, in)
			requireServiceError(t, err, ErrInvalid, http.StatusBadRequest)
		})
	}

	ride, err := f.svc.CreateRide(context.Background(), owner.ID, valid)
	require.NoError(t, err)
	assert.Equal(t, 2, ride.Seats)
	assert.Equal(t, 2, ride.Capacity)
	assertRideInvariants(t, f.load(t, ride.ID))

	_, err = f.svc.CreateRide(context.Background(), uuid.New().String(), valid)
	requireServiceError(t, err, ErrForbidden, http.StatusForbidden)
}
