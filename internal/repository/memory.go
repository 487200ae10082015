package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ride-pool-backend/internal/models"
)

// MemoryStore keeps users, rides and device tokens in process memory.
// It backs local development without Postgres and the package tests.
// Changes made through a RideTx are staged and applied only on success,
// and a per-ride mutex plays the part of the row lock.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]models.User
	rides     map[string]models.Ride
	members   map[string]map[string]models.MemberState
	joinOrder map[string][]string
	tokens    map[string]models.DeviceToken
	rideLocks map[string]*sync.Mutex
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]models.User),
		rides:     make(map[string]models.Ride),
		members:   make(map[string]map[string]models.MemberState),
		joinOrder: make(map[string][]string),
		tokens:    make(map[string]models.DeviceToken),
		rideLocks: make(map[string]*sync.Mutex),
	}
}

// Users returns the user repository view of the store
func (s *MemoryStore) Users() *MemoryUsers { return &MemoryUsers{s: s} }

// Rides returns the ride repository view of the store
func (s *MemoryStore) Rides() *MemoryRides { return &MemoryRides{s: s} }

// DeviceTokens returns the device token repository view of the store
func (s *MemoryStore) DeviceTokens() *MemoryDeviceTokens { return &MemoryDeviceTokens{s: s} }

// MemoryUsers is the in-memory counterpart of UserRepository
type MemoryUsers struct{ s *MemoryStore }

func (m *MemoryUsers) Create(_ context.Context, user *models.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.Email == user.Email || u.Phone == user.Phone {
			return fmt.Errorf("failed to create user: %w", ErrDuplicate)
		}
	}
	m.s.users[user.ID] = *user
	return nil
}

func (m *MemoryUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", ErrNotFound)
	}
	return &u, nil
}

func (m *MemoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, u := range m.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user not found: %w", ErrNotFound)
}

func (m *MemoryUsers) SetProfilePicture(_ context.Context, userID, key string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	u.ProfilePicture = key
	m.s.users[userID] = u
	return nil
}

// MemoryDeviceTokens is the in-memory counterpart of DeviceTokenRepository
type MemoryDeviceTokens struct{ s *MemoryStore }

func (m *MemoryDeviceTokens) Register(_ context.Context, userID, token string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.tokens[token]
	if !ok {
		t = models.DeviceToken{Token: token, CreatedAt: time.Now()}
	}
	t.UserID = userID
	m.s.tokens[token] = t
	return nil
}

func (m *MemoryDeviceTokens) ListByUsers(_ context.Context, userIDs []string) ([]models.DeviceToken, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	want := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	var out []models.DeviceToken
	for _, t := range m.s.tokens {
		if want[t.UserID] {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (m *MemoryDeviceTokens) Delete(_ context.Context, token string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.tokens, token)
	return nil
}

// MemoryRides is the in-memory counterpart of RideRepository
type MemoryRides struct{ s *MemoryStore }

func (m *MemoryRides) Create(_ context.Context, ride *models.Ride) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[ride.OwnerID]; !ok {
		return fmt.Errorf("failed to create ride: owner %s: %w", ride.OwnerID, ErrNotFound)
	}
	if _, ok := m.s.rides[ride.ID]; ok {
		return fmt.Errorf("failed to create ride: %w", ErrDuplicate)
	}
	stored := *ride
	stored.Owner, stored.Participants, stored.ParticipantQueue = nil, nil, nil
	m.s.rides[ride.ID] = stored
	m.s.members[ride.ID] = map[string]models.MemberState{ride.OwnerID: models.StateParticipant}
	m.s.joinOrder[ride.ID] = []string{ride.OwnerID}
	m.s.rideLocks[ride.ID] = &sync.Mutex{}
	return nil
}

func (m *MemoryRides) GetByID(_ context.Context, id string) (*models.Ride, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return m.s.snapshot(id)
}

func (m *MemoryRides) Search(_ context.Context, filter models.RideFilter) ([]*models.Ride, error) {
	m.s.mu.RLock()
	var rides []*models.Ride
	for id := range m.s.rides {
		ride, err := m.s.snapshot(id)
		if err != nil {
			m.s.mu.RUnlock()
			return nil, err
		}
		if filter.Match(ride) {
			ride.ParticipantQueue = nil
			rides = append(rides, ride)
		}
	}
	m.s.mu.RUnlock()

	key := filter.Order.Key
	sort.Slice(rides, func(i, j int) bool {
		a, b := rides[i], rides[j]
		if filter.Order.Descending {
			a, b = b, a
		}
		if key.Less(a, b) {
			return true
		}
		if key.Less(b, a) {
			return false
		}
		return rides[i].ID < rides[j].ID
	})

	if filter.Limit > 0 {
		if filter.Offset >= len(rides) {
			return []*models.Ride{}, nil
		}
		end := filter.Offset + filter.Limit
		if end > len(rides) {
			end = len(rides)
		}
		rides = rides[filter.Offset:end]
	}
	return rides, nil
}

func (m *MemoryRides) WithLockedRide(ctx context.Context, id string, fn func(ctx context.Context, tx RideTx) error) error {
	m.s.mu.RLock()
	lock, ok := m.s.rideLocks[id]
	m.s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("ride not found: %w", ErrNotFound)
	}

	lock.Lock()
	defer lock.Unlock()

	m.s.mu.RLock()
	ride, err := m.s.snapshot(id)
	m.s.mu.RUnlock()
	if err != nil {
		return err
	}

	tx := &memoryRideTx{ride: ride, states: make(map[string]models.MemberState)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if tx.deleted {
		delete(m.s.rides, id)
		delete(m.s.members, id)
		delete(m.s.joinOrder, id)
		delete(m.s.rideLocks, id)
		return nil
	}
	stored := *tx.ride
	stored.Owner, stored.Participants, stored.ParticipantQueue = nil, nil, nil
	m.s.rides[id] = stored
	for _, userID := range tx.order {
		state := tx.states[userID]
		m.s.joinOrder[id] = removeID(m.s.joinOrder[id], userID)
		if state == models.StateNone {
			delete(m.s.members[id], userID)
			continue
		}
		m.s.members[id][userID] = state
		m.s.joinOrder[id] = append(m.s.joinOrder[id], userID)
	}
	return nil
}

// snapshot builds a detached copy of the ride; callers hold s.mu
func (s *MemoryStore) snapshot(id string) (*models.Ride, error) {
	stored, ok := s.rides[id]
	if !ok {
		return nil, fmt.Errorf("ride not found: %w", ErrNotFound)
	}
	ride := stored
	owner := s.users[ride.OwnerID]
	ride.Owner = &owner
	ride.Participants = []*models.User{}
	ride.ParticipantQueue = []*models.User{}
	for _, userID := range s.joinOrder[id] {
		u := s.users[userID]
		ride.SetState(&u, s.members[id][userID])
	}
	return &ride, nil
}

type memoryRideTx struct {
	ride    *models.Ride
	states  map[string]models.MemberState
	order   []string
	deleted bool
}

func (t *memoryRideTx) Ride() *models.Ride {
	return t.ride
}

func (t *memoryRideTx) SetMemberState(_ context.Context, user *models.User, state models.MemberState) error {
	t.ride.SetState(user, state)
	if _, seen := t.states[user.ID]; !seen {
		t.order = append(t.order, user.ID)
	}
	t.states[user.ID] = state
	return nil
}

func (t *memoryRideTx) AddSeats(_ context.Context, delta int) error {
	if t.ride.Seats+delta < 0 || t.ride.Seats+delta > t.ride.Capacity {
		return fmt.Errorf("failed to update seats: %d%+d out of range", t.ride.Seats, delta)
	}
	t.ride.Seats += delta
	t.ride.UpdatedAt = time.Now()
	return nil
}

func (t *memoryRideTx) Update(_ context.Context) error {
	if t.ride.Seats < 0 || t.ride.Seats > t.ride.Capacity {
		return fmt.Errorf("failed to update ride: seats %d out of range", t.ride.Seats)
	}
	return nil
}

func (t *memoryRideTx) Delete(_ context.Context) error {
	t.deleted = true
	return nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
