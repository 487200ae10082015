package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ride-pool-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

const rideColumns = `
	r.id, r.owner_id, r.from_place, r.to_place, r.seats, r.capacity,
	r.time_range_start, r.time_range_stop, r.description, r.created_at, r.updated_at,
	u.id, u.name, u.email, u.phone, u.batch, u.profile_picture, u.created_at`

// RideTx is a ride read under a row lock. Every change made through it is
// committed together when the enclosing callback returns nil.
type RideTx interface {
	// Ride returns the locked snapshot, kept current with the changes made so far
	Ride() *models.Ride
	SetMemberState(ctx context.Context, user *models.User, state models.MemberState) error
	AddSeats(ctx context.Context, delta int) error
	// Update persists the scalar fields of Ride()
	Update(ctx context.Context) error
	Delete(ctx context.Context) error
}

// RideRepository handles database operations for rides and their members
type RideRepository struct {
	db DB
}

// NewRideRepository creates a new ride repository
func NewRideRepository(db DB) *RideRepository {
	return &RideRepository{db: db}
}

// Create inserts the ride and admits its owner as the first participant
func (r *RideRepository) Create(ctx context.Context, ride *models.Ride) error {
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO rides (id, owner_id, from_place, to_place, seats, capacity,
				time_range_start, time_range_stop, description, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`
		_, err := tx.Exec(ctx, query,
			ride.ID, ride.OwnerID, int16(ride.FromPlace), int16(ride.ToPlace), ride.Seats, ride.Capacity,
			ride.TimeRangeStart, ride.TimeRangeStop, ride.Description, ride.CreatedAt, ride.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert ride: %w", err)
		}
		return setMemberState(ctx, tx, ride.ID, ride.OwnerID, models.StateParticipant)
	})
	if err != nil {
		return fmt.Errorf("failed to create ride: %w", err)
	}
	return nil
}

// GetByID retrieves a ride with its owner, participants and queue
func (r *RideRepository) GetByID(ctx context.Context, id string) (*models.Ride, error) {
	query := `SELECT ` + rideColumns + `
		FROM rides r JOIN users u ON u.id = r.owner_id
		WHERE r.id = $1`
	ride, err := scanRide(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := loadMembers(ctx, r.db, map[string]*models.Ride{ride.ID: ride}); err != nil {
		return nil, err
	}
	return ride, nil
}

// Search returns rides matching filter, ordered and paginated
func (r *RideRepository) Search(ctx context.Context, filter models.RideFilter) ([]*models.Ride, error) {
	conds := []string{"r.time_range_stop >= $1"}
	args := []any{filter.StartTime}
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.FromPlace.Set {
		add("r.from_place = $%d", int16(filter.FromPlace.Value))
	}
	if filter.ToPlace.Set {
		add("r.to_place = $%d", int16(filter.ToPlace.Value))
	}
	if filter.EndTime.Set {
		add("r.time_range_start <= $%d", filter.EndTime.Value)
	}
	if filter.AvailableSeats.Set {
		add("r.seats >= $%d", filter.AvailableSeats.Value)
	}

	dir := "ASC"
	if filter.Order.Descending {
		dir = "DESC"
	}
	query := `SELECT ` + rideColumns + `
		FROM rides r JOIN users u ON u.id = r.owner_id
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY ` + filter.Order.Key.Column() + ` ` + dir + `, r.id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search rides: %w", err)
	}
	defer rows.Close()

	var rides []*models.Ride
	byID := make(map[string]*models.Ride)
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
		byID[ride.ID] = ride
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rides: %w", err)
	}

	if err := loadMembers(ctx, r.db, byID); err != nil {
		return nil, err
	}
	for _, ride := range rides {
		ride.ParticipantQueue = nil
	}
	return rides, nil
}

// WithLockedRide runs fn inside a transaction holding a row lock on the ride.
// Concurrent callers for the same ride are serialized and each sees the
// state committed by the previous one.
func (r *RideRepository) WithLockedRide(ctx context.Context, id string, fn func(ctx context.Context, tx RideTx) error) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `SELECT ` + rideColumns + `
			FROM rides r JOIN users u ON u.id = r.owner_id
			WHERE r.id = $1
			FOR UPDATE OF r`
		ride, err := scanRide(tx.QueryRow(ctx, query, id))
		if err != nil {
			return err
		}
		if err := loadMembers(ctx, tx, map[string]*models.Ride{ride.ID: ride}); err != nil {
			return err
		}
		return fn(ctx, &pgRideTx{tx: tx, ride: ride})
	})
}

type pgRideTx struct {
	tx   pgx.Tx
	ride *models.Ride
}

func (t *pgRideTx) Ride() *models.Ride {
	return t.ride
}

func (t *pgRideTx) SetMemberState(ctx context.Context, user *models.User, state models.MemberState) error {
	if err := setMemberState(ctx, t.tx, t.ride.ID, user.ID, state); err != nil {
		return err
	}
	t.ride.SetState(user, state)
	return nil
}

func (t *pgRideTx) AddSeats(ctx context.Context, delta int) error {
	query := `UPDATE rides SET seats = seats + $2, updated_at = $3 WHERE id = $1 RETURNING seats, updated_at`
	err := t.tx.QueryRow(ctx, query, t.ride.ID, delta, time.Now()).Scan(&t.ride.Seats, &t.ride.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update seats: %w", err)
	}
	return nil
}

func (t *pgRideTx) Update(ctx context.Context) error {
	ride := t.ride
	query := `
		UPDATE rides
		SET from_place = $2, to_place = $3, seats = $4, capacity = $5,
			time_range_start = $6, time_range_stop = $7, description = $8, updated_at = $9
		WHERE id = $1
	`
	_, err := t.tx.Exec(ctx, query,
		ride.ID, int16(ride.FromPlace), int16(ride.ToPlace), ride.Seats, ride.Capacity,
		ride.TimeRangeStart, ride.TimeRangeStop, ride.Description, ride.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update ride: %w", err)
	}
	return nil
}

func (t *pgRideTx) Delete(ctx context.Context) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM rides WHERE id = $1`, t.ride.ID); err != nil {
		return fmt.Errorf("failed to delete ride: %w", err)
	}
	return nil
}

func setMemberState(ctx context.Context, q querier, rideID, userID string, state models.MemberState) error {
	if state == models.StateNone {
		_, err := q.Exec(ctx, `DELETE FROM ride_members WHERE ride_id = $1 AND user_id = $2`, rideID, userID)
		if err != nil {
			return fmt.Errorf("failed to remove ride member: %w", err)
		}
		return nil
	}
	query := `
		INSERT INTO ride_members (ride_id, user_id, state, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ride_id, user_id) DO UPDATE SET state = EXCLUDED.state, joined_at = EXCLUDED.joined_at
	`
	if _, err := q.Exec(ctx, query, rideID, userID, string(state), time.Now()); err != nil {
		return fmt.Errorf("failed to set ride member state: %w", err)
	}
	return nil
}

func loadMembers(ctx context.Context, q querier, rides map[string]*models.Ride) error {
	if len(rides) == 0 {
		return nil
	}
	ids := make([]string, 0, len(rides))
	for id, ride := range rides {
		ids = append(ids, id)
		ride.Participants = []*models.User{}
		ride.ParticipantQueue = []*models.User{}
	}

	query := `
		SELECT m.ride_id, m.state, ` + userColumns + `
		FROM ride_members m JOIN users ON users.id = m.user_id
		WHERE m.ride_id = ANY($1)
		ORDER BY m.joined_at
	`
	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to load ride members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rideID string
			state  string
			user   models.User
		)
		err := rows.Scan(&rideID, &state,
			&user.ID, &user.Name, &user.Email, &user.Phone, &user.Batch, &user.ProfilePicture, &user.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan ride member: %w", err)
		}
		if ride, ok := rides[rideID]; ok {
			ride.SetState(&user, models.MemberState(state))
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating ride members: %w", err)
	}
	return nil
}

func scanRide(row pgx.Row) (*models.Ride, error) {
	var (
		ride     models.Ride
		owner    models.User
		from, to int16
	)
	err := row.Scan(
		&ride.ID, &ride.OwnerID, &from, &to, &ride.Seats, &ride.Capacity,
		&ride.TimeRangeStart, &ride.TimeRangeStop, &ride.Description, &ride.CreatedAt, &ride.UpdatedAt,
		&owner.ID, &owner.Name, &owner.Email, &owner.Phone, &owner.Batch, &owner.ProfilePicture, &owner.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ride not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}
	ride.FromPlace = models.Place(from)
	ride.ToPlace = models.Place(to)
	ride.Owner = &owner
	return &ride, nil
}
