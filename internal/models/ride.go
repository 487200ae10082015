package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Place is one of the fixed pickup/drop-off locations
type Place int

const (
	PlaceCampus Place = iota
	PlaceAirport
	PlaceSecunderabadStation
	PlaceNampallyStation
	PlaceKachegudaStation
	PlaceLingampallyStation
	PlaceAmeerpet
	PlaceHitecCity
)

var placeNames = [...]string{
	"Campus",
	"Airport",
	"Secunderabad Station",
	"Nampally Station",
	"Kacheguda Station",
	"Lingampally Station",
	"Ameerpet",
	"Hitec City",
}

// Valid reports whether p is a known place
func (p Place) Valid() bool {
	return p >= 0 && int(p) < len(placeNames)
}

func (p Place) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Place(%d)", int(p))
	}
	return placeNames[p]
}

// MemberState is the position of a user relative to a ride
type MemberState string

const (
	StateNone        MemberState = ""
	StateQueued      MemberState = "queued"
	StateParticipant MemberState = "participant"
)

// Optional holds a value together with whether it was supplied at all.
// A JSON null is treated the same as an absent field.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a set Optional
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// UnmarshalJSON marks the field as set unless the raw value is null
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Optional[T]{}
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Set = true
	return nil
}

// Or returns the held value if set, otherwise fallback
func (o Optional[T]) Or(fallback T) T {
	if o.Set {
		return o.Value
	}
	return fallback
}

// RidePatch is a partial update of a ride; unset fields keep their current value
type RidePatch struct {
	FromPlace      Optional[Place]     `json:"fromPlace"`
	ToPlace        Optional[Place]     `json:"toPlace"`
	Seats          Optional[int]       `json:"seats"`
	TimeRangeStart Optional[time.Time] `json:"timeRangeStart"`
	TimeRangeStop  Optional[time.Time] `json:"timeRangeStop"`
	Description    Optional[string]    `json:"description"`
}

// Empty reports whether the patch changes nothing
func (p RidePatch) Empty() bool {
	return !p.FromPlace.Set && !p.ToPlace.Set && !p.Seats.Set &&
		!p.TimeRangeStart.Set && !p.TimeRangeStop.Set && !p.Description.Set
}

// SortKey selects the field rides are ordered by
type SortKey int

const (
	SortByTimeRangeStart SortKey = iota
	SortByCreatedAt
	SortBySeats
)

// Column returns the rides table column backing the key
func (k SortKey) Column() string {
	switch k {
	case SortByCreatedAt:
		return "r.created_at"
	case SortBySeats:
		return "r.seats"
	default:
		return "r.time_range_start"
	}
}

// Less orders two rides by the key, ascending
func (k SortKey) Less(a, b *Ride) bool {
	switch k {
	case SortByCreatedAt:
		return a.CreatedAt.Before(b.CreatedAt)
	case SortBySeats:
		return a.Seats < b.Seats
	default:
		return a.TimeRangeStart.Before(b.TimeRangeStart)
	}
}

// Ordering is a sort key plus direction
type Ordering struct {
	Key        SortKey
	Descending bool
}

// DefaultOrdering lists the latest departures first
var DefaultOrdering = Ordering{Key: SortByTimeRangeStart, Descending: true}

// ParseOrdering parses "createdAt", "-seats" and friends
func ParseOrdering(s string) (Ordering, error) {
	if s == "" {
		return DefaultOrdering, nil
	}
	var o Ordering
	if strings.HasPrefix(s, "-") {
		o.Descending = true
		s = s[1:]
	}
	switch s {
	case "timeRangeStart":
		o.Key = SortByTimeRangeStart
	case "createdAt":
		o.Key = SortByCreatedAt
	case "seats":
		o.Key = SortBySeats
	default:
		return Ordering{}, fmt.Errorf("unknown sort key %q", s)
	}
	return o, nil
}

// RideFilter narrows a ride search
type RideFilter struct {
	FromPlace      Optional[Place]
	ToPlace        Optional[Place]
	StartTime      time.Time
	EndTime        Optional[time.Time]
	AvailableSeats Optional[int]
	Offset         int
	Limit          int // 0 means no limit
	Order          Ordering
}

// Match reports whether ride satisfies every filter condition
func (f RideFilter) Match(r *Ride) bool {
	if f.FromPlace.Set && r.FromPlace != f.FromPlace.Value {
		return false
	}
	if f.ToPlace.Set && r.ToPlace != f.ToPlace.Value {
		return false
	}
	if r.TimeRangeStop.Before(f.StartTime) {
		return false
	}
	if f.EndTime.Set && r.TimeRangeStart.After(f.EndTime.Value) {
		return false
	}
	if f.AvailableSeats.Set && r.Seats < f.AvailableSeats.Value {
		return false
	}
	return true
}
