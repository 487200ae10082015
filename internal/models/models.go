package models

import "time"

// User represents a registered user
type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Batch          int       `json:"batch"`
	ProfilePicture string    `json:"profilePicture"`
	CreatedAt      time.Time `json:"createdAt"`
}

// DeviceToken binds a push token to the user that registered it last
type DeviceToken struct {
	Token     string    `json:"-"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Ride represents a posted offer to transport passengers between two places
type Ride struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"-"`
	Owner            *User     `json:"originalPoster,omitempty"`
	FromPlace        Place     `json:"fromPlace"`
	ToPlace          Place     `json:"toPlace"`
	Seats            int       `json:"seats"`
	Capacity         int       `json:"capacity"`
	TimeRangeStart   time.Time `json:"timeRangeStart"`
	TimeRangeStop    time.Time `json:"timeRangeStop"`
	Description      string    `json:"description"`
	Participants     []*User   `json:"participants"`
	ParticipantQueue []*User   `json:"participantQueue,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// StateOf reports where userID currently stands on the ride
func (r *Ride) StateOf(userID string) MemberState {
	for _, u := range r.Participants {
		if u.ID == userID {
			return StateParticipant
		}
	}
	for _, u := range r.ParticipantQueue {
		if u.ID == userID {
			return StateQueued
		}
	}
	return StateNone
}

// SetState moves u into the relation matching state and out of the other one.
// StateNone removes u from both.
func (r *Ride) SetState(u *User, state MemberState) {
	r.Participants = withoutUser(r.Participants, u.ID)
	r.ParticipantQueue = withoutUser(r.ParticipantQueue, u.ID)
	switch state {
	case StateParticipant:
		r.Participants = append(r.Participants, u)
	case StateQueued:
		r.ParticipantQueue = append(r.ParticipantQueue, u)
	}
}

func withoutUser(users []*User, id string) []*User {
	out := users[:0:0]
	for _, u := range users {
		if u.ID != id {
			out = append(out, u)
		}
	}
	return out
}

// Accepted returns the number of admitted participants other than the owner
func (r *Ride) Accepted() int {
	n := 0
	for _, u := range r.Participants {
		if u.ID != r.OwnerID {
			n++
		}
	}
	return n
}

// Audience returns every participant and queued user except the owner
func (r *Ride) Audience() []string {
	ids := make([]string, 0, len(r.Participants)+len(r.ParticipantQueue))
	for _, u := range r.Participants {
		if u.ID != r.OwnerID {
			ids = append(ids, u.ID)
		}
	}
	for _, u := range r.ParticipantQueue {
		ids = append(ids, u.ID)
	}
	return ids
}

// Notification is the payload delivered to ride participants
type Notification struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Action   string `json:"action"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	RideID   string `json:"rideId"`
}
