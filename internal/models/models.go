package models

import "time"

// Coord is a position on the integer grid the service operates on.
type Coord struct {
	Latitude  int `json:"latitude"`
	Longitude int `json:"longitude"`
}

// Ride tracks one trip request from pickup to destination. ChairID stays
// nil until the dispatch engine assigns a chair; Fare is frozen at creation
// and never recomputed.
type Ride struct {
	ID          string
	UserID      string
	ChairID     *string
	Pickup      Coord
	Destination Coord
	Fare        int
	Evaluation  *int
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chair is a mobile transport unit. Location is nil until the first
// coordinate report; CurrentRideID is non-nil exactly while the chair is
// bound to a non-terminal ride.
type Chair struct {
	ID                     string
	OwnerID                string
	Name                   string
	Model                  string
	Speed                  int
	IsActive               bool
	AccessToken            string
	Location               *Coord
	TotalDistance          int64
	TotalDistanceUpdatedAt *time.Time
	TotalRidesCount        int
	TotalEvaluation        int
	CurrentRideID          *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type User struct {
	ID             string
	Username       string
	Firstname      string
	Lastname       string
	DateOfBirth    string
	AccessToken    string
	InvitationCode string
	CurrentRideID  *string
	RideCount      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Owner struct {
	ID                 string
	Name               string
	AccessToken        string
	ChairRegisterToken string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Coupon is a discount grant. UsedBy is set to a ride ID at most once and
// is immutable afterwards.
type Coupon struct {
	UserID    string
	Code      string
	Discount  int
	UsedBy    *string
	CreatedAt time.Time
}

// RideStatusEvent is one row of the append-only status log. The two sent-at
// markers record delivery to the rider and chair pollers respectively; they
// are the only fields ever updated after insert.
type RideStatusEvent struct {
	ID          int64
	RideID      string
	Status      string
	AppSentAt   *time.Time
	ChairSentAt *time.Time
	CreatedAt   time.Time
}

// ChairLocation is the message shape published to the location topic.
type ChairLocation struct {
	ChairID    string    `json:"chair_id"`
	Latitude   int       `json:"latitude"`
	Longitude  int       `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
}
