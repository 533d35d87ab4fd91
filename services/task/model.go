package task

import (
	"time"
)

type Venue struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	OwnerID   string    `gorm:"column:owner_id;size:191;index;not null" json:"owner_id"`
	Name      string    `gorm:"column:name;size:120;not null" json:"name"`
	Slug      string    `gorm:"column:slug;uniqueIndex;size:140;not null" json:"slug"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Venue) TableName() string { return "venues" }

type Platform string

const (
	PlatformInstagram    Platform = "instagram"
	PlatformTiktok       Platform = "tiktok"
	PlatformLinkedin     Platform = "linkedin"
	PlatformYoutube      Platform = "youtube"
	PlatformGoogleReview Platform = "google_review"
	PlatformOther        Platform = "other"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformInstagram, PlatformTiktok, PlatformLinkedin, PlatformYoutube, PlatformGoogleReview, PlatformOther:
		return true
	}
	return false
}

type Status string

const (
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusDeleted Status = "deleted"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusPaused || s == StatusDeleted
}

// Reservation tracks what happened to the reward reserved at creation.
type Reservation string

const (
	ReservationUnreserved Reservation = "unreserved"
	ReservationReserved   Reservation = "reserved"
	ReservationReleased   Reservation = "released"
	ReservationConsumed   Reservation = "consumed"
)

type Task struct {
	ID           string      `gorm:"column:id;primaryKey;size:64" json:"id"`
	VenueID      string      `gorm:"column:venue_id;size:64;index;not null" json:"venue_id"`
	OwnerID      string      `gorm:"column:owner_id;size:191;index;not null" json:"owner_id"`
	Title        string      `gorm:"column:title;size:120;not null" json:"title"`
	Description  string      `gorm:"column:description;type:text" json:"description"`
	Platform     Platform    `gorm:"column:platform;size:30;not null" json:"platform"`
	RewardAmount int64       `gorm:"column:reward_amount;not null" json:"reward_amount"`
	Status       Status      `gorm:"column:status;size:20;index;not null" json:"status"`
	Reservation  Reservation `gorm:"column:reservation;size:20;not null" json:"reservation"`
	CreatedAt    time.Time   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"column:updated_at" json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }

type CreateVenueRequest struct {
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
}

type CreateTaskRequest struct {
	VenueID      string   `json:"venue_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Platform     Platform `json:"platform"`
	RewardAmount any      `json:"reward_amount"`
}

func Models() []any {
	return []any{&Venue{}, &Task{}}
}
