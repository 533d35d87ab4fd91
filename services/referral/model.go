package referral

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusApplied  Status = "applied"
	StatusRewarded Status = "rewarded"
)

// Reason names the action that qualified a referral.
type Reason string

const (
	ReasonSubmissionApproved  Reason = "submission_approved"
	ReasonRestaurantOnboarded Reason = "restaurant_onboarded"
)

type Code struct {
	ID        string    `gorm:"column:id;primaryKey;size:64"`
	UserID    string    `gorm:"column:user_id;size:191;index;not null"`
	Code      string    `gorm:"column:code;uniqueIndex;size:32;not null"`
	Active    bool      `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Code) TableName() string { return "referral_codes" }

type Referral struct {
	ID             string         `gorm:"column:id;primaryKey;size:64" json:"id"`
	ReferrerUserID string         `gorm:"column:referrer_user_id;size:191;index;not null" json:"referrer_user_id"`
	ReferredUserID string         `gorm:"column:referred_user_id;size:191;uniqueIndex;not null" json:"referred_user_id"`
	CodeID         string         `gorm:"column:code_id;size:64;not null" json:"-"`
	Status         Status         `gorm:"column:status;size:20;not null" json:"status"`
	Metadata       datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	QualifiedAt    *time.Time     `gorm:"column:qualified_at" json:"qualified_at"`
	RewardedAt     *time.Time     `gorm:"column:rewarded_at" json:"rewarded_at"`
	CreatedAt      time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at" json:"-"`
}

func (Referral) TableName() string { return "referrals" }

type Snapshot struct {
	Code      string      `json:"code"`
	Referrals []*Referral `json:"referrals"`
}

func Models() []any {
	return []any{&Code{}, &Referral{}}
}
