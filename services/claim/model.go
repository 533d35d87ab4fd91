package claim

import (
	"time"

	"gorm.io/datatypes"
)

// AdView is a completed rewarded-ad placement. Each view unlocks at most one
// daily claim.
type AdView struct {
	ID           string         `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID       string         `gorm:"column:user_id;size:191;index;not null" json:"user_id"`
	PlacementKey string         `gorm:"column:placement_key;size:100;not null" json:"placement_key"`
	SessionID    string         `gorm:"column:session_id;size:191" json:"session_id,omitempty"`
	Metadata     datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (AdView) TableName() string { return "ad_views" }

type DailyClaim struct {
	ID             string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID         string    `gorm:"column:user_id;size:191;index:idx_daily_claims_user_claimed,priority:1;not null" json:"user_id"`
	AdViewID       string    `gorm:"column:ad_view_id;size:64;uniqueIndex;not null" json:"ad_view_id"`
	Amount         int64     `gorm:"column:amount;not null" json:"amount"`
	ClaimedAt      time.Time `gorm:"column:claimed_at;index:idx_daily_claims_user_claimed,priority:2;not null" json:"claimed_at"`
	CooldownEndsAt time.Time `gorm:"column:cooldown_ends_at;not null" json:"cooldown_ends_at"`
}

func (DailyClaim) TableName() string { return "daily_claims" }

type RecordAdViewRequest struct {
	UserID       string `json:"user_id"`
	PlacementKey string `json:"placement_key"`
	SessionID    string `json:"session_id"`
}

type Status struct {
	CanClaim       bool       `json:"can_claim"`
	Amount         int64      `json:"claim_amount"`
	CooldownEndsAt *time.Time `json:"cooldown_ends_at"`
	LastClaimedAt  *time.Time `json:"last_claimed_at"`
}

type Result struct {
	ClaimID        string    `json:"claim_id"`
	Amount         int64     `json:"amount"`
	CooldownEndsAt time.Time `json:"cooldown_ends_at"`
}

func Models() []any {
	return []any{&AdView{}, &DailyClaim{}}
}
