package quest

import (
	"time"
)

type Persona string

const (
	PersonaVenue  Persona = "venue"
	PersonaPlayer Persona = "player"
	PersonaBoth   Persona = "both"
)

// personas lists the quest personas visible to a user acting as role.
func personas(role Persona) []Persona {
	if role == PersonaVenue {
		return []Persona{PersonaVenue, PersonaBoth}
	}
	return []Persona{PersonaPlayer, PersonaBoth}
}

type Trigger string

const (
	TriggerMissionSubmitted    Trigger = "mission_submitted"
	TriggerSubmissionApproved  Trigger = "submission_approved"
	TriggerSubmissionReviewed  Trigger = "submission_reviewed"
	TriggerSocialVerified      Trigger = "social_verified"
	TriggerDailyClaim          Trigger = "daily_claim"
	TriggerReferralConversion  Trigger = "referral_conversion"
	TriggerReferralApplied     Trigger = "referral_applied"
	TriggerRestaurantOnboarded Trigger = "restaurant_onboarded"
	TriggerTaskCreated         Trigger = "task_created"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusClaimed    Status = "claimed"
)

type Quest struct {
	ID          string    `gorm:"column:id;primaryKey;size:64"`
	Key         string    `gorm:"column:key;uniqueIndex;size:100;not null"`
	Title       string    `gorm:"column:title;size:200;not null"`
	Description string    `gorm:"column:description;type:text"`
	Persona     Persona   `gorm:"column:persona;size:20;index;not null"`
	Trigger     Trigger   `gorm:"column:trigger_type;size:50;index;not null"`
	TargetCount int       `gorm:"column:target_count;not null;default:1"`
	RewardPicks int64     `gorm:"column:reward_picks;not null;default:0"`
	RewardXP    int       `gorm:"column:reward_xp;not null;default:0"`
	Active      bool      `gorm:"column:active;not null;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (Quest) TableName() string { return "quests" }

type Progress struct {
	ID              string     `gorm:"column:id;primaryKey;size:64"`
	UserID          string     `gorm:"column:user_id;size:191;not null;uniqueIndex:idx_quest_progress_user_quest,priority:1"`
	QuestID         string     `gorm:"column:quest_id;size:64;not null;uniqueIndex:idx_quest_progress_user_quest,priority:2"`
	Progress        int        `gorm:"column:progress;not null;default:0"`
	Status          Status     `gorm:"column:status;size:20;not null"`
	CompletedAt     *time.Time `gorm:"column:completed_at"`
	RewardClaimedAt *time.Time `gorm:"column:reward_claimed_at"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

func (Progress) TableName() string { return "quest_progress" }

// Event reports that userID did something quests may count.
type Event struct {
	UserID      string
	Role        Persona
	Trigger     Trigger
	ReferenceID string
	Increment   int
}

type State struct {
	Key             string     `json:"key"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Persona         Persona    `json:"persona"`
	Trigger         Trigger    `json:"trigger_type"`
	TargetCount     int        `json:"target_count"`
	RewardPicks     int64      `json:"reward_picks"`
	RewardXP        int        `json:"reward_xp"`
	Progress        int        `json:"progress"`
	Status          Status     `json:"status"`
	CompletedAt     *time.Time `json:"completed_at"`
	RewardClaimedAt *time.Time `json:"reward_claimed_at"`
}

type ClaimStatus string

const (
	ClaimClaimed        ClaimStatus = "claimed"
	ClaimAlreadyClaimed ClaimStatus = "already_claimed"
)

type ClaimResult struct {
	QuestKey    string      `json:"quest_key"`
	RewardPicks int64       `json:"reward_picks"`
	RewardXP    int         `json:"reward_xp"`
	Status      ClaimStatus `json:"status"`
}

func Models() []any {
	return []any{&Quest{}, &Progress{}}
}

// DefaultQuests is the onboarding catalogue installed by Seed.
func DefaultQuests() []Quest {
	return []Quest{
		{Key: "player_first_submission", Title: "Drop your first mission proof", Description: "Submit one mission proof to start your player journey.", Persona: PersonaPlayer, Trigger: TriggerMissionSubmitted, TargetCount: 1, RewardPicks: 40, RewardXP: 30},
		{Key: "player_first_approval", Title: "Get your first approval", Description: "Receive one approved submission to unlock bonus momentum.", Persona: PersonaPlayer, Trigger: TriggerSubmissionApproved, TargetCount: 1, RewardPicks: 80, RewardXP: 60},
		{Key: "player_social_verified", Title: "Verify one social profile", Description: "Connect and verify one social account for better mission matching.", Persona: PersonaPlayer, Trigger: TriggerSocialVerified, TargetCount: 1, RewardPicks: 60, RewardXP: 50},
		{Key: "player_daily_claim", Title: "Claim your daily boost", Description: "Use your daily claim once to keep your streak alive.", Persona: PersonaPlayer, Trigger: TriggerDailyClaim, TargetCount: 1, RewardPicks: 50, RewardXP: 40},
		{Key: "player_referral_conversion", Title: "Bring one friend who converts", Description: "Get one referral to complete a qualifying action.", Persona: PersonaPlayer, Trigger: TriggerReferralConversion, TargetCount: 1, RewardPicks: 120, RewardXP: 90},
		{Key: "venue_menu_live", Title: "Publish your venue", Description: "Complete onboarding and take your venue live.", Persona: PersonaVenue, Trigger: TriggerRestaurantOnboarded, TargetCount: 1, RewardPicks: 150},
		{Key: "venue_first_task", Title: "Launch your first mission", Description: "Create your first customer mission campaign.", Persona: PersonaVenue, Trigger: TriggerTaskCreated, TargetCount: 1, RewardPicks: 120},
		{Key: "venue_first_review", Title: "Review your first submission", Description: "Approve or reject one incoming mission proof.", Persona: PersonaVenue, Trigger: TriggerSubmissionReviewed, TargetCount: 1, RewardPicks: 140},
	}
}
