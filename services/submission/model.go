package submission

import (
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type Submission struct {
	ID         string     `gorm:"column:id;primaryKey;size:64" json:"id"`
	TaskID     string     `gorm:"column:task_id;size:64;index;not null" json:"task_id"`
	UserID     string     `gorm:"column:user_id;size:191;index:idx_task_submissions_user_created,priority:1;not null" json:"user_id"`
	ProofURL   string     `gorm:"column:proof_url;size:1024;not null" json:"proof_url"`
	Status     Status     `gorm:"column:status;size:20;not null" json:"status"`
	ReviewedAt *time.Time `gorm:"column:reviewed_at" json:"reviewed_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;index:idx_task_submissions_user_created,priority:2" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Submission) TableName() string { return "task_submissions" }

type CreateRequest struct {
	TaskID   string `json:"task_id"`
	UserID   string `json:"user_id"`
	ProofURL string `json:"proof_url"`
}

func Models() []any {
	return []any{&Submission{}}
}
