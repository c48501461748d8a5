package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SyncRunStatus string

const (
	SyncRunRunning   SyncRunStatus = "RUNNING"
	SyncRunCompleted SyncRunStatus = "COMPLETED"
	SyncRunFailed    SyncRunStatus = "FAILED"
)

// SyncRun is the operator-facing record of one full sync pass. Item
// failures are counted, not fatal, so the status reflects whether the
// pass ran to the end rather than whether every item landed.
type SyncRun struct {
	ID         string        `json:"id" gorm:"primaryKey"`
	Trigger    string        `json:"trigger"`
	Status     SyncRunStatus `json:"status"`
	Categories int           `json:"categories"`
	Products   int           `json:"products"`
	Variants   int           `json:"variants"`
	Images     int           `json:"images"`
	Stock      int           `json:"stock"`
	Errors     int           `json:"errors"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (r *SyncRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
