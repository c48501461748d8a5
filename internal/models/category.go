package models

import "time"

// Category mirrors one ERP category. ExternalID is the upsert key;
// ParentID is resolved from ParentExternalID at sync time and stays nil
// when the parent has not been synced yet.
type Category struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	ExternalID       int64      `json:"external_id" gorm:"uniqueIndex;not null"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	ParentExternalID *int64     `json:"parent_external_id"`
	ParentID         *uint      `json:"parent_id"`
	ExternalCreated  *time.Time `json:"external_created_at" gorm:"column:external_created_at"`
	ExternalUpdated  *time.Time `json:"external_updated_at" gorm:"column:external_updated_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
