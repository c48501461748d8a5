package models

import "time"

// StockLevel is the absolute on-hand quantity per warehouse, re-derived
// from the ERP on every sync (never patched from movement deltas).
//
// Logical key is (product_id, variant_id, warehouse_external_id),
// upserted by the store with find-or-create since variant_id is
// nullable. ProductID must be set whenever VariantID is nil.
type StockLevel struct {
	ID                  uint       `json:"id" gorm:"primaryKey"`
	ProductID           *uint      `json:"product_id" gorm:"index"`
	VariantID           *uint      `json:"variant_id" gorm:"index"`
	WarehouseExternalID string     `json:"warehouse_external_id"`
	Quantity            int        `json:"quantity"`
	ExternalUpdated     *time.Time `json:"external_updated_at" gorm:"column:external_updated_at"`
	LastCheckedAt       time.Time  `json:"last_checked_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}
