package models

import "time"

// Variant is owned by its parent product. The variant set for a product
// is a full replace on every sync, keyed by ExternalID.
type Variant struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	ExternalID      int64      `json:"external_id" gorm:"uniqueIndex;not null"`
	ProductID       uint       `json:"product_id" gorm:"index;not null"`
	SKUVariant      string     `json:"sku_variant" gorm:"column:sku_variant"`
	PriceModifier   float64    `json:"price_modifier"`
	Attributes      JSONMap    `json:"attributes" gorm:"type:json"`
	ExternalCreated *time.Time `json:"external_created_at" gorm:"column:external_created_at"`
	ExternalUpdated *time.Time `json:"external_updated_at" gorm:"column:external_updated_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
