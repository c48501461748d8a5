package models

import "time"

// ProductImage records the CDN location of an already-hosted image. Rows
// with both ProductID and VariantID set are parent images inherited by a
// variant that has none of its own.
//
// Logical key is (product_id, variant_id, original_filename). It is
// enforced by the store's find-or-create upsert rather than a unique
// index because variant_id is nullable and SQL treats NULLs as distinct.
type ProductImage struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	ProductID        *uint     `json:"product_id" gorm:"index"`
	VariantID        *uint     `json:"variant_id" gorm:"index"`
	CDNURL           string    `json:"cdn_url" gorm:"column:cdn_url"`
	AltText          string    `json:"alt_text"`
	DisplayOrder     int       `json:"display_order"`
	IsThumbnail      bool      `json:"is_thumbnail"`
	ExternalImageID  string    `json:"external_image_id"`
	OriginalFilename string    `json:"original_filename"`
	OriginalPath     string    `json:"original_path"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
