package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONMap is a map persisted as a JSON column. GORM's serializer tag is
// avoided so the same model works on both Postgres and SQLite.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
	if len(data) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// Product mirrors one ERP product. Category membership lives in
// ProductCategoryLink, not on the row itself.
type Product struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	ExternalID      int64      `json:"external_id" gorm:"uniqueIndex;not null"`
	SKU             string     `json:"sku"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	LongDescription string     `json:"long_description"`
	Price           float64    `json:"price"`
	IsActive        bool       `json:"is_active"`
	Slug            string     `json:"slug" gorm:"uniqueIndex;not null"`
	Attributes      JSONMap    `json:"attributes" gorm:"type:json"`
	ExternalCreated *time.Time `json:"external_created_at" gorm:"column:external_created_at"`
	ExternalUpdated *time.Time `json:"external_updated_at" gorm:"column:external_updated_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ProductCategoryLink is the many-to-many join between products and
// categories. The sync engine owns it outright and rebuilds it with
// clear-then-insert on every product sync.
type ProductCategoryLink struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	ProductID  uint `json:"product_id" gorm:"uniqueIndex:idx_product_category;not null"`
	CategoryID uint `json:"category_id" gorm:"uniqueIndex:idx_product_category;not null"`
}

func (ProductCategoryLink) TableName() string { return "product_category_links" }
