package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"storebridge/internal/logger"
	"storebridge/internal/models"
)

// Store is the gateway to the local cache. Every method is a single
// logical statement on one entity; the sync engine composes them and
// never needs multi-statement transactions.
type Store struct {
	db     *gorm.DB
	logger *logger.Logger
}

func New(db *gorm.DB, logger *logger.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// DB exposes the underlying handle for read-side queries.
func (s *Store) DB() *gorm.DB { return s.db }

// IsConstraintViolation reports whether err is a unique/integrity
// constraint rejection from the database.
func IsConstraintViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// --- Categories ---

// UpsertCategory inserts or updates a category keyed by external id.
func (s *Store) UpsertCategory(cat *models.Category) error {
	var existing models.Category
	err := s.db.Where("external_id = ?", cat.ExternalID).First(&existing).Error
	if err == nil {
		cat.ID = existing.ID
		cat.CreatedAt = existing.CreatedAt
		return s.db.Save(cat).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(cat).Error
	}
	return err
}

// CategoryByExternalID returns nil without error when no row matches.
func (s *Store) CategoryByExternalID(externalID int64) (*models.Category, error) {
	var cat models.Category
	err := s.db.Where("external_id = ?", externalID).First(&cat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// CategoryIDMap builds the external -> local id lookup for one sync
// pass.
func (s *Store) CategoryIDMap() (map[int64]uint, error) {
	var categories []models.Category
	if err := s.db.Select("id", "external_id").Find(&categories).Error; err != nil {
		return nil, err
	}
	m := make(map[int64]uint, len(categories))
	for _, c := range categories {
		m[c.ExternalID] = c.ID
	}
	return m, nil
}

// Categories lists every cached category (sync-side use).
func (s *Store) Categories() ([]models.Category, error) {
	var categories []models.Category
	if err := s.db.Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// SetCategoryParent writes the resolved local parent reference.
func (s *Store) SetCategoryParent(id uint, parentID *uint) error {
	return s.db.Model(&models.Category{}).Where("id = ?", id).Update("parent_id", parentID).Error
}

// DeleteCategoryByExternalID removes a category and any links pointing
// at it. A missing row reports found=false, not an error.
func (s *Store) DeleteCategoryByExternalID(externalID int64) (bool, error) {
	var cat models.Category
	err := s.db.Where("external_id = ?", externalID).First(&cat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.db.Where("category_id = ?", cat.ID).Delete(&models.ProductCategoryLink{}).Error; err != nil {
		return true, err
	}
	return true, s.db.Delete(&cat).Error
}

// --- Products ---

// UpsertProduct inserts or updates a product keyed by external id. A
// slug collision with a different product gets the external id as a
// suffix, and a random one if that is also taken.
func (s *Store) UpsertProduct(p *models.Product) error {
	var existing models.Product
	err := s.db.Where("external_id = ?", p.ExternalID).First(&existing).Error
	if err == nil {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	base := p.Slug
	err = s.saveProduct(p)
	if err == nil || !IsConstraintViolation(err) {
		return err
	}

	p.Slug = fmt.Sprintf("%s-%d", base, p.ExternalID)
	err = s.saveProduct(p)
	if err == nil || !IsConstraintViolation(err) {
		return err
	}

	p.Slug = fmt.Sprintf("%s-%s", base, uuid.NewString()[:8])
	return s.saveProduct(p)
}

func (s *Store) saveProduct(p *models.Product) error {
	if p.ID != 0 {
		return s.db.Save(p).Error
	}
	return s.db.Create(p).Error
}

// ProductByExternalID returns nil without error when no row matches.
func (s *Store) ProductByExternalID(externalID int64) (*models.Product, error) {
	var p models.Product
	err := s.db.Where("external_id = ?", externalID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Products lists every cached product (sync-side use).
func (s *Store) Products() ([]models.Product, error) {
	var products []models.Product
	if err := s.db.Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// DeleteProductByExternalID removes a product and everything it owns:
// variants, images, stock, category links. A missing row reports
// found=false, not an error.
func (s *Store) DeleteProductByExternalID(externalID int64) (bool, error) {
	var p models.Product
	err := s.db.Where("external_id = ?", externalID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var variantIDs []uint
	if err := s.db.Model(&models.Variant{}).Where("product_id = ?", p.ID).Pluck("id", &variantIDs).Error; err != nil {
		return true, err
	}

	steps := []error{
		s.db.Where("product_id = ?", p.ID).Delete(&models.StockLevel{}).Error,
		s.db.Where("product_id = ?", p.ID).Delete(&models.ProductImage{}).Error,
		s.db.Where("product_id = ?", p.ID).Delete(&models.ProductCategoryLink{}).Error,
	}
	if len(variantIDs) > 0 {
		steps = append(steps,
			s.db.Where("variant_id IN ?", variantIDs).Delete(&models.StockLevel{}).Error,
			s.db.Where("variant_id IN ?", variantIDs).Delete(&models.ProductImage{}).Error,
		)
	}
	steps = append(steps,
		s.db.Where("product_id = ?", p.ID).Delete(&models.Variant{}).Error,
		s.db.Delete(&p).Error,
	)
	for _, err := range steps {
		if err != nil {
			return true, err
		}
	}
	return true, nil
}

// ReplaceProductCategoryLinks rebuilds a product's category membership
// from scratch (clear-then-insert).
func (s *Store) ReplaceProductCategoryLinks(productID uint, categoryIDs []uint) error {
	if err := s.db.Where("product_id = ?", productID).Delete(&models.ProductCategoryLink{}).Error; err != nil {
		return err
	}
	seen := make(map[uint]bool, len(categoryIDs))
	for _, catID := range categoryIDs {
		if seen[catID] {
			continue
		}
		seen[catID] = true
		link := models.ProductCategoryLink{ProductID: productID, CategoryID: catID}
		if err := s.db.Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

// CategoryIDsForProduct returns the product's current link targets.
func (s *Store) CategoryIDsForProduct(productID uint) ([]uint, error) {
	var ids []uint
	err := s.db.Model(&models.ProductCategoryLink{}).
		Where("product_id = ?", productID).
		Pluck("category_id", &ids).Error
	return ids, err
}

// --- Variants ---

// UpsertVariant inserts or updates a variant keyed by external id.
func (s *Store) UpsertVariant(v *models.Variant) error {
	var existing models.Variant
	err := s.db.Where("external_id = ?", v.ExternalID).First(&existing).Error
	if err == nil {
		v.ID = existing.ID
		v.CreatedAt = existing.CreatedAt
		return s.db.Save(v).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(v).Error
	}
	return err
}

// VariantsByProductID lists a product's variants.
func (s *Store) VariantsByProductID(productID uint) ([]models.Variant, error) {
	var variants []models.Variant
	err := s.db.Where("product_id = ?", productID).Order("id ASC").Find(&variants).Error
	return variants, err
}

// DeleteVariantsExcept removes every variant of the product whose
// external id is not in keep, along with the rows those variants own.
// This is the delete-missing half of the variant full-replace.
func (s *Store) DeleteVariantsExcept(productID uint, keep []int64) error {
	q := s.db.Model(&models.Variant{}).Where("product_id = ?", productID)
	if len(keep) > 0 {
		q = q.Where("external_id NOT IN ?", keep)
	}
	var staleIDs []uint
	if err := q.Pluck("id", &staleIDs).Error; err != nil {
		return err
	}
	if len(staleIDs) == 0 {
		return nil
	}

	if err := s.db.Where("variant_id IN ?", staleIDs).Delete(&models.StockLevel{}).Error; err != nil {
		return err
	}
	if err := s.db.Where("variant_id IN ?", staleIDs).Delete(&models.ProductImage{}).Error; err != nil {
		return err
	}
	return s.db.Where("id IN ?", staleIDs).Delete(&models.Variant{}).Error
}

// --- Images ---

func scopeOwner(q *gorm.DB, productID, variantID *uint) *gorm.DB {
	if productID != nil {
		q = q.Where("product_id = ?", *productID)
	} else {
		q = q.Where("product_id IS NULL")
	}
	if variantID != nil {
		q = q.Where("variant_id = ?", *variantID)
	} else {
		q = q.Where("variant_id IS NULL")
	}
	return q
}

// UpsertImage inserts or updates an image keyed by
// (product_id, variant_id, original_filename).
func (s *Store) UpsertImage(img *models.ProductImage) error {
	var existing models.ProductImage
	err := scopeOwner(s.db.Where("original_filename = ?", img.OriginalFilename), img.ProductID, img.VariantID).
		First(&existing).Error
	if err == nil {
		img.ID = existing.ID
		img.CreatedAt = existing.CreatedAt
		return s.db.Save(img).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(img).Error
	}
	return err
}

// BaseImagesForProduct lists the product's own images (no variant
// association).
func (s *Store) BaseImagesForProduct(productID uint) ([]models.ProductImage, error) {
	var images []models.ProductImage
	err := s.db.Where("product_id = ? AND variant_id IS NULL", productID).
		Order("display_order ASC, id ASC").
		Find(&images).Error
	return images, err
}

// VariantHasImages reports whether the variant carries any image rows,
// inherited or its own.
func (s *Store) VariantHasImages(variantID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.ProductImage{}).Where("variant_id = ?", variantID).Count(&count).Error
	return count > 0, err
}

// --- Stock ---

// UpsertStockLevel inserts or updates a stock row keyed by
// (product_id, variant_id, warehouse_external_id). last_checked_at
// always advances, whether or not the quantity changed.
func (s *Store) UpsertStockLevel(level *models.StockLevel) error {
	level.LastCheckedAt = time.Now().UTC()

	var existing models.StockLevel
	err := scopeOwner(s.db.Where("warehouse_external_id = ?", level.WarehouseExternalID), level.ProductID, level.VariantID).
		First(&existing).Error
	if err == nil {
		level.ID = existing.ID
		level.CreatedAt = existing.CreatedAt
		return s.db.Save(level).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(level).Error
	}
	return err
}

// StockTarget is one externally-addressable stock source: either a base
// product or a variant carrying its own external id.
type StockTarget struct {
	ExternalID int64
	ProductID  uint
	VariantID  *uint
}

// StockTargets enumerates every external id the stock stage must query,
// resolved to its local join context.
func (s *Store) StockTargets() ([]StockTarget, error) {
	products, err := s.Products()
	if err != nil {
		return nil, err
	}
	targets := make([]StockTarget, 0, len(products))
	for _, p := range products {
		targets = append(targets, StockTarget{ExternalID: p.ExternalID, ProductID: p.ID})
	}

	var variants []models.Variant
	if err := s.db.Find(&variants).Error; err != nil {
		return nil, err
	}
	for _, v := range variants {
		variantID := v.ID
		targets = append(targets, StockTarget{ExternalID: v.ExternalID, ProductID: v.ProductID, VariantID: &variantID})
	}
	return targets, nil
}

// StockTargetsForProduct scopes StockTargets to one product.
func (s *Store) StockTargetsForProduct(productID uint) ([]StockTarget, error) {
	var p models.Product
	if err := s.db.First(&p, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	targets := []StockTarget{{ExternalID: p.ExternalID, ProductID: p.ID}}

	variants, err := s.VariantsByProductID(productID)
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		variantID := v.ID
		targets = append(targets, StockTarget{ExternalID: v.ExternalID, ProductID: v.ProductID, VariantID: &variantID})
	}
	return targets, nil
}

// --- Sync runs ---

func (s *Store) CreateSyncRun(run *models.SyncRun) error {
	return s.db.Create(run).Error
}

func (s *Store) UpdateSyncRun(run *models.SyncRun) error {
	return s.db.Save(run).Error
}
