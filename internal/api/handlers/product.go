package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"storebridge/internal/logger"
	"storebridge/internal/models"
)

type ProductHandler struct {
	db     *gorm.DB
	logger *logger.Logger
}

func NewProductHandler(db *gorm.DB, logger *logger.Logger) *ProductHandler {
	return &ProductHandler{
		db:     db,
		logger: logger,
	}
}

var productSortColumns = map[string]bool{
	"name":       true,
	"price":      true,
	"created_at": true,
	"updated_at": true,
}

func (h *ProductHandler) List(c *gin.Context) {
	var products []models.Product

	// Pagination
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	sortBy := c.DefaultQuery("sort_by", "name")
	if !productSortColumns[sortBy] {
		sortBy = "name"
	}
	sortOrder := c.DefaultQuery("sort_order", "asc")
	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "asc"
	}

	query := h.db.Model(&models.Product{}).Where("is_active = ?", true)

	if categoryID := c.Query("category_id"); categoryID != "" {
		query = query.
			Joins("INNER JOIN product_category_links pcl ON pcl.product_id = products.id").
			Where("pcl.category_id = ?", categoryID)
	}

	if search := c.Query("search"); search != "" {
		// LOWER+LIKE instead of ILIKE so the same query runs on both
		// postgres and sqlite.
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ? OR LOWER(description) LIKE ?",
			pattern, pattern, pattern)
	}

	var total int64
	query.Distinct("products.id").Count(&total)

	err := query.Select("products.*").
		Order(sortBy + " " + sortOrder).
		Offset(offset).Limit(limit).
		Find(&products).Error
	if err != nil {
		h.logger.Error("failed to list products: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": products,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetBySlug returns a product with its variants, images, stock levels
// and category memberships in one payload.
func (h *ProductHandler) GetBySlug(c *gin.Context) {
	slug := c.Param("slug")

	var product models.Product
	if err := h.db.Where("slug = ? AND is_active = ?", slug, true).First(&product).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found or not active"})
			return
		}
		h.logger.Error("failed to fetch product %q: %v", slug, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product"})
		return
	}

	var variants []models.Variant
	if err := h.db.Where("product_id = ?", product.ID).Order("id ASC").Find(&variants).Error; err != nil {
		h.logger.Error("failed to fetch variants for product %d: %v", product.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product details"})
		return
	}

	variantIDs := make([]uint, len(variants))
	for i, v := range variants {
		variantIDs[i] = v.ID
	}

	var images []models.ProductImage
	imagesQuery := h.db.Where("product_id = ?", product.ID)
	if len(variantIDs) > 0 {
		imagesQuery = h.db.Where("product_id = ? OR variant_id IN ?", product.ID, variantIDs)
	}
	if err := imagesQuery.Order("display_order ASC, id ASC").Find(&images).Error; err != nil {
		h.logger.Error("failed to fetch images for product %d: %v", product.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product details"})
		return
	}

	var stock []models.StockLevel
	stockQuery := h.db.Where("product_id = ?", product.ID)
	if len(variantIDs) > 0 {
		stockQuery = h.db.Where("product_id = ? OR variant_id IN ?", product.ID, variantIDs)
	}
	if err := stockQuery.Find(&stock).Error; err != nil {
		h.logger.Error("failed to fetch stock for product %d: %v", product.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product details"})
		return
	}

	var categories []models.Category
	err := h.db.
		Joins("INNER JOIN product_category_links pcl ON pcl.category_id = categories.id").
		Where("pcl.product_id = ?", product.ID).
		Order("categories.name ASC").
		Find(&categories).Error
	if err != nil {
		h.logger.Error("failed to fetch categories for product %d: %v", product.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product details"})
		return
	}

	type variantView struct {
		models.Variant
		Images []models.ProductImage `json:"images"`
		Stock  []models.StockLevel   `json:"stock"`
	}

	variantViews := make([]variantView, len(variants))
	for i, v := range variants {
		view := variantView{Variant: v}
		for _, img := range images {
			if img.VariantID != nil && *img.VariantID == v.ID {
				view.Images = append(view.Images, img)
			}
		}
		for _, lvl := range stock {
			if lvl.VariantID != nil && *lvl.VariantID == v.ID {
				view.Stock = append(view.Stock, lvl)
			}
		}
		variantViews[i] = view
	}

	baseImages := make([]models.ProductImage, 0)
	for _, img := range images {
		if img.VariantID == nil {
			baseImages = append(baseImages, img)
		}
	}
	baseStock := make([]models.StockLevel, 0)
	for _, lvl := range stock {
		if lvl.VariantID == nil {
			baseStock = append(baseStock, lvl)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"product":     product,
			"categories":  categories,
			"variants":    variantViews,
			"base_images": baseImages,
			"base_stock":  baseStock,
		},
	})
}
