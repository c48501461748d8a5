package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"storebridge/internal/logger"
	"storebridge/internal/models"
)

type CategoryHandler struct {
	db     *gorm.DB
	logger *logger.Logger
}

func NewCategoryHandler(db *gorm.DB, logger *logger.Logger) *CategoryHandler {
	return &CategoryHandler{
		db:     db,
		logger: logger,
	}
}

var categorySortColumns = map[string]bool{
	"name":       true,
	"created_at": true,
	"updated_at": true,
}

func (h *CategoryHandler) List(c *gin.Context) {
	var categories []models.Category

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := (page - 1) * limit

	sortBy := c.DefaultQuery("sort_by", "name")
	if !categorySortColumns[sortBy] {
		sortBy = "name"
	}
	sortOrder := c.DefaultQuery("sort_order", "asc")
	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "asc"
	}

	var total int64
	h.db.Model(&models.Category{}).Count(&total)

	err := h.db.Order(sortBy + " " + sortOrder).Offset(offset).Limit(limit).Find(&categories).Error
	if err != nil {
		h.logger.Error("failed to list categories: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch categories"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": categories,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}
