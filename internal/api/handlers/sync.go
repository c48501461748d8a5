package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"storebridge/internal/logger"
	"storebridge/internal/models"
	"storebridge/internal/sync"
)

type SyncHandler struct {
	db     *gorm.DB
	engine *sync.Engine
	logger *logger.Logger
}

func NewSyncHandler(db *gorm.DB, engine *sync.Engine, logger *logger.Logger) *SyncHandler {
	return &SyncHandler{
		db:     db,
		engine: engine,
		logger: logger,
	}
}

// Trigger starts a full sync in the background and acknowledges
// immediately. Progress is inspectable through the run list.
func (h *SyncHandler) Trigger(c *gin.Context) {
	go func() {
		if _, err := h.engine.RunFullSync(context.Background(), "manual"); err != nil {
			h.logger.Error("manual full sync failed to start: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "Sync process started in the background"})
}

// ListRuns returns recent sync runs, newest first.
func (h *SyncHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var runs []models.SyncRun
	if err := h.db.Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		h.logger.Error("failed to list sync runs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sync runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs})
}
