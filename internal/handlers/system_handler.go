package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Dungyy/Gerz-platform-sub000/pkg/queue"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SystemHandler 健康检查
type SystemHandler struct {
	db  *gorm.DB
	bus *queue.RedisBus
}

// NewSystemHandler 创建系统处理器，bus 可以为 nil
func NewSystemHandler(db *gorm.DB, bus *queue.RedisBus) *SystemHandler {
	return &SystemHandler{db: db, bus: bus}
}

// Health 检查数据库和Redis
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := gin.H{"database": "ok"}
	healthy := true

	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status["database"] = "down"
		healthy = false
	}
	if h.bus == nil {
		status["redis"] = "disabled"
	} else if err := h.bus.Ping(ctx); err != nil {
		status["redis"] = "down"
	} else {
		status["redis"] = "ok"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, response.Response{
			Code:    http.StatusServiceUnavailable,
			Message: "unhealthy",
			Data:    status,
		})
		return
	}
	response.Success(c, status)
}
