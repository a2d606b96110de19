package handlers

import (
	"github.com/Dungyy/Gerz-platform-sub000/internal/services"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/pagination"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// NotificationHandler 站内通知
type NotificationHandler struct {
	notifications *services.NotificationService
}

// NewNotificationHandler 创建通知处理器
func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List 通知列表，unread=true 只看未读
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	page := pagination.ParsePageParams(c)
	list, total, err := h.notifications.List(c.Request.Context(), actor, c.Query("unread") == "true", page)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithPage(c, list, pagination.NewPageInfo(page.Page, page.PageSize, total))
}

// UnreadCount 未读数
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	count, err := h.notifications.UnreadCount(c.Request.Context(), actor)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"unread": count})
}

// MarkRead 标记一条已读
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), actor, id); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "已读", nil)
}

// MarkAllRead 全部已读
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	updated, err := h.notifications.MarkAllRead(c.Request.Context(), actor)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"updated": updated})
}
