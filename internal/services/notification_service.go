package services

import (
	"context"

	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	apperrors "github.com/Dungyy/Gerz-platform-sub000/pkg/errors"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/logger"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/pagination"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/queue"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NotificationService 当前用户的站内通知
type NotificationService struct {
	db     *gorm.DB
	log    *logrus.Logger
	unread UnreadPublisher
}

// NewNotificationService 创建通知服务
func NewNotificationService(db *gorm.DB, unread UnreadPublisher) *NotificationService {
	return &NotificationService{
		db:     db,
		log:    logger.GetLogger(),
		unread: unread,
	}
}

// List 通知列表，新的在前
func (s *NotificationService) List(ctx context.Context, actor *models.Actor, unreadOnly bool, page *pagination.PageParams) ([]models.Notification, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND organization_id = ?", actor.ID, actor.OrganizationID)
	if unreadOnly {
		query = query.Where("read = ?", false)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal("查询通知失败", err)
	}
	page = page.Normalize()
	var list []models.Notification
	if err := query.Order("created_at DESC, id DESC").Scopes(page.Scope()).Find(&list).Error; err != nil {
		return nil, 0, apperrors.Internal("查询通知失败", err)
	}
	return list, total, nil
}

// UnreadCount 未读数
func (s *NotificationService) UnreadCount(ctx context.Context, actor *models.Actor) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", actor.ID, false).
		Count(&count).Error; err != nil {
		return 0, apperrors.Internal("查询未读数失败", err)
	}
	return count, nil
}

// MarkRead 标记一条已读，别人的通知视为不存在
func (s *NotificationService) MarkRead(ctx context.Context, actor *models.Actor, id uint) error {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ?", id, actor.ID).
		Update("read", true)
	if result.Error != nil {
		return apperrors.Internal("更新通知失败", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		s.db.WithContext(ctx).Model(&models.Notification{}).
			Where("id = ? AND recipient_id = ?", id, actor.ID).Count(&count)
		if count == 0 {
			return apperrors.ErrNotFound.WithMessage("通知不存在")
		}
	}
	s.publishUnread(ctx, actor)
	return nil
}

// MarkAllRead 全部标记已读
func (s *NotificationService) MarkAllRead(ctx context.Context, actor *models.Actor) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", actor.ID, false).
		Update("read", true)
	if result.Error != nil {
		return 0, apperrors.Internal("更新通知失败", result.Error)
	}
	s.publishUnread(ctx, actor)
	return result.RowsAffected, nil
}

func (s *NotificationService) publishUnread(ctx context.Context, actor *models.Actor) {
	if s.unread == nil {
		return
	}
	count, err := s.UnreadCount(ctx, actor)
	if err != nil {
		return
	}
	if err := s.unread.PublishUnread(ctx, queue.UnreadMessage{ActorID: actor.ID, Unread: count}); err != nil {
		s.log.WithField("actor_id", actor.ID).WithError(err).Warn("publish unread count failed")
	}
}
