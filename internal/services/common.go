package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	apperrors "github.com/Dungyy/Gerz-platform-sub000/pkg/errors"

	"gorm.io/gorm"
)

// EventPublisher 接收已提交的领域事件，由 NotificationFanout 实现
type EventPublisher interface {
	Publish(evt *models.DomainEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(*models.DomainEvent) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

// Clock 可替换的时间源
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// normalizeEmail 邮箱统一小写存储
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func uintPtr(v uint) *uint {
	return &v
}

// notFoundOr 记录不存在时返回 NotFound，其余按内部错误
func notFoundOr(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrNotFound.WithMessage(message)
	}
	return apperrors.Internal("数据库查询失败", err)
}

// findActiveActor 按组织查找未移除的账号
func findActiveActor(ctx context.Context, db *gorm.DB, orgID, id uint) (*models.Actor, error) {
	var actor models.Actor
	err := db.WithContext(ctx).
		Where("id = ? AND organization_id = ? AND removed_at IS NULL", id, orgID).
		First(&actor).Error
	if err != nil {
		return nil, notFoundOr(err, "账号不存在")
	}
	return &actor, nil
}

// moveTenantIntoUnit 把租客搬进单元：清掉租客原来的单元和该单元原来的住户
func moveTenantIntoUnit(tx *gorm.DB, orgID, tenantID, unitID uint) error {
	if err := tx.Model(&models.Unit{}).
		Where("organization_id = ? AND tenant_id = ? AND id <> ?", orgID, tenantID, unitID).
		Update("tenant_id", nil).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.Actor{}).
		Where("organization_id = ? AND unit_id = ? AND id <> ?", orgID, unitID, tenantID).
		Update("unit_id", nil).Error; err != nil {
		return err
	}
	result := tx.Model(&models.Unit{}).
		Where("id = ? AND organization_id = ?", unitID, orgID).
		Update("tenant_id", tenantID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound.WithMessage("单元不存在")
	}
	return tx.Model(&models.Actor{}).Where("id = ?", tenantID).Update("unit_id", unitID).Error
}

// releaseTenantUnit 租客离开时清空单元占用
func releaseTenantUnit(tx *gorm.DB, orgID, tenantID uint) error {
	if err := tx.Model(&models.Unit{}).
		Where("organization_id = ? AND tenant_id = ?", orgID, tenantID).
		Update("tenant_id", nil).Error; err != nil {
		return err
	}
	return tx.Model(&models.Actor{}).Where("id = ?", tenantID).Update("unit_id", nil).Error
}

// wrapTxError 事务里返回的业务错误原样透出
func wrapTxError(err error, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.Internal(message, err)
}
