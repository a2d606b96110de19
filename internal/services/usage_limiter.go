package services

import (
	"context"
	"fmt"

	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	apperrors "github.com/Dungyy/Gerz-platform-sub000/pkg/errors"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/metrics"

	"gorm.io/gorm"
)

// UsageLimiter 套餐用量检查。读当前数量再和上限比较，不加锁，
// 并发创建时可能短暂超出上限
type UsageLimiter struct {
	db  *gorm.DB
	now Clock
}

// NewUsageLimiter 创建用量检查器
func NewUsageLimiter(db *gorm.DB) *UsageLimiter {
	return &UsageLimiter{db: db, now: systemClock}
}

// LimitCheck 单项资源的检查结果，Max 为 nil 表示不限
type LimitCheck struct {
	Resource models.ResourceType `json:"resource"`
	Current  int64               `json:"current"`
	Max      *int                `json:"max"`
	Allowed  bool                `json:"allowed"`
}

// UsageReport 组织用量汇总
type UsageReport struct {
	PlanTier      models.PlanTier `json:"plan_tier"`
	EffectiveTier models.PlanTier `json:"effective_tier"`
	Items         []LimitCheck    `json:"items"`
}

// CheckLimit 再新增一个资源是否超出套餐上限
func (l *UsageLimiter) CheckLimit(ctx context.Context, orgID uint, resource models.ResourceType) (*LimitCheck, error) {
	org, err := l.loadOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return l.check(ctx, org, resource)
}

// Ensure 超出上限时返回 LimitExceeded，附带 current 和 max
func (l *UsageLimiter) Ensure(ctx context.Context, orgID uint, resource models.ResourceType) error {
	result, err := l.CheckLimit(ctx, orgID, resource)
	if err != nil {
		return err
	}
	if result.Allowed {
		return nil
	}
	metrics.LimitDenials.WithLabelValues(string(resource)).Inc()
	return apperrors.ErrLimitExceeded.
		WithMessage(fmt.Sprintf("当前套餐最多允许 %d 个%s", *result.Max, resourceLabel(resource))).
		WithDetails(map[string]interface{}{
			"resource": resource,
			"current":  result.Current,
			"max":      *result.Max,
		})
}

// Usage 所有资源的当前用量
func (l *UsageLimiter) Usage(ctx context.Context, orgID uint) (*UsageReport, error) {
	org, err := l.loadOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	report := &UsageReport{
		PlanTier:      org.PlanTier,
		EffectiveTier: org.EffectiveTier(l.now()),
		Items:         make([]LimitCheck, 0, len(models.AllResourceTypes)),
	}
	for _, resource := range models.AllResourceTypes {
		item, err := l.check(ctx, org, resource)
		if err != nil {
			return nil, err
		}
		report.Items = append(report.Items, *item)
	}
	return report, nil
}

// Count 当前资源数量，只统计实际存在的资源，不含待处理邀请
func (l *UsageLimiter) Count(ctx context.Context, orgID uint, resource models.ResourceType) (int64, error) {
	db := l.db.WithContext(ctx)
	var count int64
	var err error
	switch resource {
	case models.ResourceProperties:
		err = db.Model(&models.Property{}).Scopes(models.InOrganization(orgID)).Count(&count).Error
	case models.ResourceUnits:
		err = db.Model(&models.Unit{}).Scopes(models.InOrganization(orgID)).Count(&count).Error
	case models.ResourceTenants:
		err = l.countActors(db, orgID, models.RoleTenant, &count)
	case models.ResourceWorkers:
		err = l.countActors(db, orgID, models.RoleWorker, &count)
	case models.ResourceManagers:
		err = l.countActors(db, orgID, models.RoleManager, &count)
	default:
		return 0, apperrors.ErrInvalidInput.WithMessage(fmt.Sprintf("未知资源类型: %s", resource))
	}
	if err != nil {
		return 0, apperrors.Internal("统计用量失败", err)
	}
	return count, nil
}

func (l *UsageLimiter) countActors(db *gorm.DB, orgID uint, role models.Role, count *int64) error {
	return db.Model(&models.Actor{}).
		Where("organization_id = ? AND role = ? AND removed_at IS NULL", orgID, role).
		Count(count).Error
}

func (l *UsageLimiter) check(ctx context.Context, org *models.Organization, resource models.ResourceType) (*LimitCheck, error) {
	current, err := l.Count(ctx, org.ID, resource)
	if err != nil {
		return nil, err
	}
	limit := models.LimitsFor(org.EffectiveTier(l.now()))[resource]
	return &LimitCheck{
		Resource: resource,
		Current:  current,
		Max:      limit,
		Allowed:  limit == nil || current < int64(*limit),
	}, nil
}

func (l *UsageLimiter) loadOrganization(ctx context.Context, orgID uint) (*models.Organization, error) {
	var org models.Organization
	if err := l.db.WithContext(ctx).First(&org, orgID).Error; err != nil {
		return nil, notFoundOr(err, "组织不存在")
	}
	return &org, nil
}

func resourceLabel(resource models.ResourceType) string {
	switch resource {
	case models.ResourceProperties:
		return "物业"
	case models.ResourceUnits:
		return "单元"
	case models.ResourceTenants:
		return "租客"
	case models.ResourceWorkers:
		return "维修人员"
	case models.ResourceManagers:
		return "经理"
	}
	return string(resource)
}
