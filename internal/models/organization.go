package models

import (
	"time"
)

// PlanTier 套餐等级
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanStarter    PlanTier = "starter"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// SubscriptionStatus 订阅状态，由外部支付流程维护
type SubscriptionStatus string

const (
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Organization 组织，多租户的根。其余实体都挂在某个组织下
type Organization struct {
	BaseModel
	Name               string             `json:"name" gorm:"not null;size:100"`
	Code               string             `json:"code" gorm:"uniqueIndex;not null;size:16"`
	PlanTier           PlanTier           `json:"plan_tier" gorm:"size:20;not null;default:'free'"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status" gorm:"size:20;not null;default:'trialing'"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at"`
	SMSEnabled         bool               `json:"sms_enabled" gorm:"default:false"`
}

// TableName 表名
func (Organization) TableName() string {
	return "organizations"
}

// EffectiveTier 订阅失效或试用过期时按免费套餐计算
func (o *Organization) EffectiveTier(now time.Time) PlanTier {
	switch o.SubscriptionStatus {
	case SubscriptionActive:
		return o.PlanTier
	case SubscriptionTrialing:
		if o.TrialEndsAt == nil || now.Before(*o.TrialEndsAt) {
			return o.PlanTier
		}
	}
	return PlanFree
}
