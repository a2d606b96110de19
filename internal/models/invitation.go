package models

import (
	"time"
)

// 邀请状态，由时间字段推导，不单独存储
const (
	InvitationStatusPending  = "pending"
	InvitationStatusAccepted = "accepted"
	InvitationStatusExpired  = "expired"
	InvitationStatusRevoked  = "revoked"
)

// Invitation 入驻邀请。令牌只保存哈希；accepted_at 为空才可兑换
type Invitation struct {
	BaseModel
	OrganizationID  uint       `json:"organization_id" gorm:"not null;index:idx_invitation_org_email"`
	Email           string     `json:"email" gorm:"size:200;not null;index:idx_invitation_org_email"`
	Role            Role       `json:"role" gorm:"size:20;not null"`
	TokenHash       string     `json:"-" gorm:"size:64;not null;uniqueIndex"`
	PropertyID      *uint      `json:"property_id"`
	UnitID          *uint      `json:"unit_id"`
	InvitedBy       uint       `json:"invited_by" gorm:"not null"`
	Message         string     `json:"message,omitempty" gorm:"size:500"`
	ExpiresAt       time.Time  `json:"expires_at" gorm:"not null"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	AcceptedActorID *uint      `json:"accepted_actor_id,omitempty"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
}

// TableName 表名
func (Invitation) TableName() string {
	return "invitations"
}

// StatusAt 指定时间点的邀请状态
func (i *Invitation) StatusAt(now time.Time) string {
	switch {
	case i.AcceptedAt != nil:
		return InvitationStatusAccepted
	case i.RevokedAt != nil:
		return InvitationStatusRevoked
	case !now.Before(i.ExpiresAt):
		return InvitationStatusExpired
	}
	return InvitationStatusPending
}

// IsPendingAt 未使用、未撤销、未过期
func (i *Invitation) IsPendingAt(now time.Time) bool {
	return i.StatusAt(now) == InvitationStatusPending
}
