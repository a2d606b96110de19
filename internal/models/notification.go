package models

import (
	"time"
)

// Notification 站内通知，按接收人追加写入
type Notification struct {
	ID               uint      `json:"id" gorm:"primarykey"`
	OrganizationID   uint      `json:"organization_id" gorm:"not null;index"`
	RecipientID      uint      `json:"recipient_id" gorm:"not null;index:idx_notification_recipient_read"`
	Type             EventType `json:"type" gorm:"size:50;not null"`
	Title            string    `json:"title" gorm:"size:200"`
	Body             string    `json:"body" gorm:"size:1000"`
	RelatedRequestID *uint     `json:"related_request_id"`
	EventID          *uint     `json:"event_id" gorm:"index"`
	Read             bool      `json:"read" gorm:"not null;default:false;index:idx_notification_recipient_read"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName 表名
func (Notification) TableName() string {
	return "notifications"
}
