package models

import (
	"time"
)

// EventType 领域事件类型
type EventType string

const (
	EventRequestCreated           EventType = "request.created"
	EventRequestAssigned          EventType = "request.assigned"
	EventRequestUnassigned        EventType = "request.unassigned"
	EventRequestStatusChanged     EventType = "request.status_changed"
	EventRequestCommentAdded      EventType = "request.comment_added"
	EventRequestPriorityEmergency EventType = "request.priority_emergency"
	EventInvitationAccepted       EventType = "invitation.accepted"
)

// DomainEvent 领域事件，和触发它的状态变更写在同一事务里（outbox）。
// dispatched_at 为空表示通知尚未生成
type DomainEvent struct {
	ID                 uint          `json:"id" gorm:"primarykey"`
	OrganizationID     uint          `json:"organization_id" gorm:"not null;index"`
	Type               EventType     `json:"type" gorm:"size:50;not null"`
	ActorID            uint          `json:"actor_id" gorm:"not null"`
	RequestID          *uint         `json:"request_id" gorm:"index"`
	InvitationID       *uint         `json:"invitation_id"`
	PreviousStatus     RequestStatus `json:"previous_status" gorm:"size:20"`
	NewStatus          RequestStatus `json:"new_status" gorm:"size:20"`
	AssigneeID         *uint         `json:"assignee_id"`
	PreviousAssigneeID *uint         `json:"previous_assignee_id"`
	CommentID          *uint         `json:"comment_id"`
	CommentInternal    bool          `json:"comment_internal"`
	DispatchedAt       *time.Time    `json:"dispatched_at" gorm:"index"`
	Attempts           int           `json:"attempts" gorm:"not null;default:0"`
	CreatedAt          time.Time     `json:"created_at"`
}

// TableName 表名
func (DomainEvent) TableName() string {
	return "domain_events"
}
