package models

import (
	"time"
)

// RequestStatus 报修单状态，封闭枚举
type RequestStatus string

const (
	StatusSubmitted  RequestStatus = "submitted"
	StatusAssigned   RequestStatus = "assigned"
	StatusInProgress RequestStatus = "in_progress"
	StatusCompleted  RequestStatus = "completed"
	StatusCancelled  RequestStatus = "cancelled"
)

// Valid 是否为已知状态
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusSubmitted, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal completed 和 cancelled 为终态
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// HasAssignee 该状态下 assigned_to 必须非空
func (s RequestStatus) HasAssignee() bool {
	return s == StatusAssigned || s == StatusInProgress || s == StatusCompleted
}

// RequestPriority 优先级
type RequestPriority string

const (
	PriorityLow       RequestPriority = "low"
	PriorityNormal    RequestPriority = "normal"
	PriorityHigh      RequestPriority = "high"
	PriorityEmergency RequestPriority = "emergency"
)

// Valid 是否为已知优先级
func (p RequestPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityEmergency:
		return true
	}
	return false
}

// MaintenanceRequest 报修单
type MaintenanceRequest struct {
	BaseModel
	OrganizationID uint            `json:"organization_id" gorm:"not null;index"`
	PropertyID     uint            `json:"property_id" gorm:"not null;index"`
	UnitID         uint            `json:"unit_id" gorm:"not null;index"`
	TenantID       uint            `json:"tenant_id" gorm:"not null;index"`
	AssignedTo     *uint           `json:"assigned_to" gorm:"index"`
	Status         RequestStatus   `json:"status" gorm:"size:20;not null;index;default:'submitted'"`
	Priority       RequestPriority `json:"priority" gorm:"size:20;not null;default:'normal'"`
	Category       string          `json:"category" gorm:"size:50"`
	Title          string          `json:"title" gorm:"not null;size:200"`
	Description    string          `json:"description" gorm:"type:text"`
	RowVersion     int64           `json:"row_version" gorm:"not null;default:1"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
}

// TableName 表名
func (MaintenanceRequest) TableName() string {
	return "maintenance_requests"
}

// IsAssignedTo 是否分配给指定账号
func (r *MaintenanceRequest) IsAssignedTo(actorID uint) bool {
	return r.AssignedTo != nil && *r.AssignedTo == actorID
}

// Comment 报修单评论，内部评论对租客不可见
type Comment struct {
	BaseModel
	OrganizationID uint   `json:"organization_id" gorm:"not null;index"`
	RequestID      uint   `json:"request_id" gorm:"not null;index"`
	AuthorID       uint   `json:"author_id" gorm:"not null"`
	Text           string `json:"text" gorm:"type:text;not null"`
	IsInternal     bool   `json:"is_internal" gorm:"default:false"`
}

// TableName 表名
func (Comment) TableName() string {
	return "request_comments"
}
