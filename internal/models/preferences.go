package models

// PrefGroup 通知偏好分组
type PrefGroup string

const (
	PrefNewRequest   PrefGroup = "new_request"
	PrefAssignment   PrefGroup = "assignment"
	PrefStatusUpdate PrefGroup = "status_update"
	PrefComment      PrefGroup = "comment"
	PrefEmergency    PrefGroup = "emergency"
	PrefInvitation   PrefGroup = "invitation"
)

// EventPref 单个分组的开关和渠道
type EventPref struct {
	Enabled bool `json:"enabled"`
	Email   bool `json:"email"`
	SMS     bool `json:"sms"`
}

// NotificationPrefs 用户通知偏好
type NotificationPrefs struct {
	NewRequest   EventPref `json:"new_request"`
	Assignment   EventPref `json:"assignment"`
	StatusUpdate EventPref `json:"status_update"`
	Comment      EventPref `json:"comment"`
	Emergency    EventPref `json:"emergency"`
	Invitation   EventPref `json:"invitation"`
}

// DefaultNotificationPrefs 默认全部开启站内信和邮件，短信关闭
func DefaultNotificationPrefs() NotificationPrefs {
	on := EventPref{Enabled: true, Email: true}
	return NotificationPrefs{
		NewRequest:   on,
		Assignment:   on,
		StatusUpdate: on,
		Comment:      on,
		Emergency:    on,
		Invitation:   on,
	}
}

// For 取某个分组的偏好
func (p NotificationPrefs) For(group PrefGroup) EventPref {
	switch group {
	case PrefNewRequest:
		return p.NewRequest
	case PrefAssignment:
		return p.Assignment
	case PrefStatusUpdate:
		return p.StatusUpdate
	case PrefComment:
		return p.Comment
	case PrefEmergency:
		return p.Emergency
	case PrefInvitation:
		return p.Invitation
	}
	return EventPref{}
}
