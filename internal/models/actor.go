package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

// Role 角色，封闭枚举
type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleWorker  Role = "worker"
	RoleTenant  Role = "tenant"
)

// AllRoles 所有角色
var AllRoles = []Role{RoleOwner, RoleManager, RoleWorker, RoleTenant}

// Valid 是否为已知角色
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleWorker, RoleTenant:
		return true
	}
	return false
}

// IsStaff 非租客角色，可以看到内部备注
func (r Role) IsStaff() bool {
	return r == RoleOwner || r == RoleManager || r == RoleWorker
}

// IsAdmin owner 或 manager
func (r Role) IsAdmin() bool {
	return r == RoleOwner || r == RoleManager
}

// ParseRole 解析角色字符串
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// Actor 组织内的一个账号（档案）。角色 + 组织ID 决定授权范围
type Actor struct {
	BaseModel
	OrganizationID uint                                 `json:"organization_id" gorm:"not null;uniqueIndex:idx_actor_org_email"`
	Role           Role                                 `json:"role" gorm:"size:20;not null;index"`
	Email          string                               `json:"email" gorm:"size:200;not null;uniqueIndex:idx_actor_org_email"`
	Name           string                               `json:"name" gorm:"size:100"`
	Phone          *string                              `json:"phone" gorm:"size:32"`
	PasswordHash   string                               `json:"-" gorm:"size:255;not null"`
	UnitID         *uint                                `json:"unit_id"` // 仅租客，当前入住的单元
	Preferences    datatypes.JSONType[NotificationPrefs] `json:"preferences"`
	InvitedBy      *uint                                `json:"invited_by"`
	RemovedAt      *time.Time                           `json:"removed_at,omitempty" gorm:"index"`
	LastLoginAt    *time.Time                           `json:"last_login_at"`
}

// TableName 表名
func (Actor) TableName() string {
	return "actors"
}

// IsActive 未被移出组织
func (a *Actor) IsActive() bool {
	return a.RemovedAt == nil
}

// Prefs 通知偏好
func (a *Actor) Prefs() NotificationPrefs {
	return a.Preferences.Data()
}

// PhoneNumber 手机号，未设置时为空串
func (a *Actor) PhoneNumber() string {
	if a.Phone == nil {
		return ""
	}
	return *a.Phone
}

// SetPassword 设置密码
func (a *Actor) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = string(hashedPassword)
	return nil
}

// CheckPassword 验证密码
func (a *Actor) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password))
	return err == nil
}
