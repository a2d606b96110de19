// Package authz 组织范围内的授权判定。
//
// Authorize 是纯函数：先比对组织，再查 (角色, 操作) 能力表。
// 预期内的拒绝通过 Decision 返回，只有入参不合法时才返回 error。
package authz

import (
	"fmt"

	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	apperrors "github.com/Dungyy/Gerz-platform-sub000/pkg/errors"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/metrics"
)

// Reason 拒绝原因
type Reason string

const (
	ReasonOrgMismatch      Reason = "org_mismatch"
	ReasonRoleInsufficient Reason = "role_insufficient"
	ReasonNotOwner         Reason = "not_owner_of_resource"
)

// Actor 发起操作的账号
type Actor struct {
	ID             uint
	OrganizationID uint
	Role           models.Role
}

// ActorFrom 从账号模型构造
func ActorFrom(a *models.Actor) Actor {
	return Actor{ID: a.ID, OrganizationID: a.OrganizationID, Role: a.Role}
}

// Resource 被操作的资源。只填和当前操作相关的字段
type Resource struct {
	OrganizationID uint
	TenantID       uint  // 报修单的租客
	AssignedTo     *uint // 报修单当前处理人
	OccupantID     *uint // 单元当前住户，创建报修单时使用
	AccountID      uint  // 账号类操作的目标账号
}

// RequestResource 报修单对应的资源描述
func RequestResource(r *models.MaintenanceRequest) Resource {
	return Resource{
		OrganizationID: r.OrganizationID,
		TenantID:       r.TenantID,
		AssignedTo:     r.AssignedTo,
	}
}

// OrgResource 只带组织的资源
func OrgResource(orgID uint) Resource {
	return Resource{OrganizationID: orgID}
}

// Decision 判定结果
type Decision struct {
	Allowed bool
	Reason  Reason
}

var allow = Decision{Allowed: true}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Err 拒绝时对应的业务错误，允许时为 nil
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonOrgMismatch:
		return apperrors.ErrOrgMismatch
	case ReasonNotOwner:
		return apperrors.ErrNotResourceOwner
	default:
		return apperrors.ErrRoleInsufficient
	}
}

// Authorize 判定 actor 能否对 resource 执行 action
func Authorize(actor Actor, action Action, resource Resource) (Decision, error) {
	if actor.ID == 0 || actor.OrganizationID == 0 {
		return Decision{}, apperrors.ErrInvalidInput.WithMessage("缺少操作者身份")
	}
	if !actor.Role.Valid() {
		return Decision{}, apperrors.ErrInvalidInput.WithMessage(fmt.Sprintf("未知角色: %s", actor.Role))
	}
	if !action.Valid() {
		return Decision{}, apperrors.ErrInvalidInput.WithMessage(fmt.Sprintf("未知操作: %s", action))
	}
	if resource.OrganizationID == 0 {
		return Decision{}, apperrors.ErrInvalidInput.WithMessage("资源缺少组织")
	}

	if actor.OrganizationID != resource.OrganizationID {
		return deny(ReasonOrgMismatch), nil
	}

	check, ok := capabilities[actor.Role][action]
	if !ok {
		return deny(ReasonRoleInsufficient), nil
	}
	if reason := check(actor, resource); reason != "" {
		return deny(reason), nil
	}
	return allow, nil
}

// Require 授权并转换成错误，拒绝时计数
func Require(actor Actor, action Action, resource Resource) error {
	decision, err := Authorize(actor, action, resource)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		metrics.AuthorizationDenials.WithLabelValues(string(decision.Reason)).Inc()
		return decision.Err()
	}
	return nil
}

// Can 只关心是否允许
func Can(actor Actor, action Action, resource Resource) bool {
	decision, err := Authorize(actor, action, resource)
	return err == nil && decision.Allowed
}
