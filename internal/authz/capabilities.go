package authz

import (
	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
)

// check 返回空串表示允许
type check func(actor Actor, resource Resource) Reason

func always(Actor, Resource) Reason { return "" }

func ownRequest(a Actor, r Resource) Reason {
	if r.TenantID == a.ID {
		return ""
	}
	return ReasonNotOwner
}

func assignedToSelf(a Actor, r Resource) Reason {
	if r.AssignedTo != nil && *r.AssignedTo == a.ID {
		return ""
	}
	return ReasonNotOwner
}

// 改派是管理权限，维修人员只能领取无人处理的单子
func unassigned(_ Actor, r Resource) Reason {
	if r.AssignedTo == nil {
		return ""
	}
	return ReasonRoleInsufficient
}

func occupiesUnit(a Actor, r Resource) Reason {
	if r.OccupantID != nil && *r.OccupantID == a.ID {
		return ""
	}
	return ReasonNotOwner
}

func ownAccount(a Actor, r Resource) Reason {
	if r.AccountID == a.ID {
		return ""
	}
	return ReasonNotOwner
}

// capabilities 能力表，未出现的 (角色, 操作) 一律 role_insufficient
var capabilities = map[models.Role]map[Action]check{
	models.RoleTenant: {
		ActionRequestCreate:    occupiesUnit,
		ActionRequestRead:      ownRequest,
		ActionCommentCreate:    ownRequest,
		ActionTenantRead:       ownAccount,
		ActionOrganizationRead: always,
	},
	models.RoleWorker: {
		ActionRequestRead:           assignedToSelf,
		ActionRequestUpdateStatus:   assignedToSelf,
		ActionRequestSelfAssign:     unassigned,
		ActionCommentCreate:         assignedToSelf,
		ActionCommentCreateInternal: assignedToSelf,
		ActionCommentReadInternal:   assignedToSelf,
		ActionPropertyRead:          always,
		ActionWorkerRead:            ownAccount,
		ActionOrganizationRead:      always,
	},
	models.RoleManager: managerCapabilities(),
	models.RoleOwner:   ownerCapabilities(),
}

func managerCapabilities() map[Action]check {
	m := make(map[Action]check, len(AllActions))
	for _, action := range AllActions {
		m[action] = always
	}
	// 不能邀请或删除同级经理，也不能改组织设置
	delete(m, ActionInviteManager)
	delete(m, ActionManagerManage)
	delete(m, ActionManagerDelete)
	delete(m, ActionOrganizationUpdate)
	m[ActionManagerUpdate] = ownAccount
	return m
}

func ownerCapabilities() map[Action]check {
	m := make(map[Action]check, len(AllActions))
	for _, action := range AllActions {
		m[action] = always
	}
	return m
}
