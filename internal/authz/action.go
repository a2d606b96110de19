package authz

// Action 操作标签，形如 <资源>.<动作>
type Action string

const (
	ActionRequestCreate         Action = "request.create"
	ActionRequestRead           Action = "request.read"
	ActionRequestUpdateStatus   Action = "request.update_status"
	ActionRequestUpdatePriority Action = "request.update_priority"
	ActionRequestAssign         Action = "request.assign"
	ActionRequestSelfAssign     Action = "request.self_assign"
	ActionRequestUnassign       Action = "request.unassign"
	ActionRequestDelete         Action = "request.delete"

	ActionCommentCreate         Action = "comment.create"
	ActionCommentCreateInternal Action = "comment.create_internal"
	ActionCommentReadInternal   Action = "comment.read_internal"

	ActionPropertyRead   Action = "property.read"
	ActionPropertyManage Action = "property.manage"
	ActionUnitManage     Action = "unit.manage"

	ActionTenantRead    Action = "tenant.read"
	ActionTenantManage  Action = "tenant.manage"
	ActionTenantDelete  Action = "tenant.delete"
	ActionWorkerRead    Action = "worker.read"
	ActionWorkerManage  Action = "worker.manage"
	ActionWorkerDelete  Action = "worker.delete"
	ActionManagerRead   Action = "manager.read"
	ActionManagerManage Action = "manager.manage"
	ActionManagerUpdate Action = "manager.update"
	ActionManagerDelete Action = "manager.delete"

	ActionInviteTenant  Action = "invitation.issue_tenant"
	ActionInviteWorker  Action = "invitation.issue_worker"
	ActionInviteManager Action = "invitation.issue_manager"
	ActionInviteList    Action = "invitation.list"
	ActionInviteRevoke  Action = "invitation.revoke"

	ActionOrganizationRead   Action = "organization.read"
	ActionOrganizationUpdate Action = "organization.update"
)

// AllActions 全部已知操作
var AllActions = []Action{
	ActionRequestCreate,
	ActionRequestRead,
	ActionRequestUpdateStatus,
	ActionRequestUpdatePriority,
	ActionRequestAssign,
	ActionRequestSelfAssign,
	ActionRequestUnassign,
	ActionRequestDelete,
	ActionCommentCreate,
	ActionCommentCreateInternal,
	ActionCommentReadInternal,
	ActionPropertyRead,
	ActionPropertyManage,
	ActionUnitManage,
	ActionTenantRead,
	ActionTenantManage,
	ActionTenantDelete,
	ActionWorkerRead,
	ActionWorkerManage,
	ActionWorkerDelete,
	ActionManagerRead,
	ActionManagerManage,
	ActionManagerUpdate,
	ActionManagerDelete,
	ActionInviteTenant,
	ActionInviteWorker,
	ActionInviteManager,
	ActionInviteList,
	ActionInviteRevoke,
	ActionOrganizationRead,
	ActionOrganizationUpdate,
}

var knownActions = func() map[Action]struct{} {
	m := make(map[Action]struct{}, len(AllActions))
	for _, a := range AllActions {
		m[a] = struct{}{}
	}
	return m
}()

// Valid 是否为已知操作
func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}
