package authz

import (
	"testing"

	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	apperrors "github.com/Dungyy/Gerz-platform-sub000/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const org = uint(1)

func uintPtr(v uint) *uint { return &v }

var (
	owner   = Actor{ID: 1, OrganizationID: org, Role: models.RoleOwner}
	manager = Actor{ID: 2, OrganizationID: org, Role: models.RoleManager}
	worker  = Actor{ID: 3, OrganizationID: org, Role: models.RoleWorker}
	tenant  = Actor{ID: 4, OrganizationID: org, Role: models.RoleTenant}
)

func TestAuthorizeOrgMismatchAlwaysDenies(t *testing.T) {
	other := Resource{OrganizationID: 99, TenantID: tenant.ID, AssignedTo: uintPtr(worker.ID), AccountID: owner.ID}
	for _, actor := range []Actor{owner, manager, worker, tenant} {
		for _, action := range AllActions {
			d, err := Authorize(actor, action, other)
			require.NoError(t, err)
			assert.False(t, d.Allowed, "%s %s", actor.Role, action)
			assert.Equal(t, ReasonOrgMismatch, d.Reason)
		}
	}
}

func TestAuthorizeOwnerUnrestricted(t *testing.T) {
	for _, action := range AllActions {
		d, err := Authorize(owner, action, OrgResource(org))
		require.NoError(t, err)
		assert.True(t, d.Allowed, string(action))
	}
}

func TestAuthorizeManager(t *testing.T) {
	denied := map[Action]bool{
		ActionInviteManager:      true,
		ActionManagerManage:      true,
		ActionManagerDelete:      true,
		ActionManagerUpdate:      true, // 目标是其他经理
		ActionOrganizationUpdate: true,
	}
	res := Resource{OrganizationID: org, AccountID: 50}
	for _, action := range AllActions {
		d, err := Authorize(manager, action, res)
		require.NoError(t, err)
		assert.Equal(t, !denied[action], d.Allowed, string(action))
	}

	d, _ := Authorize(manager, ActionManagerUpdate, Resource{OrganizationID: org, AccountID: manager.ID})
	assert.True(t, d.Allowed, "manager may edit own account")

	d, _ = Authorize(manager, ActionManagerDelete, Resource{OrganizationID: org, AccountID: 50})
	assert.Equal(t, ReasonRoleInsufficient, d.Reason)
}

func TestAuthorizeTenantReadsOnlyOwnRequests(t *testing.T) {
	own := Resource{OrganizationID: org, TenantID: tenant.ID}
	others := Resource{OrganizationID: org, TenantID: 77}

	d, err := Authorize(tenant, ActionRequestRead, own)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = Authorize(tenant, ActionRequestRead, others)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotOwner, d.Reason)

	d, _ = Authorize(tenant, ActionCommentCreate, others)
	assert.False(t, d.Allowed)
}

func TestAuthorizeTenantRestrictions(t *testing.T) {
	own := Resource{OrganizationID: org, TenantID: tenant.ID}
	for _, action := range []Action{
		ActionCommentCreateInternal,
		ActionCommentReadInternal,
		ActionRequestAssign,
		ActionRequestSelfAssign,
		ActionRequestDelete,
		ActionRequestUpdateStatus,
		ActionInviteTenant,
		ActionPropertyManage,
	} {
		d, err := Authorize(tenant, action, own)
		require.NoError(t, err)
		assert.False(t, d.Allowed, string(action))
		assert.Equal(t, ReasonRoleInsufficient, d.Reason, string(action))
	}
}

func TestAuthorizeTenantCreateRequiresOccupiedUnit(t *testing.T) {
	d, _ := Authorize(tenant, ActionRequestCreate, Resource{OrganizationID: org, OccupantID: uintPtr(tenant.ID)})
	assert.True(t, d.Allowed)

	d, _ = Authorize(tenant, ActionRequestCreate, Resource{OrganizationID: org, OccupantID: uintPtr(88)})
	assert.Equal(t, ReasonNotOwner, d.Reason)

	d, _ = Authorize(tenant, ActionRequestCreate, Resource{OrganizationID: org})
	assert.Equal(t, ReasonNotOwner, d.Reason)
}

func TestAuthorizeWorker(t *testing.T) {
	mine := Resource{OrganizationID: org, TenantID: tenant.ID, AssignedTo: uintPtr(worker.ID)}
	theirs := Resource{OrganizationID: org, TenantID: tenant.ID, AssignedTo: uintPtr(55)}
	open := Resource{OrganizationID: org, TenantID: tenant.ID}

	for _, action := range []Action{ActionRequestRead, ActionRequestUpdateStatus, ActionCommentCreate, ActionCommentCreateInternal} {
		d, _ := Authorize(worker, action, mine)
		assert.True(t, d.Allowed, string(action))

		d, _ = Authorize(worker, action, theirs)
		assert.Equal(t, ReasonNotOwner, d.Reason, string(action))
	}

	d, _ := Authorize(worker, ActionRequestSelfAssign, open)
	assert.True(t, d.Allowed)

	d, _ = Authorize(worker, ActionRequestSelfAssign, theirs)
	assert.False(t, d.Allowed)

	for _, action := range []Action{ActionRequestCreate, ActionRequestAssign, ActionInviteWorker, ActionPropertyManage, ActionUnitManage} {
		d, _ := Authorize(worker, action, mine)
		assert.Equal(t, ReasonRoleInsufficient, d.Reason, string(action))
	}
}

func TestAuthorizeMalformedInput(t *testing.T) {
	_, err := Authorize(Actor{}, ActionRequestRead, OrgResource(org))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = Authorize(Actor{ID: 1, OrganizationID: org, Role: "janitor"}, ActionRequestRead, OrgResource(org))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = Authorize(owner, Action("request.explode"), OrgResource(org))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = Authorize(owner, ActionRequestRead, Resource{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRequireMapsReasonsToErrors(t *testing.T) {
	err := Require(tenant, ActionRequestRead, Resource{OrganizationID: org, TenantID: 77})
	assert.ErrorIs(t, err, apperrors.ErrNotResourceOwner)

	err = Require(tenant, ActionRequestRead, Resource{OrganizationID: 2})
	assert.ErrorIs(t, err, apperrors.ErrOrgMismatch)

	err = Require(worker, ActionInviteWorker, OrgResource(org))
	assert.ErrorIs(t, err, apperrors.ErrRoleInsufficient)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindForbidden, appErr.Kind)

	assert.NoError(t, Require(owner, ActionOrganizationUpdate, OrgResource(org)))
}

func TestEveryRoleHasAnEntryForEveryActionOrDenies(t *testing.T) {
	for _, role := range models.AllRoles {
		_, ok := capabilities[role]
		require.True(t, ok, string(role))
	}
	for _, action := range AllActions {
		assert.True(t, action.Valid())
	}
}
