package handlers

import (
	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	"github.com/Dungyy/Gerz-platform-sub000/internal/services"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/pagination"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// AccountHandler 经理、维修人员、租客账号。同一组处理函数按角色挂到不同路径
type AccountHandler struct {
	accounts *services.AccountService
}

// NewAccountHandler 创建账号处理器
func NewAccountHandler(accounts *services.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// AssignUnitRequest 租客搬入单元
type AssignUnitRequest struct {
	UnitID uint `json:"unit_id" binding:"required"`
}

// List 某个角色的账号列表
func (h *AccountHandler) List(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		page := pagination.ParsePageParams(c)
		list, total, err := h.accounts.List(c.Request.Context(), actor, role, page)
		if err != nil {
			response.FromError(c, err)
			return
		}
		response.SuccessWithPage(c, list, pagination.NewPageInfo(page.Page, page.PageSize, total))
	}
}

// Get 账号详情
func (h *AccountHandler) Get(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		account, err := h.accounts.Get(c.Request.Context(), actor, role, id)
		if err != nil {
			response.FromError(c, err)
			return
		}
		response.Success(c, account)
	}
}

// Create 直接创建账号
func (h *AccountHandler) Create(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		var req services.CreateAccountRequest
		if !bindJSON(c, &req) {
			return
		}
		account, err := h.accounts.Create(c.Request.Context(), actor, role, &req)
		if err != nil {
			response.FromError(c, err)
			return
		}
		response.Created(c, account)
	}
}

// Delete 移出组织
func (h *AccountHandler) Delete(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		if err := h.accounts.Delete(c.Request.Context(), actor, role, id); err != nil {
			response.FromError(c, err)
			return
		}
		response.SuccessWithMessage(c, "账号已移除", nil)
	}
}

// AssignUnit 租客搬入单元
func (h *AccountHandler) AssignUnit(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req AssignUnitRequest
	if !bindJSON(c, &req) {
		return
	}
	tenant, err := h.accounts.AssignUnit(c.Request.Context(), actor, id, req.UnitID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, tenant)
}

// UpdateProfile 修改自己的资料和通知偏好
func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req services.UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := h.accounts.UpdateProfile(c.Request.Context(), actor, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, updated)
}
