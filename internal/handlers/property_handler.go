package handlers

import (
	"github.com/Dungyy/Gerz-platform-sub000/internal/services"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/pagination"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// PropertyHandler 物业和单元
type PropertyHandler struct {
	properties *services.PropertyService
}

// NewPropertyHandler 创建物业处理器
func NewPropertyHandler(properties *services.PropertyService) *PropertyHandler {
	return &PropertyHandler{properties: properties}
}

// CreateProperty 创建物业
func (h *PropertyHandler) CreateProperty(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req services.CreatePropertyRequest
	if !bindJSON(c, &req) {
		return
	}
	property, err := h.properties.CreateProperty(c.Request.Context(), actor, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, property)
}

// ListProperties 物业列表
func (h *PropertyHandler) ListProperties(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	page := pagination.ParsePageParams(c)
	list, total, err := h.properties.ListProperties(c.Request.Context(), actor, page)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithPage(c, list, pagination.NewPageInfo(page.Page, page.PageSize, total))
}

// CreateUnit 创建单元
func (h *PropertyHandler) CreateUnit(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	propertyID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.CreateUnitRequest
	if !bindJSON(c, &req) {
		return
	}
	unit, err := h.properties.CreateUnit(c.Request.Context(), actor, propertyID, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, unit)
}

// ListUnits 单元列表
func (h *PropertyHandler) ListUnits(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	propertyID, ok := parseID(c, "id")
	if !ok {
		return
	}
	units, err := h.properties.ListUnits(c.Request.Context(), actor, propertyID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, units)
}
