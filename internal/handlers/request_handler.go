package handlers

import (
	"strconv"

	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	"github.com/Dungyy/Gerz-platform-sub000/internal/services"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/errors"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/pagination"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// RequestHandler 报修单
type RequestHandler struct {
	requests *services.RequestService
}

// NewRequestHandler 创建报修单处理器
func NewRequestHandler(requests *services.RequestService) *RequestHandler {
	return &RequestHandler{requests: requests}
}

// UpdateRequestBody 修改报修单，一次只能做一种修改
type UpdateRequestBody struct {
	Status     *models.RequestStatus   `json:"status"`
	Priority   *models.RequestPriority `json:"priority"`
	AssignedTo *uint                   `json:"assigned_to"`
	Unassign   bool                    `json:"unassign"`
}

// Create 创建报修单
// @Summary 创建报修单
// @Tags 报修
// @Accept json
// @Produce json
// @Param request body services.CreateRequestInput true "报修内容"
// @Success 201 {object} response.Response{data=models.MaintenanceRequest}
// @Router /api/v1/requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var in services.CreateRequestInput
	if !bindJSON(c, &in) {
		return
	}
	req, err := h.requests.Create(c.Request.Context(), actor, &in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, req)
}

// List 报修单列表，按角色过滤可见范围
func (h *RequestHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	filter := services.RequestFilter{
		Status: models.RequestStatus(c.Query("status")),
		Page:   pagination.ParsePageParams(c),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		response.FromError(c, errors.ErrInvalidInput.WithMessage("无效的状态"))
		return
	}
	if raw := c.Query("property_id"); raw != "" {
		propertyID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			response.FromError(c, errors.ErrInvalidInput.WithMessage("property_id 格式错误"))
			return
		}
		filter.PropertyID = uint(propertyID)
	}

	list, total, err := h.requests.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithPage(c, list, pagination.NewPageInfo(filter.Page.Page, filter.Page.PageSize, total))
}

// Get 报修单详情
func (h *RequestHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	req, err := h.requests.Get(c.Request.Context(), actor, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, req)
}

// Update 修改状态、优先级或处理人
// @Summary 修改报修单
// @Tags 报修
// @Accept json
// @Produce json
// @Param id path int true "报修单ID"
// @Param request body UpdateRequestBody true "status / priority / assigned_to / unassign 之一"
// @Success 200 {object} response.Response{data=models.MaintenanceRequest}
// @Router /api/v1/requests/{id} [put]
func (h *RequestHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body UpdateRequestBody
	if !bindJSON(c, &body) {
		return
	}

	changes := 0
	for _, set := range []bool{body.Status != nil, body.Priority != nil, body.AssignedTo != nil, body.Unassign} {
		if set {
			changes++
		}
	}
	if changes != 1 {
		response.FromError(c, errors.ErrInvalidInput.WithMessage("status、priority、assigned_to、unassign 必须且只能提供一个"))
		return
	}

	ctx := c.Request.Context()
	var (
		req *models.MaintenanceRequest
		err error
	)
	switch {
	case body.Status != nil:
		req, err = h.requests.SetStatus(ctx, actor, id, *body.Status)
	case body.Priority != nil:
		req, err = h.requests.UpdatePriority(ctx, actor, id, *body.Priority)
	case body.AssignedTo != nil:
		req, err = h.requests.Assign(ctx, actor, id, *body.AssignedTo)
	default:
		req, err = h.requests.Unassign(ctx, actor, id)
	}
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, req)
}

// Delete 删除报修单
func (h *RequestHandler) Delete(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.requests.Delete(c.Request.Context(), actor, id); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "报修单已删除", nil)
}

// ListComments 评论列表，租客看不到内部评论
func (h *RequestHandler) ListComments(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	comments, err := h.requests.ListComments(c.Request.Context(), actor, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, comments)
}

// AddComment 添加评论
func (h *RequestHandler) AddComment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in services.AddCommentInput
	if !bindJSON(c, &in) {
		return
	}
	comment, err := h.requests.AddComment(c.Request.Context(), actor, id, &in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, comment)
}
