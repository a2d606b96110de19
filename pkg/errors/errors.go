package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ========== 错误码常量定义 ==========

// CodeSuccess 成功码
const (
	CodeSuccess = 200
)

// HTTP层错误码 (400-599)
const (
	CodeInvalidParam = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeConflict     = 409
	CodeServerError  = 500
)

// Kind 错误分类，决定对外的HTTP状态
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// AppError 业务错误。Reason 是机器可读的原因码，Message 可以直接展示给用户
type AppError struct {
	Kind    Kind
	Reason  string
	Message string
	Details map[string]interface{}
	cause   error
}

func New(kind Kind, reason, message string) *AppError {
	return &AppError{Kind: kind, Reason: reason, Message: message}
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s(%s): %s: %v", e.Kind, e.Reason, e.Message, e.cause)
	}
	return fmt.Sprintf("%s(%s): %s", e.Kind, e.Reason, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// Is 按 Kind + Reason 比较，方便 errors.Is(err, ErrTokenExpired)
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

// WithMessage 返回替换了提示信息的副本
func (e *AppError) WithMessage(message string) *AppError {
	cp := *e
	cp.Message = message
	return &cp
}

// WithDetails 返回附带详情的副本
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// Wrap 返回携带底层错误的副本
func (e *AppError) Wrap(cause error) *AppError {
	cp := *e
	cp.cause = cause
	return &cp
}

// HTTPStatus 错误分类对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ========== 快捷构造 ==========

func Unauthorized(message string) *AppError {
	return New(KindUnauthorized, "unauthorized", message)
}

func Forbidden(reason, message string) *AppError {
	return New(KindForbidden, reason, message)
}

func NotFound(message string) *AppError {
	return New(KindNotFound, "not_found", message)
}

func Validation(reason, message string) *AppError {
	return New(KindValidation, reason, message)
}

func Conflict(reason, message string) *AppError {
	return New(KindConflict, reason, message)
}

func Internal(message string, cause error) *AppError {
	return New(KindInternal, "internal", message).Wrap(cause)
}

// ========== 预定义错误 ==========

var (
	ErrNotFound         = NotFound("资源不存在")
	ErrUnauthorized     = Unauthorized("请先登录")
	ErrInvalidInput     = Validation("invalid_input", "请求参数错误")
	ErrForbidden        = Forbidden("forbidden", "权限不足")
	ErrOrgMismatch      = Forbidden("org_mismatch", "无权访问其他组织的数据")
	ErrRoleInsufficient = Forbidden("role_insufficient", "当前角色无权执行该操作")
	ErrNotResourceOwner = Forbidden("not_owner_of_resource", "只能操作与自己相关的资源")

	// 报修单状态机
	ErrInvalidTransition      = Validation("invalid_transition", "当前状态不允许该操作")
	ErrNotAssignee            = Forbidden("not_assignee", "该报修单未分配给你")
	ErrConcurrentModification = Conflict("concurrent_modification", "报修单已被其他人修改，请刷新后重试")

	// 邀请
	ErrTokenNotFound    = Validation("token_not_found", "邀请不存在")
	ErrTokenExpired     = Validation("token_expired", "邀请已过期")
	ErrAlreadyRedeemed  = Conflict("already_redeemed", "邀请已被使用")
	ErrEmailMismatch    = Validation("email_mismatch", "邀请邮箱不匹配")
	ErrDuplicatePending = Conflict("duplicate_pending", "该邮箱已有待处理的邀请")
	ErrAlreadyMember    = Conflict("already_member", "该邮箱已是组织成员")

	// 用量
	ErrLimitExceeded = Conflict("limit_exceeded", "已达到当前套餐的数量上限")

	// 账号
	ErrActiveAssignments = Conflict("active_assignments", "该维修人员仍有未完成的报修单，请先重新分配")
)

// As 取出 *AppError，不是业务错误时返回 false
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
