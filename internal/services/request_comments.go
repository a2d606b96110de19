package services

import (
	"context"
	"strings"

	"github.com/Dungyy/Gerz-platform-sub000/internal/authz"
	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	apperrors "github.com/Dungyy/Gerz-platform-sub000/pkg/errors"

	"gorm.io/gorm"
)

// AddCommentInput 添加评论
type AddCommentInput struct {
	Text       string `json:"text" binding:"required,max=5000"`
	IsInternal bool   `json:"is_internal"`
}

// AddComment 添加评论，不影响报修单状态。内部评论只有员工角色可以写
func (s *RequestService) AddComment(ctx context.Context, actor *models.Actor, requestID uint, in *AddCommentInput) (*models.Comment, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, apperrors.ErrInvalidInput.WithMessage("评论内容不能为空")
	}
	req, err := s.load(ctx, actor.OrganizationID, requestID)
	if err != nil {
		return nil, err
	}

	action := authz.ActionCommentCreate
	if in.IsInternal {
		action = authz.ActionCommentCreateInternal
	}
	if err := authz.Require(authz.ActorFrom(actor), action, authz.RequestResource(req)); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		OrganizationID: req.OrganizationID,
		RequestID:      req.ID,
		AuthorID:       actor.ID,
		Text:           text,
		IsInternal:     in.IsInternal,
	}
	var evt *models.DomainEvent
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		evt = s.newEvent(req, actor, models.EventRequestCommentAdded, req.Status, req.Status)
		evt.CommentID = uintPtr(comment.ID)
		evt.CommentInternal = comment.IsInternal
		evt.AssigneeID = req.AssignedTo
		return tx.Create(evt).Error
	})
	if err != nil {
		return nil, wrapTxError(err, "添加评论失败")
	}

	s.publish([]*models.DomainEvent{evt})
	return comment, nil
}

// ListComments 评论列表，租客看不到内部评论
func (s *RequestService) ListComments(ctx context.Context, actor *models.Actor, requestID uint) ([]models.Comment, error) {
	req, err := s.Get(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).
		Where("request_id = ? AND organization_id = ?", req.ID, req.OrganizationID)
	if !authz.Can(authz.ActorFrom(actor), authz.ActionCommentReadInternal, authz.RequestResource(req)) {
		query = query.Where("is_internal = ?", false)
	}

	var comments []models.Comment
	if err := query.Order("created_at ASC, id ASC").Find(&comments).Error; err != nil {
		return nil, apperrors.Internal("查询评论失败", err)
	}
	return comments, nil
}
