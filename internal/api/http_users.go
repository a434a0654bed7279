package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"genstudio/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func (h *HTTPHandler) ListUsers(c *gin.Context) {
	var query entity.UserQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid query parameters")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	users, meta, err := h.repo.ListUsers(ctx, &query)
	if err != nil {
		logrus.WithError(err).Error("failed to list users")
		InternalError(c, "failed to load users")
		return
	}

	response := entity.UserListResponse{
		Users: make([]entity.UserSummary, 0, len(users)),
		Meta:  meta,
	}
	for idx := range users {
		response.Users = append(response.Users, makeUserSummary(&users[idx]))
	}

	c.JSON(http.StatusOK, response)
}

// UpdateUserTier 变更套餐等级，默认把额度重置为新等级的配额
func (h *HTTPHandler) UpdateUserTier(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		BadRequest(c, ErrCodeInvalidRequest, "invalid user id")
		return
	}

	var req entity.TierUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	tier, valid := entity.ParseTier(req.Tier)
	if !valid {
		BadRequest(c, ErrCodeInvalidRequest, "invalid tier")
		return
	}

	updates := entity.UserUpdates{Tier: &tier}
	if !req.KeepCredits {
		allotment := entity.AllotmentFor(tier)
		updates.ImageCredits = &allotment.ImageCredits
		updates.VideoCredits = &allotment.VideoCredits
	}

	h.applyUserUpdates(c, id, updates)
}

// UpdateUserCredits 设置或增减额度；同时给出时以设置值为准
func (h *HTTPHandler) UpdateUserCredits(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		BadRequest(c, ErrCodeInvalidRequest, "invalid user id")
		return
	}

	var req entity.CreditUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	if (req.ImageCredits != nil && *req.ImageCredits < 0) || (req.VideoCredits != nil && *req.VideoCredits < 0) {
		BadRequest(c, ErrCodeInvalidRequest, "credits must not be negative")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	adjustments := []struct {
		counter entity.CreditCounter
		set     *int
		delta   int
	}{
		{entity.CounterImage, req.ImageCredits, req.ImageDelta},
		{entity.CounterVideo, req.VideoCredits, req.VideoDelta},
	}

	updates := entity.UserUpdates{ImageCredits: req.ImageCredits, VideoCredits: req.VideoCredits}
	for _, adj := range adjustments {
		if adj.set != nil || adj.delta == 0 {
			continue
		}
		if _, err := h.repo.AdjustCredits(ctx, id, adj.counter, adj.delta); err != nil {
			switch {
			case errors.Is(err, entity.ErrInsufficientCredits):
				BadRequest(c, ErrCodeInsufficientCredits, "adjustment would make the balance negative")
			case errors.Is(err, gorm.ErrRecordNotFound):
				NotFound(c, ErrCodeUserNotFound, "user not found")
			default:
				logrus.WithError(err).WithField("user_id", id).Error("failed to adjust credits")
				InternalError(c, "failed to update credits")
			}
			return
		}
	}

	h.applyUserUpdates(c, id, updates)
}

func (h *HTTPHandler) applyUserUpdates(c *gin.Context, id uint, updates entity.UserUpdates) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.repo.GetUserByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeUserNotFound, "user not found")
			return
		}
		logrus.WithError(err).WithField("user_id", id).Error("failed to load user for update")
		InternalError(c, "failed to update user")
		return
	}

	if !updates.IsEmpty() {
		if err := h.repo.UpdateUser(ctx, id, updates); err != nil {
			logrus.WithError(err).WithField("user_id", id).Error("failed to update user")
			InternalError(c, "failed to update user")
			return
		}
	}

	updated, err := h.repo.GetUserByID(ctx, id)
	if err != nil {
		logrus.WithError(err).WithField("user_id", id).Error("failed to reload user after update")
		InternalError(c, "failed to load updated user")
		return
	}

	logrus.WithFields(logrus.Fields{
		"user_id":       id,
		"tier":          updated.Tier,
		"image_credits": updated.ImageCredits,
		"video_credits": updated.VideoCredits,
	}).Info("user updated by admin")
	c.JSON(http.StatusOK, makeUserSummary(updated))
}

func (h *HTTPHandler) DeleteUser(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	id, ok := parseIDParam(c)
	if !ok {
		BadRequest(c, ErrCodeInvalidRequest, "invalid user id")
		return
	}
	if requestUser.ID == id {
		BadRequest(c, ErrCodeCannotDeleteSelf, "cannot delete current user")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	keys, err := h.repo.DeleteUser(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeUserNotFound, "user not found")
			return
		}
		logrus.WithError(err).WithField("user_id", id).Error("failed to delete user")
		InternalError(c, "failed to delete user")
		return
	}

	h.removeStoredMedia(keys...)
	c.Status(http.StatusNoContent)
}
