package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"genstudio/internal/entity"
	"genstudio/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func (h *HTTPHandler) makeArtifactView(artifact entity.DbArtifact) entity.ArtifactView {
	return entity.ArtifactView{
		DbArtifact: artifact,
		URL:        service.ArtifactURL(h.storagePublicBase, &artifact),
	}
}

// ListArtifacts 当前用户的生成记录
func (h *HTTPHandler) ListArtifacts(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}
	h.listArtifacts(c, requestUser.ID)
}

// AdminListArtifacts 全部生成记录，可按 user_id 过滤
func (h *HTTPHandler) AdminListArtifacts(c *gin.Context) {
	var userID uint
	if userFilter := strings.TrimSpace(c.Query("user_id")); userFilter != "" {
		if parsed, err := strconv.ParseUint(userFilter, 10, 64); err == nil && parsed > 0 {
			userID = uint(parsed)
		}
	}
	h.listArtifacts(c, userID)
}

func (h *HTTPHandler) listArtifacts(c *gin.Context, userID uint) {
	var params entity.ArtifactQuery
	if err := c.ShouldBindQuery(&params); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid query parameters")
		return
	}
	params.UserID = userID

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	artifacts, meta, err := h.repo.ListArtifacts(ctx, &params)
	if err != nil {
		logrus.WithError(err).Error("failed to list artifacts")
		InternalError(c, "failed to load artifacts")
		return
	}

	items := make([]entity.ArtifactView, 0, len(artifacts))
	for _, artifact := range artifacts {
		items = append(items, h.makeArtifactView(artifact))
	}
	if meta == nil {
		meta = &entity.Meta{Page: params.Page, PageSize: params.PageSize, Total: int64(len(items))}
	}

	c.JSON(http.StatusOK, entity.ArtifactListResponse{Artifacts: items, Meta: meta})
}

func (h *HTTPHandler) ArtifactStats(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	stats, err := h.repo.ArtifactStats(ctx, requestUser.ID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", requestUser.ID).Error("failed to load artifact stats")
		InternalError(c, "failed to load artifact stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *HTTPHandler) GetArtifact(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	id, ok := parseIDParam(c)
	if !ok {
		BadRequest(c, ErrCodeInvalidRequest, "invalid artifact id")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	artifact, err := h.repo.GetArtifact(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeArtifactNotFound, "artifact not found")
			return
		}
		logrus.WithError(err).WithField("artifact_id", id).Error("failed to load artifact")
		InternalError(c, "failed to load artifact")
		return
	}

	// 非本人记录按不存在处理
	if !requestUser.IsAdmin() && artifact.UserID != requestUser.ID {
		NotFound(c, ErrCodeArtifactNotFound, "artifact not found")
		return
	}

	c.JSON(http.StatusOK, h.makeArtifactView(*artifact))
}

// DeleteArtifact 删除记录并清理已转存的对象
func (h *HTTPHandler) DeleteArtifact(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	id, ok := parseIDParam(c)
	if !ok {
		BadRequest(c, ErrCodeInvalidRequest, "invalid artifact id")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	ownerID := requestUser.ID
	if requestUser.IsAdmin() {
		ownerID = 0
	}

	artifact, err := h.repo.DeleteArtifact(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeArtifactNotFound, "artifact not found")
			return
		}
		logrus.WithError(err).WithField("artifact_id", id).Error("failed to delete artifact")
		InternalError(c, "failed to delete artifact")
		return
	}

	h.removeStoredMedia(artifact.StorageKey)
	c.Status(http.StatusNoContent)
}

// removeStoredMedia 删除已转存的对象，失败只记录日志
func (h *HTTPHandler) removeStoredMedia(keys ...string) {
	if h.storage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := h.storage.Delete(ctx, key); err != nil {
			logrus.WithError(err).WithField("storage_key", key).Warn("failed to delete stored artifact media")
		}
	}
}

func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
