package api

import (
	"io"
	"net/http"
	"time"

	"genstudio/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// sseHeartbeatInterval SSE 心跳间隔
const sseHeartbeatInterval = 10 * time.Second

func (h *HTTPHandler) GenerateImage(c *gin.Context) {
	h.generate(c, entity.ModImage)
}

func (h *HTTPHandler) GenerateVideo(c *gin.Context) {
	h.generate(c, entity.ModVideo)
}

// generate 同步执行生成；请求断开时上下文取消，未提交的生成不会扣费
func (h *HTTPHandler) generate(c *gin.Context, kind entity.Modality) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}
	if h.generationService == nil {
		ServiceUnavailable(c, "generation service not configured")
		return
	}

	var req entity.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	prompt := req.PromptText()
	if prompt == "" {
		MissingField(c, "prompt")
		return
	}

	ctx := c.Request.Context()
	var (
		resp *entity.GenerationResponse
		err  error
	)
	if kind == entity.ModVideo {
		resp, err = h.generationService.RequestVideoGeneration(ctx, requestUser.ID, prompt)
	} else {
		resp, err = h.generationService.RequestImageGeneration(ctx, requestUser.ID, prompt)
	}
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": requestUser.ID,
			"kind":    kind,
		}).Warn("generation request failed")
		ServiceError(c, err, "failed to generate content")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// StreamGenerationEvents 推送当前用户的生成完成事件
func (h *HTTPHandler) StreamGenerationEvents(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	ctx := c.Request.Context()
	events := make(chan sseMessage, 8)
	h.registerSSEClient(requestUser.ID, events)
	defer h.unregisterSSEClient(requestUser.ID, events)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	heartbeatTicker := time.NewTicker(sseHeartbeatInterval)
	defer heartbeatTicker.Stop()

	log := logrus.WithField("user_id", requestUser.ID)
	log.Info("generation sse connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			log.Info("generation sse disconnected")
			return false
		case <-heartbeatTicker.C:
			c.SSEvent("ping", gin.H{"ts": time.Now().UnixMilli()})
			return true
		case msg, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(msg.event, msg.data)
			return true
		}
	})
}
