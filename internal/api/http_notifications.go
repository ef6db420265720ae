package api

import (
	"cleancycle/internal/entity"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ListNotifications 当前用户可见的通知
func (h *HTTPHandler) ListNotifications(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var query entity.NotificationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid query parameters")
		return
	}

	items := h.notifications.VisibleToFiltered(user.ID, user.Role, query)
	c.JSON(http.StatusOK, entity.NotificationListResponse{
		Notifications: items,
		Total:         len(items),
	})
}

func (h *HTTPHandler) UnreadNotificationCount(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": h.notifications.UnreadCountFor(user.ID, user.Role)})
}

func (h *HTTPHandler) NotificationStats(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}
	c.JSON(http.StatusOK, h.notifications.ViewerStats(user.ID, user.Role))
}

// MarkNotificationRead 对不可见的通知返回 404
func (h *HTTPHandler) MarkNotificationRead(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	n, ok := h.notifications.Get(id)
	if !ok || !n.IsVisibleTo(user.ID, user.Role) {
		NotFound(c, ErrCodeNotificationNotFound, "notification not found")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.notifications.MarkRead(ctx, id, user.ID); err != nil {
		ServiceError(c, err, "failed to mark notification as read")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) MarkAllNotificationsRead(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	marked, err := h.notifications.MarkAllRead(ctx, user.ID, user.Role)
	if err != nil {
		ServiceError(c, err, "failed to mark notifications as read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

// StreamNotifications 推送当前用户可见的新发送通知
func (h *HTTPHandler) StreamNotifications(c *gin.Context) {
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

	heartbeatTicker := time.NewTicker(10 * time.Second)
	defer heartbeatTicker.Stop()

	logrus.WithField("user_id", requestUser.ID).Info("notification sse connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			logrus.WithField("user_id", requestUser.ID).Info("notification sse disconnected")
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

// AdminListNotifications 管理端列表，包含草稿与排期
func (h *HTTPHandler) AdminListNotifications(c *gin.Context) {
	var query entity.NotificationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid query parameters")
		return
	}

	items := h.notifications.List(query)
	c.JSON(http.StatusOK, entity.NotificationListResponse{
		Notifications: items,
		Total:         len(items),
	})
}

func (h *HTTPHandler) AdminNotificationStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.notifications.Stats())
}

func (h *HTTPHandler) CreateNotification(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var draft entity.NotificationDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		InvalidPayload(c)
		return
	}
	draft.CreatedBy = requestUser.Name

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	n, err := h.notifications.Create(ctx, draft)
	if err != nil {
		ServiceError(c, err, "failed to create notification")
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (h *HTTPHandler) UpdateNotification(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req entity.NotificationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	n, found, err := h.notifications.Update(ctx, id, makeNotificationUpdates(req))
	if err != nil {
		ServiceError(c, err, "failed to update notification")
		return
	}
	if !found {
		NotFound(c, ErrCodeNotificationNotFound, "notification not found")
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *HTTPHandler) SendNotification(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	n, found, err := h.notifications.SendNow(ctx, id)
	if err != nil {
		ServiceError(c, err, "failed to send notification")
		return
	}
	if !found {
		NotFound(c, ErrCodeNotificationNotFound, "notification not found")
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *HTTPHandler) DeleteNotification(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	removed, err := h.notifications.Delete(ctx, id)
	if err != nil {
		ServiceError(c, err, "failed to delete notification")
		return
	}
	if !removed {
		NotFound(c, ErrCodeNotificationNotFound, "notification not found")
		return
	}
	c.Status(http.StatusNoContent)
}

// makeNotificationUpdates 仅提供排期时间而未指定状态时，视为重新排期
func makeNotificationUpdates(req entity.NotificationUpdateRequest) entity.NotificationUpdates {
	updates := entity.NotificationUpdates{
		Title:              req.Title,
		Message:            req.Message,
		Type:               req.Type,
		Priority:           req.Priority,
		Target:             req.Target,
		TargetUsers:        req.TargetUsers,
		Status:             req.Status,
		ScheduledDate:      req.ScheduledDate,
		ClearScheduledDate: req.ClearScheduledDate,
	}
	if req.ScheduledDate != nil && req.Status == nil {
		scheduled := entity.NotificationStatusScheduled
		updates.Status = &scheduled
		updates.ClearSentDate = true
	}
	return updates
}
