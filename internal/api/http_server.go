package api

import (
	"cleancycle/internal/auth"
	"cleancycle/internal/config"
	"cleancycle/internal/entity"
	"cleancycle/internal/service"
	"errors"
	"sync"
	"time"
)

const (
	requestTimeout = 5 * time.Second

	eventNotificationSent = "notification_sent"
)

// HTTPHandler HTTP 请求处理器
type HTTPHandler struct {
	cfg         config.Config
	authManager *auth.Manager

	// 服务层
	identity      *service.IdentityService
	notifications *service.NotificationService

	// SSE 客户端管理，按用户 ID 分组
	sseClients map[string][]chan sseMessage
	sseMu      sync.Mutex
}

// NewHTTPHandler 创建 HTTP 处理器实例
func NewHTTPHandler(cfg config.Config, authManager *auth.Manager, identity *service.IdentityService, notifications *service.NotificationService) (*HTTPHandler, error) {
	if authManager == nil || identity == nil || notifications == nil {
		return nil, errors.New("http handler requires auth manager, identity and notification services")
	}

	handler := &HTTPHandler{
		cfg:           cfg,
		authManager:   authManager,
		identity:      identity,
		notifications: notifications,
		sseClients:    make(map[string][]chan sseMessage),
	}

	// 通知发送后推送给在线的受众
	notifications.OnSent(handler.notifyNotificationSent)

	return handler, nil
}

// authTimeout 登录/注册包含模拟延迟
func (h *HTTPHandler) authTimeout() time.Duration {
	return requestTimeout + h.cfg.AuthSimulatedDelay
}

// notifyNotificationSent 推送给可见该通知的已连接用户
func (h *HTTPHandler) notifyNotificationSent(n entity.Notification) {
	for _, userID := range h.connectedUserIDs() {
		user, ok := h.identity.GetUser(userID)
		if !ok || !n.IsVisibleTo(user.ID, user.Role) {
			continue
		}
		h.publishSSEMessage(userID, sseMessage{
			event: eventNotificationSent,
			data:  n,
		})
	}
}
