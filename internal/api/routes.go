package api

import "github.com/gin-gonic/gin"

// RegisterRoutes 注册 /api 下的全部路由
func (h *HTTPHandler) RegisterRoutes(r gin.IRouter) {
	apiGroup := r.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", h.Register)
	authGroup.POST("/login", h.Login)
	authGroup.POST("/logout", h.AuthMiddleware(), h.Logout)
	authGroup.GET("/me", h.AuthMiddleware(), h.Me)
	authGroup.PUT("/update-profile", h.AuthMiddleware(), h.UpdateProfile)

	protected := apiGroup.Group("")
	protected.Use(h.AuthMiddleware())

	notifications := protected.Group("/notifications")
	notifications.GET("", h.ListNotifications)
	notifications.GET("/unread-count", h.UnreadNotificationCount)
	notifications.GET("/stats", h.NotificationStats)
	notifications.GET("/stream", h.StreamNotifications)
	notifications.POST("/read-all", h.MarkAllNotificationsRead)
	notifications.POST("/:id/read", h.MarkNotificationRead)
	notifications.POST("", h.RequireAdmin(), h.CreateNotification)
	notifications.PUT("/:id", h.RequireAdmin(), h.UpdateNotification)
	notifications.POST("/:id/send", h.RequireAdmin(), h.SendNotification)
	notifications.DELETE("/:id", h.RequireAdmin(), h.DeleteNotification)

	userAdmin := protected.Group("/users")
	userAdmin.Use(h.RequireAdmin())
	userAdmin.GET("", h.ListUsers)
	userAdmin.GET("/stats", h.UserStats)
	userAdmin.PUT("/:id", h.UpdateUser)
	userAdmin.POST("/:id/toggle-status", h.ToggleUserStatus)
	userAdmin.DELETE("/:id", h.DeleteUser)

	adminGroup := protected.Group("/admin")
	adminGroup.Use(h.RequireAdmin())
	adminGroup.GET("/notifications", h.AdminListNotifications)
	adminGroup.GET("/notifications/stats", h.AdminNotificationStats)
}
