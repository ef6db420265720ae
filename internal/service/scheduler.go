package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// NotificationScheduler 定时发送到期的排期通知
type NotificationScheduler struct {
	notifications *NotificationService
	interval      time.Duration
	now           func() time.Time
}

// NewNotificationScheduler interval 小于等于 0 时 Start 不启动
func NewNotificationScheduler(notifications *NotificationService, interval time.Duration) *NotificationScheduler {
	return &NotificationScheduler{
		notifications: notifications,
		interval:      interval,
		now:           time.Now,
	}
}

// Start 在后台运行，直到 ctx 被取消；返回的 channel 在循环退出后关闭
func (s *NotificationScheduler) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if s.interval <= 0 || s.notifications == nil {
		logrus.Info("notification scheduler disabled")
		close(done)
		return done
	}

	logrus.WithField("interval", s.interval.String()).Info("starting notification scheduler")
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logrus.Info("stopping notification scheduler")
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
	return done
}

// RunOnce 执行一次到期检查
func (s *NotificationScheduler) RunOnce(ctx context.Context) int {
	sent, err := s.notifications.SendDue(ctx, s.now())
	if err != nil {
		logrus.WithError(err).Error("failed to send due notifications")
		return 0
	}
	if sent > 0 {
		logrus.WithField("sent", sent).Info("sent scheduled notifications")
	}
	return sent
}
