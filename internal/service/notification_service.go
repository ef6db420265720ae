package service

import (
	"cleancycle/internal/entity"
	"cleancycle/internal/storage"
	"cleancycle/internal/utils"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// NotificationOptions 通知服务配置
type NotificationOptions struct {
	Seed bool
	Now  func() time.Time
}

// NotificationService 通知目录：保存通知及各自的已读集合，负责受众解析与未读统计
type NotificationService struct {
	mu    sync.Mutex
	store storage.Storage
	now   func() time.Time
	items []entity.Notification

	listenersMu sync.RWMutex
	listeners   []func(entity.Notification)
}

// NewNotificationService 从持久化存储加载通知，缺失或损坏时写入默认数据
func NewNotificationService(ctx context.Context, store storage.Storage, opts NotificationOptions) (*NotificationService, error) {
	if store == nil {
		return nil, errors.New("notification service requires a storage backend")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &NotificationService{
		store: store,
		now:   opts.Now,
	}

	raw, err := store.Get(ctx, KeyNotifications)
	if err == nil {
		var items []entity.Notification
		jsonErr := json.Unmarshal([]byte(raw), &items)
		if jsonErr == nil {
			if items == nil {
				items = []entity.Notification{}
			}
			s.items = items
			return s, nil
		}
		logrus.WithError(jsonErr).Warn("stored notifications are unreadable, reseeding")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load notifications: %w", err)
	}

	items := []entity.Notification{}
	if opts.Seed {
		items = SeedNotifications()
	}
	// 空集合同样写入
	if err := s.write(ctx, items); err != nil {
		return nil, err
	}
	s.items = items
	logrus.WithField("notifications", len(items)).Info("initialized notification directory")
	return s, nil
}

// OnSent 注册通知进入 sent 状态时的回调，回调在锁外执行
func (s *NotificationService) OnSent(fn func(entity.Notification)) {
	if fn == nil {
		return
	}
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *NotificationService) emitSent(items ...entity.Notification) {
	s.listenersMu.RLock()
	listeners := make([]func(entity.Notification), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.RUnlock()

	for _, n := range items {
		for _, fn := range listeners {
			fn(n.Clone())
		}
	}
}

// Create 新建通知：无排期时立即发送，有排期时为 scheduled，Draft 为 true 时保存为草稿
func (s *NotificationService) Create(ctx context.Context, draft entity.NotificationDraft) (entity.Notification, error) {
	n, err := s.create(ctx, draft)
	if err != nil {
		return entity.Notification{}, err
	}
	if n.Status == entity.NotificationStatusSent {
		s.emitSent(n)
	}
	return n.Clone(), nil
}

func (s *NotificationService) create(ctx context.Context, draft entity.NotificationDraft) (entity.Notification, error) {
	n, err := newNotification(draft)
	if err != nil {
		return entity.Notification{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	n.ID = utils.GenerateUniqueID(func(id string) bool { return s.indexOf(id) >= 0 })
	n.CreatedAt = now
	switch {
	case draft.Draft:
		n.Status = entity.NotificationStatusDraft
	case n.ScheduledDate != nil:
		n.Status = entity.NotificationStatusScheduled
	default:
		n.Status = entity.NotificationStatusSent
		n.SentDate = &now
	}

	items := make([]entity.Notification, 0, len(s.items)+1)
	items = append(items, n)
	items = append(items, s.items...)
	if err := s.commitLocked(ctx, items); err != nil {
		return entity.Notification{}, err
	}
	logrus.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"status":          n.Status,
		"target":          n.Target,
	}).Info("notification created")
	return n, nil
}

func newNotification(draft entity.NotificationDraft) (entity.Notification, error) {
	n := entity.Notification{
		Title:         strings.TrimSpace(draft.Title),
		Message:       draft.Message,
		Type:          defaultString(draft.Type, entity.NotificationTypeInfo),
		Priority:      defaultString(draft.Priority, entity.NotificationPriorityMedium),
		Target:        defaultString(draft.Target, entity.NotificationTargetAll),
		ScheduledDate: draft.ScheduledDate,
		CreatedBy:     draft.CreatedBy,
		ReadBy:        entity.StringArray{},
	}
	if n.Title == "" {
		return n, fmt.Errorf("%w: title is required", ErrInvalidNotification)
	}
	if err := validateNotification(n.Type, n.Priority, n.Target); err != nil {
		return n, err
	}
	if n.Target == entity.NotificationTargetSpecific {
		for _, id := range draft.TargetUsers {
			n.TargetUsers = n.TargetUsers.With(id)
		}
	}
	if err := checkDeliverable(n); err != nil {
		return n, err
	}
	if n.ScheduledDate != nil {
		scheduled := n.ScheduledDate.UTC()
		n.ScheduledDate = &scheduled
	}
	return n, nil
}

// checkDeliverable 指定用户的通知必须有受众，排期中的通知必须有排期时间
func checkDeliverable(n entity.Notification) error {
	if n.Target == entity.NotificationTargetSpecific && len(n.TargetUsers) == 0 {
		return fmt.Errorf("%w: specific target requires target users", ErrInvalidNotification)
	}
	if n.Status == entity.NotificationStatusScheduled && n.ScheduledDate == nil {
		return fmt.Errorf("%w: scheduled notification requires a scheduled date", ErrInvalidNotification)
	}
	return nil
}

func validateNotification(typ, priority, target string) error {
	if !entity.ValidNotificationType(typ) {
		return fmt.Errorf("%w: type %q", ErrInvalidNotification, typ)
	}
	if !entity.ValidNotificationPriority(priority) {
		return fmt.Errorf("%w: priority %q", ErrInvalidNotification, priority)
	}
	if !entity.ValidNotificationTarget(target) {
		return fmt.Errorf("%w: target %q", ErrInvalidNotification, target)
	}
	return nil
}

// Update 合并字段，通知不存在时返回 false；readBy 不受影响
func (s *NotificationService) Update(ctx context.Context, id string, updates entity.NotificationUpdates) (entity.Notification, bool, error) {
	if err := updates.Validate(); err != nil {
		return entity.Notification{}, false, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	if updates.Title != nil && strings.TrimSpace(*updates.Title) == "" {
		return entity.Notification{}, false, fmt.Errorf("%w: title is required", ErrInvalidNotification)
	}

	n, sent, found, err := s.update(ctx, id, updates)
	if err != nil || !found {
		return entity.Notification{}, found, err
	}
	if sent {
		s.emitSent(n)
	}
	return n.Clone(), true, nil
}

func (s *NotificationService) update(ctx context.Context, id string, updates entity.NotificationUpdates) (entity.Notification, bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return entity.Notification{}, false, false, nil
	}
	current := s.items[idx]
	updated := current.Clone()
	updates.ApplyTo(&updated)
	if err := checkDeliverable(updated); err != nil {
		return entity.Notification{}, false, true, err
	}

	becameSent := current.Status != entity.NotificationStatusSent && updated.Status == entity.NotificationStatusSent
	if becameSent && updated.SentDate == nil {
		now := s.now().UTC()
		updated.SentDate = &now
	}

	if err := s.commitLocked(ctx, s.replaceAt(idx, updated)); err != nil {
		return entity.Notification{}, false, true, err
	}
	return updated, becameSent, true, nil
}

// Delete 删除通知，不存在时返回 false
func (s *NotificationService) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return false, nil
	}
	items := make([]entity.Notification, 0, len(s.items)-1)
	items = append(items, s.items[:idx]...)
	items = append(items, s.items[idx+1:]...)
	if err := s.commitLocked(ctx, items); err != nil {
		return false, err
	}
	return true, nil
}

// SendNow 立即发送：status=sent、sentDate=now 并清除排期，不校验原状态
func (s *NotificationService) SendNow(ctx context.Context, id string) (entity.Notification, bool, error) {
	n, found, err := s.sendNow(ctx, id)
	if err != nil || !found {
		return entity.Notification{}, found, err
	}
	s.emitSent(n)
	return n.Clone(), true, nil
}

func (s *NotificationService) sendNow(ctx context.Context, id string) (entity.Notification, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return entity.Notification{}, false, nil
	}
	updated := markSent(s.items[idx], s.now().UTC())
	if err := s.commitLocked(ctx, s.replaceAt(idx, updated)); err != nil {
		return entity.Notification{}, true, err
	}
	return updated, true, nil
}

func markSent(n entity.Notification, now time.Time) entity.Notification {
	out := n.Clone()
	out.Status = entity.NotificationStatusSent
	out.SentDate = &now
	out.ScheduledDate = nil
	return out
}

// MarkRead 将 userID 加入已读集合，重复调用无副作用
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 || s.items[idx].IsReadBy(userID) {
		return nil
	}
	updated := s.items[idx].Clone()
	updated.ReadBy = updated.ReadBy.With(userID)
	return s.commitLocked(ctx, s.replaceAt(idx, updated))
}

// MarkAllRead 将查看者可见的全部通知标记为已读，返回新标记的数量
func (s *NotificationService) MarkAllRead(ctx context.Context, userID, role string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]entity.Notification, len(s.items))
	copy(items, s.items)
	marked := 0
	for i, n := range items {
		if !n.IsVisibleTo(userID, role) || n.IsReadBy(userID) {
			continue
		}
		updated := n.Clone()
		updated.ReadBy = updated.ReadBy.With(userID)
		items[i] = updated
		marked++
	}
	if marked == 0 {
		return 0, nil
	}
	if err := s.commitLocked(ctx, items); err != nil {
		return 0, err
	}
	return marked, nil
}

// SendDue 发送所有排期时间不晚于 now 的 scheduled 通知，返回发送数量
func (s *NotificationService) SendDue(ctx context.Context, now time.Time) (int, error) {
	sent, err := s.sendDue(ctx, now.UTC())
	if err != nil {
		return 0, err
	}
	s.emitSent(sent...)
	return len(sent), nil
}

func (s *NotificationService) sendDue(ctx context.Context, now time.Time) ([]entity.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]entity.Notification, len(s.items))
	copy(items, s.items)
	var sent []entity.Notification
	for i, n := range items {
		if n.Status != entity.NotificationStatusScheduled || n.ScheduledDate == nil || n.ScheduledDate.After(now) {
			continue
		}
		items[i] = markSent(n, now)
		sent = append(sent, items[i])
	}
	if len(sent) == 0 {
		return nil, nil
	}
	if err := s.commitLocked(ctx, items); err != nil {
		return nil, err
	}
	return sent, nil
}

func (s *NotificationService) Get(id string) (entity.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return entity.Notification{}, false
	}
	return s.items[idx].Clone(), true
}

// List 管理端列表，包含所有状态，保持最新在前的顺序
func (s *NotificationService) List(query entity.NotificationQuery) []entity.Notification {
	return s.filter(func(n entity.Notification) bool {
		return matchesQuery(n, query, "")
	})
}

// VisibleTo 查看者可见的已发送通知
func (s *NotificationService) VisibleTo(userID, role string) []entity.Notification {
	return s.filter(func(n entity.Notification) bool {
		return n.IsVisibleTo(userID, role)
	})
}

func (s *NotificationService) VisibleToFiltered(userID, role string, query entity.NotificationQuery) []entity.Notification {
	return s.filter(func(n entity.Notification) bool {
		return n.IsVisibleTo(userID, role) && matchesQuery(n, query, userID)
	})
}

func (s *NotificationService) UnreadCountFor(userID, role string) int {
	count := 0
	for _, n := range s.VisibleTo(userID, role) {
		if !n.IsReadBy(userID) {
			count++
		}
	}
	return count
}

func (s *NotificationService) Stats() entity.NotificationStats {
	var stats entity.NotificationStats
	for _, n := range s.List(entity.NotificationQuery{}) {
		stats.Total++
		switch n.Status {
		case entity.NotificationStatusSent:
			stats.Sent++
		case entity.NotificationStatusScheduled:
			stats.Scheduled++
		case entity.NotificationStatusDraft:
			stats.Draft++
		case entity.NotificationStatusFailed:
			stats.Failed++
		}
		if n.Priority == entity.NotificationPriorityUrgent {
			stats.Urgent++
		}
	}
	return stats
}

func (s *NotificationService) ViewerStats(userID, role string) entity.ViewerNotificationStats {
	var stats entity.ViewerNotificationStats
	for _, n := range s.VisibleTo(userID, role) {
		stats.Total++
		if !n.IsReadBy(userID) {
			stats.Unread++
		}
		if n.Priority == entity.NotificationPriorityUrgent {
			stats.Urgent++
		}
	}
	return stats
}

func (s *NotificationService) filter(keep func(entity.Notification) bool) []entity.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Notification, 0, len(s.items))
	for _, n := range s.items {
		if keep(n) {
			out = append(out, n.Clone())
		}
	}
	return out
}

// matchesQuery viewerID 为空时忽略已读过滤
func matchesQuery(n entity.Notification, query entity.NotificationQuery, viewerID string) bool {
	if query.Status != "" && n.Status != query.Status {
		return false
	}
	if query.Type != "" && n.Type != query.Type {
		return false
	}
	if query.Priority != "" && n.Priority != query.Priority {
		return false
	}
	if !utils.ContainsFold(n.Title, query.Keyword) && !utils.ContainsFold(n.Message, query.Keyword) {
		return false
	}
	if viewerID != "" {
		switch query.Read {
		case "read":
			return n.IsReadBy(viewerID)
		case "unread":
			return !n.IsReadBy(viewerID)
		}
	}
	return true
}

func (s *NotificationService) commitLocked(ctx context.Context, items []entity.Notification) error {
	if err := s.write(ctx, items); err != nil {
		return err
	}
	s.items = items
	return nil
}

func (s *NotificationService) write(ctx context.Context, items []entity.Notification) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode notifications: %w", err)
	}
	if err := s.store.Set(ctx, KeyNotifications, string(data)); err != nil {
		return fmt.Errorf("persist notifications: %w", err)
	}
	return nil
}

func (s *NotificationService) replaceAt(idx int, n entity.Notification) []entity.Notification {
	items := make([]entity.Notification, len(s.items))
	copy(items, s.items)
	items[idx] = n
	return items
}

func (s *NotificationService) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func defaultString(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
