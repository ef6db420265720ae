package entity

import (
	"fmt"
	"time"
)

// UserUpdates 用户更新字段，nil 表示不修改
type UserUpdates struct {
	Name        *string
	Email       *string
	Role        *string
	Status      *string
	CommunityID *string
	// Password 为明文，由身份服务负责哈希
	Password *string
}

// Validate 检查枚举字段取值
func (u UserUpdates) Validate() error {
	if u.Role != nil && !ValidRole(*u.Role) {
		return fmt.Errorf("invalid role %q", *u.Role)
	}
	if u.Status != nil && !ValidUserStatus(*u.Status) {
		return fmt.Errorf("invalid status %q", *u.Status)
	}
	return nil
}

// ApplyTo 将非空字段合并到 user（不处理密码）
func (u UserUpdates) ApplyTo(user *User) {
	if user == nil {
		return
	}
	if u.Name != nil {
		user.Name = *u.Name
	}
	if u.Email != nil {
		user.Email = *u.Email
	}
	if u.Role != nil {
		user.Role = *u.Role
	}
	if u.Status != nil {
		user.Status = *u.Status
	}
	if u.CommunityID != nil {
		user.CommunityID = *u.CommunityID
	}
}

// IsEmpty 检查是否没有任何更新字段
func (u UserUpdates) IsEmpty() bool {
	return u.Name == nil && u.Email == nil && u.Role == nil && u.Status == nil &&
		u.CommunityID == nil && u.Password == nil
}

// NotificationUpdates 通知更新字段，nil 表示不修改；ReadBy 不可通过更新修改
type NotificationUpdates struct {
	Title         *string
	Message       *string
	Type          *string
	Priority      *string
	Target        *string
	TargetUsers   *[]string
	Status        *string
	ScheduledDate *time.Time
	SentDate      *time.Time
	CreatedBy     *string

	ClearScheduledDate bool
	ClearSentDate      bool
}

// Validate 检查枚举字段取值
func (u NotificationUpdates) Validate() error {
	if u.Type != nil && !ValidNotificationType(*u.Type) {
		return fmt.Errorf("invalid type %q", *u.Type)
	}
	if u.Priority != nil && !ValidNotificationPriority(*u.Priority) {
		return fmt.Errorf("invalid priority %q", *u.Priority)
	}
	if u.Target != nil && !ValidNotificationTarget(*u.Target) {
		return fmt.Errorf("invalid target %q", *u.Target)
	}
	if u.Status != nil && !ValidNotificationStatus(*u.Status) {
		return fmt.Errorf("invalid status %q", *u.Status)
	}
	return nil
}

// ApplyTo 将非空字段合并到 n
func (u NotificationUpdates) ApplyTo(n *Notification) {
	if n == nil {
		return
	}
	if u.Title != nil {
		n.Title = *u.Title
	}
	if u.Message != nil {
		n.Message = *u.Message
	}
	if u.Type != nil {
		n.Type = *u.Type
	}
	if u.Priority != nil {
		n.Priority = *u.Priority
	}
	if u.Target != nil {
		n.Target = *u.Target
	}
	if u.TargetUsers != nil {
		n.TargetUsers = StringArray(*u.TargetUsers).ToSlice()
	}
	if u.Status != nil {
		n.Status = *u.Status
	}
	if u.ScheduledDate != nil {
		n.ScheduledDate = cloneTime(u.ScheduledDate)
	}
	if u.ClearScheduledDate {
		n.ScheduledDate = nil
	}
	if u.SentDate != nil {
		n.SentDate = cloneTime(u.SentDate)
	}
	if u.ClearSentDate {
		n.SentDate = nil
	}
	if u.CreatedBy != nil {
		n.CreatedBy = *u.CreatedBy
	}
}

// IsEmpty 检查是否没有任何更新字段
func (u NotificationUpdates) IsEmpty() bool {
	return u.Title == nil && u.Message == nil && u.Type == nil && u.Priority == nil &&
		u.Target == nil && u.TargetUsers == nil && u.Status == nil && u.ScheduledDate == nil &&
		u.SentDate == nil && u.CreatedBy == nil && !u.ClearScheduledDate && !u.ClearSentDate
}
