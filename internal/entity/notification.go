package entity

import "time"

const (
	NotificationTypeInfo    = "info"
	NotificationTypeWarning = "warning"
	NotificationTypeSuccess = "success"
	NotificationTypeError   = "error"
)

const (
	NotificationPriorityLow    = "low"
	NotificationPriorityMedium = "medium"
	NotificationPriorityHigh   = "high"
	NotificationPriorityUrgent = "urgent"
)

const (
	NotificationTargetAll      = "all"
	NotificationTargetUsers    = "users"
	NotificationTargetAdmins   = "admins"
	NotificationTargetSpecific = "specific"
)

const (
	NotificationStatusDraft     = "draft"
	NotificationStatusScheduled = "scheduled"
	NotificationStatusSent      = "sent"
	NotificationStatusFailed    = "failed"
)

// Notification is a broadcast message plus the ids of users who acknowledged it.
type Notification struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Message       string      `json:"message"`
	Type          string      `json:"type"`
	Priority      string      `json:"priority"`
	Target        string      `json:"target"`
	TargetUsers   StringArray `json:"targetUsers,omitempty"`
	Status        string      `json:"status"`
	ScheduledDate *time.Time  `json:"scheduledDate,omitempty"`
	SentDate      *time.Time  `json:"sentDate,omitempty"`
	CreatedBy     string      `json:"createdBy"`
	CreatedAt     time.Time   `json:"createdAt"`
	ReadBy        StringArray `json:"readBy"`
}

// IsVisibleTo reports whether a sent notification is addressed to the viewer.
// Audience membership depends only on Target/TargetUsers, never on ReadBy.
func (n Notification) IsVisibleTo(userID, role string) bool {
	if n.Status != NotificationStatusSent {
		return false
	}
	switch n.Target {
	case NotificationTargetAll:
		return true
	case NotificationTargetUsers:
		return role == UserRoleUser
	case NotificationTargetAdmins:
		return role == UserRoleAdmin
	case NotificationTargetSpecific:
		return n.TargetUsers.Contains(userID)
	default:
		return false
	}
}

// IsReadBy reports whether userID acknowledged the notification.
func (n Notification) IsReadBy(userID string) bool {
	return n.ReadBy.Contains(userID)
}

// Clone returns a copy that shares no slices or pointers with n.
func (n Notification) Clone() Notification {
	out := n
	out.TargetUsers = cloneArray(n.TargetUsers)
	out.ReadBy = StringArray(n.ReadBy.ToSlice())
	out.ScheduledDate = cloneTime(n.ScheduledDate)
	out.SentDate = cloneTime(n.SentDate)
	return out
}

func ValidNotificationType(value string) bool {
	switch value {
	case NotificationTypeInfo, NotificationTypeWarning, NotificationTypeSuccess, NotificationTypeError:
		return true
	default:
		return false
	}
}

func ValidNotificationPriority(value string) bool {
	switch value {
	case NotificationPriorityLow, NotificationPriorityMedium, NotificationPriorityHigh, NotificationPriorityUrgent:
		return true
	default:
		return false
	}
}

func ValidNotificationTarget(value string) bool {
	switch value {
	case NotificationTargetAll, NotificationTargetUsers, NotificationTargetAdmins, NotificationTargetSpecific:
		return true
	default:
		return false
	}
}

func ValidNotificationStatus(value string) bool {
	switch value {
	case NotificationStatusDraft, NotificationStatusScheduled, NotificationStatusSent, NotificationStatusFailed:
		return true
	default:
		return false
	}
}

// NotificationDraft 创建通知时调用方提供的字段
type NotificationDraft struct {
	Title         string     `json:"title" binding:"required"`
	Message       string     `json:"message"`
	Type          string     `json:"type"`
	Priority      string     `json:"priority"`
	Target        string     `json:"target"`
	TargetUsers   []string   `json:"targetUsers,omitempty"`
	ScheduledDate *time.Time `json:"scheduledDate,omitempty"`
	CreatedBy     string     `json:"-"`
	// Draft 为 true 时保存为草稿，不发送也不排期
	Draft bool `json:"draft,omitempty"`
}

// NotificationQuery 通知列表过滤条件
type NotificationQuery struct {
	Keyword  string `json:"keyword" form:"keyword" query:"keyword"`
	Status   string `json:"status" form:"status" query:"status"`
	Type     string `json:"type" form:"type" query:"type"`
	Priority string `json:"priority" form:"priority" query:"priority"`
	// Read 仅用于查看者列表：all、read、unread
	Read string `json:"read" form:"read" query:"read"`
}

// NotificationStats 管理端通知统计
type NotificationStats struct {
	Total     int `json:"total"`
	Sent      int `json:"sent"`
	Scheduled int `json:"scheduled"`
	Draft     int `json:"draft"`
	Failed    int `json:"failed"`
	Urgent    int `json:"urgent"`
}

// ViewerNotificationStats 用户端通知统计
type ViewerNotificationStats struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
	Urgent int `json:"urgent"`
}

type NotificationUpdateRequest struct {
	Title         *string    `json:"title,omitempty"`
	Message       *string    `json:"message,omitempty"`
	Type          *string    `json:"type,omitempty"`
	Priority      *string    `json:"priority,omitempty"`
	Target        *string    `json:"target,omitempty"`
	TargetUsers   *[]string  `json:"targetUsers,omitempty"`
	Status        *string    `json:"status,omitempty"`
	ScheduledDate *time.Time `json:"scheduledDate,omitempty"`
	// ClearScheduledDate 取消排期时间
	ClearScheduledDate bool `json:"clearScheduledDate,omitempty"`
}

type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
	Total         int            `json:"total"`
}

func cloneArray(a StringArray) StringArray {
	if a == nil {
		return nil
	}
	return StringArray(a.ToSlice())
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
