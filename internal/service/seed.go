package service

import (
	"fmt"
	"time"

	"cleancycle/internal/auth"
	"cleancycle/internal/entity"
)

const defaultCommunityID = "community-1"

type seedUser struct {
	user     entity.User
	password string
}

func seedTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(fmt.Sprintf("invalid seed time %q: %v", value, err))
	}
	return t
}

func seedTimePtr(value string) *time.Time {
	t := seedTime(value)
	return &t
}

func defaultSeedUsers() []seedUser {
	newUser := func(id, email, name, role, created, lastLogin, password string) seedUser {
		return seedUser{
			user: entity.User{
				ID:          id,
				Email:       email,
				Name:        name,
				Role:        role,
				Status:      entity.UserStatusActive,
				CommunityID: defaultCommunityID,
				CreatedAt:   seedTime(created),
				LastLogin:   seedTimePtr(lastLogin),
			},
			password: password,
		}
	}

	return []seedUser{
		newUser("admin", "admin@cleancycle.com", "Admin User", entity.UserRoleAdmin, "2024-01-01T00:00:00Z", "2024-01-15T10:00:00Z", "admin123"),
		newUser("user1", "user@cleancycle.com", "John Smith", entity.UserRoleUser, "2024-01-02T00:00:00Z", "2024-01-14T15:30:00Z", "user123"),
		newUser("manager", "manager@cleancycle.com", "Sarah Johnson", entity.UserRoleAdmin, "2024-01-03T00:00:00Z", "2024-01-13T09:20:00Z", "manager123"),
		newUser("user2", "john.doe@gmail.com", "John Doe", entity.UserRoleUser, "2024-01-04T00:00:00Z", "2024-01-12T14:45:00Z", "password123"),
		newUser("user3", "emma.wilson@yahoo.com", "Emma Wilson", entity.UserRoleUser, "2024-01-05T00:00:00Z", "2024-01-11T11:15:00Z", "emma2024"),
		newUser("user4", "mike.brown@outlook.com", "Mike Brown", entity.UserRoleUser, "2024-01-06T00:00:00Z", "2024-01-10T16:30:00Z", "mikeb456"),
	}
}

// SeedUsers 返回默认用户列表，密码在此时哈希
func SeedUsers() ([]entity.User, error) {
	seeds := defaultSeedUsers()
	users := make([]entity.User, 0, len(seeds))
	for _, seed := range seeds {
		hash, err := auth.HashPassword(seed.password)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", seed.user.Email, err)
		}
		user := seed.user
		user.PasswordHash = hash
		users = append(users, user)
	}
	return users, nil
}

// SeedNotifications 返回默认通知列表（均为已发送状态）
func SeedNotifications() []entity.Notification {
	newSent := func(id, title, message, typ, priority, target, sent, createdBy, created string, readBy ...string) entity.Notification {
		return entity.Notification{
			ID:        id,
			Title:     title,
			Message:   message,
			Type:      typ,
			Priority:  priority,
			Target:    target,
			Status:    entity.NotificationStatusSent,
			SentDate:  seedTimePtr(sent),
			CreatedBy: createdBy,
			CreatedAt: seedTime(created),
			ReadBy:    entity.StringArray(append([]string{}, readBy...)),
		}
	}

	return []entity.Notification{
		newSent("1", "Welcome to CleanCycle!",
			"Thank you for joining our community waste management system. Start by scheduling your first pickup!",
			entity.NotificationTypeInfo, entity.NotificationPriorityMedium, entity.NotificationTargetAll,
			"2024-01-14T09:00:00Z", "Admin User", "2024-01-14T08:30:00Z", "user1"),
		newSent("2", "Weekly Recycling Reminder",
			"Tomorrow is recycling day! Please sort your recyclables and place them outside by 8:00 AM.",
			entity.NotificationTypeInfo, entity.NotificationPriorityMedium, entity.NotificationTargetAll,
			"2024-01-15T18:00:00Z", "Admin User", "2024-01-15T17:45:00Z"),
		newSent("3", "Schedule Change Alert",
			"Due to weather conditions, organic waste pickup has been rescheduled from Tuesday to Wednesday this week.",
			entity.NotificationTypeWarning, entity.NotificationPriorityHigh, entity.NotificationTargetAll,
			"2024-01-13T16:00:00Z", "Admin User", "2024-01-13T15:45:00Z", "user1", "user2"),
		newSent("4", "New Community Guidelines",
			"We have updated our community waste management guidelines. Please review the new policies in your dashboard.",
			entity.NotificationTypeInfo, entity.NotificationPriorityMedium, entity.NotificationTargetUsers,
			"2024-01-12T10:00:00Z", "Admin User", "2024-01-12T09:45:00Z", "user2"),
		newSent("5", "Admin Training Session",
			"Mandatory training session for all administrators on new waste categorization protocols.",
			entity.NotificationTypeInfo, entity.NotificationPriorityHigh, entity.NotificationTargetAdmins,
			"2024-01-11T14:00:00Z", "System Admin", "2024-01-11T13:30:00Z", "admin"),
	}
}
