package domain

import "strings"

// UserRole описывает права пользователя.
type UserRole string

const (
	UserRoleMember UserRole = "member"
	UserRoleAdmin  UserRole = "admin"
)

// RoleFor возвращает роль пользователя по списку администраторов.
// Список приходит из конфигурации через запятую.
func RoleFor(userID, adminIDs string) UserRole {
	if userID == "" {
		return UserRoleMember
	}
	for _, id := range strings.Split(adminIDs, ",") {
		if strings.TrimSpace(id) == userID {
			return UserRoleAdmin
		}
	}
	return UserRoleMember
}

// IsAdmin сообщает, является ли роль административной.
func (r UserRole) IsAdmin() bool {
	return r == UserRoleAdmin
}
