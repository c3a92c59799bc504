package models

import (
	"time"

	"gorm.io/gorm"
)

/** --------------------ENTITIES-------------------- */
// User is a subject that can open gateway connections.
type User struct {
	gorm.Model
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	IsActive bool   `gorm:"not null;default:true" json:"isActive"`
}

// Role is a named bundle of permissions; the gateway maps role names to streams.
type Role struct {
	gorm.Model
	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description,omitempty"`
}

// UserRole assigns a role to a user.
type UserRole struct {
	UserID    uint      `gorm:"primaryKey" json:"userId"`
	RoleID    uint      `gorm:"primaryKey;index" json:"roleId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (UserRole) TableName() string {
	return "user_roles"
}
