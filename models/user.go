package models

import "time"

// AdminUser is an operator allowed to manage the catalogue.
type AdminUser struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"type:varchar(80);uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName keeps the table name the admin tooling already expects.
func (AdminUser) TableName() string {
	return "users"
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserSummary is the public view of an authenticated admin.
type UserSummary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

// Session is returned by a successful login.
type Session struct {
	Message   string      `json:"message"`
	User      UserSummary `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt int64       `json:"expires_at"`
}
