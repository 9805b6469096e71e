// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// User is a club account. Email, username and student ID are unique among
// non-deleted users only, so a soft-deleted account's identifiers can be reused.
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"size:255;not null;uniqueIndex:idx_users_email_active,where:is_deleted = false" json:"email"`
	Username     string     `gorm:"size:64;not null;uniqueIndex:idx_users_username_active,where:is_deleted = false" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	RealName     string     `gorm:"size:100;not null" json:"real_name"`
	StudentID    *string    `gorm:"size:32;uniqueIndex:idx_users_student_id_active,where:is_deleted = false" json:"student_id"`
	PhoneNumber  string     `gorm:"size:32" json:"phone_number"`
	Major        string     `gorm:"size:100" json:"major"`
	Year         *int       `json:"year"`
	IsApproved   bool       `gorm:"not null;default:false;index" json:"is_approved"`
	IsAdmin      bool       `gorm:"not null;default:false" json:"is_admin"`
	IsDeleted    bool       `gorm:"not null;default:false;index" json:"-"`
	DeletedAt    *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// UserStats summarises membership counts for the admin dashboard.
type UserStats struct {
	CurrentMembers int64 `json:"current_members"`
	TotalMembers   int64 `json:"total_members"`
	PendingMembers int64 `json:"pending_members"`
}
