package model

import "time"

// Operator is a management-API account. Optional: nodes run fine with the
// static token alone; operator accounts exist for multi-user deployments
// backed by MySQL.
type Operator struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"uniqueIndex;size:64" json:"name"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
}
