package models

import (
	"time"
)

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    *uint     `gorm:"index" json:"user_id"`           // Nullable for failed logins
	Action    string    `gorm:"size:50;not null" json:"action"` // e.g., "LOGIN", "CREATE_RECIPE", "UPLOAD_IMAGE"
	EntityID  string    `gorm:"size:50" json:"entity_id"`       // ID of the object affected (recipe id or user email)
	Details   string    `gorm:"type:text" json:"details"`       // JSON description
	IPAddress string    `gorm:"size:45" json:"ip_address"`
	Timestamp time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"timestamp"`
}
