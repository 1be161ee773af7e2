package database

import (
	"time"

	"github.com/google/uuid"
)

// Device is a known remote target in the inventory. Its ID doubles as the
// SSH connection ID: every shell token opened against the device carries it
// as the connection half of the token.
type Device struct {
	ID          uuid.UUID `gorm:"primaryKey;type:uuid" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null;size:64" json:"name"`
	Host        string    `gorm:"not null" json:"host"`
	Port        int       `gorm:"not null;default:22" json:"port"`
	Username    string    `gorm:"not null" json:"username"`
	KeyPath     string    `json:"key_path"`
	Password    string    `json:"-"`
	Description string    `json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
