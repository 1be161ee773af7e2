// Package database owns the sqlite-backed device inventory.
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lunadev/shellmux/internal/config"
)

// ErrDeviceNotFound is returned when a lookup misses.
var ErrDeviceNotFound = errors.New("database: device not found")

var DB *gorm.DB

func Init() error {
	return InitAt(config.Cfg.DatabasePath)
}

// InitAt opens (creating if needed) the database at dbPath and migrates the
// schema. Split out from Init so tests can point at a temp directory.
func InitAt(dbPath string) error {
	dbDir := filepath.Dir(dbPath)
	if dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	if err := DB.AutoMigrate(&Device{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// CreateDevice stores a new device, assigning an ID when none is set.
func CreateDevice(d *Device) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if err := DB.Create(d).Error; err != nil {
		return fmt.Errorf("create device %q: %w", d.Name, err)
	}
	return nil
}

// GetDevice looks a device up by ID.
func GetDevice(id uuid.UUID) (*Device, error) {
	var d Device
	if err := DB.First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("get device %s: %w", id, err)
	}
	return &d, nil
}

// ListDevices returns the full inventory ordered by name.
func ListDevices() ([]Device, error) {
	var devices []Device
	if err := DB.Order("name").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

// DeleteDevice removes a device from the inventory.
func DeleteDevice(id uuid.UUID) error {
	res := DB.Delete(&Device{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete device %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}
