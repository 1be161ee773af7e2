package database

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// seedDevice is the YAML shape of one inventory entry.
type seedDevice struct {
	Name        string `yaml:"name"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	KeyPath     string `yaml:"key_path"`
	Description string `yaml:"description"`
}

// ImportDevices loads devices from a YAML file into the inventory. Entries
// whose name already exists are skipped, so repeated startups with the same
// seed file are idempotent. Returns how many devices were added.
func ImportDevices(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var seeds []seedDevice
	if err := yaml.Unmarshal(raw, &seeds); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	added := 0
	for _, s := range seeds {
		if s.Name == "" || s.Host == "" {
			log.Printf("[database] skipping seed entry with empty name or host")
			continue
		}

		var count int64
		DB.Model(&Device{}).Where("name = ?", s.Name).Count(&count)
		if count > 0 {
			continue
		}

		port := s.Port
		if port == 0 {
			port = 22
		}
		d := Device{
			Name:        s.Name,
			Host:        s.Host,
			Port:        port,
			Username:    s.Username,
			KeyPath:     s.KeyPath,
			Description: s.Description,
		}
		if err := CreateDevice(&d); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
