package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":9400"`
	DataPath     string `envconfig:"DATA_PATH" default:"./data"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"./data/shellmux.db"`
	LogPath      string `envconfig:"LOG_PATH" default:"./data/shellmux.log"`

	// DeviceSeedPath optionally points at a YAML file of devices imported
	// into the inventory at startup.
	DeviceSeedPath string `envconfig:"DEVICE_SEED_PATH" default:""`

	// Shell session settings
	ShellDefaultTitle string `envconfig:"SHELL_DEFAULT_TITLE" default:"shell"`
	ShellDefaultCols  int    `envconfig:"SHELL_DEFAULT_COLS" default:"80"`
	ShellDefaultRows  int    `envconfig:"SHELL_DEFAULT_ROWS" default:"24"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("SHELLMUX", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}
