package main

import (
	"os"

	"gopkg.in/yaml.v2"

	"github.com/synctree/synctree/session"
)

// Config is synctreed's on-disk configuration, grounded on the
// teacher's YAML-driven mount option files in the cmd/ tree (rclone's
// backend config similarly loads via gopkg.in/yaml.v2, which is the
// library named for this purpose in SPEC_FULL.md).
type Config struct {
	Listen       string   `yaml:"listen"`
	FreePaths    []string `yaml:"free_paths"`
	DemandLogin  bool     `yaml:"demand_login"`
	AllowMask    uint32   `yaml:"allow_mask"`
	MountDefault string   `yaml:"mount_default"`
}

func defaultConfig() Config {
	return Config{
		Listen:       ":2025",
		FreePaths:    []string{"/sys/version", "/sys/heartbeat"},
		DemandLogin:  false,
		AllowMask:    uint32(session.AllowRead | session.AllowWrite | session.AllowCreate | session.AllowMonitor),
		MountDefault: "/",
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) sessionInfo() session.Info {
	return session.Info{
		WhoIAm:      "synctreed",
		Allow:       session.AllowMask(c.AllowMask),
		FreePaths:   c.FreePaths,
		DemandLogin: c.DemandLogin,
	}
}
