package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	ClamAV     ClamAVConfig     `yaml:"clamav"`
	Quarantine QuarantineConfig `yaml:"quarantine"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	CORSAllowOrigin string        `yaml:"cors_allow_origin"`
}

type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CategoryLimits carries the per-category size policy. The magic-number and
// extension tables live in the filetype package; config only overrides sizes.
type CategoryLimits struct {
	MaxSizeBytes int64 `yaml:"max_size_bytes"`
	NormalMin    int64 `yaml:"normal_min_bytes"`
	NormalMax    int64 `yaml:"normal_max_bytes"`
}

type PipelineConfig struct {
	MediaRoot         string                    `yaml:"media_root"`
	EntropySampleSize int64                     `yaml:"entropy_sample_size"`
	Categories        map[string]CategoryLimits `yaml:"categories"`
}

type ClamAVConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Binary       string        `yaml:"binary"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	ScanTimeout  time.Duration `yaml:"scan_timeout"`
}

type QuarantineConfig struct {
	DurationHours int    `yaml:"duration_hours"`
	SweepSchedule string `yaml:"sweep_schedule"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}

	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}

	if c.Pipeline.MediaRoot == "" {
		c.Pipeline.MediaRoot = "/var/lib/uploadguard/media"
	}
	if c.Pipeline.EntropySampleSize == 0 {
		c.Pipeline.EntropySampleSize = 10 * 1024 * 1024
	}

	if c.ClamAV.Binary == "" {
		c.ClamAV.Binary = "clamscan"
	}
	if c.ClamAV.ProbeTimeout == 0 {
		c.ClamAV.ProbeTimeout = 5 * time.Second
	}
	if c.ClamAV.ScanTimeout == 0 {
		c.ClamAV.ScanTimeout = 30 * time.Second
	}

	if c.Quarantine.DurationHours == 0 {
		c.Quarantine.DurationHours = 72
	}
	if c.Quarantine.SweepSchedule == "" {
		c.Quarantine.SweepSchedule = "@every 1h"
	}
}
