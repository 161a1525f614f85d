// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	DB         DBConfig         `mapstructure:"db"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Download   DownloadConfig   `mapstructure:"download"`
	VirusTotal VirusTotalConfig `mapstructure:"virustotal"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// CrawlerConfig governs workers and the crawl pipeline.
type CrawlerConfig struct {
	Workers              int    `mapstructure:"workers"`
	QueueDepth           int    `mapstructure:"queue_depth"`
	UserAgent            string `mapstructure:"user_agent"`
	Headless             bool   `mapstructure:"headless"`
	ItemWaitSeconds      int    `mapstructure:"item_wait_seconds"`
	ControlWaitSeconds   int    `mapstructure:"control_wait_seconds"`
	FinalLinkWaitSeconds int    `mapstructure:"final_link_wait_seconds"`
	PageSize             int    `mapstructure:"page_size"`
}

// DownloadConfig controls artifact archiving.
type DownloadConfig struct {
	Dir            string  `mapstructure:"dir"`
	MaxFileSizeMB  float64 `mapstructure:"max_file_size_mb"`
	ChunkBytes     int     `mapstructure:"chunk_bytes"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	HashFile       string  `mapstructure:"hash_file"`
}

// VirusTotalConfig controls the scan client and polling budget.
type VirusTotalConfig struct {
	APIKey               string `mapstructure:"api_key"`
	BaseURL              string `mapstructure:"base_url"`
	CheckIntervalSeconds int    `mapstructure:"check_interval_seconds"`
	MaxWaitSeconds       int    `mapstructure:"max_wait_seconds"`
}

// PubSubConfig holds metadata for completion-event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("db.max_conns", 5)
	v.SetDefault("crawler.workers", 2)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.headless", true)
	v.SetDefault("crawler.item_wait_seconds", 10)
	v.SetDefault("crawler.control_wait_seconds", 5)
	v.SetDefault("crawler.final_link_wait_seconds", 40)
	v.SetDefault("crawler.page_size", 25)
	v.SetDefault("download.dir", "downloads")
	v.SetDefault("download.max_file_size_mb", 20)
	v.SetDefault("download.chunk_bytes", 8192)
	v.SetDefault("download.timeout_seconds", 300)
	v.SetDefault("download.hash_file", "hashes.json")
	v.SetDefault("virustotal.base_url", "https://www.virustotal.com/api/v3")
	v.SetDefault("virustotal.check_interval_seconds", 10)
	v.SetDefault("virustotal.max_wait_seconds", 600)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Download.MaxFileSizeMB <= 0 {
		return fmt.Errorf("download.max_file_size_mb must be > 0")
	}
	if c.VirusTotal.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("virustotal.check_interval_seconds must be > 0")
	}
	if c.VirusTotal.MaxWaitSeconds < c.VirusTotal.CheckIntervalSeconds {
		return fmt.Errorf("virustotal.max_wait_seconds must be >= the check interval")
	}
	return nil
}

// ItemWait returns the result-render wait as a duration.
func (c CrawlerConfig) ItemWait() time.Duration {
	return time.Duration(c.ItemWaitSeconds) * time.Second
}

// ControlWait returns the navigation-control wait as a duration.
func (c CrawlerConfig) ControlWait() time.Duration {
	return time.Duration(c.ControlWaitSeconds) * time.Second
}

// FinalLinkWait returns the file-preparation wait as a duration.
func (c CrawlerConfig) FinalLinkWait() time.Duration {
	return time.Duration(c.FinalLinkWaitSeconds) * time.Second
}

// Timeout returns the per-download budget as a duration.
func (c DownloadConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CheckInterval returns the verdict polling interval as a duration.
func (c VirusTotalConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// MaxWait returns the total polling budget as a duration.
func (c VirusTotalConfig) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitSeconds) * time.Second
}
