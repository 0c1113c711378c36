package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

// LoadConfig 从文件加载配置并填充到 Cfg
func LoadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("config file not found: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	Cfg = &cfg

	return nil
}

// applyDefaults 填充未配置项的默认值
func applyDefaults(cfg *Config) {
	if cfg.IM.SendBuffer <= 0 {
		cfg.IM.SendBuffer = 256
	}
	if cfg.IM.MaxFileBytes <= 0 {
		cfg.IM.MaxFileBytes = 20 << 20
	}
	if cfg.Archive.RetentionDays <= 0 {
		cfg.Archive.RetentionDays = 30
	}
	if cfg.Archive.ExpireDays <= 0 {
		cfg.Archive.ExpireDays = 180
	}
	if cfg.Archive.BatchSize <= 0 {
		cfg.Archive.BatchSize = 1000
	}
	if cfg.Archive.Spec == "" {
		cfg.Archive.Spec = "@daily"
	}
}

// ArchiveRetention 活跃表保留窗口
func (c *Config) ArchiveRetention() time.Duration {
	return time.Duration(c.Archive.RetentionDays) * 24 * time.Hour
}

// ArchiveExpire 归档保留窗口
func (c *Config) ArchiveExpire() time.Duration {
	return time.Duration(c.Archive.ExpireDays) * 24 * time.Hour
}
