package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults 设置所有配置项的默认值
func SetDefaults() {
	// Log 配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	// Storage 配置
	dataPath := "~/.runbox/data.db"
	if p, err := DefaultDataPath(); err == nil {
		dataPath = p
	}
	viper.SetDefault("storage.path", dataPath)

	// Gateway 配置
	viper.SetDefault("gateway.host", "127.0.0.1")
	viper.SetDefault("gateway.port", 8090)
	viper.SetDefault("gateway.allowed_origins", []string{"*"})
	viper.SetDefault("gateway.rate_limit.enabled", true)
	viper.SetDefault("gateway.rate_limit.requests_per_minute", 120)
	viper.SetDefault("gateway.rate_limit.burst", 20)
	viper.SetDefault("gateway.rate_limit.run_cost", 5)
	viper.SetDefault("gateway.rate_limit.cleanup_interval", time.Minute)

	// Runner 配置
	viper.SetDefault("runner.timeout", 30*time.Second)
	viper.SetDefault("runner.pool_size", 4)
	viper.SetDefault("runner.warm_vms", 2)
	viper.SetDefault("runner.acquire_timeout", 5*time.Second)
	viper.SetDefault("runner.max_call_stack_size", 1024)
	viper.SetDefault("runner.advisory", "")

	// Catalog 配置
	viper.SetDefault("catalog.path", "")
	viper.SetDefault("catalog.watch", true)

	// Progress 配置
	viper.SetDefault("progress.code_ttl", 0)

	// Maintenance 配置
	viper.SetDefault("maintenance.enabled", true)
	viper.SetDefault("maintenance.cleanup_schedule", "@every 1h")
}
