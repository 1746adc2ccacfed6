// Package config 加载 runbox 的配置：默认值、YAML 配置文件以及 RUNBOX_ 前缀的环境变量。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量前缀，例如 RUNBOX_RUNNER_TIMEOUT 覆盖 runner.timeout
const EnvPrefix = "RUNBOX"

// Config 是应用配置的根结构体
type Config struct {
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Storage     StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Gateway     GatewayConfig     `mapstructure:"gateway" yaml:"gateway"`
	Runner      RunnerConfig      `mapstructure:"runner" yaml:"runner"`
	Catalog     CatalogConfig     `mapstructure:"catalog" yaml:"catalog"`
	Progress    ProgressConfig    `mapstructure:"progress" yaml:"progress"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance" yaml:"maintenance"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // console 或 json
	File   string `mapstructure:"file" yaml:"file"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // SQLite 文件路径，支持 ~ 前缀
}

// GatewayConfig 网关配置
type GatewayConfig struct {
	Host           string          `mapstructure:"host" yaml:"host"`
	Port           int             `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string        `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// Addr 返回监听地址
func (c GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	RunCost           int           `mapstructure:"run_cost" yaml:"run_cost"` // 一次代码运行消耗的令牌数
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// RunnerConfig 练习代码执行配置
type RunnerConfig struct {
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"` // 0 表示不限时
	PoolSize         int           `mapstructure:"pool_size" yaml:"pool_size"`
	WarmVMs          int           `mapstructure:"warm_vms" yaml:"warm_vms"`
	AcquireTimeout   time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`
	MaxCallStackSize int           `mapstructure:"max_call_stack_size" yaml:"max_call_stack_size"`
	Advisory         string        `mapstructure:"advisory" yaml:"advisory,omitempty"` // 空则使用内置提示
}

// CatalogConfig 课程目录配置
type CatalogConfig struct {
	Path  string `mapstructure:"path" yaml:"path"` // 空则使用内嵌的默认目录
	Watch bool   `mapstructure:"watch" yaml:"watch"`
}

// ProgressConfig 学习进度配置
type ProgressConfig struct {
	CodeTTL time.Duration `mapstructure:"code_ttl" yaml:"code_ttl"` // 0 表示永久保存
}

// MaintenanceConfig 后台维护任务配置
type MaintenanceConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	CleanupSchedule string `mapstructure:"cleanup_schedule" yaml:"cleanup_schedule"`
}

var validLogFormats = map[string]bool{"console": true, "json": true}

// Validate 检查配置值是否合法
func (c *Config) Validate() error {
	var errs []error

	if !validLogFormats[c.Log.Format] {
		errs = append(errs, fmt.Errorf("log.format: unsupported value %q", c.Log.Format))
	}
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port: %d out of range", c.Gateway.Port))
	}
	if c.Gateway.RateLimit.Enabled && c.Gateway.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("gateway.rate_limit.requests_per_minute must be positive"))
	}
	if c.Runner.Timeout < 0 {
		errs = append(errs, errors.New("runner.timeout must not be negative"))
	}
	if c.Runner.PoolSize <= 0 {
		errs = append(errs, errors.New("runner.pool_size must be positive"))
	}
	if c.Progress.CodeTTL < 0 {
		errs = append(errs, errors.New("progress.code_ttl must not be negative"))
	}
	if c.Maintenance.Enabled && strings.TrimSpace(c.Maintenance.CleanupSchedule) == "" {
		errs = append(errs, errors.New("maintenance.cleanup_schedule is required when maintenance is enabled"))
	}

	return errors.Join(errs...)
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load 加载配置，path 为空时只使用默认值和环境变量。
// 配置文件不存在不算错误，格式错误会返回错误。
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	configPath = ""
	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			if !isNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", expandedPath, err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	var pathErr *os.PathError
	return errors.As(err, &notFound) || errors.As(err, &pathErr) || os.IsNotExist(err)
}

// GetConfig 返回最近一次 Load 的结果
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Path 返回当前配置文件路径
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// Get 读取任意配置项
func Get(key string) any {
	return viper.Get(key)
}

// GetString 读取字符串配置项
func GetString(key string) string {
	return viper.GetString(key)
}

// Set 设置配置项，已加载配置文件时立即写回
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	if !viper.IsSet(key) {
		return fmt.Errorf("unknown config key: %s", key)
	}
	viper.Set(key, value)

	if configPath != "" {
		return save()
	}
	return nil
}

func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0644)
}

// SaveTo 将 cfg 序列化为 YAML 写到 path
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Reset 重置配置（主要用于测试）
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
