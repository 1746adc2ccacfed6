package cli

import (
	"sync"

	"github.com/rs/zerolog"

	"runbox/internal/catalog"
	"runbox/internal/config"
	"runbox/internal/progress"
	"runbox/internal/server"
	"runbox/internal/storage"
)

// CLIContext CLI 上下文
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     zerolog.Logger
	Verbose    bool
	Quiet      bool

	storageOnce sync.Once
	storage     *storage.DB
	storageErr  error

	catalogOnce sync.Once
	catalog     *catalog.Store
	catalogErr  error
}

// NewCLIContext 创建 CLI 上下文
func NewCLIContext(cfg *config.Config, configPath string, log zerolog.Logger, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     log,
		Verbose:    verbose,
		Quiet:      quiet,
	}
}

// GetStorage 获取存储连接（懒加载）
func (c *CLIContext) GetStorage() (*storage.DB, error) {
	c.storageOnce.Do(func() {
		c.storage, c.storageErr = storage.Open(c.Config.Storage.Path)
	})
	return c.storage, c.storageErr
}

// GetCatalog 加载课程目录（懒加载）
func (c *CLIContext) GetCatalog() (*catalog.Store, error) {
	c.catalogOnce.Do(func() {
		m, err := server.LoadManifest(c.Config.Catalog.Path)
		if err != nil {
			c.catalogErr = err
			return
		}
		c.catalog = catalog.NewStore(m)
	})
	return c.catalog, c.catalogErr
}

// GetProgress 创建学习进度存储
func (c *CLIContext) GetProgress() (*progress.Store, error) {
	db, err := c.GetStorage()
	if err != nil {
		return nil, err
	}
	store, err := c.GetCatalog()
	if err != nil {
		return nil, err
	}
	return progress.NewStore(db, store,
		progress.WithCodeTTL(c.Config.Progress.CodeTTL),
		progress.WithLogger(c.Logger)), nil
}

// Close 关闭资源
func (c *CLIContext) Close() error {
	if c.storage != nil {
		return c.storage.Close()
	}
	return nil
}
