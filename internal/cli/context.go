package cli

import (
	"sync"

	"sinhome/internal/config"
	"sinhome/internal/server"
	"sinhome/internal/storage"
	"sinhome/pkg/logger"

	"github.com/rs/zerolog"
)

// CLIContext CLI 上下文
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zerolog.Logger
	Verbose    bool
	Quiet      bool

	storageOnce sync.Once
	storage     *storage.DB
	storageErr  error

	engine *server.Server
}

// NewCLIContext 创建 CLI 上下文
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, verbose, quiet bool) *CLIContext {
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

// Engine 构建对话引擎（不含 HTTP 网关），随 Close 一起关闭
func (c *CLIContext) Engine(opts server.Options) (*server.Server, error) {
	if c.engine != nil {
		return c.engine, nil
	}
	opts.Version = Version
	srv, err := server.New(c.Config, opts)
	if err != nil {
		return nil, err
	}
	c.engine = srv
	return srv, nil
}

// Close 关闭资源
func (c *CLIContext) Close() error {
	var err error
	if c.engine != nil {
		err = c.engine.Close()
	}
	if c.storage != nil {
		if cerr := c.storage.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Log 获取 Logger
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}
