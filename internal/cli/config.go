package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"sinhome/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd 创建 config 命令组
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "Initialize, show and locate the configuration file",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

// InitOptions init 命令选项
type InitOptions struct {
	Force bool
}

func newConfigInitCmd() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := RunInit(configFlag(cmd), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite existing configuration")

	return cmd
}

// RunInit 写入默认配置并创建日志目录，返回配置文件路径
func RunInit(configPath string, opts *InitOptions) (string, error) {
	if configPath == "" {
		var err error
		configPath, err = config.DefaultConfigPath()
		if err != nil {
			return "", err
		}
	}
	path, err := config.ExpandPath(configPath)
	if err != nil {
		return "", err
	}

	// 检查是否已存在
	if _, err := os.Stat(path); err == nil && !opts.Force {
		return "", fmt.Errorf("configuration already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.Default()

	// 创建目录结构
	logDir, err := config.ExpandPath(cfg.ConvLog.Dir)
	if err != nil {
		return "", err
	}
	for _, dir := range []string{filepath.Dir(path), logDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	if err := config.SaveTo(cfg, path); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}

func newConfigShowCmd() *cobra.Command {
	var showAll bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}

			cfg := *cliCtx.Config
			// 脱敏处理
			if !showAll {
				cfg.VLLM.APIKey = maskValue(cfg.VLLM.APIKey)
				cfg.Grok.APIKey = maskValue(cfg.Grok.APIKey)
			}

			data, err := yaml.Marshal(&cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&showAll, "all", false, "show sensitive values")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFlag(cmd)
			if path == "" {
				var err error
				if path, err = config.DefaultConfigPath(); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

// configFlag 返回 --config 的值
func configFlag(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

// maskValue 脱敏：仅保留前后各 4 个字符
func maskValue(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
