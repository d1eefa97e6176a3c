// Package cli implements the sinhome command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sinhome/internal/config"
	"sinhome/pkg/logger"
)

// rootOptions 根命令的全局选项
type rootOptions struct {
	configPath string
	verbose    bool
	quiet      bool
}

// 不需要加载配置的命令
var skipSetup = map[string]bool{
	"version": true,
	"help":    true,
	"init":    true,
	"path":    true,
}

// contextKey CLI 上下文键
type contextKey struct{}

// NewRootCmd 创建根命令
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "sinhome",
		Short: "sinhome - conversation window and repetition recovery engine",
		Long: `sinhome answers chat requests through a bounded history window
and recovers from repeated answers by re-prompting and, as a last resort,
by summarizing the conversation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipSetup[cmd.Name()] {
				return nil
			}
			cliCtx, err := opts.setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, contextKey{}, cliCtx))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if cliCtx := GetCLIContext(cmd); cliCtx != nil {
				return cliCtx.Close()
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file path (default $SINHOME_HOME/config.yaml or ~/.sinhome/config.yaml)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "only log errors")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	rootCmd.AddCommand(
		NewVersionCmd(),
		NewConfigCmd(),
		NewServeCmd(),
		NewChatCmd(),
		NewLogsCmd(),
	)
	return rootCmd
}

// setup 加载配置、初始化日志并创建 CLI 上下文
func (o *rootOptions) setup() (*CLIContext, error) {
	path := o.configPath
	if path == "" {
		var err error
		if path, err = config.DefaultConfigPath(); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	level := cfg.Log.Level
	switch {
	case o.verbose:
		level = "debug"
	case o.quiet:
		level = "error"
	}
	if err := logger.Init(logger.LogConfig{Level: level, Format: cfg.Log.Format, File: cfg.Log.File}); err != nil {
		return nil, err
	}

	return NewCLIContext(cfg, path, logger.Get(), o.verbose, o.quiet), nil
}

// GetCLIContext 从命令上下文获取 CLI 上下文
func GetCLIContext(cmd *cobra.Command) *CLIContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cliCtx, _ := ctx.Value(contextKey{}).(*CLIContext)
	return cliCtx
}
