package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sinhome/internal/provider"
	"sinhome/internal/server"
)

const startupPingTimeout = 5 * time.Second

// serveOptions serve 命令选项
type serveOptions struct {
	host string
	port int
}

// NewServeCmd 创建 serve 命令
func NewServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		Long: `Start the HTTP gateway.

Routes:
  POST /api/v1/chat, /api/v1/chat/script
  GET  /api/v1/logs, /api/v1/logs/{id}
  GET  /api/v1/logs/stream (WebSocket)
  GET  /api/v1/health

Edits to the window, retry, sampling and chat sections of the config file
take effect without a restart.`,
		Example: `  sinhome serve
  sinhome serve --port 9000
  sinhome serve --host 127.0.0.1 -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "bind address (overrides server.host)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "listen port (overrides server.port)")

	return cmd
}

func (o *serveOptions) run(cmd *cobra.Command) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return errors.New("CLI context not initialized")
	}
	cfg := cliCtx.Config
	log := cliCtx.Log()

	if cmd.Flags().Changed("host") {
		cfg.Server.Host = o.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = o.port
	}

	srv, err := cliCtx.Engine(server.Options{Serve: true})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 后端不可达只告警，不阻止启动
	if p, ok := srv.Chat().Completer().(provider.Pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
		if err := p.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Str("backend", srv.Chat().Backend()).Msg("Backend not reachable yet")
		}
		cancel()
	}

	log.Info().
		Str("address", "http://"+cfg.Server.Addr()).
		Str("backend", srv.Chat().Backend()).
		Msg("Starting sinhome server")

	err = srv.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}
