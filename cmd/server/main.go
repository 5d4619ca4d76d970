// Command irmachat-server runs the IRMA auth bridge and the chat relay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/irmachat/internal/config"
	"github.com/and161185/irmachat/internal/crypto"
	"github.com/and161185/irmachat/internal/irma"
	"github.com/and161185/irmachat/internal/limiter"
	wsserver "github.com/and161185/irmachat/internal/server/ws"
	"github.com/and161185/irmachat/internal/service"
	"github.com/and161185/irmachat/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dev bool

	root := &cobra.Command{
		Use:   "irmachat-server",
		Short: "IRMA-authenticated chat: auth bridge and chat relay over WebSocket",
		Long: "irmachat-server accepts auth connections that drive an IRMA disclosure session and hand out " +
			"a short-lived chat credential, and chat connections that present that credential to join the relay. " +
			"Configuration is read from the environment.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, dev)
		},
	}
	root.Flags().BoolVar(&dev, "dev", false, "human-readable debug logging")
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "irmachat-server %s (%s)\n", version, buildDate)
			return err
		},
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// run loads configuration, wires the services and serves until ctx ends.
func run(ctx context.Context, dev bool) error {
	logger, err := newLogger(dev)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", zap.Error(err))
		return err
	}
	keys, err := config.LoadKeys(cfg)
	if err != nil {
		logger.Error("keys", zap.Error(err))
		return err
	}
	fp, err := crypto.NewFingerprinter()
	if err != nil {
		return fmt.Errorf("fingerprinter: %w", err)
	}

	backend := irma.New(irma.Options{
		BaseURL:    cfg.IrmaServer,
		AppName:    cfg.AppName,
		SigningKey: keys.AppPrivate,
		VerifyKey:  keys.BackendPublic,
		Attributes: cfg.Attributes,
		Validity:   cfg.SessionValidity,
		Timeout:    cfg.SessionTimeout,
	}, logger.Named("irma"))
	issuer := token.NewIssuer([]byte(cfg.AppJWTKey), cfg.AppJWTTTL)

	authSvc := service.NewAuthService(backend, issuer, logger.Named("auth"))
	var lim limiter.Limiter
	if cfg.ChatAuthMaxFailures > 0 {
		lim = limiter.NewMemory(cfg.ChatAuthWindow, cfg.ChatAuthMaxFailures, cfg.ChatAuthBlock)
	}
	chatSvc := service.NewChatRegistry(issuer, lim, logger.Named("chat"))

	srv := wsserver.New(wsserver.Options{
		AuthAddr:        cfg.AuthAddr,
		ChatAddr:        cfg.ChatAddr,
		AllowedOrigins:  cfg.AllowedOrigins,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, authSvc, chatSvc, fp, logger)

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server error", zap.Error(err))
		return err
	}
	logger.Info("shutdown complete", zap.Int("peers", chatSvc.Len()))
	return nil
}
