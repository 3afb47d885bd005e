package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cometbft/cometbft/abci/server"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"obscuraplay/internal/app"
	"obscuraplay/internal/authz"
	"obscuraplay/internal/config"
	"obscuraplay/internal/coprocessor"
	"obscuraplay/internal/relay"
)

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the ABCI application and the decryption relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, err := homeDir(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return start(ctx, home)
		},
	}
}

func start(ctx context.Context, home string) error {
	cfg, err := config.Load(home)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	kp, err := coprocessor.LoadOrGenerateNetworkKey(filepath.Join(home, "config"))
	if err != nil {
		return err
	}
	vault, err := dbm.NewDB("vault", dbm.GoLevelDBBackend, filepath.Join(home, "data"))
	if err != nil {
		return fmt.Errorf("open vault: %w", err)
	}
	defer vault.Close()

	engine, err := coprocessor.New(vault, kp, logger)
	if err != nil {
		return err
	}
	a, err := app.New(home, cfg.ContractAddress(), engine, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	abciSrv, err := server.NewServer(cfg.ABCI.Addr, cfg.ABCI.Transport, a)
	if err != nil {
		return fmt.Errorf("create abci server: %w", err)
	}

	relaySrv := relay.NewServer(relay.Config{
		Domain:          authz.NewDomain(cfg.ChainID, cfg.VerifyingContract()),
		MaxDurationDays: cfg.Relay.MaxDurationDays,
		ClockSkew:       cfg.Relay.ClockSkew,
	}, a, engine, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Relay.Listen,
		Handler:           relaySrv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := abciSrv.Start(); err != nil {
			return fmt.Errorf("abci server start: %w", err)
		}
		logger.Info("abci server listening", "addr", cfg.ABCI.Addr, "transport", cfg.ABCI.Transport)
		<-gctx.Done()
		return abciSrv.Stop()
	})
	g.Go(func() error {
		logger.Info("relay listening", "addr", cfg.Relay.Listen, "chain_id", cfg.ChainID)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
