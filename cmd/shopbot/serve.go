package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"shopbot/internal/bot"
	"shopbot/internal/conversation"
	"shopbot/internal/handler"
	"shopbot/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the ops HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.kv.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}

	tb, err := bot.New(bot.Config{
		Token:          a.cfg.Telegram.Token,
		PollTimeout:    a.cfg.Telegram.PollTimeout,
		HandlerTimeout: a.cfg.Telegram.HandlerTimeout,
	}, a.logger)
	if err != nil {
		return err
	}
	machine := conversation.New(a.shop, store.NewSessions(a.kv), tb, a.logger, a.metrics)
	tb.Register(machine)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tb.Start(gctx)
		return nil
	})

	if a.cfg.OpsPort != "" {
		if a.cfg.OpsToken == "" {
			a.logger.Warn("OPS_TOKEN not set, /mcp rejects every request")
		}
		h := handler.New(a.shop, a.kv, a.metrics, a.logger, handler.WithMCPToken(a.cfg.OpsToken))
		server := &http.Server{
			Addr:         a.cfg.OpsAddr(),
			Handler:      h.HTTPHandler(),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		g.Go(func() error {
			a.logger.Info("ops server starting", slog.String("addr", server.Addr))
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			// Give outstanding requests time to complete
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				server.Close()
				return fmt.Errorf("shutdown error: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	a.logger.Info("shopbot stopped")
	return err
}
