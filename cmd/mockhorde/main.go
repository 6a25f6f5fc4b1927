package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VilotStar/StableHorder/internal/config"
	"github.com/VilotStar/StableHorder/internal/mockhorde"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:           "mockhorde",
		Short:         "Serve a local stand-in for the horde generate API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadMock()
			if addr != "" {
				cfg.ServerAddr = addr
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides MOCKHORDE_ADDR)")
	return cmd
}

func serve(cfg *config.MockConfig) error {
	ctx := context.Background()

	// ── Job queue ──
	var queue mockhorde.JobQueue
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		log.Println("connected to Redis at", cfg.RedisAddr)
		queue = mockhorde.NewRedisQueue(rdb)
	} else {
		log.Println("using in-memory job queue")
		queue = mockhorde.NewMemoryQueue()
	}

	srvState := mockhorde.NewServer(cfg, queue)

	// ── Generation janitor (background) ──
	janitorCtx, janitorCancel := context.WithCancel(ctx)
	defer janitorCancel()
	go srvState.StartJanitor(janitorCtx, time.Minute)

	// ── Gin Router ──
	gin.SetMode(gin.ReleaseMode)
	if cfg.AdminToken == "" {
		log.Println("MOCKHORDE_ADMIN_TOKEN is empty; job enqueue endpoint is disabled")
	}

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: srvState.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("mock horde listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// ── Graceful Shutdown ──
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	log.Println("shutting down mock horde...")
	janitorCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	log.Println("mock horde exited cleanly")
	return nil
}
