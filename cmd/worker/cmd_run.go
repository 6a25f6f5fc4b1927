package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/VilotStar/StableHorder/internal/config"
	"github.com/VilotStar/StableHorder/internal/database"
	"github.com/VilotStar/StableHorder/internal/node"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Pull jobs from the horde until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return runWorker(cmd.Context(), configPath)
		},
	}
}

func runWorker(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	identity := cfg.Identity()
	log.Printf("Starting horde worker %s (%s)", identity.Payload.Name, identity.ClientAgent())
	log.Printf("Horde: %s, threads: %d", identity.HordeURL, identity.Concurrency())

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open cycle log: %w", err)
	}
	defer db.Close()

	n, err := node.NewNode(identity, node.Options{
		Poller:        cfg.Poller(),
		IdleDelay:     cfg.Loop.IdleDelay.Std(),
		PopErrorDelay: cfg.Loop.PopErrorDelay.Std(),
		DB:            db,
	})
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Determine dashboard address
	dashboardAddr := ""
	if cfg.Dashboard.Enabled {
		dashboardAddr = cfg.Dashboard.Address
		log.Printf("Dashboard enabled on %s", dashboardAddr)
	}

	if err := n.Start(ctx, dashboardAddr); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	log.Printf("Worker started successfully")

	<-ctx.Done()
	log.Printf("Shutting down...")

	if err := n.Stop(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	log.Printf("Worker stopped")
	return nil
}
