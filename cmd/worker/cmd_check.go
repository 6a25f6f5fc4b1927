package main

import (
	"fmt"

	"github.com/VilotStar/StableHorder/internal/config"
	"github.com/VilotStar/StableHorder/internal/horde"
	"github.com/spf13/cobra"
)

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config and build both network clients without contacting the horde",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			identity := cfg.Identity()
			if _, _, err := horde.NewClients(identity); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "worker:     %s (%s)\n", identity.Payload.Name, identity.ClientAgent())
			fmt.Fprintf(out, "horde:      %s\n", identity.HordeURL)
			fmt.Fprintf(out, "reception:  proxy=%s\n", proxyLabel(identity.Reception.Proxy))
			fmt.Fprintf(out, "generation: proxy=%s\n", proxyLabel(identity.Generation.Proxy))
			fmt.Fprintf(out, "models:     %v\n", identity.Payload.Models)
			fmt.Fprintf(out, "threads:    %d\n", identity.Concurrency())
			return nil
		},
	}
}

// proxyLabel hides proxy credentials.
func proxyLabel(raw string) string {
	if raw == "" {
		return "direct"
	}
	u, err := horde.ParseProxy(raw)
	if err != nil {
		return "invalid"
	}
	return u.Redacted()
}
