package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/flamekit/internal/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func orUnset(s string) string {
	if s == "" {
		return "not set"
	}
	return s
}

func runConfig(_ *cobra.Command, _ []string) error {
	fmt.Println(cli.RenderTitle("flamekit configuration"))
	fmt.Printf("  Config file: %s\n", flagConfigPath)
	if _, err := os.Stat(flagConfigPath); err == nil {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Database:        %s\n", dbPath())
	fmt.Printf("    Profiles dir:    %s\n", orUnset(cfg.General.ProfilesDir))
	fmt.Printf("    Default metric:  %s\n", orUnset(cfg.General.DefaultMetric))
	fmt.Printf("    Default view:    %s\n", cfg.General.DefaultView)
	fmt.Println()

	fmt.Println("  [Layout]")
	fmt.Printf("    Width:       %g\n", cfg.Layout.Width)
	if cfg.Layout.Columns > 0 {
		fmt.Printf("    Columns:     %d\n", cfg.Layout.Columns)
	} else {
		fmt.Println("    Columns:     terminal width")
	}
	fmt.Printf("    Min columns: %d\n", cfg.Layout.MinColumns)
	fmt.Println()

	fmt.Println("  [Server]")
	fmt.Printf("    Address:       %s\n", cfg.Server.Addr)
	fmt.Printf("    Poll interval: %ds\n", cfg.Server.PollIntervalSec)
	fmt.Printf("    Events buffer: %d\n", cfg.Server.EventsBuffer)
	fmt.Printf("    Session idle:  %ds\n", cfg.Server.SessionIdleSec)
	fmt.Printf("    Rate limit:    %g req/s (burst %d)\n", cfg.Server.RequestsPerSec, cfg.Server.Burst)
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme: %s\n", cfg.Appearance.Theme)
	fmt.Println()

	fmt.Println("  [Log]")
	fmt.Printf("    Level: %s\n", cfg.Log.Level)
	fmt.Println()

	fmt.Println("  Run `flamekit setup` to reconfigure.")
	return nil
}
