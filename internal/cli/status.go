package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show voicebridge status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("voicebridge %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Printf("Config:  %s\n", paths.Config)
			fmt.Printf("Agents:  %s\n", paths.Agents)
			fmt.Printf("Matrix:  %s\n", paths.Matrix)
			fmt.Printf("Data:    %s\n", paths.Data)
			fmt.Println()

			cfg, err := config.Load(paths.Config)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("Config:  not found (using defaults)")
					cfg = config.Defaults()
				} else {
					fmt.Printf("Config:  error loading: %v\n", err)
					return nil
				}
			}

			verify := "on"
			if cfg.Gateway.SkipVerify {
				verify = "OFF"
			}
			fmt.Printf("Gateway:  port=%d bind=%s signature-check=%s\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, verify)
			fmt.Printf("Executor: attempts=%d concurrent=%d timeout=%ds\n",
				cfg.Executor.MaxAttempts, cfg.Executor.MaxConcurrentRuns, cfg.Executor.ActionTimeoutSec)
			fmt.Printf("Storage:  backend=%s retention=%dd\n",
				cfg.Storage.Backend, cfg.Storage.RetentionDays)

			enabled := []string{"log", "analytics"}
			if cfg.Adapters.Mail != nil {
				enabled = append(enabled, "mail")
			}
			if cfg.Adapters.Calendar != nil {
				enabled = append(enabled, "calendar")
			}
			if cfg.Adapters.Sheets != nil {
				enabled = append(enabled, "sheets")
			}
			if cfg.Adapters.Location != nil {
				enabled = append(enabled, "location")
			}
			if cfg.Adapters.Billing != nil {
				enabled = append(enabled, "billing")
			}
			fmt.Printf("Adapters: %v\n", enabled)

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Printf("\n%d validation issue(s):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  %s\n", issue.String())
				}
			}

			return nil
		},
	}
}
