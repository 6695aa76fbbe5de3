package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/configstore"
)

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect agent definitions and the rule matrix",
	}

	cmd.AddCommand(newAgentsListCmd())
	cmd.AddCommand(newAgentsValidateCmd())
	return cmd
}

// resolveAgentPaths applies the config overrides for the agents dir and
// matrix file path.
func resolveAgentPaths() (string, string) {
	agentsDir := paths.Agents
	matrixPath := paths.Matrix
	if cfg, err := config.Load(paths.Config); err == nil {
		if cfg.Agents.Dir != "" {
			agentsDir = cfg.Agents.Dir
		}
		if cfg.Agents.Matrix != "" {
			matrixPath = cfg.Agents.Matrix
		}
	}
	return agentsDir, matrixPath
}

func newAgentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agentsDir, matrixPath := resolveAgentPaths()
			configs := configstore.New(agentsDir, matrixPath, log)
			if err := configs.Load(); err != nil {
				return err
			}

			snap := configs.Snapshot()
			if len(snap.Agents) == 0 {
				fmt.Println("no agents configured")
				return nil
			}
			ids := make([]string, 0, len(snap.Agents))
			for id := range snap.Agents {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				a := snap.Agents[id]
				overrides := ""
				if len(a.Rules) > 0 {
					overrides = fmt.Sprintf("  overrides=%d", len(a.Rules))
				}
				fmt.Printf("  %-16s %-24s caps=%s%s\n",
					a.ID, a.PlatformAgentID, strings.Join(a.Capabilities, ","), overrides)
			}
			fmt.Printf("\n%d agent(s), %d matrix rule(s)\n", len(snap.Agents), len(snap.Matrix.Rules))
			return nil
		},
	}
}

func newAgentsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate agent definitions and the rule matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agentsDir, matrixPath := resolveAgentPaths()
			configs := configstore.New(agentsDir, matrixPath, log)
			if err := configs.Load(); err != nil {
				return err
			}

			snap := configs.Snapshot()
			fmt.Printf("OK: %d agent(s), %d rule(s), %d template(s)\n",
				len(snap.Agents), len(snap.Matrix.Rules), len(snap.Matrix.Templates))
			return nil
		},
	}
}
