package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/frostholm/flowagent/internal/capability"
	"github.com/frostholm/flowagent/internal/config"
	"github.com/frostholm/flowagent/internal/registry"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List the available capabilities and their operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		client := capability.NewClient(
			capability.WithTimeout(cfg.HTTPTimeout),
			capability.WithRateLimit(cfg.RequestsPerSec),
			capability.WithUserAgent(cfg.NominatimAgent),
		)
		reg := registry.Build(capability.Modules(client, cfg.WAQIToken)...)

		for _, c := range reg.List() {
			fmt.Printf("%s - %s\n", c.Name, c.Description)
			for _, op := range c.Operations {
				params := make([]string, len(op.Params))
				for i, p := range op.Params {
					params[i] = p.Name
					if p.Optional {
						params[i] += "?"
					}
				}
				fmt.Printf("  %s(%s)\n", op.Name, strings.Join(params, ", "))
			}
		}
		return nil
	},
}
