package cli

import (
	"github.com/spf13/cobra"
)

// verbose enables the event-logging subscriber on the agent's event bus.
var verbose bool

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "flowagent",
	Short: "Natural-language request routing over capability modules",
	Long: "flowagent classifies free-form requests with a language model, routes them onto\n" +
		"built-in capability modules (weather, currency, news, stocks and more), and can\n" +
		"plan and execute multi-step capability chains with conditions, caching and retries.",
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every internal event to stderr")
	RootCmd.AddCommand(chatCmd)
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(capabilitiesCmd)
}
