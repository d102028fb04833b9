package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	flowagent "github.com/frostholm/flowagent"
	"github.com/frostholm/flowagent/internal/chain"
)

var chainFile string

var runCmd = &cobra.Command{
	Use:   "run [query]",
	Short: "Answer a single query or execute a predefined chain file",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := buildRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		if chainFile != "" {
			return runChainFile(cmd, rt, chainFile, strings.Join(args, " "))
		}

		if len(args) == 0 {
			return fmt.Errorf("provide a query or --chain file")
		}
		query := strings.Join(args, " ")

		reply, err := rt.agent.ProcessQueryWithTimeout(ctx, query)
		if errors.Is(err, flowagent.ErrExit) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&chainFile, "chain", "c", "", "Path to a YAML chain file to execute")
}

// runChainFile loads, validates and executes a chain from disk, printing the
// rendered answer when a query is given and the raw context otherwise.
func runChainFile(cmd *cobra.Command, rt *runtime, path, query string) error {
	cf, err := chain.LoadChainFile(path)
	if err != nil {
		return err
	}
	steps := cf.ChainSteps()

	orchestrator := rt.orchestrator
	if err := orchestrator.Define(steps); err != nil {
		return fmt.Errorf("invalid chain file %s: %w", path, err)
	}

	ctx := cmd.Context()
	chainCtx, err := orchestrator.Execute(ctx, steps)
	if err != nil {
		return err
	}

	if query != "" {
		reply, err := orchestrator.Render(ctx, query, chainCtx)
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	}

	encoded, err := json.MarshalIndent(chainCtx, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(encoded))
	return nil
}
