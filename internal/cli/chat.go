package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	flowagent "github.com/frostholm/flowagent"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := buildRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		fmt.Println("flowagent ready. Type 'exit', 'quit' or 'q' to leave.")
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			query := strings.TrimSpace(scanner.Text())
			if query == "" {
				continue
			}

			reply, err := rt.agent.ProcessQueryWithTimeout(ctx, query)
			if errors.Is(err, flowagent.ErrExit) {
				fmt.Println("Goodbye!")
				return nil
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			fmt.Println(reply)
		}
		return scanner.Err()
	},
}
