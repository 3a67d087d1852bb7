package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-bills-must-flow/internal/cli"
	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/engine"
)

func replayCmd() *cobra.Command {
	kinds := make([]string, 0, len(engine.EventKinds))
	for _, k := range engine.EventKinds {
		kinds = append(kinds, string(k))
	}

	cmd := &cobra.Command{
		Use:   "replay <obligation-id> <event-kind>",
		Short: "Re-run an obligation event through every granularity",
		Long: fmt.Sprintf(`Fire an obligation event by hand. Event kinds: %s.

transaction-added without --txn re-matches every assigned transaction.
obligation-edited recalculates every record from the current definition.
transaction-removed needs --txn and window-created needs --window.`, strings.Join(kinds, ", ")),
		Args: cobra.ExactArgs(2),
		RunE: runReplay,
	}
	cmd.Flags().StringSlice("txn", nil, "Transaction IDs carried by the event")
	cmd.Flags().StringSlice("window", nil, "Window IDs carried by the event")
	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	kind, err := engine.ParseEventKind(args[1])
	if err != nil {
		return common.NewUserError(fmt.Sprintf("Unknown event kind %q", args[1]), err)
	}
	txnIDs, _ := cmd.Flags().GetStringSlice("txn")
	windowIDs, _ := cmd.Flags().GetStringSlice("window")

	return withApp(cmd, func(a *app) error {
		res, err := a.engine.OnObligationEvent(cmd.Context(), args[0], kind, engine.EventPayload{
			TransactionIDs: txnIDs,
			WindowIDs:      windowIDs,
		})
		if err != nil {
			return err
		}
		printEventResult(cmd.OutOrStdout(), res)
		if err := res.Err(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Replayed %s for %s", kind, args[0])))
		return nil
	})
}
