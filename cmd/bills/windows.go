package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-bills-must-flow/internal/cli"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

func windowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "windows",
		Short: "Manage the period window catalog",
	}
	cmd.AddCommand(windowsGenerateCmd())
	return cmd
}

func windowsGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create monthly, weekly and bi-monthly windows for a date range",
		Long: `Extend the window catalog over a date range. Every active obligation
gets period records for the new windows, and transactions already assigned
to it are matched into them.

Defaults to the current calendar year.`,
		RunE: runWindowsGenerate,
	}

	cmd.Flags().String("from", "", "First day to cover (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last day to cover (YYYY-MM-DD)")

	return cmd
}

func runWindowsGenerate(cmd *cobra.Command, _ []string) error {
	defFrom, defTo := yearBounds(time.Now())
	from, err := parseDayFlag(cmd, "from", defFrom)
	if err != nil {
		return err
	}
	to, err := parseDayFlag(cmd, "to", defTo)
	if err != nil {
		return err
	}
	if to.Before(from) {
		return fmt.Errorf("--to %s is before --from %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	return withApp(cmd, func(a *app) error {
		out := cmd.OutOrStdout()
		handler := cli.NewInterruptHandler(out, "Run the same `bills windows generate` command again to finish.")
		ctx := handler.HandleInterrupts(cmd.Context())

		var bar *cli.Progress
		result, err := a.engine.ExtendCatalog(ctx, from, to, func(done, total int) {
			if bar == nil {
				bar = cli.NewProgress(out, total, "Materializing records")
			}
			bar.Set(done)
		})
		if err != nil {
			return err
		}

		if len(result.Created) == 0 {
			fmt.Fprintln(out, cli.FormatInfo("Catalog already covers this range."))
			return nil
		}

		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Created %d windows", len(result.Created))))
		printCreatedCounts(out, result.Created)
		for _, ev := range result.Events {
			if failed := ev.Failed(); len(failed) > 0 {
				fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("Obligation %s: %d granularities failed", ev.ObligationID, len(failed))))
				printEventResult(out, ev)
			}
		}
		return nil
	})
}

func printCreatedCounts(out io.Writer, created []model.PeriodWindow) {
	counts := make(map[model.Granularity]int)
	for _, w := range created {
		counts[w.Granularity]++
	}
	for _, g := range model.Granularities {
		fmt.Fprintf(out, "  %-10s %d\n", g, counts[g])
	}
}
