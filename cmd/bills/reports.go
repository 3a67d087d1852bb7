package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/cli"
	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <obligation-id>",
		Short: "Show an obligation's period records",
		Long: `Show the period record of an obligation in one window, or in the
monthly, weekly and bi-monthly windows containing --date when no window is
given.`,
		Args: cobra.ExactArgs(1),
		RunE: runStatus,
	}
	cmd.Flags().StringSlice("window", nil, "Window IDs, e.g. monthly:2025-03 or weekly:2025-03-10")
	cmd.Flags().String("date", "", "Show the windows containing this day (default: today)")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	windowIDs, _ := cmd.Flags().GetStringSlice("window")
	if len(windowIDs) == 0 {
		day, err := parseDayFlag(cmd, "date", calendar.Day(time.Now()))
		if err != nil {
			return err
		}
		for _, g := range model.Granularities {
			w, err := calendar.WindowFor(g, day)
			if err != nil {
				return err
			}
			windowIDs = append(windowIDs, w.ID)
		}
	}

	return withApp(cmd, func(a *app) error {
		out := cmd.OutOrStdout()
		for _, id := range windowIDs {
			r, err := a.engine.GetPeriodStatus(cmd.Context(), args[0], id)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, cli.RenderBox(r.ObligationName+" · "+r.WindowID, renderRecord(r)))
		}
		return nil
	})
}

// renderRecord formats a record's totals and occurrences for a status box.
func renderRecord(r *model.PeriodRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Status: %s\n", cli.FormatStatus(r.Status))
	if !r.IsActive {
		fmt.Fprintln(&b, cli.SubtleStyle.Render("inactive"))
	}
	fmt.Fprintf(&b, "Due: %s  Paid: %s  Unpaid: %s",
		cli.FormatMoney(r.TotalAmountDue), cli.FormatMoney(r.TotalAmountPaid), cli.FormatMoney(r.TotalAmountUnpaid))
	if r.TotalAmountOverpaid > 0 {
		fmt.Fprintf(&b, "  Overpaid: %s", cli.FormatMoney(r.TotalAmountOverpaid))
	}
	if r.OccurrenceCount == 0 {
		fmt.Fprintf(&b, "\n%s", cli.SubtleStyle.Render("No occurrences in this window"))
		return b.String()
	}

	for i, due := range r.OccurrenceDueDates {
		mark := cli.WarningStyle.Render("○ unpaid")
		if r.Status.IsComplete() {
			mark = cli.SubtleStyle.Render("○ covered by other payments")
		}
		if r.OccurrencePaidFlags[i] {
			mark = cli.SuccessStyle.Render(fmt.Sprintf("● %s %s via %s",
				r.OccurrencePaymentTypes[i], cli.FormatMoney(r.OccurrenceAmounts[i]), r.OccurrenceTransactionIDs[i]))
		}
		fmt.Fprintf(&b, "\n%s  %s", due.Format(calendar.DateLayout), mark)
	}
	return b.String()
}

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary [obligation-id...]",
		Short: "Summarize expected and paid amounts over a date range",
		Long: `Roll up expected, paid and unpaid amounts, by category, for the
given obligations (or all of them) over a date range. Defaults to the
current calendar year.`,
		RunE: runSummary,
	}
	cmd.Flags().String("from", "", "First day (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last day (YYYY-MM-DD)")
	return cmd
}

func reportRange(cmd *cobra.Command) (service.DateRange, error) {
	defFrom, defTo := yearBounds(time.Now())
	from, err := parseDayFlag(cmd, "from", defFrom)
	if err != nil {
		return service.DateRange{}, err
	}
	to, err := parseDayFlag(cmd, "to", defTo)
	if err != nil {
		return service.DateRange{}, err
	}
	return service.DateRange{Start: from, End: to}, nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	rng, err := reportRange(cmd)
	if err != nil {
		return err
	}

	return withApp(cmd, func(a *app) error {
		summary, err := a.engine.GetSummary(cmd.Context(), args, rng)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), summary, rng)
		return nil
	})
}

func printSummary(w io.Writer, s *service.Summary, rng service.DateRange) {
	title := fmt.Sprintf("%s Summary %s to %s", cli.BillsIcon,
		rng.Start.Format(calendar.DateLayout), rng.End.Format(calendar.DateLayout))
	content := fmt.Sprintf("Expected: %s\nPaid:     %s\nUnpaid:   %s\nPending occurrences: %d across %d records",
		cli.FormatMoney(s.Expected), cli.FormatMoney(s.Paid), cli.FormatMoney(s.Unpaid), s.PendingCount, s.RecordCount)
	fmt.Fprintln(w, cli.RenderBox(title, content))

	if len(s.ByCategory) == 0 {
		return
	}
	names := make([]string, 0, len(s.ByCategory))
	for name := range s.ByCategory {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, cli.TableHeader("CATEGORY", "OBLIGATIONS", "EXPECTED", "PAID"))
	for _, name := range names {
		c := s.ByCategory[name]
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", name, c.Count, cli.FormatMoney(c.Expected), cli.FormatMoney(c.Paid))
	}
	_ = tw.Flush()
}

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [obligation-id...]",
		Short: "Check that the monthly, weekly and bi-monthly views agree",
		Long: `Sum what each granularity says was paid over a date range and
report obligations whose views disagree. Exits non-zero when any do.`,
		RunE: runVerify,
	}
	cmd.Flags().String("from", "", "First day (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last day (YYYY-MM-DD)")
	return cmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	rng, err := reportRange(cmd)
	if err != nil {
		return err
	}

	return withApp(cmd, func(a *app) error {
		ctx := cmd.Context()
		ids := args
		if len(ids) == 0 {
			obligations, err := a.store.ListObligations(ctx, false)
			if err != nil {
				return err
			}
			for _, o := range obligations {
				ids = append(ids, o.ID)
			}
		}

		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		columns := []string{"OBLIGATION"}
		for _, g := range model.Granularities {
			columns = append(columns, strings.ToUpper(string(g)))
		}
		fmt.Fprintln(tw, cli.TableHeader(append(columns, "RESULT")...))

		var inconsistent []string
		for _, id := range ids {
			report, err := a.engine.VerifyTriView(ctx, id, rng)
			if err != nil {
				return err
			}
			row := id
			for _, g := range model.Granularities {
				row += "\t" + cli.FormatMoney(report.Paid[g])
			}
			result := cli.FormatSuccess("consistent")
			if !report.Consistent {
				inconsistent = append(inconsistent, id)
				result = cli.FormatError(fmt.Sprintf("off by %s", cli.FormatMoney(report.Spread())))
			}
			fmt.Fprintln(tw, row+"\t"+result)
		}
		_ = tw.Flush()

		if len(inconsistent) > 0 {
			return common.NewUserError(
				fmt.Sprintf("%d obligations disagree across views; run `bills redrive <obligation-id>` on: %s",
					len(inconsistent), strings.Join(inconsistent, ", ")),
				nil)
		}
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("All %d obligations agree across views", len(ids))))
		return nil
	})
}
