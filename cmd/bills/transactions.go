package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/cli"
	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/engine"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/ofx"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
)

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"txn", "txns"},
		Short:   "Import transactions and assign them to obligations",
	}

	cmd.AddCommand(transactionsImportCmd())
	cmd.AddCommand(transactionsListCmd())
	cmd.AddCommand(transactionsAssignCmd())
	cmd.AddCommand(transactionsUnassignCmd())

	return cmd
}

func transactionsImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.ofx|file.qfx>...",
		Short: "Import transactions from OFX/QFX statements",
		Long: `Import bank and credit card transactions from OFX or QFX files.
Duplicates are skipped, so the same statement can be imported twice safely.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runTransactionsImport,
	}
	cmd.Flags().Bool("dry-run", false, "Show what would be imported without saving")
	return cmd
}

func runTransactionsImport(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	ctx := cmd.Context()
	parser := ofx.NewParser()
	out := cmd.OutOrStdout()

	var all []model.Transaction
	for _, path := range args {
		txns, err := parseStatement(cmd, parser, path)
		if err != nil {
			return err
		}
		slog.Info("Parsed statement", "file", filepath.Base(path), "transactions", len(txns))
		all = append(all, txns...)
	}

	if dryRun {
		fmt.Fprintln(out, cli.FormatWarning("Dry run mode - not saving to database"))
		return printTransactions(cmd, nil, all)
	}

	return withApp(cmd, func(a *app) error {
		if err := a.store.SaveTransactions(ctx, all); err != nil {
			return fmt.Errorf("failed to save transactions: %w", err)
		}
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d transactions from %d files", len(all), len(args))))
		return nil
	})
}

func parseStatement(cmd *cobra.Command, parser *ofx.Parser, path string) ([]model.Transaction, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	txns, err := parser.ParseFile(cmd.Context(), f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return txns, nil
}

func transactionsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List imported transactions with their obligation",
		RunE:  runTransactionsList,
	}
	cmd.Flags().String("from", "", "First day to list (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last day to list (YYYY-MM-DD)")
	cmd.Flags().Int("limit", 100, "Maximum transactions to show")
	return cmd
}

func runTransactionsList(cmd *cobra.Command, _ []string) error {
	filter := service.TransactionFilter{}
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	if cmd.Flags().Changed("from") {
		from, err := parseDayFlag(cmd, "from", time.Time{})
		if err != nil {
			return err
		}
		filter.StartDate = &from
	}
	if cmd.Flags().Changed("to") {
		to, err := parseDayFlag(cmd, "to", time.Time{})
		if err != nil {
			return err
		}
		filter.EndDate = &to
	}

	return withApp(cmd, func(a *app) error {
		txns, err := a.store.GetTransactions(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if len(txns) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No transactions found."))
			return nil
		}
		return printTransactions(cmd, a, txns)
	})
}

// printTransactions writes txns as a table. With an app, each row also shows
// the owning obligation.
func printTransactions(cmd *cobra.Command, a *app, txns []model.Transaction) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, cli.TableHeader("ID", "DATE", "MERCHANT", "AMOUNT", "OBLIGATION"))
	for _, t := range txns {
		owner := "-"
		if a != nil {
			split, err := a.store.GetSplit(cmd.Context(), t.ID)
			switch {
			case err == nil:
				owner = split.ObligationID
			case !errors.Is(err, common.ErrNotFound):
				return err
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Date.Format(calendar.DateLayout), t.MerchantName, cli.FormatMoney(t.Amount), owner)
	}
	return tw.Flush()
}

func transactionsAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <obligation-id> <transaction-id>...",
		Short: "Assign transactions to an obligation and match them",
		Long: `Give an obligation ownership of one or more transactions. Each
transaction is matched to the nearest expected occurrence in the monthly,
weekly and bi-monthly views.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runTransactionsAssign,
	}
}

func runTransactionsAssign(cmd *cobra.Command, args []string) error {
	obligationID, txnIDs := args[0], args[1:]
	return withApp(cmd, func(a *app) error {
		ctx := cmd.Context()
		if _, err := a.store.GetObligation(ctx, obligationID); err != nil {
			return err
		}
		for _, id := range txnIDs {
			if err := a.store.AssignTransaction(ctx, id, obligationID); err != nil {
				if errors.Is(err, common.ErrAlreadyAssigned) {
					return common.NewUserError("Unassign the transaction first with `bills transactions unassign "+id+"`", err)
				}
				return err
			}
		}

		res, err := a.engine.OnObligationEvent(ctx, obligationID, engine.EventTransactionAdded,
			engine.EventPayload{TransactionIDs: txnIDs})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Assigned %d transactions to %s", len(txnIDs), obligationID)))
		printEventResult(cmd.OutOrStdout(), res)
		return nil
	})
}

func transactionsUnassignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unassign <transaction-id>...",
		Short: "Remove transactions from their obligation",
		Long: `Remove the obligation assignment of one or more transactions. The
occurrences they paid become unpaid again in every view.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runTransactionsUnassign,
	}
}

func runTransactionsUnassign(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app) error {
		ctx := cmd.Context()
		byOwner := make(map[string][]string)
		for _, id := range args {
			owner, err := a.store.UnassignTransaction(ctx, id)
			if err != nil {
				return err
			}
			byOwner[owner] = append(byOwner[owner], id)
		}

		owners := make([]string, 0, len(byOwner))
		for owner := range byOwner {
			owners = append(owners, owner)
		}
		sort.Strings(owners)

		out := cmd.OutOrStdout()
		for _, owner := range owners {
			res, err := a.engine.OnObligationEvent(ctx, owner, engine.EventTransactionRemoved,
				engine.EventPayload{TransactionIDs: byOwner[owner]})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Unassigned %d transactions from %s", len(byOwner[owner]), owner)))
			printEventResult(out, res)
		}
		return nil
	})
}
