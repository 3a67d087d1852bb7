package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/cli"
	"github.com/Veraticus/the-bills-must-flow/internal/engine"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// catalogHorizon is the far end used when asking the catalog for every
// window from a given day onward.
var catalogHorizon = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

func obligationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "obligations",
		Aliases: []string{"obligation", "bill"},
		Short:   "Manage recurring bills and income",
	}

	cmd.AddCommand(obligationsAddCmd())
	cmd.AddCommand(obligationsListCmd())
	cmd.AddCommand(obligationsEditCmd())
	cmd.AddCommand(obligationsDeactivateCmd())

	return cmd
}

func addObligationFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().Float64("amount", 0, "Amount per occurrence")
	cmd.Flags().String("frequency", string(model.FrequencyMonthly), "weekly, biweekly, semimonthly, monthly, quarterly or annual")
	cmd.Flags().String("reference-date", "", "A known due date (YYYY-MM-DD)")
	cmd.Flags().String("category", "", "Category name; created when missing")
}

func obligationsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a recurring bill or income stream",
		Example: `  bills obligations add --name Rent --amount 1500 --reference-date 2025-01-01
  bills obligations add --name Salary --amount 2400 --frequency biweekly --income --reference-date 2025-01-03`,
		RunE: runObligationsAdd,
	}
	addObligationFlags(cmd)
	cmd.Flags().Bool("income", false, "Track money coming in rather than a bill")
	cmd.Flags().String("id", "", "Identifier (default: generated)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("reference-date")
	return cmd
}

func runObligationsAdd(cmd *cobra.Command, _ []string) error {
	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		id = uuid.NewString()
	}
	income, _ := cmd.Flags().GetBool("income")

	o := &model.Obligation{
		ID:        id,
		Direction: model.DirectionOutflow,
		IsActive:  true,
	}
	if income {
		o.Direction = model.DirectionInflow
	}
	if err := applyObligationFlags(cmd, o); err != nil {
		return err
	}

	return withApp(cmd, func(a *app) error {
		ctx := cmd.Context()
		if err := resolveCategory(ctx, a, cmd, o); err != nil {
			return err
		}
		if err := a.store.SaveObligation(ctx, o); err != nil {
			return fmt.Errorf("failed to save obligation: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Added %s (%s)", o.DisplayName(), o.ID)))

		windowIDs, err := catalogWindowIDs(ctx, a, o.ReferenceDate)
		if err != nil {
			return err
		}
		if len(windowIDs) == 0 {
			fmt.Fprintln(out, cli.FormatWarning("No catalog windows cover this obligation yet. Run `bills windows generate`."))
			return nil
		}

		res, err := a.engine.OnObligationEvent(ctx, o.ID, engine.EventWindowCreated, engine.EventPayload{WindowIDs: windowIDs})
		if err != nil {
			return err
		}
		printEventResult(out, res)
		return nil
	})
}

// catalogWindowIDs lists every catalog window, in every granularity, that
// ends on or after from.
func catalogWindowIDs(ctx context.Context, a *app, from time.Time) ([]string, error) {
	var ids []string
	for _, g := range model.Granularities {
		windows, err := a.store.OverlappingWindows(ctx, from, catalogHorizon, g)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s windows: %w", g, err)
		}
		for _, w := range windows {
			ids = append(ids, w.ID)
		}
	}
	return ids, nil
}

func obligationsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List obligations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			return withApp(cmd, func(a *app) error {
				obligations, err := a.store.ListObligations(cmd.Context(), !all)
				if err != nil {
					return err
				}
				if len(obligations) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No obligations yet. Add one with `bills obligations add`."))
					return nil
				}
				return printObligations(cmd.Context(), a, cmd.OutOrStdout(), obligations)
			})
		},
	}
	cmd.Flags().Bool("all", false, "Include deactivated obligations")
	return cmd
}

func printObligations(ctx context.Context, a *app, w io.Writer, obligations []model.Obligation) error {
	now := time.Now()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, cli.TableHeader("ID", "NAME", "DIRECTION", "FREQUENCY", "AMOUNT", "REFERENCE", "CATEGORY", "TXNS", "ACTIVE"))
	for _, o := range obligations {
		category := "-"
		if o.CategoryID > 0 {
			name, err := a.engine.Categories().Name(ctx, o.CategoryID, now)
			if err != nil {
				return err
			}
			category = name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%t\n",
			o.ID, o.DisplayName(), o.Direction, o.Frequency,
			cli.FormatMoney(o.AmountPerOccurrence()),
			o.ReferenceDate.Format(calendar.DateLayout),
			category, len(o.TransactionIDs), o.IsActive)
	}
	return tw.Flush()
}

func obligationsEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <obligation-id>",
		Short: "Change an obligation's name, amount, schedule or category",
		Long: `Edit an obligation. Only the flags you pass are changed. Settled
occurrences keep their history; unsettled ones are recalculated in every view.`,
		Args: cobra.ExactArgs(1),
		RunE: runObligationsEdit,
	}
	addObligationFlags(cmd)
	cmd.Flags().Bool("activate", false, "Reactivate a deactivated obligation")
	return cmd
}

func runObligationsEdit(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app) error {
		ctx := cmd.Context()
		prev, err := a.store.GetObligation(ctx, args[0])
		if err != nil {
			return err
		}

		o := prev.Clone()
		if err := applyObligationFlags(cmd, o); err != nil {
			return err
		}
		if activate, _ := cmd.Flags().GetBool("activate"); activate {
			o.IsActive = true
		}
		if err := resolveCategory(ctx, a, cmd, o); err != nil {
			return err
		}
		return saveAndRecalculate(cmd, a, prev, o)
	})
}

func obligationsDeactivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deactivate <obligation-id>",
		Short: "Stop expecting an obligation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			return withApp(cmd, func(a *app) error {
				ctx := cmd.Context()
				prev, err := a.store.GetObligation(ctx, args[0])
				if err != nil {
					return err
				}
				if !prev.IsActive {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(prev.DisplayName()+" is already inactive."))
					return nil
				}

				if !yes {
					reader := cli.NewNonBlockingReader(cmd.InOrStdin())
					ok, err := cli.Confirm(ctx, reader, cmd.OutOrStdout(), fmt.Sprintf("Deactivate %s?", prev.DisplayName()))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Canceled."))
						return nil
					}
				}

				o := prev.Clone()
				o.IsActive = false
				return saveAndRecalculate(cmd, a, prev, o)
			})
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// saveAndRecalculate persists o and fires an obligation-edited event so every
// view is brought in line with the new definition.
func saveAndRecalculate(cmd *cobra.Command, a *app, prev, o *model.Obligation) error {
	ctx := cmd.Context()
	if err := a.store.SaveObligation(ctx, o); err != nil {
		return fmt.Errorf("failed to save obligation: %w", err)
	}

	res, err := a.engine.OnObligationEvent(ctx, o.ID, engine.EventObligationEdited, engine.EventPayload{Previous: prev})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cli.FormatSuccess("Updated "+o.DisplayName()))
	printEventResult(out, res)
	return nil
}

// applyObligationFlags copies every changed definition flag onto o.
func applyObligationFlags(cmd *cobra.Command, o *model.Obligation) error {
	flags := cmd.Flags()
	if flags.Changed("name") {
		o.CustomName, _ = flags.GetString("name")
	}
	if flags.Changed("amount") {
		amount, _ := flags.GetFloat64("amount")
		if amount <= 0 {
			return fmt.Errorf("--amount must be positive")
		}
		o.Amount = amount
	}
	if flags.Changed("frequency") || o.Frequency == "" {
		raw, _ := flags.GetString("frequency")
		f, err := model.ParseFrequency(raw)
		if err != nil {
			return err
		}
		o.Frequency = f
	}
	if flags.Changed("reference-date") {
		raw, _ := flags.GetString("reference-date")
		ref, err := calendar.ParseDay(raw)
		if err != nil {
			return err
		}
		o.ReferenceDate = ref
	}
	return nil
}

// resolveCategory sets o's category from --category, creating it when it
// does not exist yet.
func resolveCategory(ctx context.Context, a *app, cmd *cobra.Command, o *model.Obligation) error {
	if !cmd.Flags().Changed("category") {
		return nil
	}
	name, _ := cmd.Flags().GetString("category")
	if name == "" {
		o.CategoryID = 0
		return nil
	}

	cat, err := a.store.GetCategoryByName(ctx, name)
	if err != nil {
		return err
	}
	if cat == nil {
		cat, err = a.store.CreateCategory(ctx, name, "", model.CategoryTypeFor(o.Direction))
		if err != nil {
			return fmt.Errorf("failed to create category %q: %w", name, err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatInfo("Created category "+name))
	}
	o.CategoryID = cat.ID
	return nil
}
