package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-bills-must-flow/internal/cli"
	"github.com/Veraticus/the-bills-must-flow/internal/engine"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

func redriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redrive <obligation-id>",
		Short: "Rebuild an obligation's records in one or every granularity",
		Long: `Rebuild period records from the obligation's definition and its
assigned transactions. Use it after a granularity failed to commit or when
'bills verify' reports disagreeing views.`,
		Args: cobra.ExactArgs(1),
		RunE: runRedrive,
	}
	cmd.Flags().StringSlice("granularity", nil, "monthly, weekly or bimonthly (default: all)")
	return cmd
}

func runRedrive(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetStringSlice("granularity")
	granularities := model.Granularities
	if len(raw) > 0 {
		granularities = make([]model.Granularity, 0, len(raw))
		for _, s := range raw {
			g := model.Granularity(s)
			if !g.IsValid() {
				return fmt.Errorf("unknown granularity %q", s)
			}
			granularities = append(granularities, g)
		}
	}

	return withApp(cmd, func(a *app) error {
		res := &engine.EventResult{ObligationID: args[0]}
		var errs []error
		for _, g := range granularities {
			gr, err := a.engine.Redrive(cmd.Context(), args[0], g)
			gr.Granularity = g
			if err != nil {
				gr.Err = err
				errs = append(errs, err)
			}
			res.Granularities = append(res.Granularities, gr)
		}

		printEventResult(cmd.OutOrStdout(), res)
		if err := errors.Join(errs...); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Redrive complete"))
		return nil
	})
}
