package main

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/cli"
	"github.com/Veraticus/the-bills-must-flow/internal/config"
	"github.com/Veraticus/the-bills-must-flow/internal/engine"
	"github.com/Veraticus/the-bills-must-flow/internal/storage"
)

// app bundles what every data command needs.
type app struct {
	cfg      *config.Config
	store    *storage.SQLiteStorage
	engine   *engine.Engine
	registry *prometheus.Registry
}

// openApp loads the configuration, opens and migrates the database and
// builds an engine on top of it.
func openApp() (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	registry := prometheus.NewRegistry()
	return &app{
		cfg:      cfg,
		store:    store,
		engine:   engine.New(store, cfg.Engine, engine.NewMetrics(registry)),
		registry: registry,
	}, nil
}

// withApp opens the app, migrates it and runs fn, closing the store after.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.store.Close(); closeErr != nil {
			slog.Warn("Failed to close database", "error", closeErr)
		}
	}()

	if err := a.store.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	runErr := fn(a)
	if viper.GetBool("metrics.show") {
		a.printMetrics(cmd.OutOrStdout())
	}
	return runErr
}

// printMetrics writes every non-zero counter in the registry.
func (a *app) printMetrics(w io.Writer) {
	families, err := a.registry.Gather()
	if err != nil {
		slog.Warn("Failed to gather metrics", "error", err)
		return
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil || m.GetCounter().GetValue() == 0 {
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue()))
		}
	}
	if len(lines) == 0 {
		return
	}
	sort.Strings(lines)
	fmt.Fprintln(w, cli.RenderBox("Metrics", strings.Join(lines, "\n")))
}

// printEventResult renders the per-granularity outcome of one event, with a
// redrive hint for every granularity that did not commit.
func printEventResult(w io.Writer, res *engine.EventResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, cli.TableHeader("GRANULARITY", "WRITTEN", "MATCHED", "UNMATCHED", "SETTLED", "RELEASED", "RESULT"))
	for _, g := range res.Granularities {
		result := cli.FormatSuccess("ok")
		if g.Err != nil {
			result = cli.FormatError(g.Err.Error())
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			g.Granularity, g.Written, g.Matched, g.Unmatched, g.Settled, g.Released, result)
	}
	_ = tw.Flush()

	for _, g := range res.Failed() {
		fmt.Fprintln(w, cli.FormatInfo(fmt.Sprintf("Run `bills redrive %s --granularity %s` to recover.", res.ObligationID, g)))
	}
}

// parseDayFlag reads a YYYY-MM-DD flag, falling back to def when unset.
func parseDayFlag(cmd *cobra.Command, name string, def time.Time) (time.Time, error) {
	raw, err := cmd.Flags().GetString(name)
	if err != nil {
		return time.Time{}, err
	}
	if raw == "" {
		return def, nil
	}
	day, err := calendar.ParseDay(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return day, nil
}

// yearBounds returns January 1st and December 31st of t's year.
func yearBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, -1)
}
