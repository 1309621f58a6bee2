package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tariff-receipt/internal/common"
	"github.com/Veraticus/tariff-receipt/internal/model"
	"github.com/Veraticus/tariff-receipt/internal/scenario"
	"github.com/Veraticus/tariff-receipt/internal/tui"
	"github.com/Veraticus/tariff-receipt/internal/tui/themes"
)

func browseCmd(open appOpener) *cobra.Command {
	var noAltScreen bool

	cmd := &cobra.Command{
		Use:   "browse <scenario>",
		Short: "Browse and edit a receipt interactively",
		Long: `Open the receipt in a terminal UI.

Remove countries with d, set the rest-of-world rate with w, and quit
with q. Changes are saved as they are made.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			// A progress bar would draw over the UI.
			a.progress = false

			sc, state, _, err := a.loadState(cmd, args[0])
			if err != nil {
				return err
			}

			backend := &browseBackend{app: a, scenario: sc, state: state}
			return tui.Browse(cmd.Context(), backend,
				tui.WithTitle(sc.Name),
				tui.WithTheme(themes.GetTheme(a.cfg.Display.Theme)),
				tui.WithDecimals(a.cfg.Display.Decimals),
				tui.WithAltScreen(!noAltScreen),
			)
		},
	}

	cmd.Flags().BoolVar(&noAltScreen, "no-alt-screen", false, "draw inline instead of on the alternate screen")

	return cmd
}

// browseBackend applies browser actions to the in-memory scenario and
// saves them.
type browseBackend struct {
	app      *app
	scenario *model.Scenario
	state    *scenario.State
}

func (b *browseBackend) Report() model.ReceiptReport {
	return b.state.Report(b.scenario.Name)
}

func (b *browseBackend) RemoveCountry(ctx context.Context, iso string) error {
	removed, worldErr := b.state.RemoveCountry(ctx, iso)
	if !removed {
		return fmt.Errorf("%w: %s is not on the receipt", common.ErrNotFound, iso)
	}
	if _, err := b.app.store.RemoveReceiptCountry(ctx, b.scenario.ID, iso); err != nil {
		return fmt.Errorf("failed to save receipt: %w", err)
	}
	return worldErr
}

func (b *browseBackend) SetWorldRate(ctx context.Context, rate float64) error {
	if err := b.app.store.SetWorldRate(ctx, b.scenario.ID, &rate); err != nil {
		return fmt.Errorf("failed to save world rate: %w", err)
	}
	return b.state.SetWorldRate(ctx, rate)
}

// parseWorldRate accepts a percentage between 0 and 100 with an optional
// % suffix.
func parseWorldRate(s string) (float64, error) {
	rate, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	if err != nil || !(rate >= 0 && rate <= 100) {
		return 0, common.NewUserError(fmt.Sprintf("world rate must be a number between 0 and 100, got %q", s), common.ErrInvalidConfig)
	}
	return rate, nil
}
