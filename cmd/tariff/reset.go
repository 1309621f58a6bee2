package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tariff-receipt/internal/cli"
)

func resetCmd(open appOpener) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset <scenario>",
		Short: "Drop every edit, the receipt and the world rate of a scenario",
		Long: `Reset a scenario to statutory rates with an empty receipt.

The scenario itself and its mode and pass-through are kept. This cannot
be undone; copy the scenario first to keep its edits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			sc, err := a.scenario(ctx, args[0])
			if err != nil {
				return err
			}

			edits, err := a.store.ListEdits(ctx, sc.ID)
			if err != nil {
				return fmt.Errorf("failed to load edits: %w", err)
			}
			countries, err := a.store.ListReceiptCountries(ctx, sc.ID)
			if err != nil {
				return fmt.Errorf("failed to load receipt: %w", err)
			}

			if len(edits) == 0 && len(countries) == 0 && sc.WorldRate == nil {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(sc.Name+" has nothing to reset"))
				return nil
			}

			ok, err := confirm(cmd, force, fmt.Sprintf("This will delete %d edit(s) and %d receipt countr%s from %s. Continue?",
				len(edits), len(countries), plural(len(countries), "y", "ies"), sc.Name))
			if err != nil || !ok {
				return err
			}

			if err := a.store.ResetScenario(ctx, sc.ID); err != nil {
				return fmt.Errorf("failed to reset scenario: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Reset "+sc.Name))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")

	return cmd
}
