package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tariff-receipt/internal/cli"
	"github.com/Veraticus/tariff-receipt/internal/model"
)

func receiptCmd(open appOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipt",
		Short: "Manage the countries on a scenario's receipt",
		Long: `Add, remove, and show the countries whose price effects are totaled.

A country's tariff edits stay in the scenario when it is removed from the
receipt, and come back when it is added again.`,
		Example: `  tariff receipt add trade-war CAN MEX
  tariff receipt show trade-war --decimals 4
  tariff receipt remove trade-war MEX`,
	}

	cmd.AddCommand(receiptAddCmd(open))
	cmd.AddCommand(receiptRemoveCmd(open))
	cmd.AddCommand(receiptShowCmd(open))
	cmd.AddCommand(receiptClearCmd(open))

	return cmd
}

func receiptAddCmd(open appOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "add <scenario> <country>...",
		Short: "Add countries to the receipt",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			sc, state, ref, err := a.loadState(cmd, args[0])
			if err != nil {
				return err
			}

			isos := make([]string, 0, len(args)-1)
			for _, arg := range args[1:] {
				iso, err := checkKnownCountry(ref, arg)
				if err != nil {
					return err
				}
				isos = append(isos, iso)
			}

			worldErr, err := state.AddCountries(ctx, isos...)
			if err != nil {
				return err
			}
			for _, iso := range isos {
				if err := a.store.AddReceiptCountry(ctx, sc.ID, iso); err != nil {
					return fmt.Errorf("failed to save receipt: %w", err)
				}
			}

			warnWorld(cmd, worldErr)
			return renderReceipt(cmd, a, state, sc.Name)
		},
	}
}

func receiptRemoveCmd(open appOpener) *cobra.Command {
	var discard bool

	cmd := &cobra.Command{
		Use:     "remove <scenario> <country>...",
		Aliases: []string{"rm"},
		Short:   "Remove countries from the receipt",
		Long: `Remove countries from the receipt. Their tariff edits stay in the
scenario unless --discard-edits is given, which also resets them to their
statutory rates.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			sc, state, _, err := a.loadState(cmd, args[0])
			if err != nil {
				return err
			}

			var worldErrs []error
			for _, iso := range args[1:] {
				iso = model.NormalizeISO(iso)
				if discard {
					n, err := a.store.DeleteCountryEdits(ctx, sc.ID, iso)
					if err != nil {
						return fmt.Errorf("failed to discard edits: %w", err)
					}
					removed, worldErr := state.DiscardCountry(ctx, iso)
					worldErrs = append(worldErrs, worldErr)
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf("Discarded %d %s for %s", n, plural(int(n), "edit", "edits"), iso)))
					if !removed {
						continue
					}
				} else {
					removed, worldErr := state.RemoveCountry(ctx, iso)
					if !removed {
						fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatWarning(iso+" is not on the receipt"))
						continue
					}
					worldErrs = append(worldErrs, worldErr)
				}
				if _, err := a.store.RemoveReceiptCountry(ctx, sc.ID, iso); err != nil {
					return fmt.Errorf("failed to save receipt: %w", err)
				}
			}

			warnWorld(cmd, errors.Join(worldErrs...))
			return renderReceipt(cmd, a, state, sc.Name)
		},
	}

	cmd.Flags().BoolVar(&discard, "discard-edits", false, "also drop the countries' tariff edits")
	return cmd
}

func receiptShowCmd(open appOpener) *cobra.Command {
	var decimals int

	cmd := &cobra.Command{
		Use:   "show <scenario>",
		Short: "Print the receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sc, state, _, err := a.loadState(cmd, args[0])
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("decimals") {
				a.cfg.Display.Decimals = decimals
			}
			return renderReceipt(cmd, a, state, sc.Name)
		},
	}

	cmd.Flags().IntVarP(&decimals, "decimals", "d", 2, "decimal places for percentages")

	return cmd
}

func receiptClearCmd(open appOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <scenario>",
		Short: "Remove every country from the receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sc, err := a.scenario(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.store.ClearReceipt(cmd.Context(), sc.ID); err != nil {
				return fmt.Errorf("failed to clear receipt: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Cleared the receipt of "+sc.Name))
			return nil
		},
	}
}

func worldCmd(open appOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "world",
		Short: "Set the rest-of-world tariff rate",
		Long: `Apply one uniform rate to every country that is not on the receipt and
add their combined effect to the total.`,
		Example: `  tariff world set trade-war 10
  tariff world clear trade-war`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <scenario> <rate>",
		Short: "Set the rest-of-world rate in percent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := parseWorldRate(args[1])
			if err != nil {
				return err
			}

			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			sc, state, _, err := a.loadState(cmd, args[0])
			if err != nil {
				return err
			}

			if err := a.store.SetWorldRate(ctx, sc.ID, &rate); err != nil {
				return fmt.Errorf("failed to save world rate: %w", err)
			}
			warnWorld(cmd, state.SetWorldRate(ctx, rate))
			return renderReceipt(cmd, a, state, sc.Name)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <scenario>",
		Short: "Remove the rest-of-world rate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sc, err := a.scenario(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.store.SetWorldRate(cmd.Context(), sc.ID, nil); err != nil {
				return fmt.Errorf("failed to clear world rate: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Cleared the rest-of-world rate of "+sc.Name))
			return nil
		},
	})

	return cmd
}
