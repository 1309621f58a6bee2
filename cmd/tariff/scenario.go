package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Veraticus/tariff-receipt/internal/cli"
	"github.com/Veraticus/tariff-receipt/internal/common"
	"github.com/Veraticus/tariff-receipt/internal/model"
	"github.com/Veraticus/tariff-receipt/internal/receipt"
	"github.com/Veraticus/tariff-receipt/internal/tariff"
)

func scenarioCmd(open appOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Manage saved scenarios",
		Long: `Create, list, copy, and delete scenarios.

A scenario holds a log of tariff edits, the countries on its receipt and
an optional rest-of-world rate. Edits are replayed whenever the scenario
is loaded.`,
		Example: `  # Create a scenario that treats edits as deltas at 50% pass-through
  tariff scenario create trade-war --mode original-current --pass-through 50

  # List scenarios
  tariff scenario list

  # Copy a scenario before experimenting
  tariff scenario copy trade-war trade-war-2`,
	}

	cmd.AddCommand(createScenarioCmd(open))
	cmd.AddCommand(listScenariosCmd(open))
	cmd.AddCommand(copyScenarioCmd(open))
	cmd.AddCommand(optionsScenarioCmd(open))
	cmd.AddCommand(deleteScenarioCmd(open))

	return cmd
}

// scenarioOptions resolves --mode and --pass-through against the configured
// defaults. passThrough is returned as a fraction.
func scenarioOptions(cmd *cobra.Command, a *app, mode string, passThrough float64) (string, float64, error) {
	if !cmd.Flags().Changed("mode") {
		mode = a.cfg.Scenario.Mode
	}
	m, err := tariff.ParseMode(mode)
	if err != nil {
		return "", 0, common.NewUserError("mode must be tariff-change or original-current", err)
	}

	if !cmd.Flags().Changed("pass-through") {
		passThrough = a.cfg.Scenario.PassThrough
	}
	if passThrough < 0 || passThrough > 100 {
		return "", 0, common.NewUserError(fmt.Sprintf("pass-through must be between 0 and 100, got %v", passThrough), common.ErrInvalidConfig)
	}
	return m.String(), passThrough / 100, nil
}

func createScenarioCmd(open appOpener) *cobra.Command {
	var mode string
	var passThrough float64

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			m, pt, err := scenarioOptions(cmd, a, mode, passThrough)
			if err != nil {
				return err
			}

			sc := &model.Scenario{Name: args[0], Mode: m, PassThroughRate: pt}
			if err := a.store.CreateScenario(cmd.Context(), sc); err != nil {
				if errors.Is(err, common.ErrDuplicateEntry) {
					return common.NewUserError(fmt.Sprintf("scenario %q already exists", args[0]), err)
				}
				return fmt.Errorf("failed to create scenario: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created scenario %s (%s, %s pass-through)",
				cli.InfoStyle.Render(sc.Name), sc.Mode, receipt.FormatPercent(sc.PassThroughRate, 0))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "propagation mode: tariff-change or original-current")
	cmd.Flags().Float64VarP(&passThrough, "pass-through", "p", 100, "pass-through rate in percent for original-current mode")

	return cmd
}

func listScenariosCmd(open appOpener) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List scenarios",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			scenarios, err := a.store.ListScenarios(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list scenarios: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(scenarios) == 0 {
				fmt.Fprintln(out, cli.SubtitleStyle.Render("No scenarios found. Create one with `tariff scenario create`."))
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			headerStyle := lipgloss.NewStyle().Bold(true).Foreground(cli.PrimaryColor)
			fmt.Fprintln(w, strings.Join([]string{
				headerStyle.Render("NAME"),
				headerStyle.Render("MODE"),
				headerStyle.Render("PASS-THROUGH"),
				headerStyle.Render("WORLD RATE"),
				headerStyle.Render("UPDATED"),
			}, "\t"))

			for _, sc := range scenarios {
				world := "-"
				if sc.WorldRate != nil {
					world = receipt.FormatRate(*sc.WorldRate, 2)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					cli.InfoStyle.Render(sc.Name),
					sc.Mode,
					receipt.FormatPercent(sc.PassThroughRate, 0),
					world,
					sc.UpdatedAt.Local().Format(time.DateTime),
				)
			}

			return w.Flush()
		},
	}
}

func copyScenarioCmd(open appOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <scenario> <new-name>",
		Short: "Copy a scenario with its edits and receipt",
		Args:  cobra.ExactArgs(2),
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

			dup, err := a.store.CopyScenario(cmd.Context(), sc.ID, args[1])
			if err != nil {
				if errors.Is(err, common.ErrDuplicateEntry) {
					return common.NewUserError(fmt.Sprintf("scenario %q already exists", args[1]), err)
				}
				return fmt.Errorf("failed to copy scenario: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Copied %s to %s",
				cli.InfoStyle.Render(sc.Name), cli.InfoStyle.Render(dup.Name))))
			return nil
		},
	}
}

func optionsScenarioCmd(open appOpener) *cobra.Command {
	var mode string
	var passThrough float64

	cmd := &cobra.Command{
		Use:   "options <scenario>",
		Short: "Change the mode or pass-through of a scenario",
		Long: `Change the propagation mode or pass-through rate used for new edits.

Edits already in the scenario keep the options they were made with.`,
		Args: cobra.ExactArgs(1),
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

			if !cmd.Flags().Changed("mode") {
				mode = sc.Mode
			}
			if !cmd.Flags().Changed("pass-through") {
				passThrough = sc.PassThroughRate * 100
			}
			m, err := tariff.ParseMode(mode)
			if err != nil {
				return common.NewUserError("mode must be tariff-change or original-current", err)
			}
			if passThrough < 0 || passThrough > 100 {
				return common.NewUserError(fmt.Sprintf("pass-through must be between 0 and 100, got %v", passThrough), common.ErrInvalidConfig)
			}

			if err := a.store.UpdateScenarioOptions(cmd.Context(), sc.ID, m.String(), passThrough/100); err != nil {
				return fmt.Errorf("failed to update scenario: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Scenario %s now uses %s at %s pass-through",
				cli.InfoStyle.Render(sc.Name), m, receipt.FormatRate(passThrough, 0))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "propagation mode: tariff-change or original-current")
	cmd.Flags().Float64VarP(&passThrough, "pass-through", "p", 100, "pass-through rate in percent")

	return cmd
}

func deleteScenarioCmd(open appOpener) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "delete <scenario>",
		Aliases: []string{"rm"},
		Short:   "Delete a scenario and everything in it",
		Args:    cobra.ExactArgs(1),
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

			ok, err := confirm(cmd, force, fmt.Sprintf("Delete scenario %s with all of its edits?", sc.Name))
			if err != nil || !ok {
				return err
			}

			if err := a.store.DeleteScenario(cmd.Context(), sc.ID); err != nil {
				return fmt.Errorf("failed to delete scenario: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted scenario "+sc.Name))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation")

	return cmd
}

// confirm asks on the command's input unless force is set. A declined
// prompt prints a notice and reports false.
func confirm(cmd *cobra.Command, force bool, question string) (bool, error) {
	if force {
		return true, nil
	}

	reader := cli.NewNonBlockingReader(cmd.InOrStdin())
	ok, err := reader.Confirm(cmd.Context(), cmd.OutOrStdout(), question)
	if err != nil {
		return false, err
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Canceled"))
	}
	return ok, nil
}
