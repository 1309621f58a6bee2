package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tariff-receipt/internal/cli"
	"github.com/Veraticus/tariff-receipt/internal/common"
	"github.com/Veraticus/tariff-receipt/internal/model"
	"github.com/Veraticus/tariff-receipt/internal/scenariofile"
	"github.com/Veraticus/tariff-receipt/internal/tariff"
)

func applyCmd(open appOpener) *cobra.Command {
	var name string
	var replace bool

	cmd := &cobra.Command{
		Use:   "apply <file>",
		Short: "Load a scenario from a YAML file",
		Long: `Create a scenario from a YAML file and print its receipt.

The file is checked against the reference data and replayed in memory
before anything is saved. An existing scenario of the same name is only
overwritten with --replace.`,
		Example: `  tariff apply scenarios/steel.yaml
  tariff apply scenarios/steel.yaml --name steel-v2 --replace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := scenariofile.Load(args[0])
			if err != nil {
				return common.NewUserError(err.Error(), err)
			}
			if name != "" {
				f.Name = name
			}
			if f.Name == "" {
				return common.NewUserError("the scenario needs a name; set name in the file or pass --name", scenariofile.ErrInvalidFile)
			}

			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			state, ref, err := a.newState(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			if err := f.CheckHierarchy(ref.Sections()); err != nil {
				return common.NewUserError(err.Error(), err)
			}
			for _, iso := range f.Receipt {
				if _, err := checkKnownCountry(ref, iso); err != nil {
					return err
				}
			}
			if f.Mode == "" {
				f.Mode = a.cfg.Scenario.Mode
			}
			mode, err := tariff.ParseMode(f.Mode)
			if err != nil {
				return err
			}
			f.Mode = mode.String()

			fallback := a.cfg.Scenario.PassThrough / 100
			snap := f.Snapshot(fallback)
			if err := state.Replay(ctx, snap); err != nil {
				return fmt.Errorf("failed to replay %s: %w", args[0], err)
			}

			sc, err := a.saveFile(cmd, f, snap.PassThrough, replace)
			if err != nil {
				return err
			}
			if len(snap.Edits) > 0 {
				if err := a.store.AppendEdits(ctx, sc.ID, snap.Edits); err != nil {
					return fmt.Errorf("failed to save edits: %w", err)
				}
			}
			for _, iso := range snap.Receipt {
				if err := a.store.AddReceiptCountry(ctx, sc.ID, iso); err != nil {
					return fmt.Errorf("failed to save receipt: %w", err)
				}
			}
			if err := a.store.SetWorldRate(ctx, sc.ID, snap.WorldRate); err != nil {
				return fmt.Errorf("failed to save world rate: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Applied %s: %d edit(s), %d countr%s",
				cli.InfoStyle.Render(sc.Name), len(snap.Edits), len(snap.Receipt), plural(len(snap.Receipt), "y", "ies"))))
			return renderReceipt(cmd, a, state, sc.Name)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "scenario name (overrides the file)")
	cmd.Flags().BoolVar(&replace, "replace", false, "overwrite an existing scenario of the same name")

	return cmd
}

// saveFile creates the file's scenario, or empties and reconfigures an
// existing one when replace is set.
func (a *app) saveFile(cmd *cobra.Command, f *scenariofile.File, passThrough float64, replace bool) (*model.Scenario, error) {
	ctx := cmd.Context()

	existing, err := a.store.GetScenario(ctx, f.Name)
	switch {
	case err == nil && !replace:
		return nil, common.NewUserError(fmt.Sprintf("scenario %q already exists; pass --replace to overwrite it", f.Name), common.ErrDuplicateEntry)
	case err == nil:
		if err := a.store.ResetScenario(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to reset scenario: %w", err)
		}
		if err := a.store.UpdateScenarioOptions(ctx, existing.ID, f.Mode, passThrough); err != nil {
			return nil, fmt.Errorf("failed to update scenario: %w", err)
		}
		a.logger.Info("replaced scenario", "scenario", existing.Name)
		return existing, nil
	case !errors.Is(err, common.ErrNotFound):
		return nil, err
	}

	sc := &model.Scenario{Name: f.Name, Mode: f.Mode, PassThroughRate: passThrough}
	if err := a.store.CreateScenario(ctx, sc); err != nil {
		return nil, fmt.Errorf("failed to create scenario: %w", err)
	}
	return sc, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
