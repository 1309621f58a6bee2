package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tariff-receipt/internal/cli"
)

func exportCmd(open appOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a receipt to an external destination",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sheets <scenario>",
		Short: "Write the receipt to Google Sheets",
		Long: `Write a scenario's receipt to a Google Sheets spreadsheet.

Authenticate first with 'tariff auth sheets', or point
sheets.service_account_path at a service account key. Without
sheets.spreadsheet_id a new spreadsheet is created.`,
		Args: cobra.ExactArgs(1),
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

			exporter, err := a.exporter(ctx)
			if err != nil {
				return err
			}

			report := state.Report(sc.Name)
			if err := exporter.Export(ctx, report); err != nil {
				return fmt.Errorf("failed to export receipt: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Exported %s (%d countr%s) to Google Sheets",
				sc.Name, len(report.Lines), plural(len(report.Lines), "y", "ies"))))
			return nil
		},
	})

	return cmd
}
