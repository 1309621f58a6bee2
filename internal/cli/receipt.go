package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Veraticus/tariff-receipt/internal/model"
	"github.com/Veraticus/tariff-receipt/internal/receipt"
)

// ReceiptHeaders are the column titles of the rendered receipt.
var ReceiptHeaders = []string{"Country", "Name", "Direct", "Indirect", "Total"}

// ReceiptRows formats the report as table rows: one per country followed by
// the subtotal, the rest of world when present and the total. Rounding to
// decimals happens here only.
func ReceiptRows(report model.ReceiptReport, decimals int) [][]string {
	rows := make([][]string, 0, len(report.Lines)+3)
	for _, l := range report.Lines {
		rows = append(rows, []string{
			l.ISO,
			l.Name,
			receipt.FormatPercent(l.Direct, decimals),
			receipt.FormatPercent(l.Indirect, decimals),
			receipt.FormatPercent(l.Total, decimals),
		})
	}

	rows = append(rows, totalsRow("Subtotal", report.Subtotal, decimals))
	if report.HasWorld {
		label := "Rest of world"
		if report.WorldRate != nil {
			label += " @ " + receipt.FormatRate(*report.WorldRate, decimals)
		}
		rows = append(rows, totalsRow(label, report.RestOfWorld, decimals))
	}
	rows = append(rows, totalsRow("Total", report.Total, decimals))
	return rows
}

func totalsRow(label string, t model.EffectTotals, decimals int) []string {
	return []string{
		label,
		strconv.Itoa(t.Countries) + " countries",
		receipt.FormatPercent(t.Direct, decimals),
		receipt.FormatPercent(t.Indirect, decimals),
		receipt.FormatPercent(t.Total, decimals),
	}
}

// RenderReceipt writes the report to w as a bordered table.
func RenderReceipt(w io.Writer, report model.ReceiptReport, decimals int) error {
	title := "Receipt"
	if report.Scenario != "" {
		title += ": " + report.Scenario
	}

	if len(report.Lines) == 0 {
		_, err := fmt.Fprintln(w, FormatTitle(title)+"\n"+FormatInfo("The receipt is empty. Add a country with `tariff receipt add`."))
		return err
	}

	totals := make([]float64, 0, len(report.Lines)+3)
	for _, l := range report.Lines {
		totals = append(totals, l.Total)
	}
	totals = append(totals, report.Subtotal.Total)
	if report.HasWorld {
		totals = append(totals, report.RestOfWorld.Total)
	}
	totals = append(totals, report.Total.Total)
	firstSummary := len(report.Lines)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(SubtleColor)).
		Headers(ReceiptHeaders...).
		Rows(ReceiptRows(report, decimals)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := TableCellStyle.PaddingLeft(1)
			if col >= 2 {
				style = style.Align(lipgloss.Right)
			}
			if row == table.HeaderRow {
				return style.Bold(true).Foreground(PrimaryColor)
			}
			if row >= firstSummary {
				style = style.Bold(true)
			}
			if col == len(ReceiptHeaders)-1 && row >= 0 && row < len(totals) {
				switch {
				case totals[row] > 0:
					style = style.Foreground(IncreaseColor)
				case totals[row] < 0:
					style = style.Foreground(DecreaseColor)
				}
			}
			return style
		})

	_, err := fmt.Fprintln(w, FormatTitle(title)+"\n"+t.Render())
	return err
}
