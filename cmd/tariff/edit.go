package main

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Veraticus/tariff-receipt/internal/cli"
	"github.com/Veraticus/tariff-receipt/internal/common"
	"github.com/Veraticus/tariff-receipt/internal/model"
	"github.com/Veraticus/tariff-receipt/internal/receipt"
	"github.com/Veraticus/tariff-receipt/internal/tariff"
)

// assignment is one path=value argument.
type assignment struct {
	path  tariff.Path
	level tariff.Level
	value float64
}

func parseAssignment(arg string) (assignment, error) {
	lhs, rhs, ok := strings.Cut(arg, "=")
	if !ok {
		return assignment{}, common.NewUserError(fmt.Sprintf("expected path=value, got %q", arg), tariff.ErrUnknownPath)
	}

	level, p, err := tariff.ParsePath(lhs)
	if err != nil {
		return assignment{}, common.NewUserError(fmt.Sprintf("bad path %q; use section, section/chapter or section/chapter/hs4", lhs), err)
	}

	value, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(rhs), "%"), 64)
	if err != nil {
		return assignment{}, common.NewUserError(fmt.Sprintf("bad rate %q for %s", rhs, lhs), err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return assignment{}, common.NewUserError(fmt.Sprintf("bad rate %q for %s", rhs, lhs), tariff.ErrInvalidValue)
	}
	return assignment{path: p, level: level, value: value}, nil
}

func editCmd(open appOpener) *cobra.Command {
	var original bool

	cmd := &cobra.Command{
		Use:   "edit <scenario> <country> <path=value>...",
		Short: "Change tariff rates for a country and add it to the receipt",
		Long: `Set tariff rates for one country and recompute its price effects.

Paths address a node of the HS hierarchy: a section ("11"), a chapter
("11/61") or an HS4 heading ("11/61/6109"). Writing a node propagates
the rate to everything below it and re-averages everything above it.

In tariff-change mode the value is the new rate. In original-current mode
it is a change relative to each node's statutory rate, scaled by the
scenario's pass-through. With --original the statutory rates themselves
are overridden.`,
		Example: `  # Raise every rate in section 11 for China to 25%
  tariff edit trade-war CHN 11=25

  # Override one heading's statutory rate
  tariff edit trade-war CHN 11/61/6109=12 --original`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignments := make([]assignment, 0, len(args)-2)
			for _, arg := range args[2:] {
				as, err := parseAssignment(arg)
				if err != nil {
					return err
				}
				assignments = append(assignments, as)
			}

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
			iso, err := checkKnownCountry(ref, args[1])
			if err != nil {
				return err
			}

			kind := tariff.KindCurrent
			if original {
				kind = tariff.KindOriginal
			}

			if _, err := state.OpenCountry(iso); err != nil {
				return err
			}
			for _, as := range assignments {
				stored, err := state.Edit(iso, as.level, as.path, as.value, kind)
				if err != nil {
					state.CancelEdit()
					if errors.Is(err, tariff.ErrUnknownPath) {
						return common.NewUserError(fmt.Sprintf("%s is not in the HS hierarchy", as.path), err)
					}
					return err
				}
				a.logger.Debug("rate edited", "country", iso, "path", as.path.String(), "stored", stored)
			}

			sub, err := state.SubmitCountry(ctx, iso)
			if err != nil {
				return err
			}

			if err := a.store.AppendEdits(ctx, sc.ID, sub.Edits); err != nil {
				return fmt.Errorf("failed to save edits: %w", err)
			}
			if err := a.store.AddReceiptCountry(ctx, sc.ID, iso); err != nil {
				return fmt.Errorf("failed to save receipt: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Applied %d edit(s) to %s", len(sub.Edits), ref.CountryName(iso))))
			warnWorld(cmd, sub.WorldErr)
			return renderReceipt(cmd, a, state, sc.Name)
		},
	}

	cmd.Flags().BoolVar(&original, "original", false, "override statutory rates instead of current rates")

	return cmd
}

func showCmd(open appOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "show <scenario> <country> [path]",
		Short: "Show statutory and current rates under a node",
		Long: `List the children of a node with their statutory and current rates.

Without a path the 21 sections are listed. A * marks values that were set
directly rather than derived.`,
		Example: `  tariff show trade-war CHN
  tariff show trade-war CHN 11/61`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			_, state, ref, err := a.loadState(cmd, args[0])
			if err != nil {
				return err
			}
			iso, err := checkKnownCountry(ref, args[1])
			if err != nil {
				return err
			}

			var at string
			if len(args) == 3 {
				at = args[2]
			}
			rows, err := childRows(ref.Sections(), at)
			if err != nil {
				return err
			}

			store := state.Store()
			store.PreCalculateWeights(iso)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			headerStyle := lipgloss.NewStyle().Bold(true).Foreground(cli.PrimaryColor)
			fmt.Fprintln(w, strings.Join([]string{
				headerStyle.Render("PATH"),
				headerStyle.Render("TITLE"),
				headerStyle.Render("ORIGINAL"),
				headerStyle.Render("CURRENT"),
			}, "\t"))

			decimals := a.cfg.Display.Decimals
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					cli.InfoStyle.Render(r.path.String()),
					r.title,
					rateCell(store, r, iso, tariff.KindOriginal, decimals),
					rateCell(store, r, iso, tariff.KindCurrent, decimals),
				)
			}
			return w.Flush()
		},
	}
}

type nodeRow struct {
	path  tariff.Path
	title string
	level tariff.Level
}

// childRows lists the nodes directly below at, or at itself for an HS4
// heading. An empty at lists the sections.
func childRows(sections []model.Section, at string) ([]nodeRow, error) {
	if at == "" {
		rows := make([]nodeRow, 0, len(sections))
		for _, s := range sections {
			rows = append(rows, nodeRow{path: tariff.SectionPath(s.ID), title: s.Title, level: tariff.LevelSection})
		}
		return rows, nil
	}

	level, p, err := tariff.ParsePath(at)
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("bad path %q", at), err)
	}

	for _, s := range sections {
		if s.ID != p.Section {
			continue
		}
		if level == tariff.LevelSection {
			rows := make([]nodeRow, 0, len(s.Chapters))
			for _, c := range s.Chapters {
				rows = append(rows, nodeRow{path: tariff.ChapterPath(s.ID, c.ID), title: c.Title, level: tariff.LevelChapter})
			}
			return rows, nil
		}
		for _, c := range s.Chapters {
			if c.ID != p.Chapter {
				continue
			}
			var rows []nodeRow
			for _, h := range c.HS4 {
				if level == tariff.LevelHS4 && h.ID != p.HS4 {
					continue
				}
				rows = append(rows, nodeRow{path: tariff.HS4Path(s.ID, c.ID, h.ID), title: h.Description, level: tariff.LevelHS4})
			}
			if len(rows) > 0 {
				return rows, nil
			}
		}
	}
	return nil, common.NewUserError(fmt.Sprintf("%s is not in the HS hierarchy", at), tariff.ErrUnknownPath)
}

func rateCell(store *tariff.Store, r nodeRow, iso string, kind tariff.Kind, decimals int) string {
	s := receipt.FormatRate(store.GetTariffValue(r.level, r.path, iso, kind), decimals)
	if store.IsDirectlySet(r.level, r.path, iso, kind) {
		s += " *"
	}
	return s
}
