package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/tariff-receipt/internal/calc"
	"github.com/Veraticus/tariff-receipt/internal/cli"
	"github.com/Veraticus/tariff-receipt/internal/common"
	"github.com/Veraticus/tariff-receipt/internal/config"
	"github.com/Veraticus/tariff-receipt/internal/model"
	"github.com/Veraticus/tariff-receipt/internal/refdata"
	"github.com/Veraticus/tariff-receipt/internal/scenario"
	"github.com/Veraticus/tariff-receipt/internal/service"
	"github.com/Veraticus/tariff-receipt/internal/sheets"
	"github.com/Veraticus/tariff-receipt/internal/storage"
	"github.com/Veraticus/tariff-receipt/internal/tariff"
)

// app bundles the dependencies commands share.
type app struct {
	store    service.Storage
	logger   *slog.Logger
	loadRef  func(ctx context.Context) (scenario.Reference, error)
	exporter func(ctx context.Context) (service.ReceiptExporter, error)
	cfg      config.Config
	progress bool
}

// appOpener builds the app for a command. Callers must Close it.
type appOpener func(cmd *cobra.Command) (*app, error)

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	store, err := initStorage(cmd.Context(), cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	return &app{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		loadRef:  referenceLoader(cfg, logger),
		exporter: sheetsExporter(logger),
		progress: true,
	}, nil
}

// Close releases the database.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}

// initStorage opens the database and brings its schema up to date.
func initStorage(ctx context.Context, dbPath string) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// referenceLoader loads the reference dataset once, from data.url when set
// and from data.path otherwise.
func referenceLoader(cfg config.Config, logger *slog.Logger) func(ctx context.Context) (scenario.Reference, error) {
	var source refdata.Source = refdata.DirSource{Dir: cfg.Data.Path}
	if cfg.Data.URL != "" {
		source = refdata.HTTPSource{
			Client:  &http.Client{Timeout: cfg.Data.Timeout},
			BaseURL: cfg.Data.URL,
			Retry: common.RetryOptions{
				MaxAttempts:  3,
				InitialDelay: 500 * time.Millisecond,
			},
		}
	}
	manager := refdata.NewManager(refdata.NewLoader(source, cfg.Data.Year, logger))

	return func(ctx context.Context) (scenario.Reference, error) {
		if ds, err := manager.Current(); err == nil {
			return ds, nil
		}
		ds, err := manager.Reload(ctx)
		if err != nil {
			return nil, common.NewUserError("could not load reference data; check data.path or data.url", err)
		}
		return ds, nil
	}
}

func sheetsExporter(logger *slog.Logger) func(ctx context.Context) (service.ReceiptExporter, error) {
	return func(ctx context.Context) (service.ReceiptExporter, error) {
		cfg, err := config.LoadSheetsConfig(viper.GetViper())
		if err != nil {
			return nil, common.NewUserError("Google Sheets is not configured; run `tariff auth sheets` or set sheets.service_account_path", err)
		}
		w, err := sheets.NewWriter(ctx, *cfg, logger)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// scenario looks a scenario up by ID or name.
func (a *app) scenario(ctx context.Context, name string) (*model.Scenario, error) {
	sc, err := a.store.GetScenario(ctx, name)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NewUserError(fmt.Sprintf("scenario %q not found", name), err)
	}
	return sc, err
}

// newState creates an empty state over the reference data. Rest-of-world
// progress is drawn on w.
func (a *app) newState(ctx context.Context, w io.Writer) (*scenario.State, scenario.Reference, error) {
	ref, err := a.loadRef(ctx)
	if err != nil {
		return nil, nil, err
	}

	var onBatch func(done, total int)
	if a.progress {
		onBatch = cli.BatchProgress(w, "Rest of world")
	}
	calculator := calc.NewLinearModel(ref, a.cfg.CalculatorConfig())
	return scenario.New(ref, calculator, a.cfg.StateOptions(onBatch), a.logger), ref, nil
}

// loadState rebuilds a persisted scenario in memory.
func (a *app) loadState(cmd *cobra.Command, name string) (*model.Scenario, *scenario.State, scenario.Reference, error) {
	ctx := cmd.Context()

	sc, err := a.scenario(ctx, name)
	if err != nil {
		return nil, nil, nil, err
	}
	edits, err := a.store.ListEdits(ctx, sc.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load edits: %w", err)
	}
	countries, err := a.store.ListReceiptCountries(ctx, sc.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load receipt: %w", err)
	}
	mode, err := tariff.ParseMode(sc.Mode)
	if err != nil {
		return nil, nil, nil, err
	}

	state, ref, err := a.newState(ctx, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, nil, err
	}

	snap := scenario.Snapshot{
		Mode:        mode,
		PassThrough: sc.PassThroughRate,
		Edits:       edits,
		Receipt:     countries,
		WorldRate:   sc.WorldRate,
	}
	if err := state.Replay(ctx, snap); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to rebuild scenario %s: %w", sc.Name, err)
	}

	a.logger.Debug("loaded scenario",
		"scenario", sc.Name,
		"edits", len(edits),
		"countries", len(countries))
	return sc, state, ref, nil
}

// checkKnownCountry rejects ISO codes the reference data does not list.
func checkKnownCountry(ref scenario.Reference, iso string) (string, error) {
	iso = model.NormalizeISO(iso)
	if model.IsWorldSentinel(iso) {
		return "", common.NewUserError(iso+" is the world aggregate; use `tariff world set` instead", scenario.ErrWorldSentinel)
	}
	if !slices.Contains(ref.CountryISOs(), iso) {
		return "", common.NewUserError(fmt.Sprintf("unknown country %q", iso), common.ErrMissingData)
	}
	return iso, nil
}

func renderReceipt(cmd *cobra.Command, a *app, state *scenario.State, name string) error {
	return cli.RenderReceipt(cmd.OutOrStdout(), state.Report(name), a.cfg.Display.Decimals)
}

// warnWorld prints a non-fatal rest-of-world failure.
func warnWorld(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatWarning("Rest of world not updated: "+err.Error()))
}
