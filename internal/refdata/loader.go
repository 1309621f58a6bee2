package refdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/Veraticus/tariff-receipt/internal/common"
)

// File names inside a reference data directory or under a base URL.
const (
	FileCountries         = "countries.json"
	FileMapping           = "section_to_hs4_mapping.json"
	FileSectionWeights    = "section_weights.json"
	FileBEASectionWeights = "bea_section_weights.json"
	FileBEAImportWeights  = "bea_import_weights.json"
	FileBilateralTariffs  = "bilateral_tariffs.json"
	FileHS4ImportWeights  = "hs4_import_weights.json"
)

// Source opens named reference files.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// DirSource reads reference files from a local directory.
type DirSource struct {
	Dir string
}

// Open implements Source.
func (s DirSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, name)
	}
	return f, err
}

// HTTPSource fetches reference files relative to a base URL.
type HTTPSource struct {
	Client  *http.Client
	BaseURL string
	Retry   common.RetryOptions
}

// Open implements Source. 5xx and 429 responses are retried.
func (s HTTPSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: data url %q: %v", common.ErrInvalidConfig, s.BaseURL, err)
	}
	base.Path = path.Join(base.Path, name)

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var body io.ReadCloser
	err = common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
		if err != nil {
			return common.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode == http.StatusOK:
			body = resp.Body
			return nil
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return common.Permanent(fmt.Errorf("%w: %s", common.ErrNotFound, name))
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			return common.ErrRateLimit
		case resp.StatusCode >= 500:
			resp.Body.Close()
			return fmt.Errorf("%w: %s returned %d", common.ErrFetchFailed, name, resp.StatusCode)
		default:
			resp.Body.Close()
			return common.Permanent(fmt.Errorf("%w: %s returned %d", common.ErrFetchFailed, name, resp.StatusCode))
		}
	}, s.Retry)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Loader decodes and validates a full dataset from a Source.
type Loader struct {
	source Source
	logger *slog.Logger
	year   string
}

// NewLoader creates a loader. An empty year picks the latest available.
func NewLoader(source Source, year string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, year: year, logger: logger}
}

// Load reads every reference file. Only hs4_import_weights.json is optional.
func (l *Loader) Load(ctx context.Context) (*Dataset, error) {
	var raw Raw

	files := []struct {
		dst      any
		name     string
		optional bool
	}{
		{name: FileCountries, dst: &raw.Countries},
		{name: FileMapping, dst: &raw.Mapping},
		{name: FileSectionWeights, dst: &raw.SectionWeights},
		{name: FileBEASectionWeights, dst: &raw.BEASectionWeights},
		{name: FileBEAImportWeights, dst: &raw.BEAImportWeights},
		{name: FileBilateralTariffs, dst: &raw.BilateralTariffs},
		{name: FileHS4ImportWeights, dst: &raw.HS4ImportWeights, optional: true},
	}

	for _, f := range files {
		if err := l.decode(ctx, f.name, f.dst); err != nil {
			if f.optional && errors.Is(err, common.ErrNotFound) {
				l.logger.Debug("optional reference file missing", "file", f.name)
				continue
			}
			return nil, fmt.Errorf("failed to load %s: %w", f.name, err)
		}
	}

	ds, err := NewDataset(raw, l.year)
	if err != nil {
		return nil, fmt.Errorf("invalid reference data: %w", err)
	}

	year := ds.Year()
	if year == "" {
		year = "latest"
	}
	l.logger.Info("loaded reference data",
		"year", year,
		"sections", len(ds.Sections()),
		"countries", len(ds.CountryISOs()),
		"bea_codes", len(ds.BEACodes()))
	return ds, nil
}

func (l *Loader) decode(ctx context.Context, name string, dst any) error {
	rc, err := l.source.Open(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := json.NewDecoder(rc).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// Manager holds the active dataset and swaps it only after a complete,
// valid reload.
type Manager struct {
	current *Dataset
	loader  *Loader
	mu      sync.RWMutex
}

// NewManager creates a manager with no dataset loaded.
func NewManager(loader *Loader) *Manager {
	return &Manager{loader: loader}
}

// Reload loads a fresh dataset. On failure the previous dataset stays
// active and the error is returned.
func (m *Manager) Reload(ctx context.Context) (*Dataset, error) {
	ds, err := m.loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = ds
	m.mu.Unlock()
	return ds, nil
}

// Current returns the active dataset.
func (m *Manager) Current() (*Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, common.ErrReferenceNotReady
	}
	return m.current, nil
}
