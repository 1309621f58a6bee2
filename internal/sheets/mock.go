package sheets

import (
	"context"
	"sync"

	"github.com/Veraticus/tariff-receipt/internal/model"
)

// MockExporter records exported receipts for tests.
type MockExporter struct {
	ExportFunc func(ctx context.Context, report model.ReceiptReport) error
	Reports    []model.ReceiptReport
	mu         sync.Mutex
}

// NewMockExporter creates a new mock exporter.
func NewMockExporter() *MockExporter {
	return &MockExporter{}
}

// Export implements service.ReceiptExporter.
func (m *MockExporter) Export(ctx context.Context, report model.ReceiptReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Reports = append(m.Reports, report)
	if m.ExportFunc != nil {
		return m.ExportFunc(ctx, report)
	}
	return nil
}

// Calls returns a copy of every exported report.
func (m *MockExporter) Calls() []model.ReceiptReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ReceiptReport(nil), m.Reports...)
}
