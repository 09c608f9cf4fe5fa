package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan builds the low-stock snapshot shown on the tools tab.
	TaskLowStockScan = "catalog:lowstock_scan"
	// TaskCatalogExport writes a catalog export into the backup directory.
	TaskCatalogExport = "catalog:export"
)

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewLowStockScanTask constructs an Asynq task for the low-stock scan.
func NewLowStockScanTask(requestedBy string) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{RequestedBy: requestedBy, RequestedAt: time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// CatalogExportPayload selects the export format.
type CatalogExportPayload struct {
	Format string `json:"format"`
}

// NewCatalogExportTask constructs an Asynq task for a catalog backup export.
func NewCatalogExportTask(format string) (*asynq.Task, error) {
	body, err := json.Marshal(CatalogExportPayload{Format: format})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogExport, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
