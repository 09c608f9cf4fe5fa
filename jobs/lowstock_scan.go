package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/catalog-admin/internal/dashboard"
	jobmetrics "github.com/odyssey-erp/catalog-admin/internal/jobs"
)

// LowStockReporter builds the low-stock report.
type LowStockReporter interface {
	LowStock(ctx context.Context) (dashboard.LowStockReport, error)
}

// SnapshotSaver stores the latest report.
type SnapshotSaver interface {
	Save(ctx context.Context, report dashboard.LowStockReport) error
}

// Observer receives job outcomes and the low-stock gauge.
type Observer interface {
	ObserveJob(task string, err error)
	SetLowStock(low, critical int)
}

// LowStockScanJob signs in with the service account, builds the low-stock report and
// stores it as the snapshot shown on the tools tab.
type LowStockScanJob struct {
	Auth        Authenticator
	Credentials Credentials
	Reporter    LowStockReporter
	Snapshots   SnapshotSaver
	Observer    Observer
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// Handle processes TaskLowStockScan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("lowstock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() {
		resultErr = tracker.End(resultErr)
		if j.Observer != nil {
			j.Observer.ObserveJob(TaskLowStockScan, resultErr)
		}
	}()

	logger := j.logger()
	if payload.RequestedBy != "" {
		logger = logger.With(slog.String("requested_by", payload.RequestedBy))
	}

	ctx, err := signIn(ctx, j.Auth, j.Credentials)
	if err != nil {
		logger.Error("lowstock scan sign in", slog.Any("error", err))
		return err
	}
	report, err := j.Reporter.LowStock(ctx)
	if err != nil {
		logger.Error("lowstock scan", slog.Any("error", err))
		return err
	}
	if err := j.Snapshots.Save(ctx, report); err != nil {
		logger.Error("lowstock snapshot", slog.Any("error", err))
		return err
	}
	if j.Observer != nil {
		j.Observer.SetLowStock(len(report.Items), report.Critical)
	}
	j.Metrics.AddItems(TaskLowStockScan, len(report.Items))
	logger.Info("lowstock scan complete", slog.Int("low", len(report.Items)), slog.Int("critical", report.Critical))
	return nil
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
