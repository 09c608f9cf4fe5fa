package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/catalog-admin/internal/catalog"
	jobmetrics "github.com/odyssey-erp/catalog-admin/internal/jobs"
)

// Exporter writes an export to disk.
type Exporter interface {
	ExportToFile(ctx context.Context, format catalog.ExportFormat, dir string) (string, error)
}

// CatalogExportJob keeps a downloaded export of the catalog in Dir.
type CatalogExportJob struct {
	Auth        Authenticator
	Credentials Credentials
	Exporter    Exporter
	Dir         string
	Observer    Observer
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// Handle processes TaskCatalogExport tasks.
func (j *CatalogExportJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Dir == "" {
		return errors.New("catalog export: handler not configured")
	}
	var payload CatalogExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	format, err := catalog.ParseExportFormat(payload.Format)
	if err != nil {
		return fmt.Errorf("catalog export: %w: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskCatalogExport)
	defer func() {
		resultErr = tracker.End(resultErr)
		if j.Observer != nil {
			j.Observer.ObserveJob(TaskCatalogExport, resultErr)
		}
	}()

	logger := j.logger().With(slog.String("format", string(format)))
	ctx, err = signIn(ctx, j.Auth, j.Credentials)
	if err != nil {
		logger.Error("catalog export sign in", slog.Any("error", err))
		return err
	}
	path, err := j.Exporter.ExportToFile(ctx, format, j.Dir)
	if err != nil {
		logger.Error("catalog export", slog.Any("error", err))
		return err
	}
	logger.Info("catalog exported", slog.String("path", path))
	return nil
}

func (j *CatalogExportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
