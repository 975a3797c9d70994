package usecase

import (
	"context"
	"io"
	"time"

	"LineGuard/internal/domain/models"
	domrepo "LineGuard/internal/domain/repository"
	"LineGuard/internal/services/timeseries"
	applogger "LineGuard/pkg/logger"
)

// ReloadableDataset is a DatasetLoader whose cached copy can be dropped.
type ReloadableDataset interface {
	DatasetLoader
	Invalidate()
}

// DatasetUpload swaps in a new raw dataset and reports what was loaded.
type DatasetUpload struct {
	writer domrepo.DatasetWriter
	data   ReloadableDataset
	log    *applogger.Logger
}

// NewDatasetUpload returns nil when the configured source cannot be
// replaced; callers then leave the upload route unregistered.
func NewDatasetUpload(writer domrepo.DatasetWriter, data ReloadableDataset, l *applogger.Logger) *DatasetUpload {
	if writer == nil {
		return nil
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &DatasetUpload{writer: writer, data: data, log: l}
}

func (u *DatasetUpload) Upload(ctx context.Context, r io.Reader) (*models.DatasetInfo, error) {
	start := time.Now()
	if err := u.writer.Replace(ctx, r); err != nil {
		return nil, classify(err, "store uploaded dataset")
	}
	u.data.Invalidate()

	ds, err := u.data.Load(ctx)
	if err != nil {
		return nil, classify(err, "reload dataset")
	}
	info := Describe(ds)
	u.log.Info("dataset replaced",
		applogger.Int("rows", info.Rows),
		applogger.Int("columns", len(info.Columns)),
		applogger.Duration("took_ms", time.Since(start)),
	)
	return info, nil
}

// Describe summarizes an augmented dataset.
func Describe(ds *models.Dataset) *models.DatasetInfo {
	info := &models.DatasetInfo{Rows: ds.Len(), Columns: ds.ColumnNames()}
	if b := timeseries.BoundsOf(ds); !b.Empty {
		info.Start, info.End = b.Min, b.Max
	}
	if c, ok := ds.Column(models.LabelColumn); ok && c.Numeric() {
		for _, v := range c.Numbers {
			switch v {
			case 1:
				info.LabelPositive++
			case 0:
				info.LabelNegative++
			}
		}
	}
	return info
}
