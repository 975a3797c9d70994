package usecase

import (
	"context"
	"time"

	"LineGuard/internal/domain/models"
	"LineGuard/internal/services/windows"
	applogger "LineGuard/pkg/logger"
)

// WindowValidation checks proposed windows against the current dataset.
type WindowValidation struct {
	loader DatasetLoader
	log    *applogger.Logger
}

func NewWindowValidation(loader DatasetLoader, l *applogger.Logger) *WindowValidation {
	if l == nil {
		l = applogger.Nop()
	}
	return &WindowValidation{loader: loader, log: l}
}

func (v *WindowValidation) Validate(ctx context.Context, train, test, sim models.Window) (models.ValidationReport, error) {
	start := time.Now()
	ds, err := v.loader.Load(ctx)
	if err != nil {
		return models.ValidationReport{}, classify(err, "load dataset")
	}
	r := windows.Validate(ds, train, test, sim)
	v.log.Debug("windows validated",
		applogger.String("status", r.Status),
		applogger.Int("errors", len(r.Errors)),
		applogger.Duration("took_ms", time.Since(start)),
	)
	return r, nil
}
