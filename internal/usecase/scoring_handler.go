package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"LineGuard/internal/domain/models"
	domrepo "LineGuard/internal/domain/repository"
	pkgkafka "LineGuard/pkg/kafka"
	applogger "LineGuard/pkg/logger"
)

// ScoringHandler consumes asynchronous scoring jobs and publishes their results.
type ScoringHandler struct {
	topic     string
	predictor *Predictor
	events    domrepo.EventPublisher
	log       *applogger.Logger
}

var _ pkgkafka.MessageHandler = (*ScoringHandler)(nil)

func NewScoringHandler(topic string, p *Predictor, events domrepo.EventPublisher, l *applogger.Logger) *ScoringHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &ScoringHandler{topic: topic, predictor: p, events: events, log: l}
}

func (h *ScoringHandler) Topic() string { return h.topic }

// Handle scores one request. Malformed payloads are returned as errors so the
// consumer can route them to the DLQ; scoring failures are reported to the
// requester through the result topic instead.
func (h *ScoringHandler) Handle(ctx context.Context, data []byte) error {
	var req models.ScoringRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	res := models.ScoringResult{RequestID: req.RequestID}
	preds, err := h.predictor.predict(ctx, "kafka", req.Rows)
	if err != nil {
		h.log.Warn("scoring request failed",
			applogger.String("request_id", req.RequestID),
			applogger.String("trace_id", pkgkafka.TraceIDFrom(ctx)),
			applogger.Error(err))
		res.Error = err.Error()
	} else {
		res.Results = preds
	}
	res.ScoredAt = time.Now().UTC()
	if h.events == nil {
		return nil
	}
	return h.events.PublishScoring(ctx, res)
}
