package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LineGuard/internal/domain/models"
)

func scoringPayload(t *testing.T, req models.ScoringRequest) []byte {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return b
}

func TestScoringHandlerPublishesResults(t *testing.T) {
	f := newFixture(t, 400)
	f.train(t)
	h := NewScoringHandler("scoring.requests", f.predictor, f.events, nil)
	assert.Equal(t, "scoring.requests", h.Topic())

	err := h.Handle(context.Background(), scoringPayload(t, models.ScoringRequest{
		RequestID: "req-1",
		Rows:      []map[string]interface{}{{"f1": 0.9}, {"f1": 0.1}},
	}))
	require.NoError(t, err)

	require.Len(t, f.events.scoring, 1)
	res := f.events.scoring[0]
	assert.Equal(t, "req-1", res.RequestID)
	assert.Empty(t, res.Error)
	require.Len(t, res.Results, 2)
	assert.Equal(t, 1, res.Results[0].Prediction)
	assert.Equal(t, 0, res.Results[1].Prediction)
	assert.False(t, res.ScoredAt.IsZero())
}

func TestScoringHandlerReportsScoringFailure(t *testing.T) {
	f := newFixture(t, 400)
	h := NewScoringHandler("scoring.requests", f.predictor, f.events, nil)

	err := h.Handle(context.Background(), scoringPayload(t, models.ScoringRequest{
		Rows: []map[string]interface{}{{"f1": 0.9}},
	}))
	require.NoError(t, err)

	require.Len(t, f.events.scoring, 1)
	res := f.events.scoring[0]
	assert.NotEmpty(t, res.RequestID)
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, res.Results)
}

func TestScoringHandlerRejectsMalformedPayload(t *testing.T) {
	f := newFixture(t, 400)
	h := NewScoringHandler("scoring.requests", f.predictor, f.events, nil)

	err := h.Handle(context.Background(), []byte("{not json"))
	require.Error(t, err)
	assert.Empty(t, f.events.scoring)
}
