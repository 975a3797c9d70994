package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LineGuard/internal/domain/errs"
	"LineGuard/internal/domain/models"
	domrepo "LineGuard/internal/domain/repository"
	"LineGuard/internal/repository"
	imetrics "LineGuard/internal/service/metrics"
	"LineGuard/internal/service/ratelimit"
	"LineGuard/internal/services/ml"
	"LineGuard/internal/services/timeseries"
	"LineGuard/internal/usecase"
	"LineGuard/pkg/cache"
	xhttp "LineGuard/pkg/http"
)

type stubSource struct {
	rows int
	err  error
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Load(context.Context) (*models.Dataset, error) {
	if s.err != nil {
		return nil, s.err
	}
	n := s.rows
	ids := make([]float64, n)
	f1 := make([]float64, n)
	label := make([]float64, n)
	for i := 0; i < n; i++ {
		ids[i] = float64(i + 1)
		f1[i] = float64((i*37)%100) / 100
		if f1[i] >= 0.5 {
			label[i] = 1
		}
	}
	return &models.Dataset{
		Columns: []models.Column{
			{Name: "Id", Kind: models.ColumnNumeric, Numbers: ids},
			{Name: "f1", Kind: models.ColumnNumeric, Numbers: f1},
			{Name: models.LabelColumn, Kind: models.ColumnNumeric, Numbers: label},
		},
		N: n,
	}, nil
}

type testEnv struct {
	echo  *echo.Echo
	cache *cache.MemoryCache
}

type envOption func(*usecaseSet)

type usecaseSet struct {
	source  domrepo.DatasetSource
	upload  bool
	limiter *ratelimit.Limiter
}

func withSource(src domrepo.DatasetSource) envOption {
	return func(u *usecaseSet) { u.source = src }
}

func withLimiter(l *ratelimit.Limiter) envOption {
	return func(u *usecaseSet) { u.limiter = l }
}

func withUpload() envOption {
	return func(u *usecaseSet) { u.upload = true }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	dir := t.TempDir()
	set := &usecaseSet{source: &stubSource{rows: 400}}
	for _, opt := range opts {
		opt(set)
	}

	var writer domrepo.DatasetWriter
	if set.upload {
		path := filepath.Join(dir, "train.csv")
		require.NoError(t, os.WriteFile(path, []byte("Id,f1,Response\n1,0.2,0\n"), 0o644))
		csv := repository.NewCSVSource(path)
		set.source = csv
		writer = csv
	}

	store := timeseries.NewStore(set.source)
	bundles := repository.NewFileBundleStore(filepath.Join(dir, "model.bundle"))
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	reg, err := repository.OpenSQLiteRegistry(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	params := ml.DefaultParams()
	params.Rounds = 15
	params.MaxDepth = 3
	params.LearningRate = 0.3
	params.Workers = 1

	h := NewPipelineEchoHandler(nil, PipelineDeps{
		Windows: usecase.NewWindowValidation(store, nil),
		Trainer: usecase.NewTrainer(store, bundles,
			usecase.WithTrainingParams(params),
			usecase.WithTrainingLock(mc, time.Minute),
			usecase.WithRunRegistry(reg),
		),
		Predictor: usecase.NewPredictor(bundles, mc, nil, nil),
		Simulator: usecase.NewSimulator(store, bundles, usecase.WithPacing(0)),
		Upload:    usecase.NewDatasetUpload(writer, store, nil),
		Registry:  reg,
		Limiter:   set.limiter,
		Streams:   imetrics.NewStreamMetrics(prometheus.NewRegistry()),
	}, "*")

	srv := xhttp.NewServer([]xhttp.Handler{h}, xhttp.WithMetrics("", prometheus.NewRegistry()))
	return &testEnv{echo: srv.Echo(), cache: mc}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// firstError returns data[0] of an error envelope.
func firstError(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	body := decode(t, rec)
	assert.EqualValues(t, rec.Code, body["status"])
	data, ok := body["data"].([]interface{})
	require.True(t, ok, rec.Body.String())
	require.NotEmpty(t, data)
	return data[0].(map[string]interface{})
}

// ts renders the synthetic timestamp of row i.
func ts(i int) string {
	return timeseries.Epoch.Add(time.Duration(i) * time.Second).Format(time.RFC3339)
}

func trainBody(trainFrom, trainTo, testFrom, testTo int) map[string]interface{} {
	return map[string]interface{}{
		"trainStart": ts(trainFrom),
		"trainEnd":   ts(trainTo),
		"testStart":  ts(testFrom),
		"testEnd":    ts(testTo),
	}
}

func (e *testEnv) train(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/train", trainBody(0, 299, 300, 399))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestValidateWindowsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/dates/validate", map[string]string{
		"trainStart": ts(0), "trainEnd": ts(99),
		"testStart": ts(100), "testEnd": ts(199),
		"simStart": ts(200), "simEnd": ts(399),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report models.ValidationReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, models.StatusValid, report.Status)
	assert.Equal(t, 100, report.Summary.Test.Count)
	assert.Equal(t, 1, report.Summary.Train.Days)
	assert.Equal(t, 400, report.TotalRecords)
}

func TestValidateWindowsRequestErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/dates/validate", map[string]string{
		"trainStart": ts(0), "trainEnd": ts(99),
		"testStart": ts(100), "testEnd": ts(199),
		"simStart": ts(200),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	e := firstError(t, rec)
	assert.Equal(t, "ERR_REQUIRED", e["code"])
	assert.Equal(t, "simEnd", e["field"])

	rec = env.do(t, http.MethodPost, "/api/dates/validate", map[string]string{
		"trainStart": "yesterday", "trainEnd": ts(99),
		"testStart": ts(100), "testEnd": ts(199),
		"simStart": ts(200), "simEnd": ts(399),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	e = firstError(t, rec)
	assert.Equal(t, "ERR_VALIDATION", e["code"])
	assert.Equal(t, "trainStart", e["field"])
}

func TestTrainResponseShape(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/train", trainBody(0, 299, 300, 399))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{"status", "metrics", "confusionMatrix", "trainingHistory"}, keys)
	assert.Equal(t, "success", body["status"])

	history := body["trainingHistory"].(map[string]interface{})
	assert.Len(t, history["epochs"], 15)
	assert.Len(t, history["loss"], 15)
	cm := body["confusionMatrix"].(map[string]interface{})
	total := cm["tp"].(float64) + cm["tn"].(float64) + cm["fp"].(float64) + cm["fn"].(float64)
	assert.Equal(t, 100.0, total)
}

func TestTrainErrorMapping(t *testing.T) {
	t.Run("empty window", func(t *testing.T) {
		env := newTestEnv(t)
		body := trainBody(0, 299, 300, 399)
		body["trainStart"] = "2014-01-01T00:00:00Z"
		body["trainEnd"] = "2014-01-02T00:00:00Z"
		rec := env.do(t, http.MethodPost, "/api/train", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "ERR_EMPTY_WINDOW", firstError(t, rec)["code"])
	})

	t.Run("dataset not found", func(t *testing.T) {
		env := newTestEnv(t, withSource(&stubSource{err: errs.DatasetNotFound("dataset file data/train.csv not found")}))
		rec := env.do(t, http.MethodPost, "/api/train", trainBody(0, 299, 300, 399))
		require.Equal(t, http.StatusNotFound, rec.Code)
		e := firstError(t, rec)
		assert.Equal(t, "ERR_DATASET_NOT_FOUND", e["code"])
		assert.Contains(t, e["message"], "not found")
	})

	t.Run("training in progress", func(t *testing.T) {
		env := newTestEnv(t)
		ok, err := env.cache.TryLock(context.Background(), "train:lock", "other-run", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		rec := env.do(t, http.MethodPost, "/api/train", trainBody(0, 299, 300, 399))
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "ERR_CONFLICT", firstError(t, rec)["code"])
	})

	t.Run("negative row cap", func(t *testing.T) {
		env := newTestEnv(t)
		body := trainBody(0, 299, 300, 399)
		body["max_train_rows"] = -1
		rec := env.do(t, http.MethodPost, "/api/train", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		e := firstError(t, rec)
		assert.Equal(t, "max_train_rows", e["field"])
		assert.Equal(t, "ERR_GTE", e["code"])
	})
}

func TestTrainZeroRowCapMeansNoCap(t *testing.T) {
	env := newTestEnv(t)
	body := trainBody(0, 299, 300, 399)
	body["max_train_rows"] = 0
	body["max_test_rows"] = 0
	rec := env.do(t, http.MethodPost, "/api/train", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cm := decode(t, rec)["confusionMatrix"].(map[string]interface{})
	total := cm["tp"].(float64) + cm["tn"].(float64) + cm["fp"].(float64) + cm["fn"].(float64)
	assert.Equal(t, 100.0, total)
}

func TestPredictEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/predict", map[string]interface{}{"rows": []map[string]interface{}{{"f1": 0.9}}})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "ERR_INTERNAL", firstError(t, rec)["code"])

	env.train(t)
	rec = env.do(t, http.MethodPost, "/api/predict", map[string]interface{}{
		"rows": []map[string]interface{}{{"f1": 0.9}, {"f1": 0.1, "extra": "x"}, {}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp predictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	assert.Equal(t, 1, resp.Results[0].Prediction)
	assert.Equal(t, 0, resp.Results[1].Prediction)

	rec = env.do(t, http.MethodPost, "/api/predict", map[string]interface{}{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "rows", firstError(t, rec)["field"])
}

func TestPredictRateLimited(t *testing.T) {
	env := newTestEnv(t, withLimiter(ratelimit.New(1, 0)))
	env.train(t)

	body := map[string]interface{}{"rows": []map[string]interface{}{{"f1": 0.9}}}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/predict", body).Code)
	rec := env.do(t, http.MethodPost, "/api/predict", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "ERR_RATE_LIMITED", firstError(t, rec)["code"])
}

func TestModelAndRunsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/model/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	env.train(t)
	env.train(t)

	rec = env.do(t, http.MethodGet, "/api/model", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary models.ModelSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, []string{"f1"}, summary.Features)

	rec = env.do(t, http.MethodGet, "/api/model/runs?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []models.TrainingRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].RunID)

	rec = env.do(t, http.MethodGet, "/api/model/runs?limit=501", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "limit", firstError(t, rec)["field"])
}

func TestSimulateSSE(t *testing.T) {
	env := newTestEnv(t)
	env.train(t)

	rec := env.do(t, http.MethodGet, "/api/simulate/stream?simStart="+ts(360)+"&simEnd="+ts(369), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))

	var events []models.SimEvent
	for _, chunk := range strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n") {
		require.True(t, strings.HasPrefix(chunk, "data: "), chunk)
		var e models.SimEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(chunk, "data: ")), &e))
		events = append(events, e)
	}
	require.Len(t, events, 11)
	assert.Equal(t, int64(361), events[0].ID)
	last := events[len(events)-1]
	assert.True(t, last.Done)
	assert.Equal(t, 10, last.Totals.N)
}

func TestSimulateSSEErrorsBeforeFirstEvent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/simulate/stream?simStart="+ts(0), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "simEnd", firstError(t, rec)["field"])

	rec = env.do(t, http.MethodGet, "/api/simulate/stream?simStart="+ts(9)+"&simEnd="+ts(0), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ERR_BAD_INPUT", firstError(t, rec)["code"])
}

func TestSimulateWebSocket(t *testing.T) {
	env := newTestEnv(t)
	env.train(t)
	srv := httptest.NewServer(env.echo)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/simulate/ws?simStart=" + ts(360) + "&simEnd=" + ts(364)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	var events []models.SimEvent
	for {
		var e models.SimEvent
		if err := conn.ReadJSON(&e); err != nil {
			var ce *websocket.CloseError
			require.True(t, errors.As(err, &ce), err)
			assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
			break
		}
		events = append(events, e)
	}
	require.Len(t, events, 6)
	assert.True(t, events[5].Done)
	assert.Equal(t, 5, events[5].Totals.N)
}

func multipartUpload(t *testing.T, field, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if field != "" {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, field, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, ctype := multipartUpload(t, field, "train.csv", content)
	req := httptest.NewRequest(http.MethodPost, "/api/dataset/upload", body)
	req.Header.Set(echo.HeaderContentType, ctype)
	rec := httptest.NewRecorder()
	e.echo.ServeHTTP(rec, req)
	return rec
}

func TestUploadEndpoint(t *testing.T) {
	env := newTestEnv(t, withUpload())

	rec := env.upload(t, "file", "Id,f1,Response\n1,0.2,0\n2,0.8,1\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var info models.DatasetInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, 2, info.Rows)
	assert.Equal(t, 1, info.LabelPositive)

	rec = env.upload(t, "file", "Id,f1\n1,0.2\n")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ERR_SCHEMA_ERROR", firstError(t, rec)["code"])

	rec = env.upload(t, "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file", firstError(t, rec)["field"])
}

func TestUploadUnavailableForReadOnlySource(t *testing.T) {
	env := newTestEnv(t)
	rec := env.upload(t, "file", "Id,f1,Response\n1,0.2,0\n")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToAppErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{errs.DatasetNotFound("x"), http.StatusNotFound, "ERR_DATASET_NOT_FOUND"},
		{errs.Schema("x"), http.StatusBadRequest, "ERR_SCHEMA_ERROR"},
		{errs.EmptyFeatureSet("x"), http.StatusBadRequest, "ERR_EMPTY_FEATURE_SET"},
		{errs.Conflict("x"), http.StatusConflict, "ERR_CONFLICT"},
		{errors.New("boom"), http.StatusInternalServerError, "ERR_INTERNAL"},
	}
	for _, tc := range cases {
		got := toAppError(tc.err)
		assert.Equal(t, tc.status, got.Status, tc.code)
		assert.Equal(t, tc.code, got.Code)
	}
}

func TestOriginChecker(t *testing.T) {
	req := func(origin, host string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Host = host
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	check := originChecker("https://ops.example.com")
	assert.True(t, check(req("", "api:8080")))
	assert.True(t, check(req("https://ops.example.com", "api:8080")))
	assert.True(t, check(req("http://api:8080", "api:8080")))
	assert.False(t, check(req("https://evil.example.com", "api:8080")))
	assert.True(t, originChecker("*")(req("https://evil.example.com", "api:8080")))
}

func TestStreamReason(t *testing.T) {
	assert.Equal(t, "done", streamReason(nil))
	assert.Equal(t, "client_gone", streamReason(context.Canceled))
	assert.Equal(t, "error", streamReason(errs.BadInput("x")))
}
