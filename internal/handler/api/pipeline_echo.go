package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"LineGuard/internal/domain/errs"
	"LineGuard/internal/domain/models"
	domrepo "LineGuard/internal/domain/repository"
	imetrics "LineGuard/internal/service/metrics"
	"LineGuard/internal/service/ratelimit"
	"LineGuard/internal/usecase"
	xhttp "LineGuard/pkg/http"
	xlogger "LineGuard/pkg/logger"
)

const maxUploadBytes = 512 << 20

// PipelineEchoHandler exposes the dataset, training and inference pipelines.
type PipelineEchoHandler struct {
	logger    *xlogger.Logger
	windows   *usecase.WindowValidation
	trainer   *usecase.Trainer
	predictor *usecase.Predictor
	simulator *usecase.Simulator
	upload    *usecase.DatasetUpload
	registry  domrepo.RunRegistry
	limiter   *ratelimit.Limiter
	streams   *imetrics.StreamMetrics
	upgrader  websocket.Upgrader
}

// PipelineDeps groups the handler's collaborators. Upload, Registry, Limiter
// and Streams are optional.
type PipelineDeps struct {
	Windows   *usecase.WindowValidation
	Trainer   *usecase.Trainer
	Predictor *usecase.Predictor
	Simulator *usecase.Simulator
	Upload    *usecase.DatasetUpload
	Registry  domrepo.RunRegistry
	Limiter   *ratelimit.Limiter
	Streams   *imetrics.StreamMetrics
}

func NewPipelineEchoHandler(logger *xlogger.Logger, d PipelineDeps, allowOrigin string) *PipelineEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &PipelineEchoHandler{
		logger:    logger.Named("api"),
		windows:   d.Windows,
		trainer:   d.Trainer,
		predictor: d.Predictor,
		simulator: d.Simulator,
		upload:    d.Upload,
		registry:  d.Registry,
		limiter:   d.Limiter,
		streams:   d.Streams,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowOrigin),
		},
	}
}

func (h *PipelineEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/dates/validate", h.ValidateWindows)
	g.POST("/train", h.Train)
	g.POST("/predict", h.Predict, h.rateLimit("predict"))
	g.POST("/dataset/upload", h.Upload)
	g.GET("/model", h.Model)
	g.GET("/model/runs", h.Runs)
	g.GET("/simulate/stream", h.SimulateSSE)
	g.GET("/simulate/ws", h.SimulateWS)
}

type trainResponse struct {
	Status          string           `json:"status"`
	Metrics         models.Metrics   `json:"metrics"`
	ConfusionMatrix models.Confusion `json:"confusionMatrix"`
	TrainingHistory models.History   `json:"trainingHistory"`
}

type predictResponse struct {
	Results []models.Prediction `json:"results"`
}

func (h *PipelineEchoHandler) ValidateWindows(c echo.Context) error {
	req := &models.ValidateWindowsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	train, verr := parseWindow("trainStart", req.TrainStart, "trainEnd", req.TrainEnd)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	test, verr := parseWindow("testStart", req.TestStart, "testEnd", req.TestEnd)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sim, verr := parseWindow("simStart", req.SimStart, "simEnd", req.SimEnd)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	report, err := h.windows.Validate(c.Request().Context(), train, test, sim)
	if err != nil {
		return h.fail(c, "validate windows", err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *PipelineEchoHandler) Train(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	train, verr := parseWindow("trainStart", req.TrainStart, "trainEnd", req.TrainEnd)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	test, verr := parseWindow("testStart", req.TestStart, "testEnd", req.TestEnd)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := usecase.TrainParams{Train: train, Test: test}
	if req.MaxTrainRows != nil {
		p.MaxTrainRows = *req.MaxTrainRows
	}
	if req.MaxTestRows != nil {
		p.MaxTestRows = *req.MaxTestRows
	}

	res, err := h.trainer.Train(c.Request().Context(), p)
	if err != nil {
		return h.fail(c, "train", err)
	}
	return c.JSON(http.StatusOK, trainResponse{
		Status:          res.Status,
		Metrics:         res.Metrics,
		ConfusionMatrix: res.Confusion,
		TrainingHistory: res.History,
	})
}

func (h *PipelineEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	results, err := h.predictor.Predict(c.Request().Context(), req.Rows)
	if err != nil {
		return h.fail(c, "predict", err)
	}
	return c.JSON(http.StatusOK, predictResponse{Results: results})
}

func (h *PipelineEchoHandler) Upload(c echo.Context) error {
	if h.upload == nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("dataset upload is only available for the csv source"))
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return xhttp.BadRequestResponse(c, xhttp.FieldErrors("ERR_REQUIRED", "file", "file is required"))
	}
	if fh.Size > maxUploadBytes {
		return xhttp.BadRequestResponse(c, xhttp.FieldErrors("ERR_MAX", "file", fmt.Sprintf("file must be at most %d bytes", maxUploadBytes)))
	}
	f, err := fh.Open()
	if err != nil {
		return h.fail(c, "open upload", errs.Internal(err, "open uploaded file"))
	}
	defer f.Close()

	info, err := h.upload.Upload(c.Request().Context(), f)
	if err != nil {
		return h.fail(c, "upload dataset", err)
	}
	h.logger.Info("dataset uploaded",
		xlogger.String("file", fh.Filename),
		xlogger.Int("rows", info.Rows),
	)
	return c.JSON(http.StatusOK, info)
}

func (h *PipelineEchoHandler) Model(c echo.Context) error {
	m, err := h.predictor.Model(c.Request().Context())
	if err != nil {
		return h.fail(c, "model info", err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *PipelineEchoHandler) Runs(c echo.Context) error {
	if h.registry == nil {
		return c.JSON(http.StatusOK, []models.TrainingRun{})
	}
	req := &models.RunsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	runs, err := h.registry.List(c.Request().Context(), req.Limit)
	if err != nil {
		return h.fail(c, "list runs", errs.Internal(err, "list training runs"))
	}
	if runs == nil {
		runs = []models.TrainingRun{}
	}
	return c.JSON(http.StatusOK, runs)
}

// SimulateSSE streams simulation events as server-sent events. Failures
// before the first event are regular error responses; later ones are sent as
// an "error" event.
func (h *PipelineEchoHandler) SimulateSSE(c echo.Context) error {
	w, verr := h.simulationWindow(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	done := h.streams.Open("sse")
	res := c.Response()
	started := false

	emit := func(e models.SimEvent) error {
		if !started {
			res.Header().Set(echo.HeaderContentType, "text/event-stream")
			res.Header().Set(echo.HeaderCacheControl, "no-cache")
			res.Header().Set(echo.HeaderConnection, "keep-alive")
			res.Header().Set("X-Accel-Buffering", "no")
			res.WriteHeader(http.StatusOK)
			started = true
		}
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(res, "data: %s\n\n", b); err != nil {
			return err
		}
		res.Flush()
		h.streams.Sent("sse")
		return nil
	}

	_, err := h.simulator.Run(c.Request().Context(), w, emit)
	done(streamReason(err))
	switch {
	case err == nil:
		return nil
	case !started:
		return h.fail(c, "simulate", err)
	case c.Request().Context().Err() != nil:
		return nil
	default:
		h.logger.Warn("simulation stream aborted", xlogger.Error(err))
		msg, _ := json.Marshal(map[string]string{"error": err.Error()})
		_, _ = fmt.Fprintf(res, "event: error\ndata: %s\n\n", msg)
		res.Flush()
		return nil
	}
}

// SimulateWS streams simulation events over a WebSocket. The stream stops
// when the client closes the connection.
func (h *PipelineEchoHandler) SimulateWS(c echo.Context) error {
	w, verr := h.simulationWindow(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()
	done := h.streams.Open("ws")

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	emit := func(e models.SimEvent) error {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(e); err != nil {
			return err
		}
		h.streams.Sent("ws")
		return nil
	}
	_, err = h.simulator.Run(ctx, w, emit)
	done(streamReason(err))

	code, text := websocket.CloseNormalClosure, "done"
	if err != nil && ctx.Err() == nil {
		h.logger.Warn("simulation stream aborted", xlogger.Error(err))
		code, text = websocket.CloseInternalServerErr, truncate(err.Error(), 120)
		if k := errs.KindOf(err); k != errs.KindInternal {
			_ = conn.WriteJSON(map[string]string{"error": err.Error(), "kind": k.String()})
			code = websocket.ClosePolicyViolation
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
	return nil
}

func (h *PipelineEchoHandler) simulationWindow(c echo.Context) (models.Window, []xhttp.ValidationError) {
	req := &models.SimulateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		if list, ok := verr.([]xhttp.ValidationError); ok {
			return models.Window{}, list
		}
		return models.Window{}, xhttp.FieldErrors("ERR_VALIDATION", "", fmt.Sprint(verr))
	}
	return parseWindow("simStart", req.SimStart, "simEnd", req.SimEnd)
}

func (h *PipelineEchoHandler) rateLimit(name string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if h.limiter != nil && !h.limiter.Allow(name+":"+c.RealIP()) {
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded, retry shortly"))
			}
			return next(c)
		}
	}
}

func (h *PipelineEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps a pipeline error kind onto an HTTP error.
func toAppError(err error) *xhttp.AppError {
	kind := errs.KindOf(err)
	code := "ERR_" + strings.ToUpper(kind.String())
	var status int
	switch kind {
	case errs.KindDatasetNotFound:
		status = http.StatusNotFound
	case errs.KindSchema, errs.KindEmptyWindow, errs.KindEmptyFeatureSet, errs.KindBadInput:
		status = http.StatusBadRequest
	case errs.KindConflict:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}
	return xhttp.NewAppError(code, "", err.Error(), status).WithError(err)
}

func parseWindow(startField, start, endField, end string) (models.Window, []xhttp.ValidationError) {
	s, ok := xhttp.ParseTime(start)
	if !ok {
		return models.Window{}, xhttp.FieldErrors("ERR_VALIDATION", startField, fmt.Sprintf("%s is not a valid timestamp: %q", startField, start))
	}
	e, ok := xhttp.ParseTime(end)
	if !ok {
		return models.Window{}, xhttp.FieldErrors("ERR_VALIDATION", endField, fmt.Sprintf("%s is not a valid timestamp: %q", endField, end))
	}
	return models.Window{Start: s, End: e}, nil
}

func streamReason(err error) string {
	switch {
	case err == nil:
		return "done"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "client_gone"
	default:
		return "error"
	}
}

// originChecker accepts same-origin requests and, unless allowOrigin is "*",
// only the listed origins.
func originChecker(allowOrigin string) func(r *http.Request) bool {
	allowed := map[string]bool{}
	all := false
	for _, o := range strings.Split(allowOrigin, ",") {
		o = strings.TrimSpace(o)
		if o == "*" {
			all = true
		}
		if o != "" {
			allowed[o] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || all || allowed[origin] {
			return true
		}
		return strings.EqualFold(strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://"), r.Host)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
