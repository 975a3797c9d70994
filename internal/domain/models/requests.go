package models

// Requests for pipeline HTTP endpoints. Timestamps are ISO-8601 strings and
// are parsed by the handlers so malformed values become validation errors.

type ValidateWindowsRequest struct {
	TrainStart string `json:"trainStart" validate:"required"`
	TrainEnd   string `json:"trainEnd" validate:"required"`
	TestStart  string `json:"testStart" validate:"required"`
	TestEnd    string `json:"testEnd" validate:"required"`
	SimStart   string `json:"simStart" validate:"required"`
	SimEnd     string `json:"simEnd" validate:"required"`
}

// TrainRequest row caps keep the first n rows of a window; 0 means no cap.
type TrainRequest struct {
	TrainStart   string `json:"trainStart" validate:"required"`
	TrainEnd     string `json:"trainEnd" validate:"required"`
	TestStart    string `json:"testStart" validate:"required"`
	TestEnd      string `json:"testEnd" validate:"required"`
	MaxTrainRows *int   `json:"max_train_rows" validate:"omitempty,gte=0"`
	MaxTestRows  *int   `json:"max_test_rows" validate:"omitempty,gte=0"`
}

type PredictRequest struct {
	Rows []map[string]interface{} `json:"rows" validate:"required"`
}

type SimulateRequest struct {
	SimStart string `query:"simStart" validate:"required"`
	SimEnd   string `query:"simEnd" validate:"required"`
}

type RunsRequest struct {
	Limit int `query:"limit" default:"20" validate:"gte=1,lte=500"`
}
