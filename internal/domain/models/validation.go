package models

const (
	StatusValid   = "Valid"
	StatusInvalid = "Invalid"
)

// WindowSummary describes one window against the full dataset.
type WindowSummary struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"days"`
	Count int    `json:"count"`
}

type ValidationSummary struct {
	Train        WindowSummary `json:"train"`
	Test         WindowSummary `json:"test"`
	Simulation   WindowSummary `json:"simulation"`
	TotalRecords int           `json:"total_records"`
}

// ValidationReport is the outcome of checking train/test/simulation windows.
// Errors accumulate; Status is Valid only when Errors is empty.
type ValidationReport struct {
	Status       string            `json:"status"`
	Errors       []string          `json:"errors"`
	Summary      ValidationSummary `json:"summary"`
	TotalRecords int               `json:"total_records"`
}

// Valid reports whether no rule was violated.
func (r *ValidationReport) Valid() bool { return r.Status == StatusValid }
