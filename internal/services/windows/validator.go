package windows

import (
	"time"

	"LineGuard/internal/domain/models"
	"LineGuard/internal/services/timeseries"
	"LineGuard/pkg/util"
)

const day = 24 * time.Hour

type namedWindow struct {
	label  string
	window models.Window
}

// Validate checks the three windows against each other and against the
// dataset bounds. Every rule is evaluated; violations accumulate in a fixed
// order. Adjacency is strict (test must start after train ends) while slice
// counts are inclusive of both ends.
func Validate(ds *models.Dataset, train, test, sim models.Window) models.ValidationReport {
	named := []namedWindow{
		{"Training", train},
		{"Testing", test},
		{"Simulation", sim},
	}
	problems := make([]string, 0, 4)

	for _, w := range named {
		if w.window.Start.After(w.window.End) {
			problems = append(problems, w.label+" start must be before or equal to end.")
		}
	}
	if !train.End.Before(test.Start) {
		problems = append(problems, "Testing must begin after training ends.")
	}
	if !test.End.Before(sim.Start) {
		problems = append(problems, "Simulation must begin after testing ends.")
	}

	// An inverted window is never within range, even when both ends are.
	bounds := timeseries.BoundsOf(ds)
	for _, w := range named {
		if !bounds.Contains(w.window.Start) || !bounds.Contains(w.window.End) || w.window.Start.After(w.window.End) {
			problems = append(problems, w.label+" period out of dataset range.")
		}
	}

	status := models.StatusValid
	if len(problems) > 0 {
		status = models.StatusInvalid
	}
	total := ds.Len()
	return models.ValidationReport{
		Status: status,
		Errors: problems,
		Summary: models.ValidationSummary{
			Train:        summarize(ds, train),
			Test:         summarize(ds, test),
			Simulation:   summarize(ds, sim),
			TotalRecords: total,
		},
		TotalRecords: total,
	}
}

func summarize(ds *models.Dataset, w models.Window) models.WindowSummary {
	return models.WindowSummary{
		Start: util.FormatTimestamp(w.Start),
		End:   util.FormatTimestamp(w.End),
		Days:  spanDays(w),
		Count: timeseries.Slice(ds, w).Len(),
	}
}

// spanDays is the number of whole days covered, counting the first day.
func spanDays(w models.Window) int {
	d := w.End.Sub(w.Start)
	whole := int(d / day)
	if d < 0 && d%day != 0 {
		whole--
	}
	return whole + 1
}
