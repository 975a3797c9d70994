package models

import (
	"math"
	"time"
)

const (
	// LabelColumn is the binary target column every dataset must carry.
	LabelColumn = "Response"
	// TimestampColumn is the synthetic row-order timestamp added at load.
	TimestampColumn = "synthetic_timestamp"
)

// IDCandidates lists identifier spellings in priority order.
var IDCandidates = []string{"Id", "id", "ID"}

type ColumnKind int

const (
	ColumnNumeric ColumnKind = iota
	ColumnText
)

// Column holds one dataset column. Numeric columns use NaN for missing cells;
// text columns use "" for missing cells.
type Column struct {
	Name    string
	Kind    ColumnKind
	Numbers []float64
	Text    []string
}

// Numeric reports whether the column is numeric.
func (c *Column) Numeric() bool { return c.Kind == ColumnNumeric }

// Value returns cell i as float64, string or nil when missing.
func (c *Column) Value(i int) interface{} {
	if c.Kind == ColumnNumeric {
		v := c.Numbers[i]
		if math.IsNaN(v) {
			return nil
		}
		return v
	}
	if c.Text[i] == "" {
		return nil
	}
	return c.Text[i]
}

func (c Column) slice(lo, hi int) Column {
	out := Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == ColumnNumeric {
		out.Numbers = c.Numbers[lo:hi:hi]
	} else {
		out.Text = c.Text[lo:hi:hi]
	}
	return out
}

// Dataset is a column-oriented, row-ordered table. Timestamps is nil until
// the timeseries store augments it. Slices share storage with their parent
// and must be treated as read-only.
type Dataset struct {
	Columns    []Column
	Timestamps []time.Time
	N          int
}

// Len returns the row count.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return d.N
}

// Column finds a column by name.
func (d *Dataset) Column(name string) (*Column, bool) {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i], true
		}
	}
	return nil, false
}

// HasColumn reports whether name is a data column or the timestamp column.
func (d *Dataset) HasColumn(name string) bool {
	if name == TimestampColumn {
		return d.Timestamps != nil
	}
	_, ok := d.Column(name)
	return ok
}

// ColumnNames lists columns in natural order; the timestamp column, when
// present, comes last.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, 0, len(d.Columns)+1)
	for _, c := range d.Columns {
		names = append(names, c.Name)
	}
	if d.Timestamps != nil {
		names = append(names, TimestampColumn)
	}
	return names
}

// Range returns rows [lo, hi) as a view.
func (d *Dataset) Range(lo, hi int) *Dataset {
	if lo < 0 {
		lo = 0
	}
	if hi > d.N {
		hi = d.N
	}
	if hi < lo {
		hi = lo
	}
	out := &Dataset{Columns: make([]Column, len(d.Columns)), N: hi - lo}
	for i, c := range d.Columns {
		out.Columns[i] = c.slice(lo, hi)
	}
	if d.Timestamps != nil {
		out.Timestamps = d.Timestamps[lo:hi:hi]
	}
	return out
}

// Head keeps the first n rows; n <= 0 or n >= Len returns d unchanged.
func (d *Dataset) Head(n int) *Dataset {
	if n <= 0 || n >= d.N {
		return d
	}
	return d.Range(0, n)
}

// Row materializes row i as a column→value mapping.
func (d *Dataset) Row(i int) map[string]interface{} {
	row := make(map[string]interface{}, len(d.Columns)+1)
	for ci := range d.Columns {
		row[d.Columns[ci].Name] = d.Columns[ci].Value(i)
	}
	if d.Timestamps != nil {
		row[TimestampColumn] = d.Timestamps[i]
	}
	return row
}

// Window is a closed time interval [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// Bounds is the observed timestamp range of a dataset.
type Bounds struct {
	Min   time.Time
	Max   time.Time
	Rows  int
	Empty bool
}

// Contains reports whether t lies within [Min, Max].
func (b Bounds) Contains(t time.Time) bool {
	if b.Empty {
		return false
	}
	return !t.Before(b.Min) && !t.After(b.Max)
}

// DatasetInfo describes a freshly loaded or uploaded dataset.
type DatasetInfo struct {
	Rows          int       `json:"rows"`
	Columns       []string  `json:"columns"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	LabelPositive int       `json:"label_positive"`
	LabelNegative int       `json:"label_negative"`
}
