package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"LineGuard/internal/domain/errs"
	"LineGuard/internal/domain/models"
	domrepo "LineGuard/internal/domain/repository"
	pkgch "LineGuard/pkg/clickhouse"
	applogger "LineGuard/pkg/logger"
)

// CHSource reads the dataset from a ClickHouse table in a stable row order.
type CHSource struct {
	ch      *pkgch.Client
	table   string
	orderBy string
	maxRows int
	l       *applogger.Logger
}

var _ domrepo.DatasetSource = (*CHSource)(nil)

func NewCHSource(ch *pkgch.Client, table, orderBy string, maxRows int) *CHSource {
	return &CHSource{ch: ch, table: table, orderBy: orderBy, maxRows: maxRows}
}

// SetLogger injects a structured logger.
func (s *CHSource) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHSource) Name() string { return "clickhouse:" + s.table }

func (s *CHSource) Load(ctx context.Context) (*models.Dataset, error) {
	start := time.Now()
	if !pkgch.ValidIdentifier(s.orderBy) {
		return nil, fmt.Errorf("invalid order_by column %q", s.orderBy)
	}
	exists, err := s.ch.TableExists(ctx, s.table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.DatasetNotFound("dataset table %s not found", s.table)
	}

	q := fmt.Sprintf("SELECT * FROM %s ORDER BY %s", s.table, s.orderBy)
	if s.maxRows > 0 {
		q += " LIMIT " + strconv.Itoa(s.maxRows)
	}
	rows, err := s.ch.DB().QueryContext(ctx, q)
	if err != nil {
		s.logError("clickhouse dataset query error", err)
		return nil, fmt.Errorf("query dataset: %w", err)
	}
	defer rows.Close()

	ds, err := scanDataset(rows)
	if err != nil {
		s.logError("clickhouse dataset scan error", err)
		return nil, err
	}
	if s.l != nil {
		s.l.Info("clickhouse dataset ok",
			applogger.String("table", s.table),
			applogger.Int("rows", ds.Len()),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return ds, nil
}

func (s *CHSource) logError(msg string, err error) {
	if s.l != nil {
		s.l.Error(msg, applogger.String("table", s.table), applogger.Error(err))
	}
}

func scanDataset(rows *sql.Rows) (*models.Dataset, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}
	ds := &models.Dataset{Columns: make([]models.Column, len(types))}
	for j, ct := range types {
		kind := models.ColumnText
		if numericCHType(ct.DatabaseTypeName()) {
			kind = models.ColumnNumeric
		}
		ds.Columns[j] = models.Column{Name: ct.Name(), Kind: kind}
	}

	vals := make([]any, len(types))
	ptrs := make([]any, len(types))
	for j := range vals {
		ptrs[j] = &vals[j]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", ds.N, err)
		}
		for j := range ds.Columns {
			c := &ds.Columns[j]
			if c.Kind == models.ColumnNumeric {
				c.Numbers = append(c.Numbers, toFloat(vals[j]))
			} else {
				c.Text = append(c.Text, toText(vals[j]))
			}
		}
		ds.N++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return ds, nil
}

// numericCHType reports whether a ClickHouse type name (possibly wrapped in
// Nullable or LowCardinality) holds numbers.
func numericCHType(name string) bool {
	for {
		inner, ok := unwrapType(name, "Nullable")
		if !ok {
			inner, ok = unwrapType(name, "LowCardinality")
		}
		if !ok {
			break
		}
		name = inner
	}
	for _, p := range []string{"Int", "UInt", "Float", "Decimal", "Bool"} {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func unwrapType(name, wrapper string) (string, bool) {
	if strings.HasPrefix(name, wrapper+"(") && strings.HasSuffix(name, ")") {
		return name[len(wrapper)+1 : len(name)-1], true
	}
	return name, false
}

func deref(v any) (reflect.Value, bool) {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		rv = rv.Elem()
	}
	return rv, rv.IsValid()
}

func toFloat(v any) float64 {
	rv, ok := deref(v)
	if !ok {
		return math.NaN()
	}
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Bool:
		if rv.Bool() {
			return 1
		}
		return 0
	}
	if s, ok := rv.Interface().(fmt.Stringer); ok {
		if f, err := strconv.ParseFloat(s.String(), 64); err == nil {
			return f
		}
	}
	return math.NaN()
}

func toText(v any) string {
	rv, ok := deref(v)
	if !ok {
		return ""
	}
	switch x := rv.Interface().(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}
