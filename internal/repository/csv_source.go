package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"LineGuard/internal/domain/errs"
	"LineGuard/internal/domain/models"
	domrepo "LineGuard/internal/domain/repository"
)

// Cells read as missing in numeric columns, in addition to the empty string.
var missingTokens = map[string]struct{}{
	"na": {}, "n/a": {}, "nan": {}, "null": {}, "none": {}, "-nan": {}, "#n/a": {},
}

// CSVSource reads the dataset from a delimited file with a header row.
type CSVSource struct {
	path    string
	maxRows int
	comma   rune
}

type CSVOption func(*CSVSource)

// WithMaxRows caps the number of data rows read; n <= 0 means unlimited.
func WithMaxRows(n int) CSVOption {
	return func(s *CSVSource) { s.maxRows = n }
}

func WithDelimiter(r rune) CSVOption {
	return func(s *CSVSource) { s.comma = r }
}

func NewCSVSource(path string, opts ...CSVOption) *CSVSource {
	s := &CSVSource{path: path, comma: ','}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ domrepo.DatasetSource = (*CSVSource)(nil)
	_ domrepo.DatasetWriter = (*CSVSource)(nil)
)

func (s *CSVSource) Name() string { return "csv:" + s.path }

func (s *CSVSource) Path() string { return s.path }

func (s *CSVSource) Load(ctx context.Context) (*models.Dataset, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.DatasetNotFound("dataset file %s not found", s.path)
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return s.parse(ctx, f)
}

func (s *CSVSource) newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = s.comma
	cr.ReuseRecord = true
	return cr
}

func (s *CSVSource) parse(ctx context.Context, r io.Reader) (*models.Dataset, error) {
	cr := s.newReader(r)
	header, err := readHeader(cr)
	if err != nil {
		return nil, err
	}

	raw := make([][]string, len(header))
	n := 0
	for s.maxRows <= 0 || n < s.maxRows {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, errs.Schema("malformed csv at line %d: %v", pe.Line, pe.Err)
			}
			return nil, fmt.Errorf("read dataset: %w", err)
		}
		for j, cell := range rec {
			raw[j] = append(raw[j], cell)
		}
		n++
	}

	ds := &models.Dataset{Columns: make([]models.Column, len(header)), N: n}
	for j, name := range header {
		ds.Columns[j] = typeColumn(name, raw[j])
	}
	return ds, nil
}

func readHeader(cr *csv.Reader) ([]string, error) {
	rec, err := cr.Read()
	if err == io.EOF {
		return nil, errs.Schema("dataset has no header row")
	}
	if err != nil {
		return nil, errs.Schema("malformed csv header: %v", err)
	}
	header := make([]string, len(rec))
	seen := make(map[string]struct{}, len(rec))
	for j, h := range rec {
		h = strings.TrimSpace(h)
		if j == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if h == "" {
			return nil, errs.Schema("column %d has an empty header", j)
		}
		if _, dup := seen[h]; dup {
			return nil, errs.Schema("duplicate column %q", h)
		}
		seen[h] = struct{}{}
		header[j] = h
	}
	return header, nil
}

// typeColumn makes a numeric column when every present cell parses as a
// float, and a text column otherwise.
func typeColumn(name string, cells []string) models.Column {
	nums := make([]float64, len(cells))
	for i, c := range cells {
		v, ok := parseCell(c)
		if !ok {
			text := make([]string, len(cells))
			for k, t := range cells {
				text[k] = strings.TrimSpace(t)
			}
			return models.Column{Name: name, Kind: models.ColumnText, Text: text}
		}
		nums[i] = v
	}
	return models.Column{Name: name, Kind: models.ColumnNumeric, Numbers: nums}
}

func parseCell(c string) (float64, bool) {
	c = strings.TrimSpace(c)
	if c == "" {
		return math.NaN(), true
	}
	if _, missing := missingTokens[strings.ToLower(c)]; missing {
		return math.NaN(), true
	}
	v, err := strconv.ParseFloat(c, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Replace streams r to a temporary file beside the dataset, checks that its
// header carries the label column, then renames it into place.
func (s *CSVSource) Replace(ctx context.Context, r io.Reader) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*.csv")
	if err != nil {
		return fmt.Errorf("create temp dataset: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp dataset: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp dataset: %w", err)
	}

	if err := s.checkHeader(tmpName); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace dataset: %w", err)
	}
	committed = true
	return nil
}

func (s *CSVSource) checkHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reopen upload: %w", err)
	}
	defer f.Close()
	header, err := readHeader(s.newReader(f))
	if err != nil {
		return err
	}
	for _, h := range header {
		if h == models.LabelColumn {
			return nil
		}
	}
	return errs.Schema("uploaded dataset is missing required column %q", models.LabelColumn)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
