package timeseries

import (
	"context"
	"sort"
	"sync"
	"time"

	"LineGuard/internal/domain/errs"
	"LineGuard/internal/domain/models"
	"LineGuard/internal/domain/repository"
	"LineGuard/internal/service/cache"
	"LineGuard/pkg/logger"
)

// Epoch is the timestamp of row 0; row i is Epoch + i seconds.
var Epoch = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

const datasetKey = "dataset"

// Store loads the dataset through a source, augments it with synthetic
// timestamps and optionally keeps it in an in-process cache.
type Store struct {
	source repository.DatasetSource
	cache  *cache.TTLCache[*models.Dataset]
	ttl    time.Duration
	log    *logger.Logger
	mu     sync.Mutex
}

type Option func(*Store)

// WithCache keeps the loaded dataset for ttl. A zero ttl caches until
// Invalidate is called.
func WithCache(c *cache.TTLCache[*models.Dataset], ttl time.Duration) Option {
	return func(s *Store) {
		s.cache = c
		s.ttl = ttl
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

func NewStore(source repository.DatasetSource, opts ...Option) *Store {
	s := &Store{source: source, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the augmented dataset. Loads are serialized so concurrent
// callers on a cold cache share one read.
func (s *Store) Load(ctx context.Context) (*models.Dataset, error) {
	if s.cache != nil {
		if ds, ok := s.cache.Get(datasetKey); ok {
			return ds, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache != nil {
		if ds, ok := s.cache.Get(datasetKey); ok {
			return ds, nil
		}
	}

	start := time.Now()
	ds, err := s.source.Load(ctx)
	if err != nil {
		if errs.KindOf(err) == errs.KindInternal {
			return nil, errs.Internal(err, "load dataset from "+s.source.Name())
		}
		return nil, err
	}
	if err := Augment(ds); err != nil {
		return nil, err
	}
	s.log.Info("dataset loaded",
		logger.String("source", s.source.Name()),
		logger.Int("rows", ds.Len()),
		logger.Int("columns", len(ds.Columns)),
		logger.Duration("took_ms", time.Since(start)),
	)

	if s.cache != nil {
		s.cache.Set(datasetKey, ds, s.ttl)
	}
	return ds, nil
}

// Invalidate drops the cached dataset so the next Load rereads the source.
func (s *Store) Invalidate() {
	if s.cache != nil {
		s.cache.Delete(datasetKey)
	}
}

// Augment checks required columns and assigns row timestamps in place. A
// source column already named like the timestamp column is replaced.
func Augment(ds *models.Dataset) error {
	if ds == nil {
		return errs.Schema("dataset is nil")
	}
	kept := ds.Columns[:0]
	for _, c := range ds.Columns {
		if c.Name != models.TimestampColumn {
			kept = append(kept, c)
		}
	}
	ds.Columns = kept

	if _, ok := ds.Column(models.LabelColumn); !ok {
		return errs.Schema("dataset is missing required column %q", models.LabelColumn)
	}
	for _, c := range ds.Columns {
		n := len(c.Numbers)
		if !c.Numeric() {
			n = len(c.Text)
		}
		if n != ds.N {
			return errs.Schema("column %q has %d values, dataset has %d rows", c.Name, n, ds.N)
		}
	}

	ds.Timestamps = make([]time.Time, ds.N)
	for i := range ds.Timestamps {
		ds.Timestamps[i] = Epoch.Add(time.Duration(i) * time.Second)
	}
	return nil
}

// Slice returns the contiguous rows with start <= ts <= end. The result
// shares storage with ds and may be empty.
func Slice(ds *models.Dataset, w models.Window) *models.Dataset {
	ts := ds.Timestamps
	lo := sort.Search(len(ts), func(i int) bool { return !ts[i].Before(w.Start) })
	hi := sort.Search(len(ts), func(i int) bool { return ts[i].After(w.End) })
	return ds.Range(lo, hi)
}

// BoundsOf reports the observed timestamp range of ds.
func BoundsOf(ds *models.Dataset) models.Bounds {
	n := len(ds.Timestamps)
	if n == 0 {
		return models.Bounds{Empty: true}
	}
	return models.Bounds{Min: ds.Timestamps[0], Max: ds.Timestamps[n-1], Rows: n}
}
