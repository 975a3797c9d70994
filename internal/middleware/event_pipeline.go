package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"LineGuard/internal/domain/models"
	domrepo "LineGuard/internal/domain/repository"
)

// EventPipeline sits between the simulator and the event publisher. It
// validates, throttles and forwards simulation events, and buffers them
// when the downstream is unavailable.
type EventPipeline struct {
	sink    domrepo.EventPublisher
	metrics domrepo.Metrics
	maxRPS  int
	bufSize int
	bufCh   chan models.SimEvent
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	last    time.Time
	now     func() time.Time
}

type PipelineOption func(*EventPipeline)

// WithMaxRPS caps forwarded events per second; 0 disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *EventPipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *EventPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func NewEventPipeline(sink domrepo.EventPublisher, metrics domrepo.Metrics, opts ...PipelineOption) *EventPipeline {
	p := &EventPipeline{
		sink:    sink,
		metrics: metrics,
		maxRPS:  50,
		bufSize: 1000,
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.SimEvent, p.bufSize)
	return p
}

// Start launches background flushing of buffered events.
func (p *EventPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case e := <-p.bufCh:
				if err := p.sink.PublishSimulation(ctx, e); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					}
					select {
					case p.bufCh <- e:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *EventPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// PublishSimulation validates and forwards e, buffering it on downstream
// errors. Throttled events are dropped; the closing event never is.
func (p *EventPipeline) PublishSimulation(ctx context.Context, e models.SimEvent) error {
	start := p.now()
	if err := validateEvent(e); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !e.Done && !p.allow(start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.sink.PublishSimulation(ctx, e); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- e:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", p.now().Sub(start).Seconds())
	return nil
}

// Buffered reports how many events wait for redelivery.
func (p *EventPipeline) Buffered() int { return len(p.bufCh) }

func validateEvent(e models.SimEvent) error {
	if e.Done {
		return nil
	}
	if e.Prediction != 0 && e.Prediction != 1 {
		return fmt.Errorf("prediction %d is not binary", e.Prediction)
	}
	if math.IsNaN(e.Confidence) || e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", e.Confidence)
	}
	return nil
}

func (p *EventPipeline) allow(now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.last.IsZero() && now.Sub(p.last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.last = now
	return true
}
