package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Producer wraps Kafka writer.
type Producer struct {
	writer  *kafka.Writer
	comp    string
	metrics *producerMetrics
}

// NewProducer creates a new Kafka producer.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "gzip",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1048576,
		BatchTimeout: 1 * time.Second,
		Async:        false,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	bal := kafka.Balancer(&kafka.LeastBytes{})
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}

	return &Producer{writer: writer, comp: cfg.Compression, metrics: newProducerMetrics(cfg.Registerer)}, nil
}

// Publish sends a message to the specified topic.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	start := time.Now()
	v, err := encodeValue(value)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: v,
		Time:  time.Now(),
	}

	err = p.writer.WriteMessages(ctx, msg)
	p.metrics.observe(topic, p.comp, int64(len(v)), 1, time.Since(start), err)
	return err
}

// Close closes the producer.
func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// encodeValue passes bytes and strings through and JSON-encodes the rest.
func encodeValue(value interface{}) ([]byte, error) {
	switch val := value.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	default:
		v, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return v, nil
	}
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none", "":
		return 0
	default:
		return kafka.Gzip
	}
}

type producerMetrics struct {
	msgs    *prometheus.CounterVec
	errs    *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

var (
	defaultProducerMetrics     *producerMetrics
	defaultProducerMetricsOnce sync.Once
)

func newProducerMetrics(reg prometheus.Registerer) *producerMetrics {
	if reg == nil {
		defaultProducerMetricsOnce.Do(func() {
			defaultProducerMetrics = buildProducerMetrics(prometheus.DefaultRegisterer)
		})
		return defaultProducerMetrics
	}
	return buildProducerMetrics(reg)
}

func buildProducerMetrics(reg prometheus.Registerer) *producerMetrics {
	f := promauto.With(reg)
	return &producerMetrics{
		msgs: f.NewCounterVec(
			prometheus.CounterOpts{Name: "lineguard_kafka_producer_messages_total", Help: "Total messages published to Kafka"},
			[]string{"topic", "compression", "result"},
		),
		errs: f.NewCounterVec(
			prometheus.CounterOpts{Name: "lineguard_kafka_producer_errors_total", Help: "Total producer errors"},
			[]string{"topic"},
		),
		bytes: f.NewCounterVec(
			prometheus.CounterOpts{Name: "lineguard_kafka_producer_bytes_total", Help: "Total payload bytes published"},
			[]string{"topic", "compression"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "lineguard_kafka_producer_publish_seconds", Help: "Publish latency", Buckets: prometheus.DefBuckets},
			[]string{"topic"},
		),
	}
}

func (m *producerMetrics) observe(topic, comp string, bytes int64, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		m.errs.WithLabelValues(topic).Inc()
	}
	m.msgs.WithLabelValues(topic, comp, result).Add(float64(count))
	m.bytes.WithLabelValues(topic, comp).Add(float64(bytes))
	m.latency.WithLabelValues(topic).Observe(dur.Seconds())
}
