package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	applogger "LineGuard/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	Logger      *applogger.Logger
	Registerer  prometheus.Registerer
}

// WithConsumerBrokers sets Kafka brokers.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Brokers = brokers
	}
}

// WithConsumerGroupID sets consumer group ID.
func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.GroupID = groupID
	}
}

// WithConsumerWorkers sets number of worker goroutines.
func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if count > 0 {
			c.WorkerCount = count
		}
	}
}

// WithConsumerRetry configures retry attempts and backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ sets a Kafka topic name for DLQ.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.DLQTopic = topic
	}
}

// WithConsumerBufferSize sets the internal channel buffer size.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

func WithConsumerLogger(l *applogger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Logger = l
	}
}

// WithConsumerRegisterer registers consumer metrics on reg instead of the
// default registry.
func WithConsumerRegisterer(reg prometheus.Registerer) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Registerer = reg
	}
}

// Consumer wraps Kafka readers with a worker pool. Messages of one
// partition are handled one at a time.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *applogger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	msgChan  chan *message
	dlq      *kafka.Writer
	hook     ConsumerHook
	metrics  *consumerMetrics

	partMu    sync.Mutex
	partLocks map[string]map[int]*sync.Mutex
}

type message struct {
	topic string
	data  []byte
	km    kafka.Message
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "lineguard",
		WorkerCount: 1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	l := cfg.Logger
	if l == nil {
		l = applogger.Nop()
	}

	c := &Consumer{
		cfg:       cfg,
		log:       l.Named("kafka-consumer"),
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		stopChan:  make(chan struct{}),
		msgChan:   make(chan *message, cfg.BufferSize),
		partLocks: make(map[string]map[int]*sync.Mutex),
		hook:      NoopHook{},
		metrics:   newConsumerMetrics(cfg.Registerer),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

// RegisterHandler registers a message handler for its topic. A second handler
// for the same topic is ignored.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start creates one reader per registered topic and starts the workers.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		c.log.Info("registered topic", applogger.String("topic", topic))
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.messageWorker()
	}
	for topic, reader := range c.readers {
		c.wg.Add(1)
		go c.consumeMessages(topic, reader)
	}
	c.log.Info("started", applogger.Int("workers", c.cfg.WorkerCount))
	return nil
}

// Stop stops the consumer, waiting for in-flight messages until ctx expires.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopChan)
		stopErr = c.waitForWg(ctx)
		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Error("close reader", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Error("close dlq writer", applogger.Error(err))
			}
		}
		if stopErr == nil {
			c.log.Info("stopped")
		}
	})
	return stopErr
}

func (c *Consumer) waitForWg(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) consumeMessages(topic string, reader *kafka.Reader) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		msg, err := reader.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				c.log.Error("fetch message", applogger.String("topic", topic), applogger.Error(err))
			}
			continue
		}
		if !c.enqueue(&message{topic: topic, data: msg.Value, km: msg}) {
			return
		}
	}
}

// enqueue blocks until a worker has room, backing off when the queue is
// nearly full. It reports false when the consumer is stopping.
func (c *Consumer) enqueue(m *message) bool {
	for {
		select {
		case c.msgChan <- m:
			c.metrics.queue(m.topic, len(c.msgChan), cap(c.msgChan))
			return true
		case <-c.stopChan:
			return false
		default:
			full := c.metrics.queue(m.topic, len(c.msgChan), cap(c.msgChan))
			if full > 0.8 {
				time.Sleep(10 * time.Millisecond)
			} else {
				runtime.Gosched()
			}
		}
	}
}

func (c *Consumer) messageWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		case msg := <-c.msgChan:
			if handler, ok := c.handlers[msg.topic]; ok {
				c.process(handler, msg)
			}
		}
	}
}

func (c *Consumer) process(handler MessageHandler, msg *message) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic in message handler", applogger.String("topic", msg.topic), applogger.Any("panic", r))
		}
	}()

	pl := c.partitionLock(msg.topic, msg.km.Partition)
	pl.Lock()
	defer pl.Unlock()

	var err error
	attempts := 0
	for {
		attempts++
		hctx, hmsg, hdata, berr := c.hook.BeforeHandle(context.Background(), msg.topic, msg.km, msg.data)
		if berr != nil {
			err = berr
			break
		}
		err = handler.Handle(hctx, hdata)
		c.hook.AfterHandle(hctx, msg.topic, hmsg, hdata, err)
		if err == nil || attempts > c.cfg.RetryMax {
			break
		}
		c.hook.OnError(hctx, msg.topic, hmsg, hdata, err)
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-c.stopChan:
			return
		}
	}

	if err != nil {
		c.hook.OnError(context.Background(), msg.topic, msg.km, msg.data, err)
		c.log.Error("message failed",
			applogger.String("topic", msg.topic),
			applogger.Int("attempts", attempts),
			applogger.Error(err))
		c.toDLQ(msg)
	}

	// Poison messages are committed once they reached the DLQ.
	if err == nil || c.dlq != nil {
		if reader := c.readers[msg.topic]; reader != nil {
			_ = c.commitWithRetry(reader, msg.km, 3)
		}
	}
	c.metrics.handled(msg.topic, time.Since(start), err)
}

func (c *Consumer) toDLQ(msg *message) {
	if c.dlq == nil {
		return
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.km.Key,
		Value:   msg.data,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(msg.topic)}},
	})
	if err != nil {
		c.log.Error("write dlq", applogger.String("dlq", c.cfg.DLQTopic), applogger.Error(err))
	}
}

// commitWithRetry commits a single message offset with bounded retries.
func (c *Consumer) commitWithRetry(reader *kafka.Reader, km kafka.Message, max int) error {
	if max <= 0 {
		max = 1
	}
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("commit offset", applogger.Int("attempts", max), applogger.Error(err))
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.partMu.Lock()
	defer c.partMu.Unlock()
	m, ok := c.partLocks[topic]
	if !ok {
		m = make(map[int]*sync.Mutex)
		c.partLocks[topic] = m
	}
	l, ok := m[partition]
	if !ok {
		l = &sync.Mutex{}
		m[partition] = l
	}
	return l
}

// backoffWithJitter doubles min per attempt, caps at max and subtracts up to
// 50% jitter.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt < 32 {
		if e := min * time.Duration(1<<uint(attempt-1)); e > 0 && e < max {
			exp = e
		}
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}

type consumerMetrics struct {
	depth    *prometheus.GaugeVec
	fullness *prometheus.GaugeVec
	latency  *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

var (
	defaultConsumerMetrics     *consumerMetrics
	defaultConsumerMetricsOnce sync.Once
)

// newConsumerMetrics registers on reg, or once on the default registry when
// reg is nil.
func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	if reg == nil {
		defaultConsumerMetricsOnce.Do(func() {
			defaultConsumerMetrics = buildConsumerMetrics(prometheus.DefaultRegisterer)
		})
		return defaultConsumerMetrics
	}
	return buildConsumerMetrics(reg)
}

func buildConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	f := promauto.With(reg)
	return &consumerMetrics{
		depth: f.NewGaugeVec(
			prometheus.GaugeOpts{Name: "lineguard_kafka_consumer_queue_depth", Help: "Messages waiting in the consumer queue"},
			[]string{"topic"},
		),
		fullness: f.NewGaugeVec(
			prometheus.GaugeOpts{Name: "lineguard_kafka_consumer_queue_fullness", Help: "Queue utilization ratio (len/cap)"},
			[]string{"topic"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "lineguard_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		),
		failures: f.NewCounterVec(
			prometheus.CounterOpts{Name: "lineguard_kafka_consumer_failures_total", Help: "Messages that failed after all retries"},
			[]string{"topic"},
		),
	}
}

func (m *consumerMetrics) queue(topic string, n, capacity int) float64 {
	full := 0.0
	if capacity > 0 {
		full = float64(n) / float64(capacity)
	}
	m.depth.WithLabelValues(topic).Set(float64(n))
	m.fullness.WithLabelValues(topic).Set(full)
	return full
}

func (m *consumerMetrics) handled(topic string, d time.Duration, err error) {
	m.latency.WithLabelValues(topic).Observe(d.Seconds())
	if err != nil {
		m.failures.WithLabelValues(topic).Inc()
	}
}
