package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook defines lifecycle hooks around message handling.
// Returning a non-nil error from BeforeHandle skips the handler and sends the
// message through error processing (OnError, DLQ, offset commit).
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
}

// NoopHook does nothing.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, km, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

// HookError is an error produced by a hook, tagged with a classification code.
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *HookError) Unwrap() error { return e.Err }

// HookFuncs adapts plain functions to ConsumerHook. Nil functions are no-ops.
type HookFuncs struct {
	Before func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error)
	After  func(context.Context, string, kafka.Message, []byte, error)
	Err    func(context.Context, string, kafka.Message, []byte, error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	if h.Before == nil {
		return ctx, km, data, nil
	}
	return h.Before(ctx, topic, km, data)
}

func (h HookFuncs) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if h.After != nil {
		h.After(ctx, topic, km, data, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if h.Err != nil {
		h.Err(ctx, topic, km, data, err)
	}
}

// HookChain runs hooks in order for BeforeHandle and in reverse order for
// AfterHandle. A hook panic is converted into a HookError.
type HookChain struct {
	hooks []ConsumerHook
}

// NewHookChain creates a hook chain. Nil hooks are ignored.
func NewHookChain(hooks ...ConsumerHook) *HookChain {
	filtered := make([]ConsumerHook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return &HookChain{hooks: filtered}
}

func (c *HookChain) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	for _, h := range c.hooks {
		nextCtx, nextMsg, nextData, err := safeBefore(h, ctx, topic, km, data)
		if err != nil {
			c.OnError(ctx, topic, km, data, err)
			return ctx, km, data, err
		}
		ctx, km, data = nextCtx, nextMsg, nextData
	}
	return ctx, km, data, nil
}

func (c *HookChain) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		safeAfter(c.hooks[i], ctx, topic, km, data, err)
	}
}

func (c *HookChain) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	for _, h := range c.hooks {
		safeOnError(h, ctx, topic, km, data, err)
	}
}

type ctxKey string

const (
	ctxStartTime ctxKey = "kafka_hook_start_time"
	ctxTraceID   ctxKey = "kafka_hook_trace_id"
)

// TraceHook stores the handling start time and the trace_id header in the
// handler context.
func TraceHook() ConsumerHook {
	return HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			ctx = context.WithValue(ctx, ctxStartTime, time.Now())
			if id := ExtractTraceID(km); id != "" {
				ctx = context.WithValue(ctx, ctxTraceID, id)
			}
			return ctx, km, data, nil
		},
	}
}

// TraceIDFrom returns the trace id set by TraceHook, or "".
func TraceIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxTraceID).(string)
	return id
}

// StartTimeFrom returns the start time set by TraceHook.
func StartTimeFrom(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(ctxStartTime).(time.Time)
	return t, ok
}

// ExtractTraceID reads the trace_id header.
func ExtractTraceID(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == "trace_id" && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return ""
}

func safeBefore(h ConsumerHook, ctx context.Context, topic string, km kafka.Message, data []byte) (c context.Context, m kafka.Message, d []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, m, d = ctx, km, data
			err = &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("hook panic: %v", r)}
		}
	}()
	return h.BeforeHandle(ctx, topic, km, data)
}

func safeAfter(h ConsumerHook, ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	defer func() { _ = recover() }()
	h.AfterHandle(ctx, topic, km, data, err)
}

func safeOnError(h ConsumerHook, ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	defer func() { _ = recover() }()
	h.OnError(ctx, topic, km, data, err)
}
