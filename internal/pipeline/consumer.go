package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultThrottle is the pause after each processed message.
const DefaultThrottle = 10 * time.Millisecond

// Logger is the logging surface the consumer needs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Handler processes one message. Errors are logged and never stop the loop.
type Handler[T any] func(ctx context.Context, item T) error

// Stats holds pipeline counters.
type Stats struct {
	Pushed    uint64 `json:"pushed"`
	Dropped   uint64 `json:"dropped"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Buffered  int    `json:"buffered"`
}

// ConsumerOptions configures a Consumer.
type ConsumerOptions[T any] struct {
	Queue   *Queue[T]
	Handler Handler[T]

	// Throttle is the pause after each message. Zero uses DefaultThrottle,
	// a negative value disables it.
	Throttle time.Duration

	// OnExit runs once when Run returns, whatever the reason.
	OnExit func(err error)

	Logger Logger
}

// Consumer is the single goroutine draining a Queue.
type Consumer[T any] struct {
	queue    *Queue[T]
	handler  Handler[T]
	throttle time.Duration
	onExit   func(err error)
	logger   Logger

	processed atomic.Uint64
	failed    atomic.Uint64
}

// NewConsumer creates a consumer. Queue and Handler are required.
func NewConsumer[T any](opts ConsumerOptions[T]) *Consumer[T] {
	throttle := opts.Throttle
	if throttle == 0 {
		throttle = DefaultThrottle
	}
	return &Consumer[T]{
		queue:    opts.Queue,
		handler:  opts.Handler,
		throttle: throttle,
		onExit:   opts.OnExit,
		logger:   opts.Logger,
	}
}

// Run processes messages until ctx is cancelled or the queue is closed.
// It returns nil on orderly shutdown.
func (c *Consumer[T]) Run(ctx context.Context) (err error) {
	defer func() {
		if c.onExit != nil {
			c.onExit(err)
		}
	}()

	c.logInfo("message consumer started")
	defer c.logInfo("message consumer stopped")

	for {
		item, popErr := c.queue.Pop(ctx)
		if popErr != nil {
			if errors.Is(popErr, ErrClosed) || errors.Is(popErr, context.Canceled) {
				return nil
			}
			return popErr
		}

		if procErr := c.process(ctx, item); procErr != nil {
			c.failed.Add(1)
			if !errors.Is(procErr, context.Canceled) {
				c.logError("processing message failed", procErr)
			}
		} else {
			c.processed.Add(1)
		}

		if c.throttle > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.throttle):
			}
		}
	}
}

// process runs the handler with panic recovery.
func (c *Consumer[T]) process(ctx context.Context, item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.handler(ctx, item)
}

// Stats returns current pipeline counters.
func (c *Consumer[T]) Stats() Stats {
	return Stats{
		Pushed:    c.queue.pushed.Load(),
		Dropped:   c.queue.dropped.Load(),
		Processed: c.processed.Load(),
		Failed:    c.failed.Load(),
		Buffered:  c.queue.Len(),
	}
}

func (c *Consumer[T]) logInfo(msg string) {
	if c.logger != nil {
		c.logger.Info(msg)
	}
}

func (c *Consumer[T]) logError(msg string, err error) {
	if c.logger != nil {
		c.logger.Error(msg, "error", err)
	}
}
