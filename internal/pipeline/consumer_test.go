package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockLogger records error messages.
type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (m *mockLogger) Debug(string, ...any) {}
func (m *mockLogger) Info(string, ...any)  {}
func (m *mockLogger) Error(msg string, _ ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) errorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func TestConsumer_ProcessesInOrder(t *testing.T) {
	q := NewQueue[int](5)
	var (
		mu   sync.Mutex
		seen []int
	)
	done := make(chan struct{})

	c := NewConsumer(ConsumerOptions[int]{
		Queue:    q,
		Throttle: -1,
		Handler: func(_ context.Context, item int) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, item)
			if len(seen) == 3 {
				close(done)
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Push(1)
	q.Push(2)
	q.Push(3)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not process messages")
	}
	cancel()

	if err := <-errCh; err != nil {
		t.Errorf("Run() error = %v, want nil on cancel", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, want := range []int{1, 2, 3} {
		if seen[i] != want {
			t.Errorf("seen[%d] = %d, want %d", i, seen[i], want)
		}
	}

	if s := c.Stats(); s.Processed != 3 || s.Pushed != 3 {
		t.Errorf("Stats() = %+v, want 3 pushed and processed", s)
	}
}

func TestConsumer_SurvivesErrorsAndPanics(t *testing.T) {
	q := NewQueue[string](5)
	logger := &mockLogger{}
	done := make(chan struct{})

	c := NewConsumer(ConsumerOptions[string]{
		Queue:    q,
		Throttle: -1,
		Logger:   logger,
		Handler: func(_ context.Context, item string) error {
			switch item {
			case "panic":
				panic("boom")
			case "error":
				return errors.New("bad payload")
			case "cancelled":
				return context.Canceled
			case "last":
				close(done)
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	for _, item := range []string{"panic", "error", "cancelled", "last"} {
		q.Push(item)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer stopped after a failing message")
	}

	if s := c.Stats(); s.Failed != 3 {
		t.Errorf("Stats().Failed = %d, want 3", s.Failed)
	}
	// Cancellation is not reported as an error.
	if got := logger.errorCount(); got != 2 {
		t.Errorf("logged errors = %d, want 2", got)
	}
}

func TestConsumer_OnExitCalledOnClose(t *testing.T) {
	q := NewQueue[int](1)
	exited := make(chan error, 1)

	c := NewConsumer(ConsumerOptions[int]{
		Queue:   q,
		Handler: func(context.Context, int) error { return nil },
		OnExit:  func(err error) { exited <- err },
	})

	go func() { _ = c.Run(context.Background()) }()
	q.Close()

	select {
	case err := <-exited:
		if err != nil {
			t.Errorf("OnExit(err) = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("OnExit not called after Close")
	}
}
