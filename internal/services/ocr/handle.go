package ocr

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Factory constructs the engine behind a Handle.
type Factory func() (Engine, error)

// Handle owns a single engine instance. The engine is built on first use and
// reused for the lifetime of the Handle; a construction failure is kept and
// reported on every later call.
type Handle struct {
	factory Factory
	timeout time.Duration

	once   sync.Once
	engine Engine
	err    error
	closed bool
	mu     sync.Mutex
}

// NewHandle wraps factory. A positive timeout bounds every Recognize call.
func NewHandle(factory Factory, timeout time.Duration) *Handle {
	return &Handle{factory: factory, timeout: timeout}
}

// Engine returns the engine, building it on the first call.
func (h *Handle) Engine() (Engine, error) {
	h.once.Do(func() {
		engine, err := h.factory()
		switch {
		case err != nil:
			h.err = fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		case engine == nil:
			h.err = ErrEngineUnavailable
		default:
			h.engine = engine
		}
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrEngineClosed
	}
	return h.engine, h.err
}

// Recognize runs one recognition call under the handle's timeout. Engine
// panics come back as errors.
func (h *Handle) Recognize(ctx context.Context, image []byte, cfg Config) ([]Hit, error) {
	engine, err := h.Engine()
	if err != nil {
		return nil, err
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	type result struct {
		hits []Hit
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%s engine panicked: %v", engine.Name(), r)}
			}
		}()
		hits, err := engine.Recognize(ctx, image, cfg)
		done <- result{hits: hits, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("recognition aborted: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.hits, nil
	}
}

// Close releases the engine if it was built. Later calls fail with
// ErrEngineClosed.
func (h *Handle) Close() error {
	h.once.Do(func() {})

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.engine != nil {
		return h.engine.Close()
	}
	return nil
}
