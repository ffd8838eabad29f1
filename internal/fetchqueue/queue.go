// Package fetchqueue serializes outbound calls to a rate-limited upstream API.
//
// Tasks run one at a time in submission order. After a task completes the
// worker waits at least the configured delay before starting the next one, so
// bursts of concurrent callers are spread out instead of tripping the
// provider's request ceiling.
package fetchqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultDelay is the spacing used when New is given a non-positive delay.
const DefaultDelay = 250 * time.Millisecond

// ErrClosed is returned for tasks submitted to, or still pending in, a closed queue.
var ErrClosed = errors.New("fetch queue closed")

type result struct {
	value any
	err   error
}

type job struct {
	ctx      context.Context
	run      func(context.Context) (any, error)
	done     chan result
	enqueued time.Time
}

// Option customizes a Queue.
type Option func(*Queue)

// WithWaitObserver registers a callback receiving how long each task sat in
// the queue before it started.
func WithWaitObserver(fn func(time.Duration)) Option {
	return func(q *Queue) { q.observeWait = fn }
}

// WithLogger overrides the queue logger.
func WithLogger(log *slog.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// Queue is a FIFO executor with a fixed minimum gap between tasks.
type Queue struct {
	log         *slog.Logger
	delay       time.Duration
	observeWait func(time.Duration)

	mu      sync.Mutex
	pending []*job
	closed  bool

	wake      chan struct{}
	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New starts a queue whose worker waits delay between the end of one task and
// the start of the next.
func New(delay time.Duration, opts ...Option) *Queue {
	if delay <= 0 {
		delay = DefaultDelay
	}
	q := &Queue{
		log:     slog.Default().With("component", "fetch-queue"),
		delay:   delay,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	go q.loop()
	return q
}

// Delay returns the configured spacing between tasks.
func (q *Queue) Delay() time.Duration {
	return q.delay
}

// Len returns the number of tasks waiting to start.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Enqueue submits fn and blocks until it has run or ctx is done. A caller that
// stops waiting does not remove its task: it still runs in order with the
// caller's (cancelled) context.
func (q *Queue) Enqueue(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	j := &job{
		ctx:      ctx,
		run:      fn,
		done:     make(chan result, 1),
		enqueued: time.Now(),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	q.pending = append(q.pending, j)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case res := <-j.done:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do is the typed form of Enqueue.
func Do[T any](ctx context.Context, q *Queue, task func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := q.Enqueue(ctx, func(ctx context.Context) (any, error) {
		return task(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok && v != nil {
		return zero, fmt.Errorf("fetch queue: unexpected result type %T", v)
	}
	return typed, nil
}

// Close stops the worker. Tasks that have not started fail with ErrClosed; a
// task already running is allowed to finish.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		pending := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, j := range pending {
			j.done <- result{err: ErrClosed}
		}
		close(q.stop)
		<-q.stopped
	})
}

func (q *Queue) loop() {
	defer close(q.stopped)

	var lastDone time.Time
	for {
		j := q.next()
		if j == nil {
			return
		}

		if !lastDone.IsZero() {
			if wait := q.delay - time.Since(lastDone); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-q.stop:
					timer.Stop()
					j.done <- result{err: ErrClosed}
					return
				}
			}
		}

		if q.observeWait != nil {
			q.observeWait(time.Since(j.enqueued))
		}
		res := q.execute(j)
		lastDone = time.Now()
		j.done <- res
	}
}

// next pops the oldest pending job, blocking until one arrives or the queue stops.
func (q *Queue) next() *job {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			j := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return j
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-q.wake:
		case <-q.stop:
			return nil
		}
	}
}

func (q *Queue) execute(j *job) (res result) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("task panicked", "panic", r)
			res = result{err: fmt.Errorf("fetch queue: task panicked: %v", r)}
		}
	}()
	v, err := j.run(j.ctx)
	return result{value: v, err: err}
}
