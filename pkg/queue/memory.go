package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"TradeBot/pkg/logger"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process queue for single-node deployments and tests.
type MemoryQueue struct {
	logger *logger.Logger
	config *QueueConfig

	jobsMu  sync.RWMutex
	jobs    map[string]Job
	dead    []Message
	delayed atomic.Int64

	mu      sync.RWMutex
	running bool
	ch      chan Message
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewMemoryQueue(lgr *logger.Logger, config *QueueConfig, jobs ...Job) *MemoryQueue {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	q := &MemoryQueue{
		logger: lgr,
		config: config.withDefaults(),
		jobs:   make(map[string]Job),
	}
	for _, j := range jobs {
		q.RegisterJob(j)
	}
	return q
}

func (q *MemoryQueue) RegisterJob(job Job) {
	q.jobsMu.Lock()
	defer q.jobsMu.Unlock()
	if _, ok := q.jobs[job.Type()]; ok {
		q.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	q.jobs[job.Type()] = job
}

func (q *MemoryQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return ErrAlreadyRunning
	}
	q.running = true
	q.ch = make(chan Message, q.config.QueueSize)
	q.ctx, q.cancel = context.WithCancel(context.Background())
	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return nil
}

// Stop stops accepting messages and waits for in-flight jobs.
func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return fmt.Errorf("timeout: %w", ctx.Err())
	}
}

func (q *MemoryQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		return ErrNotRunning
	}
	if q.job(msgType) == nil {
		return fmt.Errorf("%w for type: %s", ErrNoJob, msgType)
	}
	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: payload, Timestamp: time.Now()}
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeadLetters returns messages that exhausted their retries.
func (q *MemoryQueue) DeadLetters() []Message {
	q.jobsMu.RLock()
	defer q.jobsMu.RUnlock()
	out := make([]Message, len(q.dead))
	copy(out, q.dead)
	return out
}

func (q *MemoryQueue) Stats(context.Context) (Stats, error) {
	q.mu.RLock()
	pending := 0
	if q.ch != nil {
		pending = len(q.ch)
	}
	q.mu.RUnlock()
	q.jobsMu.RLock()
	dead := len(q.dead)
	q.jobsMu.RUnlock()
	return Stats{Pending: int64(pending), Delayed: q.delayed.Load(), Dead: int64(dead)}, nil
}

func (q *MemoryQueue) job(msgType string) Job {
	q.jobsMu.RLock()
	defer q.jobsMu.RUnlock()
	return q.jobs[msgType]
}

func (q *MemoryQueue) worker() {
	defer q.wg.Done()
	for msg := range q.ch {
		q.process(msg)
	}
}

func (q *MemoryQueue) process(msg Message) {
	job := q.job(msg.Type)

	for {
		err := job.Handle(q.ctx, msg.Payload)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		q.logger.Error("message processing error",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", msg.Attempts+1),
			logger.Error(err))
		if msg.Attempts >= q.config.RetryLimit {
			q.jobsMu.Lock()
			q.dead = append(q.dead, msg)
			q.jobsMu.Unlock()
			return
		}
		msg.Attempts++
		q.delayed.Add(1)
		select {
		case <-time.After(q.config.RetryDelay):
			q.delayed.Add(-1)
		case <-q.ctx.Done():
			q.delayed.Add(-1)
			return
		}
	}
}

var (
	_ QueueService  = (*MemoryQueue)(nil)
	_ StatsReporter = (*MemoryQueue)(nil)
)
