package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"TradeBot/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "tradebot:queue"

	// BRPOP has one second resolution.
	popTimeout   = time.Second
	promoteBatch = 100
)

var ErrConsumerOnly = errors.New("queue is consumer-only")

// promoteDue moves due members of the delayed set onto the pending list in one step,
// so two consumers never promote the same retry.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, m in ipairs(due) do
	redis.call('ZREM', KEYS[1], m)
	redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

type redisKeys struct {
	pending string
	delayed string
	dead    string
}

func newRedisKeys(prefix string) redisKeys {
	return redisKeys{
		pending: prefix + ":pending",
		delayed: prefix + ":delayed",
		dead:    prefix + ":dead",
	}
}

// envelope is the wire form of a message. The payload stays raw JSON until a job parses it.
type envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// RedisQueue shares work between processes through a pending list, a delayed
// set scored by due time in milliseconds, and a dead-letter list.
type RedisQueue struct {
	log    *logger.Logger
	cfg    *QueueConfig
	client *redis.Client
	mode   Mode
	keys   redisKeys
	now    func() time.Time

	jobsMu sync.RWMutex
	jobs   map[string]Job

	mu         sync.Mutex
	running    bool
	stopLoops  context.CancelFunc
	cancelJobs context.CancelFunc
	wg         sync.WaitGroup
}

type RedisQueueOption func(*RedisQueue)

func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keys = newRedisKeys(prefix)
		}
	}
}

func WithMode(m Mode) RedisQueueOption {
	return func(r *RedisQueue) { r.mode = m }
}

func WithRedisClock(now func() time.Time) RedisQueueOption {
	return func(r *RedisQueue) { r.now = now }
}

func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	r := &RedisQueue{
		log:    lgr,
		cfg:    config.withDefaults(),
		client: client,
		keys:   newRedisKeys(DefaultKeyPrefix),
		now:    time.Now,
		jobs:   make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterJob is ignored on producer-only queues.
func (r *RedisQueue) RegisterJob(job Job) {
	if !r.mode.Consumes() {
		r.log.Warn("job registration ignored on producer-only queue", logger.String("job", job.Name()))
		return
	}
	r.jobsMu.Lock()
	defer r.jobsMu.Unlock()
	if _, ok := r.jobs[job.Type()]; ok {
		r.log.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
}

func (r *RedisQueue) job(msgType string) Job {
	r.jobsMu.RLock()
	defer r.jobsMu.RUnlock()
	return r.jobs[msgType]
}

func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.running = true
	if r.mode.Consumes() {
		loopCtx, stopLoops := context.WithCancel(context.Background())
		jobCtx, cancelJobs := context.WithCancel(context.Background())
		r.stopLoops, r.cancelJobs = stopLoops, cancelJobs
		for i := 0; i < r.cfg.Workers; i++ {
			r.wg.Add(1)
			go r.work(loopCtx, jobCtx)
		}
		r.wg.Add(1)
		go r.promote(loopCtx)
	}
	r.log.Info("redis queue started",
		logger.String("mode", r.mode.String()),
		logger.String("pending_key", r.keys.pending),
		logger.Int("workers", r.cfg.Workers))
	return nil
}

// Stop ends the pop and promote loops, then waits for in-flight jobs until ctx is done.
// Jobs still running at that point are cancelled and their messages requeued.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	stopLoops, cancelJobs := r.stopLoops, r.cancelJobs
	r.mu.Unlock()

	if stopLoops == nil {
		return nil
	}
	stopLoops()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		cancelJobs()
		return nil
	case <-ctx.Done():
		cancelJobs()
		<-done
		return fmt.Errorf("timeout: %w", ctx.Err())
	}
}

func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	if !r.mode.Produces() {
		return ErrConsumerOnly
	}
	// A local consumer must know the type; a producer-only process trusts the remote side.
	if r.mode.Consumes() && r.job(msgType) == nil {
		return fmt.Errorf("%w for type: %s", ErrNoJob, msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	b, err := json.Marshal(envelope{ID: uuid.NewString(), Type: msgType, Payload: raw, EnqueuedAt: r.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.keys.pending, b).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", msgType, err)
	}
	return nil
}

func (r *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := r.client.Pipeline()
	pending := pipe.LLen(ctx, r.keys.pending)
	delayed := pipe.ZCard(ctx, r.keys.delayed)
	dead := pipe.LLen(ctx, r.keys.dead)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{Pending: pending.Val(), Delayed: delayed.Val(), Dead: dead.Val()}, nil
}

func (r *RedisQueue) work(loopCtx, jobCtx context.Context) {
	defer r.wg.Done()
	for loopCtx.Err() == nil {
		res, err := r.client.BRPop(loopCtx, popTimeout, r.keys.pending).Result()
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil):
			continue
		case loopCtx.Err() != nil:
			return
		default:
			r.log.Error("brpop failed", logger.Error(err))
			select {
			case <-time.After(popTimeout):
			case <-loopCtx.Done():
				return
			}
			continue
		}
		if len(res) < 2 {
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
			r.log.Error("drop undecodable message", logger.Error(err))
			continue
		}
		r.handle(jobCtx, env)
	}
}

func (r *RedisQueue) handle(ctx context.Context, env envelope) {
	job := r.job(env.Type)
	if job == nil {
		env.LastError = ErrNoJob.Error()
		r.bury(env)
		return
	}

	err := job.Handle(ctx, env.Payload)
	switch {
	case err == nil:
		return
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// Shutdown cut the job short; hand the message back untouched.
		r.requeue(env)
		return
	}

	env.LastError = err.Error()
	r.log.Error("message processing error",
		logger.String("id", env.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", env.Attempts+1),
		logger.Error(err))
	if env.Attempts >= r.cfg.RetryLimit {
		r.bury(env)
		return
	}
	env.Attempts++
	r.delay(env, r.now().Add(r.cfg.RetryDelay))
}

func (r *RedisQueue) requeue(env envelope) {
	b, err := json.Marshal(env)
	if err == nil {
		err = r.client.RPush(context.Background(), r.keys.pending, b).Err()
	}
	if err != nil {
		r.log.Error("requeue failed", logger.String("id", env.ID), logger.Error(err))
	}
}

func (r *RedisQueue) delay(env envelope, due time.Time) {
	b, err := json.Marshal(env)
	if err == nil {
		err = r.client.ZAdd(context.Background(), r.keys.delayed, redis.Z{Score: float64(due.UnixMilli()), Member: b}).Err()
	}
	if err != nil {
		r.log.Error("schedule retry failed", logger.String("id", env.ID), logger.Error(err))
	}
}

func (r *RedisQueue) bury(env envelope) {
	r.log.Error("message dead-lettered",
		logger.String("id", env.ID),
		logger.String("type", env.Type),
		logger.Int("attempts", env.Attempts),
		logger.String("last_error", env.LastError))
	b, err := json.Marshal(env)
	if err == nil {
		err = r.client.LPush(context.Background(), r.keys.dead, b).Err()
	}
	if err != nil {
		r.log.Error("dead-letter failed", logger.String("id", env.ID), logger.Error(err))
	}
}

func (r *RedisQueue) promote(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			keys := []string{r.keys.delayed, r.keys.pending}
			n, err := promoteDue.Run(ctx, r.client, keys, r.now().UnixMilli(), promoteBatch).Int()
			if err != nil && ctx.Err() == nil {
				r.log.Error("promote retries failed", logger.Error(err))
				continue
			}
			if n > 0 {
				r.log.Debug("retries promoted", logger.Int("count", n))
			}
		}
	}
}

var (
	_ QueueService  = (*RedisQueue)(nil)
	_ StatsReporter = (*RedisQueue)(nil)
)
