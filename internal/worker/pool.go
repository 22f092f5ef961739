package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"traceability/internal/dto"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueRecall = "jobs:recall"

	JobRecallReport = "recall_report"

	// MaxAttempts bounds deliveries of one job before it is moved to the DLQ.
	MaxAttempts = 3
)

// Job is the envelope of every queued task. Attempts counts failed runs.
type Job struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// Handler runs one job payload. A returned error schedules a retry.
type Handler interface {
	Process(ctx context.Context, payload json.RawMessage) error
}

// pusher is the slice of the Redis client the queue writes with.
type pusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// queue is the slice of the Redis client the pool consumes with.
type queue interface {
	pusher
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Dispatcher enqueues jobs into Redis lists consumed by the pool via BRPOP.
type Dispatcher struct{ rdb pusher }

func NewDispatcher(rdb *redis.Client) *Dispatcher { return &Dispatcher{rdb: rdb} }

// EnqueueRecallReport queues a finished recall report for PDF rendering and mail.
func (d *Dispatcher) EnqueueRecallReport(ctx context.Context, report *dto.RecallReportResponse) error {
	return enqueue(ctx, d.rdb, QueueRecall, JobRecallReport, report)
}

func enqueue(ctx context.Context, rdb pusher, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", jobType, err)
	}
	return push(ctx, rdb, queue, Job{Type: jobType, Payload: data})
}

func push(ctx context.Context, rdb pusher, queue string, job Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return rdb.LPush(ctx, queue, encoded).Err()
}

// Pool is a set of goroutines blocked on BRPOP over the known queues.
type Pool struct {
	rdb      queue
	handlers map[string]Handler
	backoff  func(attempt int) time.Duration
	// idle is the wait after the n-th consecutive failed BRPOP.
	idle func(failures int) time.Duration
	wg   sync.WaitGroup
}

// StartWorkerPool launches numWorkers consumers. handlers is keyed by job
// type; jobs of unknown type are sent to the DLQ. Cancel ctx then call Wait
// to drain.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, handlers map[string]Handler, numWorkers int) *Pool {
	p := &Pool{
		rdb:      rdb,
		handlers: handlers,
		backoff:  func(attempt int) time.Duration { return time.Duration(1<<attempt) * time.Second },
		idle:     pollBackoff,
	}
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	log.Info().Int("workers", numWorkers).Msg("worker pool started")
	return p
}

func (p *Pool) Wait() { p.wg.Wait() }

// pollBackoff doubles from 500ms per consecutive failure, capped at 30s.
func pollBackoff(failures int) time.Duration {
	if failures > 7 {
		failures = 7
	}
	return min(time.Duration(1<<failures)*250*time.Millisecond, 30*time.Second)
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	failures := 0
	for {
		if ctx.Err() != nil {
			log.Info().Int("worker", id).Msg("worker shutting down")
			return
		}
		if !p.poll(ctx, id, &failures) {
			wait := p.idle(failures)
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
		}
	}
}

// poll waits up to 5s for one job and runs it. It returns false when Redis
// failed, after counting the failure; an empty poll (redis.Nil) is not one.
func (p *Pool) poll(ctx context.Context, id int, failures *int) bool {
	result, err := p.rdb.BRPop(ctx, 5*time.Second, QueueRecall).Result()
	switch {
	case err == nil:
		*failures = 0
	case errors.Is(err, redis.Nil), ctx.Err() != nil:
		*failures = 0
		return true
	default:
		*failures++
		log.Error().Err(err).Int("worker", id).Int("failures", *failures).
			Dur("retry_in", p.idle(*failures)).Msg("worker: queue unavailable")
		return false
	}
	if len(result) < 2 {
		return true
	}
	p.process(ctx, p.rdb, result[0], result[1])
	return true
}

// process runs one raw job. Failures are re-queued with an incremented
// attempt count after a backoff; the last failure goes to the DLQ.
func (p *Pool) process(ctx context.Context, rdb pusher, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("worker: undecodable job")
		SendToDLQ(ctx, rdb, queue, "", json.RawMessage(raw), "undecodable: "+err.Error(), 0)
		return
	}
	h, ok := p.handlers[job.Type]
	if !ok {
		SendToDLQ(ctx, rdb, queue, job.Type, job.Payload, "no handler for job type", job.Attempts)
		return
	}

	err := h.Process(ctx, job.Payload)
	if err == nil {
		return
	}
	job.Attempts++
	if job.Attempts >= MaxAttempts {
		SendToDLQ(ctx, rdb, queue, job.Type, job.Payload, err.Error(), job.Attempts)
		return
	}
	log.Warn().Err(err).Str("type", job.Type).Int("attempt", job.Attempts).Msg("worker: job failed, requeueing")
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff(job.Attempts)):
	}
	// requeue even on shutdown so the job is picked up after restart
	if err := push(context.WithoutCancel(ctx), rdb, queue, job); err != nil {
		log.Error().Err(err).Str("type", job.Type).Msg("worker: requeue failed")
	}
}
