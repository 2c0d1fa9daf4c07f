package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/voxleads/lead-relay/pkg/logger"
	"github.com/voxleads/lead-relay/pkg/redis"
)

// Handler processes one delivery job.
// Return values:
//   - nil: success, the job is acked and its logical marker released
//   - fatal error (see IsFatal): no retry, job goes to the DLQ
//   - any other error: a retry is scheduled with exponential backoff
type Handler func(ctx context.Context, job *DeliveryJob) error

// fatalError is the contract a handler error can satisfy to suppress
// retries. Modeled after net.Error's Timeout convention.
type fatalError interface {
	error
	Fatal() bool
}

// IsFatal reports whether err carries a Fatal() = true anywhere in its chain.
func IsFatal(err error) bool {
	var fe fatalError
	return errors.As(err, &fe) && fe.Fatal()
}

type Config struct {
	Name          string
	ConsumerGroup string
	ConsumerName  string

	// MaxAttempts bounds total executions per job, first try included.
	MaxAttempts int

	// BackoffBase is the delay after the first failure; it doubles on each
	// subsequent failure.
	BackoffBase time.Duration

	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	BatchSize         int64
	MaxLen            int64
	EnableDLQ         bool

	// PendingTTL caps how long a logical-id marker can outlive a job that
	// never reached a terminal state.
	PendingTTL time.Duration
}

type Queue struct {
	adapter redis.Adapter
	config  Config
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Stats reports queue depth broken out by where jobs currently sit.
type Stats struct {
	Ready     int64
	Pending   int64
	Scheduled int64
	Dead      int64
	Consumers int64
}

func New(adapter redis.Adapter, config Config) (*Queue, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "delivery-workers"
	}
	if config.ConsumerName == "" {
		config.ConsumerName = fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 5
	}
	if config.BackoffBase == 0 {
		config.BackoffBase = 10 * time.Second
	}
	if config.VisibilityTimeout == 0 {
		config.VisibilityTimeout = 30 * time.Second
	}
	if config.PollInterval == 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.PendingTTL == 0 {
		config.PendingTTL = 6 * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		adapter: adapter,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := q.initConsumerGroup(); err != nil {
		// Group might already exist, which is fine
	}

	return q, nil
}

func (q *Queue) initConsumerGroup() error {
	return q.adapter.XGroupCreateMkStream(
		q.config.Name,
		q.config.ConsumerGroup,
		"0",
	)
}

func (q *Queue) scheduledKey() string { return q.config.Name + ":scheduled" }
func (q *Queue) dlqKey() string       { return q.config.Name + ":dlq" }
func (q *Queue) markerKey(job *DeliveryJob) string {
	return q.config.Name + ":pending:" + job.LogicalID()
}

// Enqueue publishes the job unless an entry with the same logical id is
// already in flight. The second return reports whether a new entry was
// created; false means the existing entry will do the work.
func (q *Queue) Enqueue(ctx context.Context, job *DeliveryJob) (bool, error) {
	if err := job.Validate(); err != nil {
		return false, err
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}

	acquired, err := q.adapter.SetNX(q.markerKey(job), []byte("1"), q.config.PendingTTL)
	if err != nil {
		return false, fmt.Errorf("failed to mark job pending: %w", err)
	}
	if !acquired {
		return false, nil
	}

	if err := q.publish(job); err != nil {
		_ = q.adapter.Del(q.markerKey(job))
		return false, err
	}
	return true, nil
}

func (q *Queue) publish(job *DeliveryJob) error {
	encoded, err := job.encode()
	if err != nil {
		return err
	}

	_, err = q.adapter.XAdd(q.config.Name, map[string]interface{}{
		"job":       encoded,
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	if q.config.MaxLen > 0 {
		_ = q.adapter.XTrimApprox(q.config.Name, q.config.MaxLen)
	}
	return nil
}

// Consume starts the read, reclaim and retry-mover loops.
func (q *Queue) Consume(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("job handler is required")
	}

	q.handler = handler
	q.wg.Add(1)

	go q.consumeLoop()

	return nil
}

func (q *Queue) consumeLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.moveDueRetries()
			q.processMessages()
			q.claimStuckMessages()
		}
	}
}

func (q *Queue) processMessages() {
	messages, err := q.adapter.XReadGroup(
		q.config.ConsumerGroup,
		q.config.ConsumerName,
		q.config.Name,
		">",
		q.config.BatchSize,
	)
	if err != nil {
		if err != redis.NilError {
			logger.Warn("queue read failed", "queue", q.config.Name, "error", err)
		}
		return
	}

	for _, streamMsg := range messages {
		q.handleMessage(streamMsg.ID, streamMsg.Values)
	}
}

// claimStuckMessages takes over entries whose consumer stopped acking.
// This covers crashed workers; handler failures go through the backoff
// scheduler instead and never sit pending this long.
func (q *Queue) claimStuckMessages() {
	pending, err := q.adapter.XPending(q.config.Name, q.config.ConsumerGroup)
	if err != nil || pending == nil || pending.Count == 0 {
		return
	}

	pendingExt, err := q.adapter.XPendingExt(
		q.config.Name,
		q.config.ConsumerGroup,
		"-",
		"+",
		100,
	)
	if err != nil || len(pendingExt) == 0 {
		return
	}

	var idsToReclaim []string
	for _, msg := range pendingExt {
		if msg.Idle >= q.config.VisibilityTimeout {
			idsToReclaim = append(idsToReclaim, msg.ID)
		}
	}

	if len(idsToReclaim) == 0 {
		return
	}

	messages, err := q.adapter.XClaim(
		q.config.Name,
		q.config.ConsumerGroup,
		q.config.ConsumerName,
		q.config.VisibilityTimeout,
		idsToReclaim...,
	)
	if err != nil {
		return
	}

	for _, streamMsg := range messages {
		q.handleMessage(streamMsg.ID, streamMsg.Values)
	}
}

// moveDueRetries promotes scheduled jobs whose backoff has elapsed back
// onto the stream.
func (q *Queue) moveDueRetries() {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	due, err := q.adapter.ZRangeByScore(q.scheduledKey(), "-inf", now, q.config.BatchSize)
	if err != nil || len(due) == 0 {
		return
	}

	for _, member := range due {
		if err := q.adapter.ZRem(q.scheduledKey(), member); err != nil {
			continue
		}
		job, err := decodeJob(member)
		if err != nil {
			logger.Error("dropping undecodable scheduled job", "queue", q.config.Name, "error", err)
			continue
		}
		if err := q.publish(job); err != nil {
			logger.Error("failed to republish scheduled job",
				"queue", q.config.Name, "job", job.LogicalID(), "error", err)
		}
	}
}

func (q *Queue) handleMessage(id string, values map[string]interface{}) {
	raw, ok := values["job"].(string)
	if !ok {
		logger.Warn("queue entry missing job payload", "queue", q.config.Name, "id", id)
		q.ack(id)
		return
	}

	job, err := decodeJob(raw)
	if err != nil {
		logger.Error("dropping undecodable queue entry", "queue", q.config.Name, "id", id, "error", err)
		q.ack(id)
		return
	}

	ctx, cancel := context.WithTimeout(q.ctx, q.config.VisibilityTimeout)
	defer cancel()

	err = q.handler(ctx, job)
	switch {
	case err == nil:
		q.ack(id)
		q.release(job)
	case IsFatal(err):
		logger.Warn("job failed fatally",
			"queue", q.config.Name, "job", job.LogicalID(), "attempt", job.Attempt, "error", err)
		q.moveToDeadLetterQueue(job, err)
		q.ack(id)
		q.release(job)
	case job.Attempt >= q.config.MaxAttempts:
		logger.Warn("job exhausted retries",
			"queue", q.config.Name, "job", job.LogicalID(), "attempt", job.Attempt, "error", err)
		q.moveToDeadLetterQueue(job, err)
		q.ack(id)
		q.release(job)
	default:
		q.scheduleRetry(job)
		q.ack(id)
	}
}

// scheduleRetry parks the job in the delay set with the next attempt number
// baked in. Delay doubles per failure: base, 2x base, 4x base, ...
func (q *Queue) scheduleRetry(job *DeliveryJob) {
	delay := q.config.BackoffBase << uint(job.Attempt-1)
	retry := *job
	retry.Attempt++

	encoded, err := retry.encode()
	if err != nil {
		logger.Error("failed to schedule retry", "queue", q.config.Name, "job", job.LogicalID(), "error", err)
		return
	}

	due := time.Now().Add(delay).Unix()
	if err := q.adapter.ZAdd(q.scheduledKey(), float64(due), encoded); err != nil {
		logger.Error("failed to schedule retry", "queue", q.config.Name, "job", job.LogicalID(), "error", err)
		return
	}

	logger.Info("retry scheduled",
		"queue", q.config.Name, "job", job.LogicalID(), "next_attempt", retry.Attempt, "delay", delay.String())
}

func (q *Queue) ack(id string) {
	if err := q.adapter.XAck(q.config.Name, q.config.ConsumerGroup, id); err != nil {
		logger.Warn("failed to ack queue entry", "queue", q.config.Name, "id", id, "error", err)
		return
	}
	_ = q.adapter.XDel(q.config.Name, id)
}

// release drops the logical-id marker so the job can be enqueued again.
func (q *Queue) release(job *DeliveryJob) {
	_ = q.adapter.Del(q.markerKey(job))
}

func (q *Queue) moveToDeadLetterQueue(job *DeliveryJob, cause error) {
	if !q.config.EnableDLQ {
		return
	}

	encoded, err := job.encode()
	if err != nil {
		return
	}

	_, _ = q.adapter.XAdd(q.dlqKey(), map[string]interface{}{
		"job":       encoded,
		"attempts":  job.Attempt,
		"error":     cause.Error(),
		"failed_at": time.Now().Unix(),
	})
}

func (q *Queue) Stop(timeout time.Duration) error {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for queue to stop")
	}
}

func (q *Queue) GetStats() (*Stats, error) {
	ready, err := q.adapter.XLen(q.config.Name)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Ready: ready}

	if scheduled, err := q.adapter.ZCard(q.scheduledKey()); err == nil {
		stats.Scheduled = scheduled
	}
	if dead, err := q.adapter.XLen(q.dlqKey()); err == nil {
		stats.Dead = dead
	}
	if pending, err := q.adapter.XPending(q.config.Name, q.config.ConsumerGroup); err == nil && pending != nil {
		stats.Pending = pending.Count
		stats.Consumers = int64(len(pending.Consumers))
	}

	return stats, nil
}
