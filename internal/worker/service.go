package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voxleads/lead-relay/internal/config"
	"github.com/voxleads/lead-relay/internal/queue"
	"github.com/voxleads/lead-relay/pkg/logger"
	"github.com/voxleads/lead-relay/pkg/prom"
	"github.com/voxleads/lead-relay/pkg/redis"
	pool "github.com/voxleads/lead-relay/pkg/worker"
)

const HealthInterval = time.Second * 30
const ShutdownTimeout = time.Minute

// Service ties the delivery queue to a bounded worker pool. Consumers pull
// jobs off the stream and park them on the pool channel; pool workers run
// the processor. Backpressure falls out of the bounded channel.
type Service struct {
	adapter   redis.Adapter
	queue     *queue.Queue
	processor *DeliveryProcessor
	metrics   *ServiceMetrics
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	pool      *pool.Pool
}

func NewService(adapter redis.Adapter, processor *DeliveryProcessor) (*Service, error) {
	cfg := config.Get()

	q, err := queue.New(adapter, queue.Config{
		Name:              cfg.QueueName,
		ConsumerGroup:     cfg.QueueConsumerGroup,
		ConsumerName:      cfg.QueueConsumerName,
		MaxAttempts:       cfg.DeliveryMaxAttempts,
		BackoffBase:       cfg.DeliveryBackoffBase,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
		PollInterval:      cfg.QueuePollInterval,
		BatchSize:         cfg.QueueBatchSize,
		MaxLen:            cfg.QueueMaxLen,
		EnableDLQ:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery queue: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		adapter:   adapter,
		queue:     q,
		processor: processor,
		metrics:   NewServiceMetrics(),
		ctx:       ctx,
		cancel:    cancel,
		pool:      pool.NewPool(1000, cfg.DeliveryConcurrency, nil),
	}, nil
}

func (s *Service) Start() error {
	logger.Info("starting delivery worker service...")

	s.pool.SetWorker(s.workerHandler)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.pool.Start(); err != nil {
			logger.Error("worker pool stopped", "error", err)
		}
	}()

	if err := s.queue.Consume(s.jobHandler); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}

	s.wg.Add(2)
	go s.metricsReporter()
	go s.healthChecker()

	logger.Info("delivery worker service started",
		"queue", config.Get().QueueName, "workers", config.Get().DeliveryConcurrency)
	return nil
}

type jobResult struct {
	job        *queue.DeliveryJob
	resultChan chan error
	ctx        context.Context
}

// jobHandler hands the job to the pool and blocks the queue consumer until a
// worker reports back, so the stream entry stays pending for exactly as long
// as the work runs.
func (s *Service) jobHandler(ctx context.Context, job *queue.DeliveryJob) error {
	resultChan := make(chan error, 1)

	jobCtx, cancel := context.WithTimeout(ctx, config.Get().DeliveryAdapterTimeout+time.Second)
	defer cancel()

	s.pool.Enqueue(&jobResult{
		job:        job,
		resultChan: resultChan,
		ctx:        jobCtx,
	})

	select {
	case err := <-resultChan:
		return err
	case <-jobCtx.Done():
		return fmt.Errorf("timeout waiting for worker to process job: %w", jobCtx.Err())
	}
}

func (s *Service) workerHandler(workerIndex int, job interface{}) {
	jobRes, ok := job.(*jobResult)
	if !ok {
		logger.Error("invalid job type in worker", "worker", workerIndex)
		return
	}

	select {
	case <-jobRes.ctx.Done():
		logger.Warn("job context cancelled before processing started", "worker", workerIndex)
		return
	default:
	}

	start := time.Now()
	resultErr := s.processor.Process(jobRes.ctx, jobRes.job)
	if resultErr != nil {
		s.metrics.RecordFailure()
		logger.Error("failed to process delivery job",
			"worker", workerIndex, "job", jobRes.job.LogicalID(), "error", resultErr)
	} else {
		s.metrics.RecordSuccess(time.Since(start))
	}

	select {
	case jobRes.resultChan <- resultErr:
	case <-jobRes.ctx.Done():
		logger.Warn("context cancelled while sending result", "worker", workerIndex)
	}
}

// Enqueue exposes the underlying queue for intake-side publishing.
func (s *Service) Enqueue(ctx context.Context, job *queue.DeliveryJob) (bool, error) {
	return s.queue.Enqueue(ctx, job)
}

func (s *Service) metricsReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportMetrics()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Service) reportMetrics() {
	stats := s.metrics.GetStats()
	logger.Info("delivery metrics",
		"total_processed", stats["total_processed"],
		"total_failed", stats["total_failed"],
		"rate_per_second", stats["rate_per_second"],
		"avg_duration_ms", stats["avg_duration_ms"],
		"uptime_seconds", stats["uptime_seconds"])

	if qStats, err := s.queue.GetStats(); err == nil {
		logger.Info("queue stats",
			"ready", qStats.Ready, "pending", qStats.Pending,
			"scheduled", qStats.Scheduled, "dead", qStats.Dead)
		prom.SetQueueDepth("ready", float64(qStats.Ready))
		prom.SetQueueDepth("pending", float64(qStats.Pending))
		prom.SetQueueDepth("scheduled", float64(qStats.Scheduled))
		prom.SetQueueDepth("dlq", float64(qStats.Dead))
	}
}

func (s *Service) healthChecker() {
	defer s.wg.Done()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performHealthCheck()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Service) performHealthCheck() {
	if err := s.adapter.Client().Ping(context.Background()).Err(); err != nil {
		logger.Error("health check failed: redis connection error", "error", err)
		return
	}

	stats, err := s.queue.GetStats()
	if err != nil {
		logger.Warn("health check warning: queue stats unavailable", "error", err)
		return
	}
	if stats.Pending > 10000 {
		logger.Warn("health check warning: queue has high lag", "pending", stats.Pending)
	}

	logger.Debug("health check ok")
}

func (s *Service) Stop() {
	logger.Info("shutting down delivery worker service...")

	s.cancel()

	if err := s.queue.Stop(ShutdownTimeout); err != nil {
		logger.Error("error stopping queue", "error", err)
	}

	s.pool.Exit()
	s.wg.Wait()
	s.reportMetrics()

	logger.Info("delivery worker service stopped")
}
