package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vogiaan1904/consultroom/config"
	"github.com/vogiaan1904/consultroom/pkg/logger"
)

// QueueProcessor is the periodic sweep behind the event-driven matching path.
// It expires stale queue entries and retries admission for every online consultant.
type QueueProcessor interface {
	Start(ctx context.Context) error
	Stop() error
	ProcessOnce(ctx context.Context)
	GetStatus() ProcessorStatus
}

type ProcessorStatus struct {
	IsRunning      bool      `json:"is_running"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	LastProcessed  time.Time `json:"last_processed,omitempty"`
	ActiveSessions int       `json:"active_sessions"`
	TotalExpired   int64     `json:"total_expired"`
	TotalAdmitted  int64     `json:"total_admitted"`
	ErrorCount     int64     `json:"error_count"`
}

type queueProcessor struct {
	matching MatchingService
	sessions SessionManager
	logger   logger.Logger

	config ProcessorConfig
	now    func() time.Time

	mu        sync.RWMutex
	isRunning bool
	startedAt time.Time
	stopCh    chan struct{}
	ticker    *time.Ticker
	wg        sync.WaitGroup

	lastProcessed time.Time
	totalExpired  int64
	totalAdmitted int64
	errorCount    int64
}

type ProcessorConfig struct {
	ProcessInterval       time.Duration
	ShutdownTimeout       time.Duration
	MaxProcessingDuration time.Duration
}

func NewQueueProcessor(
	matching MatchingService,
	sessions SessionManager,
	logger logger.Logger,
	cfg config.MatchingConfig,
) QueueProcessor {
	return &queueProcessor{
		matching: matching,
		sessions: sessions,
		logger:   logger,
		config: ProcessorConfig{
			ProcessInterval:       cfg.ProcessInterval,
			ShutdownTimeout:       30 * time.Second,
			MaxProcessingDuration: 30 * time.Second,
		},
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

func (qp *queueProcessor) Start(ctx context.Context) error {
	qp.mu.Lock()
	defer qp.mu.Unlock()

	if qp.isRunning {
		return errors.New("queue processor is already running")
	}

	qp.logger.Infof(ctx, "Starting queue processor, interval %s", qp.config.ProcessInterval)

	qp.isRunning = true
	qp.startedAt = qp.now()
	qp.ticker = time.NewTicker(qp.config.ProcessInterval)

	qp.wg.Add(1)
	go qp.processLoop(ctx)

	return nil
}

func (qp *queueProcessor) Stop() error {
	qp.mu.Lock()
	defer qp.mu.Unlock()

	if !qp.isRunning {
		return errors.New("queue processor is not running")
	}

	qp.logger.Info(context.Background(), "Stopping queue processor...")

	close(qp.stopCh)
	if qp.ticker != nil {
		qp.ticker.Stop()
	}

	done := make(chan struct{})
	go func() {
		qp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		qp.logger.Info(context.Background(), "Queue processor stopped gracefully")
	case <-time.After(qp.config.ShutdownTimeout):
		qp.logger.Warn(context.Background(), "Queue processor shutdown timeout exceeded")
	}

	qp.isRunning = false
	return nil
}

func (qp *queueProcessor) processLoop(ctx context.Context) {
	defer qp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			qp.logger.Info(ctx, "Queue processor stopped due to context cancellation")
			return
		case <-qp.stopCh:
			return
		case <-qp.ticker.C:
			qp.ProcessOnce(ctx)
		}
	}
}

func (qp *queueProcessor) ProcessOnce(ctx context.Context) {
	startTime := qp.now()
	defer func() {
		qp.mu.Lock()
		qp.lastProcessed = qp.now()
		qp.mu.Unlock()

		if d := time.Since(startTime); d > qp.config.MaxProcessingDuration {
			qp.logger.Warnf(ctx, "Queue sweep took %s, longer than %s", d, qp.config.MaxProcessingDuration)
		}
	}()

	expired, err := qp.matching.ExpireStale(ctx, startTime)
	if err != nil {
		qp.incrementErrorCount()
		qp.logger.Errorf(ctx, "service.queueProcessor.ProcessOnce: expire: %v", err)
	}

	admitted, err := qp.matching.DrainAll(ctx)
	if err != nil {
		qp.incrementErrorCount()
		qp.logger.Errorf(ctx, "service.queueProcessor.ProcessOnce: drain: %v", err)
	}

	qp.mu.Lock()
	qp.totalExpired += int64(expired)
	qp.totalAdmitted += int64(admitted)
	qp.mu.Unlock()

	if expired > 0 || admitted > 0 {
		qp.logger.Infof(ctx, "Queue sweep finished: expired=%d admitted=%d", expired, admitted)
	}
}

func (qp *queueProcessor) incrementErrorCount() {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	qp.errorCount++
}

func (qp *queueProcessor) GetStatus() ProcessorStatus {
	qp.mu.RLock()
	defer qp.mu.RUnlock()

	return ProcessorStatus{
		IsRunning:      qp.isRunning,
		StartedAt:      qp.startedAt,
		LastProcessed:  qp.lastProcessed,
		ActiveSessions: qp.sessions.ActiveCount(),
		TotalExpired:   qp.totalExpired,
		TotalAdmitted:  qp.totalAdmitted,
		ErrorCount:     qp.errorCount,
	}
}
