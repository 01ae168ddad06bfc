package service

import (
	"context"
	"sync"

	"github.com/vogiaan1904/consultroom/internal/delivery/kafka/producer"
	"github.com/vogiaan1904/consultroom/pkg/logger"
)

type publishJob struct {
	name string
	fn   func(ctx context.Context, prod producer.Producer) error
}

// AsyncPublisher moves Kafka sends off the matching and billing paths.
type AsyncPublisher struct {
	prod producer.Producer
	l    logger.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan publishJob
	wg     sync.WaitGroup
}

func NewAsyncPublisher(prod producer.Producer, l logger.Logger, buffer int) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 256
	}

	p := &AsyncPublisher{
		prod: prod,
		l:    l,
		jobs: make(chan publishJob, buffer),
	}

	p.wg.Go(p.loop)
	return p
}

func (p *AsyncPublisher) loop() {
	ctx := context.Background()
	for job := range p.jobs {
		if err := job.fn(ctx, p.prod); err != nil {
			p.l.Errorf(ctx, "service.AsyncPublisher.%s: %v", job.name, err)
		}
	}
}

func (p *AsyncPublisher) Publish(name string, fn func(ctx context.Context, prod producer.Producer) error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.l.Warnf(context.Background(), "service.AsyncPublisher.%s: publisher closed, event dropped", name)
		return
	}

	select {
	case p.jobs <- publishJob{name: name, fn: fn}:
	default:
		p.l.Errorf(context.Background(), "service.AsyncPublisher.%s: buffer full, event dropped", name)
	}
}

// Close flushes queued events. Safe to call more than once.
func (p *AsyncPublisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	p.wg.Wait()
}
