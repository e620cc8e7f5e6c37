package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shohag/orderpipe/internal/storage"
)

// Pool polls one queue for due jobs and fans them out to a bounded set of
// workers.
type Pool struct {
	store    storage.Storage
	worker   *Worker
	queue    string
	workers  int
	pollRate time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewPool(queueName string, workers int, pollRate time.Duration, store storage.Storage, worker *Worker, log zerolog.Logger) *Pool {
	if pollRate <= 0 {
		pollRate = 1 * time.Second
	}
	return &Pool{
		store:    store,
		worker:   worker,
		queue:    queueName,
		workers:  workers,
		pollRate: pollRate,
		log:      log.With().Str("queue", queueName).Logger(),
		stop:     make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.log.Info().Int("workers", p.workers).Msg("starting worker pool")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pollLoop(ctx)
	}()
}

func (p *Pool) Stop() {
	p.log.Info().Msg("stopping worker pool")
	close(p.stop)
	p.wg.Wait()
	p.log.Info().Msg("worker pool stopped")
}

func (p *Pool) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(p.pollRate)
	defer ticker.Stop()

	sem := make(chan struct{}, p.workers)

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			jobs, err := p.store.ClaimDueJobs(ctx, p.queue, p.workers)
			if err != nil {
				p.log.Error().Err(err).Msg("failed to claim due jobs")
				continue
			}

			for _, j := range jobs {
				j := j
				sem <- struct{}{}
				p.wg.Add(1)
				go func() {
					defer p.wg.Done()
					defer func() { <-sem }()
					p.worker.Process(ctx, j)
				}()
			}
		}
	}
}
