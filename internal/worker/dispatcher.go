package worker

import (
	"context"
	"errors"
	"sync"

	"lingochat/internal/service/ai"
)

// ErrDispatcherBusy is returned when the generation queue is full.
var ErrDispatcherBusy = errors.New("dispatcher is busy")

const (
	defaultWorkers   = 2
	defaultQueueSize = 16
)

// Config sizes the reply dispatcher.
type Config struct {
	Workers   int
	QueueSize int
}

type replyResult struct {
	reply string
	err   error
}

type replyJob struct {
	ctx       context.Context
	utterance string
	resultCh  chan replyResult
}

// Dispatcher bounds concurrent invocations of the shared model. Turns
// stay synchronous for the caller; the pool only limits how many model
// calls are in flight at once.
type Dispatcher struct {
	generator ai.Generator
	jobs      chan replyJob
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewDispatcher starts the worker pool.
func NewDispatcher(generator ai.Generator, cfg Config) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	d := &Dispatcher{
		generator: generator,
		jobs:      make(chan replyJob, queueSize),
		stopCh:    make(chan struct{}),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.run()
	}
	return d
}

// GenerateReply enqueues one generation and blocks until it completes,
// the context is cancelled, or the queue rejects the job.
func (d *Dispatcher) GenerateReply(ctx context.Context, utterance string) (string, error) {
	j := replyJob{
		ctx:       ctx,
		utterance: utterance,
		resultCh:  make(chan replyResult, 1),
	}
	select {
	case d.jobs <- j:
	default:
		return "", ErrDispatcherBusy
	}

	select {
	case res := <-j.resultCh:
		return res.reply, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stop shuts the pool down. Queued jobs are abandoned.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case j := <-d.jobs:
			if err := j.ctx.Err(); err != nil {
				j.resultCh <- replyResult{err: err}
				continue
			}
			reply, err := d.generator.GenerateReply(j.ctx, j.utterance)
			j.resultCh <- replyResult{reply: reply, err: err}
		}
	}
}
