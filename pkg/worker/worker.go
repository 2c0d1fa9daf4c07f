package worker

import (
	"errors"
	"sync"

	"github.com/voxleads/lead-relay/pkg/logger"
)

type Handler = func(workerIndex int, job interface{})

// Pool distributes jobs pushed through Enqueue across a fixed number of
// goroutines. Workers never exit on their own; call Exit to drain them. The
// job channel is never closed here because it may be shared externally.
type Pool struct {
	bufferSize int
	jobChannel chan interface{}
	numWorkers int
	quit       chan struct{}
	do         Handler
	waiter     *sync.WaitGroup
}

func NewPool(bufferSize, numWorkers int, jobChannel chan interface{}) *Pool {
	if jobChannel == nil {
		jobChannel = make(chan interface{}, bufferSize)
	}
	return &Pool{
		bufferSize: bufferSize,
		numWorkers: numWorkers,
		jobChannel: jobChannel,
		quit:       make(chan struct{}),
		waiter:     &sync.WaitGroup{},
	}
}

func (p *Pool) SetWorker(handler Handler) {
	p.do = handler
}

func (p *Pool) PendingCount() int64 {
	if p.jobChannel == nil {
		return 0
	}
	return int64(len(p.jobChannel))
}

// Enqueue publishes a job onto the channel; blocks when the buffer is full.
func (p *Pool) Enqueue(job interface{}) {
	p.jobChannel <- job
}

// Start runs the workers and blocks until Exit is called.
func (p *Pool) Start() error {
	if p.do == nil {
		return errors.New("worker handler is not set")
	}

	p.waiter.Add(p.numWorkers)
	for i := 0; i < p.numWorkers; i++ {
		go func(index int) {
			defer p.waiter.Done()
			for {
				select {
				case job := <-p.jobChannel:
					p.do(index, job)
				case <-p.quit:
					return
				}
			}
		}(i)
	}
	p.waiter.Wait()

	return errors.New("workers terminated")
}

// Exit stops every worker. Jobs still buffered in the channel are left there.
func (p *Pool) Exit() {
	logger.Info("worker pool shutting down", "workers", p.numWorkers)
	close(p.quit)
}
