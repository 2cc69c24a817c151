package worker

import (
	"context"
	"log"
	"sync"
	"time"
)

// Fulfiller consumes confirmed payments.
type Fulfiller interface {
	Fulfill(ctx context.Context, externalID string) error
}

// jobTimeout bounds one fulfillment, container creation included.
const jobTimeout = 3 * time.Minute

// Queue decouples the webhook boundary from fulfillment. Handlers
// enqueue the external payment id and return immediately; workers do
// the slow hypervisor work. Jobs run on a detached context so an
// in-flight fulfillment is not cancelled half-way through its side
// effects during shutdown.
type Queue struct {
	jobs      chan string
	fulfiller Fulfiller
	wg        sync.WaitGroup
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewQueue(fulfiller Fulfiller, size int) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{
		jobs:      make(chan string, size),
		fulfiller: fulfiller,
		stop:      make(chan struct{}),
	}
}

// Enqueue submits a payment for fulfillment without blocking. A false
// return means the buffer is full; the payment stays pending and a
// later "I paid" check or the replay endpoint picks it up.
func (q *Queue) Enqueue(externalID string) bool {
	select {
	case q.jobs <- externalID:
		return true
	default:
		log.Printf("[worker] Queue full, dropping payment %s", externalID)
		return false
	}
}

// Start launches the worker goroutines.
func (q *Queue) Start(workers int) {
	if workers <= 0 {
		workers = 2
	}
	log.Printf("[worker] Starting %d fulfillment workers", workers)
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.run()
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			// Drain what is already buffered before exiting.
			for {
				select {
				case id := <-q.jobs:
					q.process(id)
				default:
					return
				}
			}
		case id := <-q.jobs:
			q.process(id)
		}
	}
}

func (q *Queue) process(externalID string) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := q.fulfiller.Fulfill(ctx, externalID); err != nil {
		log.Printf("[worker] Fulfillment of %s failed: %v", externalID, err)
	}
}

// Stop signals the workers and waits for buffered jobs to finish.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stop) })
	q.wg.Wait()
	log.Printf("[worker] Fulfillment workers stopped")
}
