package worker

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mondo989/MemeSync/internal/orchestrator"
	"github.com/mondo989/MemeSync/internal/queue"
)

// Worker pulls dispatched job ids off the redis queues and hands them to the
// orchestrator. All pipeline and job-state logic lives there; the worker only
// owns the dequeue loops.
type Worker struct {
	queue *queue.Queue
	orch  *orchestrator.Orchestrator
}

func New(q *queue.Queue, orch *orchestrator.Orchestrator) *Worker {
	return &Worker{queue: q, orch: orch}
}

// Start begins processing jobs from both queues. Each unit of concurrency
// serves the run and resume queues with a goroutine apiece, so a long render
// occupies exactly one slot and reviewed jobs are never starved by new ones.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueRunJob, w.orch.Execute)
		go w.processQueue(ctx, queue.QueueResumeJob, w.orch.ExecuteResume)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

// processQueue is one blocking consume loop. Handlers record outcomes on the
// job themselves and never return errors; messages for vanished jobs are
// dropped inside the handler.
func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, uuid.UUID)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Error dequeuing from %s: %v", queueName, err)
				continue
			}
			if msg == nil {
				continue // No message available, poll again
			}

			log.Printf("Processing job %s (kind: %s, queued %s ago)",
				msg.JobID, msg.Kind, time.Since(msg.EnqueuedAt).Round(time.Millisecond))
			handler(ctx, msg.JobID)
		}
	}
}
