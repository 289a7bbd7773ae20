package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/odvcencio/ilanhub/internal/models"
)

// Handler runs one job. Returning an error retries the job unless the error
// is wrapped with Permanent.
type Handler func(ctx context.Context, job *models.Job) error

// Dispatcher routes claimed jobs to the handler registered for their type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[models.JobType]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[models.JobType]Handler)}
}

func (d *Dispatcher) Handle(jobType models.JobType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[jobType] = h
}

// Process is a JobProcessor.
func (d *Dispatcher) Process(ctx context.Context, job *models.Job) error {
	d.mu.RLock()
	h, ok := d.handlers[job.Type]
	d.mu.RUnlock()
	if !ok {
		return Permanent(fmt.Errorf("no handler for job type %q", job.Type))
	}
	return h(ctx, job)
}
