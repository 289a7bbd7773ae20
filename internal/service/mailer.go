package service

import (
	"context"
	"fmt"

	"github.com/odvcencio/ilanhub/internal/jobs"
	"github.com/odvcencio/ilanhub/internal/mail"
	"github.com/odvcencio/ilanhub/internal/models"
)

// Mailer queues outgoing mail as mail.send jobs and delivers them from the
// worker pool.
type Mailer struct {
	queue  *jobs.Queue
	sender mail.Sender
}

// NewMailer returns a mailer. With a nil queue, Send delivers inline.
func NewMailer(queue *jobs.Queue, sender mail.Sender) *Mailer {
	return &Mailer{queue: queue, sender: sender}
}

func (m *Mailer) Send(ctx context.Context, msg mail.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if m.queue == nil {
		return m.sender.Send(ctx, msg)
	}
	if _, _, err := m.queue.Enqueue(ctx, models.JobMailSend, msg, jobs.EnqueueOptions{}); err != nil {
		return fmt.Errorf("queue mail: %w", err)
	}
	return nil
}

func (m *Mailer) HandleJob(ctx context.Context, job *models.Job) error {
	msg, err := jobs.Decode[mail.Message](job)
	if err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return jobs.Permanent(err)
	}
	return m.sender.Send(ctx, msg)
}
