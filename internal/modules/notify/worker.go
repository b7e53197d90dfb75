// README: Notification worker: drains the queue and delivers through each sender with retry.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"carpool/internal/types"
)

// Sender delivers one event over one channel.
type Sender interface {
	Name() string
	Accepts(e Event, c *Contact) bool
	Send(ctx context.Context, e Event, c *Contact) error
}

// ContactSource resolves where a user can be reached.
type ContactSource interface {
	Get(ctx context.Context, userID types.ID) (*Contact, error)
}

type WorkerConfig struct {
	PollWait    time.Duration
	MaxElapsed  time.Duration
	SendTimeout time.Duration
}

type Worker struct {
	queue    *Queue
	contacts ContactSource
	senders  []Sender
	cfg      WorkerConfig
	log      logrus.FieldLogger
}

func NewWorker(queue *Queue, contacts ContactSource, cfg WorkerConfig, log logrus.FieldLogger, senders ...Sender) *Worker {
	if cfg.PollWait <= 0 {
		cfg.PollWait = 5 * time.Second
	}
	return &Worker{queue: queue, contacts: contacts, senders: senders, cfg: cfg, log: log}
}

// Run consumes events until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		e, ok, err := w.queue.Pop(ctx, w.cfg.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.WithError(err).Warn("notification queue pop")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if !ok {
			continue
		}
		w.Deliver(ctx, e)
	}
}

// Deliver sends e over every sender that accepts it. Failures are logged; a
// failed channel does not block the others.
func (w *Worker) Deliver(ctx context.Context, e Event) {
	log := w.log.WithFields(logrus.Fields{"user_id": e.UserID, "type": e.Type})
	contact, err := w.contacts.Get(ctx, e.UserID)
	if errors.Is(err, ErrContactNotFound) {
		log.Debug("no contact registered, dropping notification")
		return
	}
	if err != nil {
		log.WithError(err).Warn("load contact")
		return
	}
	for _, s := range w.senders {
		if !s.Accepts(e, contact) {
			continue
		}
		if err := w.send(ctx, s, e, contact); err != nil {
			log.WithError(err).WithField("channel", s.Name()).Warn("notification not delivered")
			continue
		}
		log.WithField("channel", s.Name()).Debug("notification delivered")
	}
}

func (w *Worker) send(ctx context.Context, s Sender, e Event, c *Contact) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = w.cfg.MaxElapsed
	return backoff.Retry(func() error {
		sendCtx := ctx
		if w.cfg.SendTimeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(ctx, w.cfg.SendTimeout)
			defer cancel()
		}
		return s.Send(sendCtx, e, c)
	}, backoff.WithContext(policy, ctx))
}
