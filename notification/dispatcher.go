package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/joeyave/event-registration/entity"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"
)

type ParticipantFinder interface {
	FindParticipants(ctx context.Context, eventID bson.ObjectID) ([]*entity.User, error)
}

type DispatcherConfig struct {
	// Workers is the number of jobs processed concurrently.
	Workers int
	// Parallel is the number of mails sent concurrently for one job.
	Parallel int
	Renderer Renderer
}

type Dispatcher struct {
	queue        Queue
	participants ParticipantFinder
	mailer       Mailer
	renderer     Renderer
	workers      int
	parallel     int
	retrier      *retry.Retrier
	pushTimeout  time.Duration
}

func NewDispatcher(queue Queue, participants ParticipantFinder, mailer Mailer, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 4
	}
	return &Dispatcher{
		queue:        queue,
		participants: participants,
		mailer:       mailer,
		renderer:     cfg.Renderer,
		workers:      cfg.Workers,
		parallel:     cfg.Parallel,
		retrier:      retry.NewRetrier(5, 100*time.Millisecond, time.Second),
		pushTimeout:  5 * time.Second,
	}
}

// NotifyCancelled enqueues the event. Failures are logged and never reach
// the caller: the cancellation itself has already happened.
func (d *Dispatcher) NotifyCancelled(ctx context.Context, event *entity.Event) {
	ctx, cancel := context.WithTimeout(ctx, d.pushTimeout)
	defer cancel()

	if err := d.queue.Push(ctx, NewJob(event)); err != nil {
		log.Error().Err(err).Str("eventID", event.ID.Hex()).Msg("failed to enqueue cancellation notification")
		return
	}
	log.Debug().Str("eventID", event.ID.Hex()).Msg("cancellation notification enqueued")
}

// Run processes jobs until ctx is done or the queue is closed.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.work(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	for {
		job, err := d.queue.Pop(ctx)
		if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Error().Err(err).Int("worker", worker).Msg("failed to pop notification job")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if err := d.Handle(ctx, job); err != nil {
			log.Error().Err(err).Str("eventID", job.EventID.Hex()).Msg("cancellation notification incomplete")
		}
	}
}

// Handle mails every current participant of the job's event. A failed
// recipient does not stop the others; all failures are returned joined.
func (d *Dispatcher) Handle(ctx context.Context, job Job) error {
	users, err := d.participants.FindParticipants(ctx, job.EventID)
	if err != nil {
		return fmt.Errorf("find participants: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)

	g := new(errgroup.Group)
	g.SetLimit(d.parallel)
	for _, user := range users {
		g.Go(func() error {
			err := d.send(ctx, job, user)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("mail %s: %w", user.Email, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Str("eventID", job.EventID.Hex()).
		Int("participants", len(users)).
		Int("failed", len(errs)).
		Msg("cancellation notifications sent")

	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, job Job, user *entity.User) error {
	msg, err := d.renderer.Cancellation(job, user)
	if err != nil {
		return err
	}

	return d.retrier.RunContext(ctx, func(ctx context.Context) error {
		return d.mailer.Send(ctx, msg)
	})
}
