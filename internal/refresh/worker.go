package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"transit-reconciler/internal/provider"
)

type Refresher interface {
	RefreshStopoverByID(ctx context.Context, id int64) (Result, error)
}

type WorkerMetrics interface {
	RefreshJob(r Result)
}

type WorkerOptions struct {
	// PerMinute caps refresh attempts across all jobs of this worker, retries included.
	PerMinute  int
	MaxRetries int
	Metrics    WorkerMetrics
	// NewBackOff builds the retry policy of a single job.
	NewBackOff func() backoff.BackOff
}

// Worker consumes refresh jobs from a NATS queue group one at a time.
type Worker struct {
	svc        Refresher
	limiter    *rate.Limiter
	maxRetries int
	newBackOff func() backoff.BackOff
	metrics    WorkerMetrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(svc Refresher, opts WorkerOptions) *Worker {
	limit := rate.Inf
	if opts.PerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.PerMinute))
	}
	newBackOff := opts.NewBackOff
	if newBackOff == nil {
		newBackOff = DefaultBackOff
	}
	return &Worker{
		svc:        svc,
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: opts.MaxRetries,
		newBackOff: newBackOff,
		metrics:    opts.Metrics,
	}
}

func DefaultBackOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     10 * time.Second,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         2 * time.Minute,
		MaxElapsedTime:      10 * time.Minute,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
}

// Start subscribes to subject within group and handles jobs until Stop or
// until parent is cancelled.
func (w *Worker) Start(parent context.Context, nc *nats.Conn, subject, group string) error {
	msgs := make(chan *nats.Msg, 64)
	sub, err := nc.ChanQueueSubscribe(subject, group, msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	w.wg.Add(1)
	log.Printf("refresh worker subscribed subject=%s group=%s", subject, group)
	go func() {
		defer w.wg.Done()
		defer func() {
			if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
				log.Printf("refresh worker unsubscribe err=%v", err)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				w.Handle(ctx, msg.Data)
			}
		}
	}()
	return nil
}

func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// Handle runs one encoded job. Failures are logged and dropped, the job is
// never redelivered.
func (w *Worker) Handle(ctx context.Context, data []byte) Result {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		log.Printf("refresh job decode err=%v", err)
		w.observe(Failed)
		return Failed
	}

	b := backoff.WithContext(backoff.WithMaxRetries(w.newBackOff(), uint64(w.maxRetries)), ctx)
	result, err := backoff.RetryNotifyWithData(
		func() (Result, error) {
			if err := w.limiter.Wait(ctx); err != nil {
				return Failed, backoff.Permanent(err)
			}
			r, err := w.svc.RefreshStopoverByID(ctx, job.StopoverID)
			if err != nil && !errors.Is(err, provider.ErrUpstream) {
				return r, backoff.Permanent(err)
			}
			return r, err
		},
		b,
		func(err error, d time.Duration) {
			log.Printf("refresh job=%s stopover=%d retry in %s err=%v", job.ID, job.StopoverID, d, err)
		},
	)
	if err != nil {
		log.Printf("refresh job=%s stopover=%d failed err=%v", job.ID, job.StopoverID, err)
		result = Failed
	}
	w.observe(result)
	return result
}

func (w *Worker) observe(r Result) {
	if w.metrics != nil {
		w.metrics.RefreshJob(r)
	}
}
