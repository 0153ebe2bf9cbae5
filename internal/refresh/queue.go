package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Job asks a worker to refresh one stopover.
type Job struct {
	ID         uuid.UUID `json:"id"`
	StopoverID int64     `json:"stopoverId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

func NewJob(stopoverID int64, now time.Time) Job {
	return Job{ID: uuid.New(), StopoverID: stopoverID, EnqueuedAt: now.UTC()}
}

type QueueMetrics interface {
	PublishedInc()
	PublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// Queue publishes refresh jobs to a NATS subject.
type Queue struct {
	nc      *nats.Conn
	subject string
	metrics QueueMetrics
}

func NewQueue(url, subject string, m QueueMetrics) (*Queue, error) {
	nc, err := nats.Connect(url,
		nats.Name("transit-reconciler"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected err=%v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &Queue{nc: nc, subject: subject, metrics: m}, nil
}

func (q *Queue) Conn() *nats.Conn { return q.nc }

func (q *Queue) Subject() string { return q.subject }

func (q *Queue) Close() {
	if q.nc != nil {
		q.nc.Drain()
		q.nc.Close()
	}
}

// Dispatch enqueues a refresh of stopoverID and returns without waiting for it.
func (q *Queue) Dispatch(ctx context.Context, stopoverID int64) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	job := NewJob(stopoverID, time.Now())
	b, err := json.Marshal(job)
	if err != nil {
		return Job{}, err
	}
	start := time.Now()
	err = q.nc.Publish(q.subject, b)
	if q.metrics != nil {
		q.metrics.PublishObserve(time.Since(start))
		if err != nil {
			q.metrics.PublishErrInc()
		} else {
			q.metrics.PublishedInc()
		}
	}
	if err != nil {
		return Job{}, fmt.Errorf("publish refresh job: %w", err)
	}
	return job, nil
}
