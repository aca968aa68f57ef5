// Package worker runs the background jobs of the booking platform.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Domenick1991/travelbooking/internal/kafka"
	"github.com/go-co-op/gocron/v2"
	kafkaGo "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Sweeper interface {
	Sweep(ctx context.Context, limit int) (int, error)
}

type Notifier interface {
	Send(ctx context.Context, event kafka.BookingEvent) error
}

// FulfillmentJob retries supplier orders for paid bookings on a fixed interval.
type FulfillmentJob struct {
	sweeper   Sweeper
	scheduler gocron.Scheduler
	interval  time.Duration
	batchSize int
	log       *zap.Logger
}

func NewFulfillmentJob(sweeper Sweeper, interval time.Duration, batchSize int, log *zap.Logger) (*FulfillmentJob, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &FulfillmentJob{
		sweeper:   sweeper,
		scheduler: scheduler,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}, nil
}

// Start schedules the sweep. Runs never overlap; a slow run pushes the next one back.
func (j *FulfillmentJob) Start(ctx context.Context) error {
	_, err := j.scheduler.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(func() { j.RunOnce(ctx) }),
		gocron.WithName("fulfillment-retry"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule fulfillment sweep: %w", err)
	}
	j.scheduler.Start()
	return nil
}

func (j *FulfillmentJob) RunOnce(ctx context.Context) {
	n, err := j.sweeper.Sweep(ctx, j.batchSize)
	if err != nil {
		j.log.Error("fulfillment sweep failed", zap.Int("attempted", n), zap.Error(err))
		return
	}
	if n > 0 {
		j.log.Info("fulfillment sweep finished", zap.Int("attempted", n))
	}
}

func (j *FulfillmentJob) Stop() error {
	return j.scheduler.Shutdown()
}

// NotificationHandler turns booking events into customer e-mails. Undecodable
// messages are skipped so they do not block the partition.
func NotificationHandler(notifier Notifier, log *zap.Logger) func(context.Context, kafkaGo.Message) error {
	return func(ctx context.Context, msg kafkaGo.Message) error {
		var event kafka.BookingEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Warn("skipping malformed booking event", zap.Int64("offset", msg.Offset), zap.Error(err))
			return nil
		}
		if err := notifier.Send(ctx, event); err != nil {
			log.Error("failed to send notification", zap.String("booking_id", event.BookingID), zap.String("type", event.Type), zap.Error(err))
			return err
		}
		return nil
	}
}
