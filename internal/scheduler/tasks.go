package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TypeExpireBooking = "booking:expire"

type expirePayload struct {
	BookingID int64 `json:"booking_id"`
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ExpiryQueue schedules a one-shot expiry task per booking at the end of its
// payment window.
type ExpiryQueue struct {
	client taskEnqueuer
	queue  string
	log    *zap.Logger
}

func NewExpiryQueue(client taskEnqueuer, log *zap.Logger) *ExpiryQueue {
	return &ExpiryQueue{client: client, queue: "default", log: log.Named("expiry_queue")}
}

func (q *ExpiryQueue) ScheduleExpiry(ctx context.Context, bookingID int64, at time.Time) error {
	payload, err := json.Marshal(expirePayload{BookingID: bookingID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeExpireBooking, payload)
	info, err := q.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.TaskID(fmt.Sprintf("expire:%d", bookingID)),
		asynq.Queue(q.queue),
		asynq.MaxRetry(3),
		asynq.Retention(time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue expiry for booking %d: %w", bookingID, err)
	}
	q.log.Debug("expiry scheduled", zap.Int64("booking_id", bookingID), zap.String("task_id", info.ID), zap.Time("at", at))
	return nil
}

type bookingExpirer interface {
	ExpireOne(ctx context.Context, id int64) (bool, error)
}

// ExpiryHandler processes TypeExpireBooking tasks.
type ExpiryHandler struct {
	expirer bookingExpirer
	log     *zap.Logger
}

func NewExpiryHandler(expirer bookingExpirer, log *zap.Logger) *ExpiryHandler {
	return &ExpiryHandler{expirer: expirer, log: log.Named("expiry_task")}
}

func (h *ExpiryHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p expirePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.BookingID <= 0 {
		h.log.Error("bad expiry payload", zap.ByteString("payload", t.Payload()), zap.Error(err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	expired, err := h.expirer.ExpireOne(ctx, p.BookingID)
	if err != nil {
		return err
	}
	if !expired {
		h.log.Debug("booking no longer expirable", zap.Int64("booking_id", p.BookingID))
	}
	return nil
}

// NewMux registers every task handler the worker serves.
func NewMux(expiry *ExpiryHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeExpireBooking, expiry)
	return mux
}

func NewServer(opt asynq.RedisClientOpt, concurrency int, log *zap.Logger) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 10},
		Logger:      log.Named("asynq").Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
	})
}
