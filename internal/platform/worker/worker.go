package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/marvingbh/clinica-sub001/internal/domain/appointment"
)

// TypeHorizonExtend re-materializes occurrences of INDEFINITE series out to
// the look-ahead horizon. The task carries no payload; the handler walks
// every active series.
const TypeHorizonExtend = "recurrence:extend_horizon"

// Worker runs the background queue: an asynq server consuming tasks plus a
// scheduler enqueueing the periodic horizon extension.
type Worker struct {
	srv       *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	log       zerolog.Logger
}

func New(redisURL string, intervalDays int, appts *appointment.Service, log zerolog.Logger) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if intervalDays <= 0 {
		return nil, fmt.Errorf("horizon interval must be positive, got %d", intervalDays)
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{"default": 1},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeHorizonExtend, horizonHandler(appts, log))

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Logger: asynqLogger{log: log},
	})
	spec := fmt.Sprintf("@every %dh", intervalDays*24)
	if _, err := scheduler.Register(spec, asynq.NewTask(TypeHorizonExtend, nil)); err != nil {
		return nil, fmt.Errorf("register horizon task: %w", err)
	}

	return &Worker{srv: srv, scheduler: scheduler, mux: mux, log: log}, nil
}

// Run starts the scheduler and the task server, blocking until the context
// is cancelled or the server stops.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer w.scheduler.Shutdown()

	done := make(chan error, 1)
	go func() { done <- w.srv.Run(w.mux) }()

	w.log.Info().Msg("worker started")
	select {
	case <-ctx.Done():
		w.srv.Shutdown()
		<-done
		return nil
	case err := <-done:
		return err
	}
}

func horizonHandler(appts *appointment.Service, log zerolog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		created, err := appts.ExtendIndefiniteHorizon(ctx, time.Now())
		if err != nil {
			log.Error().Err(err).Msg("horizon extension failed")
			return err
		}
		log.Info().Int("created", created).Msg("horizon extension completed")
		return nil
	}
}

// asynqLogger adapts zerolog to asynq's logger interface.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
