package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/xn--nding-jua/mqtt2victron/internal/config"
	"github.com/xn--nding-jua/mqtt2victron/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

// Watchdog periodically checks every meter for stale data. A consumer
// watching /UpdateIndex can detect staleness on its own; this is the
// bridge-side signal for operators reading the logs.
type Watchdog struct {
	scheduler   quartz.Scheduler
	rootContext *actor.RootContext
	masterActor *actor.PID
	cfg         config.WatchdogConfig
	logger      *zap.Logger
}

func NewWatchdog(cfg config.WatchdogConfig, rootContext *actor.RootContext, masterActor *actor.PID, logger *zap.Logger) (*Watchdog, error) {
	scheduler, err := quartz.NewStdScheduler()
	if err != nil {
		return nil, err
	}
	return &Watchdog{
		scheduler:   scheduler,
		rootContext: rootContext,
		masterActor: masterActor,
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "watchdog")),
	}, nil
}

// Start schedules the staleness check. The scheduler stops when ctx is
// cancelled or Stop is called.
func (w *Watchdog) Start(ctx context.Context) error {
	w.scheduler.Start(ctx)

	job := &staleCheckJob{
		rootContext: w.rootContext,
		masterActor: w.masterActor,
		staleAfter:  time.Duration(w.cfg.StaleMillis) * time.Millisecond,
		startedAt:   time.Now(),
		logger:      w.logger,
	}
	trigger := quartz.NewSimpleTrigger(time.Duration(w.cfg.IntervalMillis) * time.Millisecond)
	return w.scheduler.ScheduleJob(quartz.NewJobDetail(job, quartz.NewJobKey("meter_staleness")), trigger)
}

func (w *Watchdog) Stop() {
	w.scheduler.Stop()
}

type staleCheckJob struct {
	rootContext *actor.RootContext
	masterActor *actor.PID
	staleAfter  time.Duration
	startedAt   time.Time
	logger      *zap.Logger
}

func (j *staleCheckJob) Description() string {
	return "meter data staleness check"
}

func (j *staleCheckJob) Execute(context.Context) error {
	res, err := j.rootContext.RequestFuture(j.masterActor, domain.ListMetersRequest{}, 5*time.Second).Result()
	if err != nil {
		return err
	}
	list, ok := res.(domain.ListMetersResponse)
	if !ok || list.HasResponseError() {
		return fmt.Errorf("list meters failed")
	}

	for _, info := range list.Meters {
		if err := j.checkMeter(info.Service); err != nil {
			j.logger.Warn("staleness check failed", zap.String("service", info.Service), zap.Error(err))
		}
	}
	return nil
}

func (j *staleCheckJob) checkMeter(service string) error {
	res, err := j.rootContext.RequestFuture(j.masterActor, domain.GetMeterStatusRequest{Service: service}, 5*time.Second).Result()
	if err != nil {
		return err
	}
	status, ok := res.(domain.GetMeterStatusResponse)
	if !ok {
		return fmt.Errorf("unexpected response %T", res)
	}
	if status.HasResponseError() {
		return status.GetResponseError()
	}

	if status.LastUpdate.IsZero() {
		// nothing received since start; only worth a warning once the
		// stale window has passed
		if time.Since(j.startedAt) > j.staleAfter {
			j.logger.Warn("no measurements received", zap.String("service", service),
				zap.Duration("since_start", time.Since(j.startedAt)))
		}
		return nil
	}
	if age := time.Since(status.LastUpdate); age > j.staleAfter {
		j.logger.Warn("meter data is stale", zap.String("service", service),
			zap.Duration("age", age), zap.Uint64("passes", status.Passes))
	}
	return nil
}
