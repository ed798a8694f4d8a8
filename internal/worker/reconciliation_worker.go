package worker

import (
	"context"
	"sync"

	"github.com/ayo6706/mfs-ledger/internal/observability"
	"github.com/ayo6706/mfs-ledger/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule runs reconciliation at the top of every hour.
const DefaultSchedule = "@hourly"

// Reconciler runs one reconciliation pass.
type Reconciler interface {
	Run(ctx context.Context) (service.ReconciliationReport, error)
}

// ReconciliationWorker runs ledger reconciliation on a cron schedule.
type ReconciliationWorker struct {
	svc      Reconciler
	schedule string
	cron     *cron.Cron
	stopOnce sync.Once
}

// NewReconciliationWorker constructs a worker on DefaultSchedule.
func NewReconciliationWorker(svc Reconciler) *ReconciliationWorker {
	return &ReconciliationWorker{
		svc:      svc,
		schedule: DefaultSchedule,
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger{}))),
	}
}

// WithSchedule replaces the cron spec. Standard five-field specs and
// descriptors such as "@every 10m" are accepted.
func (w *ReconciliationWorker) WithSchedule(schedule string) *ReconciliationWorker {
	if schedule != "" {
		w.schedule = schedule
	}
	return w
}

// Run runs one pass immediately, registers the schedule and returns a stop
// function that waits for an in-flight pass to finish.
func (w *ReconciliationWorker) Run(ctx context.Context) (func(), error) {
	if _, err := w.cron.AddFunc(w.schedule, func() { w.runOnce(ctx) }); err != nil {
		return nil, err
	}
	zap.L().Info("reconciliation worker starting", zap.String("schedule", w.schedule))

	w.runOnce(ctx)
	w.cron.Start()
	return w.Stop, nil
}

// Stop halts the scheduler.
func (w *ReconciliationWorker) Stop() {
	w.stopOnce.Do(func() {
		<-w.cron.Stop().Done()
		zap.L().Info("reconciliation worker stopped")
	})
}

func (w *ReconciliationWorker) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := w.svc.Run(ctx)
	if err != nil {
		observability.IncrementWorkerRun("reconciliation", "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
		return
	}
	if !report.Healthy() {
		observability.IncrementWorkerRun("reconciliation", "violations")
		return
	}
	observability.IncrementWorkerRun("reconciliation", "success")
}

// cronLogger routes cron's internal logging through zap.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	zap.S().Infow(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	zap.S().Errorw(msg, append(keysAndValues, "error", err)...)
}
