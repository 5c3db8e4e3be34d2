// Package scheduler triggers pipeline runs on a cron expression or a fixed
// interval. A trigger that fires while a run is in progress is skipped.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"autocurator/config"
	"autocurator/pipeline"
)

// Runner is satisfied by *pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context) *pipeline.Result
}

type Scheduler struct {
	cfg     config.SchedulerConfig
	runner  Runner
	cron    *cron.Cron
	ticker  *time.Ticker
	stopCh  chan struct{}
	stopped sync.Once
	running atomic.Bool
	skipped atomic.Int64
}

func New(cfg config.SchedulerConfig, runner Runner) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	switch {
	case s.cfg.Cron != "":
		zap.L().Info("starting scheduler", zap.String("cron", s.cfg.Cron))
		_, err := s.cron.AddFunc(s.cfg.Cron, func() { s.TriggerNow(ctx) })
		if err != nil {
			return eris.Wrap(err, "scheduler: invalid cron expression")
		}
		s.cron.Start()
	case s.cfg.Interval > 0:
		zap.L().Info("starting scheduler", zap.Duration("interval", s.cfg.Interval))
		s.ticker = time.NewTicker(s.cfg.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.TriggerNow(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	default:
		return eris.New("scheduler: set SCHEDULE_CRON or SCHEDULE_INTERVAL")
	}
	return nil
}

func (s *Scheduler) Stop() {
	s.stopped.Do(func() {
		<-s.cron.Stop().Done()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
	})
}

// TriggerNow runs the pipeline unless a run is already active. The second
// return value is false when the trigger was skipped.
func (s *Scheduler) TriggerNow(ctx context.Context) (*pipeline.Result, bool) {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		zap.L().Warn("scheduler: previous run still active, skipping")
		return nil, false
	}
	defer s.running.Store(false)

	res := s.runner.Run(ctx)
	if res != nil && !res.Success {
		zap.L().Error("scheduled run failed", zap.String("run_id", res.RunID), zap.Int("errors", len(res.Errors)))
	}
	return res, true
}

// Skipped counts triggers dropped because a run was active.
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}
