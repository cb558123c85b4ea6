package drorchestrator

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/dsrplatform/fleetcore/infrastructure/service"
)

// Register wires the orchestrator's two scheduled jobs: the continuous
// monitoring tick onto base's ticker-worker pool, and the nightly backup
// onto a standalone cron.Cron (ticker workers run on a fixed interval;
// the nightly job needs calendar-scheduled semantics a ticker can't
// express). The returned *cron.Cron is not started; the caller starts
// and stops it alongside base's own lifecycle.
func (o *Orchestrator) Register(base *service.BaseService) (*cron.Cron, error) {
	base.AddTickerWorker(o.cfg.MonitoringInterval, o.MonitorTick, service.WithTickerWorkerName("dr-monitor"))

	sched := cron.New()
	_, err := sched.AddFunc(o.cfg.NightlyCronSpec, func() {
		if err := o.NightlyBackupTick(context.Background()); err != nil {
			o.logger.WithError(err).Error("nightly backup job failed")
		}
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}
