// internal/jobs/cron.go
package jobs

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronManager runs the scheduled background jobs.
type CronManager struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func NewCronManager(logger *zap.Logger) *CronManager {
	return &CronManager{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
}

// Schedule registers fn under a cron spec such as "@every 5m".
func (cm *CronManager) Schedule(name, spec string, fn func()) error {
	_, err := cm.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				cm.logger.Error("cron job panicked", zap.String("job", name), zap.Any("panic", r))
			}
		}()
		fn()
	})
	if err != nil {
		return err
	}

	cm.logger.Info("cron job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Start runs the scheduler in its own goroutine.
func (cm *CronManager) Start() {
	cm.cron.Start()
}

// Stop stops scheduling and waits for running jobs to finish.
func (cm *CronManager) Stop() {
	<-cm.cron.Stop().Done()
	cm.logger.Info("cron jobs stopped")
}
