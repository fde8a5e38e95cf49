// Package scheduler runs the homepage polling loop.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"toonarr/internal/metrics"
)

// Scanner is the single operation the poller drives
type Scanner interface {
	ScanHomepage(ctx context.Context) error
}

// Poller ticks the homepage scan on a fixed interval. Overlapping ticks are
// collapsed: a tick that fires while the previous scan is still running is
// dropped, never queued.
type Poller struct {
	cron     *cron.Cron
	scanner  Scanner
	interval time.Duration
	logger   *logrus.Logger
	job      cron.Job
}

// NewPoller creates a poller that scans every interval
func NewPoller(scanner Scanner, interval time.Duration, logger *logrus.Logger) *Poller {
	p := &Poller{
		cron:     cron.New(),
		scanner:  scanner,
		interval: interval,
		logger:   logger,
	}
	p.job = cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).
		Then(cron.FuncJob(p.tick))
	return p
}

func (p *Poller) tick() {
	metrics.ScanTicks.Inc()
	if err := p.scanner.ScanHomepage(context.Background()); err != nil {
		p.logger.WithError(err).Warn("Homepage scan failed")
	}
}

// Start registers the schedule and runs one scan immediately. The immediate
// run goes through the same overlap guard as the scheduled ones.
func (p *Poller) Start() error {
	spec := fmt.Sprintf("@every %s", p.interval)
	if _, err := p.cron.AddJob(spec, p.job); err != nil {
		return fmt.Errorf("failed to schedule homepage scan: %w", err)
	}

	p.cron.Start()
	p.logger.WithField("interval", p.interval.String()).Info("Started homepage poller")

	go p.job.Run()
	return nil
}

// Stop halts the schedule and waits for a running scan to finish
func (p *Poller) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.logger.Info("Stopped homepage poller")
}
