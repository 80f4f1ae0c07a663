package delivery

import (
	"context"

	"github.com/sirupsen/logrus"

	"build-insight/internal/metrics"
	"build-insight/internal/models"
)

// Sink delivers a finished job to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, job *models.Job) error
}

// Dispatcher fans a finished job out to an ordered list of sinks. A sink
// failure is logged and counted, then the next sink runs; delivery never
// reports an error back to the caller.
type Dispatcher struct {
	sinks   []Sink
	log     *logrus.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(sinks []Sink, log *logrus.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{sinks: sinks, log: log, metrics: m}
}

// Deliver sends the job to every configured sink in order.
func (d *Dispatcher) Deliver(ctx context.Context, job *models.Job) {
	if d == nil || job == nil {
		return
	}
	for _, s := range d.sinks {
		if err := s.Send(ctx, job); err != nil {
			d.metrics.DeliveryErrors.WithLabelValues(s.Name()).Inc()
			d.log.WithFields(logrus.Fields{
				"job_id": job.ID,
				"sink":   s.Name(),
			}).Warnf("delivery failed: %v", err)
			continue
		}
		d.metrics.Deliveries.WithLabelValues(s.Name()).Inc()
	}
}
