// Package metrics exposes simulation counters on a private prometheus registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"banditlab/internal/logging"
)

const DefaultNamespace = "banditlab"

type Collector struct {
	registry *prometheus.Registry

	trialsTotal   prometheus.Counter
	trialDuration prometheus.Histogram
	roundsTotal   *prometheus.CounterVec
	pullsTotal    *prometheus.CounterVec
	resetsTotal   *prometheus.CounterVec
	finalRegret   *prometheus.GaugeVec
	meanReward    *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector registers every metric on its own registry, so several
// collectors can coexist in one process.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		trialsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_total",
			Help:      "Total number of completed trials",
		}),
		trialDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trial_duration_seconds",
			Help:      "Wall time of a single trial in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		roundsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Total number of rounds played per agent",
		}, []string{"agent"}),
		pullsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pulls_total",
			Help:      "Total number of arm pulls per agent and arm",
		}, []string{"agent", "arm"}),
		resetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rare_event_resets_total",
			Help:      "Total number of windows cleared after a rare reward",
		}, []string{"agent"}),
		finalRegret: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "final_cumulative_regret",
			Help:      "Cumulative mean regret after the last round of the latest run",
		}, []string{"agent"}),
		meanReward: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mean_reward",
			Help:      "Mean reward per round of the latest run",
		}, []string{"agent"}),
		logger: logging.OrNop(logger).With(zap.String("component", "metrics")),
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) RecordTrial(duration time.Duration) {
	c.trialsTotal.Inc()
	c.trialDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordPull(agent string, armID int) {
	c.roundsTotal.WithLabelValues(agent).Inc()
	c.pullsTotal.WithLabelValues(agent, strconv.Itoa(armID)).Inc()
}

func (c *Collector) RecordReset(agent string) {
	c.resetsTotal.WithLabelValues(agent).Inc()
}

func (c *Collector) RecordOutcome(agent string, meanReward, finalRegret float64) {
	c.meanReward.WithLabelValues(agent).Set(meanReward)
	c.finalRegret.WithLabelValues(agent).Set(finalRegret)
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		c.logger.Error("failed to write metrics textfile", zap.String("path", path), zap.Error(err))
		return err
	}
	c.logger.Debug("metrics textfile written", zap.String("path", path))
	return nil
}
