// Package monitor emits statsd metrics for authorization decisions: allow and
// deny counters plus latency quantile gauges over a rotating histogram window.
package monitor

import (
	"time"

	"code.cloudfoundry.org/lager"
)

const (
	AlwaysSendMetric = 1.0

	MetricDecisionsAllowed = "authz.decisions.allowed"
	MetricDecisionsDenied  = "authz.decisions.denied"

	MetricDecisionTimingMax  = "authz.decisions.timing.max"  // gauge
	MetricDecisionTimingP90  = "authz.decisions.timing.p90"  // gauge
	MetricDecisionTimingP99  = "authz.decisions.timing.p99"  // gauge
	MetricDecisionTimingP999 = "authz.decisions.timing.p999" // gauge
)

const (
	failedToSendMetric           = "failed-to-send-metric"
	failedToRecordHistogramValue = "failed-to-record-histogram-value"
)

//go:generate counterfeiter . StatSender

// StatSender is the slice of the statsd client the statter uses.
type StatSender interface {
	Inc(stat string, value int64, rate float32) error
	Gauge(stat string, value int64, rate float32) error
}

//go:generate counterfeiter . DecisionStatter

type DecisionStatter interface {
	RecordDecisionDuration(logger lager.Logger, d time.Duration)
	SendAllowed(logger lager.Logger)
	SendDenied(logger lager.Logger)
	SendStats(logger lager.Logger)
}

type Statter struct {
	StatsD    StatSender
	Histogram *ThreadSafeHistogram
}

func (s *Statter) Rotate() {
	s.Histogram.Rotate()
}

func (s *Statter) RecordDecisionDuration(logger lager.Logger, d time.Duration) {
	err := s.Histogram.RecordValue(int64(d))
	if err != nil {
		logger.Error(failedToRecordHistogramValue, err, lager.Data{
			"value": int64(d),
		})
	}
}

func (s *Statter) SendAllowed(logger lager.Logger) {
	err := s.StatsD.Inc(MetricDecisionsAllowed, 1, AlwaysSendMetric)
	if err != nil {
		logger.Error(failedToSendMetric, err, lager.Data{
			"metric": MetricDecisionsAllowed,
		})
	}
}

func (s *Statter) SendDenied(logger lager.Logger) {
	err := s.StatsD.Inc(MetricDecisionsDenied, 1, AlwaysSendMetric)
	if err != nil {
		logger.Error(failedToSendMetric, err, lager.Data{
			"metric": MetricDecisionsDenied,
		})
	}
}

func (s *Statter) SendStats(logger lager.Logger) {
	s.sendGauge(logger, MetricDecisionTimingMax, s.Histogram.Max())
	s.sendGauge(logger, MetricDecisionTimingP90, s.Histogram.ValueAtQuantile(90))
	s.sendGauge(logger, MetricDecisionTimingP99, s.Histogram.ValueAtQuantile(99))
	s.sendGauge(logger, MetricDecisionTimingP999, s.Histogram.ValueAtQuantile(99.9))

	s.Rotate()
}

func (s *Statter) sendGauge(logger lager.Logger, metric string, value int64) {
	err := s.StatsD.Gauge(metric, value, AlwaysSendMetric)
	if err != nil {
		logger.Error(failedToSendMetric, err, lager.Data{
			"metric": metric,
			"value":  value,
		})
	}
}
