package monitor

import (
	"context"

	"code.cloudfoundry.org/lager"
	"github.com/agily/omicron/pkg/authz"
)

const (
	MetricProbeRunsCorrect = "authz.probe.runs.correct"
	MetricProbeRunsSuccess = "authz.probe.runs.success"

	MetricProbeFailure = 0
	MetricProbeSuccess = 1
)

const (
	probeIncorrectDecision = "probe-incorrect-decision"
)

//go:generate counterfeiter . Authorizer

type Authorizer interface {
	Authorize(
		ctx context.Context,
		logger lager.Logger,
		actor authz.Actor,
		action string,
		resource authz.Resource,
	) authz.Decision
}

// ProbeCheck is one authorization the probe performs with a known expected
// outcome.
type ProbeCheck struct {
	Actor    authz.Actor
	Action   string
	Resource authz.Resource
	Allowed  bool
}

// Probe runs known-answer authorizations against the live engine and reports
// whether decisions still come out correct.
type Probe struct {
	authorizer Authorizer
	statsd     StatSender
	checks     []ProbeCheck
}

func NewProbe(authorizer Authorizer, statsd StatSender, checks ...ProbeCheck) *Probe {
	return &Probe{
		authorizer: authorizer,
		statsd:     statsd,
		checks:     checks,
	}
}

// Run performs every check and gauges correctness. It returns false if any
// decision disagreed with its expectation.
func (p *Probe) Run(ctx context.Context, logger lager.Logger) bool {
	logger = logger.Session("probe")

	correct := true
	for _, check := range p.checks {
		decision := p.authorizer.Authorize(ctx, logger, check.Actor, check.Action, check.Resource)
		if decision.Allowed != check.Allowed {
			logger.Error(probeIncorrectDecision, nil, lager.Data{
				"action":        check.Action,
				"resource.type": check.Resource.Type,
				"resource.id":   check.Resource.ID,
				"expected":      check.Allowed,
				"actual":        decision.Allowed,
				"reason":        decision.Reason,
			})
			correct = false
		}
	}

	p.sendGauge(logger, MetricProbeRunsSuccess, MetricProbeSuccess)
	if correct {
		p.sendGauge(logger, MetricProbeRunsCorrect, MetricProbeSuccess)
	} else {
		p.sendGauge(logger, MetricProbeRunsCorrect, MetricProbeFailure)
	}

	return correct
}

func (p *Probe) sendGauge(logger lager.Logger, metric string, value int64) {
	if err := p.statsd.Gauge(metric, value, AlwaysSendMetric); err != nil {
		logger.Error(failedToSendMetric, err, lager.Data{"metric": metric})
	}
}
