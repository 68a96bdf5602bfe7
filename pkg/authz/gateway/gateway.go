// Package gateway is the sole public entry point of the authorization core.
// It maps application actions to permissions and folds every internal failure
// into a Deny decision.
package gateway

import (
	"context"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager"
	"github.com/agily/omicron/pkg/authz"
	"github.com/agily/omicron/pkg/authz/resolver"
	"github.com/agily/omicron/pkg/authz/schema"
	"github.com/agily/omicron/pkg/monitor"
)

const (
	messageAuthorized = "authorized"
	messageDenied     = "denied"

	errUnknownAction     = "unknown-action"
	errResolutionFailed  = "resolution-failed"
	errWrongResourceType = "wrong-resource-type"
)

// ActionMapping binds one application-level action to the permission it
// requires on a given resource type. The table is owned by the calling layer.
type ActionMapping struct {
	Permission   string
	ResourceType string
}

type Gateway struct {
	registry *schema.Registry
	resolver *resolver.Resolver
	actions  map[string]ActionMapping

	statter monitor.DecisionStatter
	clock   clock.Clock
}

type Option func(*Gateway)

// WithStatter emits allow/deny counters and resolution timings.
func WithStatter(statter monitor.DecisionStatter) Option {
	return func(g *Gateway) {
		g.statter = statter
	}
}

func WithClock(clk clock.Clock) Option {
	return func(g *Gateway) {
		g.clock = clk
	}
}

func NewGateway(
	registry *schema.Registry,
	res *resolver.Resolver,
	actions map[string]ActionMapping,
	opts ...Option,
) *Gateway {
	// The table must not change under concurrent requests.
	table := make(map[string]ActionMapping, len(actions))
	for action, mapping := range actions {
		table[action] = mapping
	}
	g := &Gateway{
		registry: registry,
		resolver: res,
		actions:  table,
		clock:    clock.NewClock(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize decides whether the actor may perform the action on the resource.
// It never returns an error: any schema violation or store failure is a Deny
// with a diagnostic reason, and no failure path can produce Allow.
func (g *Gateway) Authorize(
	ctx context.Context,
	logger lager.Logger,
	actor authz.Actor,
	action string,
	resource authz.Resource,
) authz.Decision {
	started := g.clock.Now()
	decision := g.decide(ctx, logger, actor, action, resource)

	if g.statter != nil {
		g.statter.RecordDecisionDuration(logger, g.clock.Since(started))
		if decision.Allowed {
			g.statter.SendAllowed(logger)
		} else {
			g.statter.SendDenied(logger)
		}
	}

	return decision
}

func (g *Gateway) decide(
	ctx context.Context,
	logger lager.Logger,
	actor authz.Actor,
	action string,
	resource authz.Resource,
) authz.Decision {
	logger = logger.Session("authorize", lager.Data{
		"action":        action,
		"resource.type": resource.Type,
		"resource.id":   resource.ID,
	})

	mapping, ok := g.actions[action]
	if !ok {
		logger.Error(errUnknownAction, nil)
		return authz.Deny(authz.ReasonUnknownAction)
	}
	if mapping.ResourceType != resource.Type {
		logger.Error(errWrongResourceType, nil, lager.Data{"expected": mapping.ResourceType})
		return authz.Deny(authz.ReasonSchema)
	}

	if !actor.Authenticated() {
		anonymous, err := g.registry.AllowsAnonymous(resource.Type, mapping.Permission)
		if err != nil {
			logger.Error(errResolutionFailed, err)
			return authz.Deny(authz.ReasonSchema)
		}
		if !anonymous {
			return authz.Deny(authz.ReasonNotAuthenticated)
		}
	}

	allowed, err := g.resolver.HasPermission(ctx, logger, actor, resource, mapping.Permission)
	if err != nil {
		logger.Error(errResolutionFailed, err)
		return authz.Deny(denyReason(err))
	}

	if !allowed {
		logger.Debug(messageDenied)
		return authz.Deny(authz.ReasonNoGrant)
	}

	logger.Debug(messageAuthorized)
	return authz.Allow()
}

func denyReason(err error) authz.Reason {
	switch err.(type) {
	case authz.SchemaError:
		return authz.ReasonSchema
	case authz.StoreUnavailableError:
		return authz.ReasonStoreUnavailable
	default:
		return authz.ReasonStoreUnavailable
	}
}
