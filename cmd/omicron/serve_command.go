package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager"
	"github.com/agily/omicron/cmd/flags"
	"github.com/agily/omicron/pkg/authz"
	"github.com/agily/omicron/pkg/authz/gateway"
	"github.com/agily/omicron/pkg/authz/repos/db"
	"github.com/agily/omicron/pkg/authz/resolver"
	"github.com/agily/omicron/pkg/authz/schema"
	"github.com/agily/omicron/pkg/confgen"
	"github.com/agily/omicron/pkg/monitor"
	"github.com/cactus/go-statsd-client/statsd"
)

const (
	messageStarting     = "starting"
	messageSchemaLoaded = "schema-loaded"

	errFailedToListen          = "failed-to-listen"
	errInvalidSchema           = "invalid-schema"
	errFailedToServeHTTP       = "failed-to-serve-http"
	errFailedToCreateDirs      = "failed-to-create-directories"
	errFailedToConnectToStatsD = "failed-to-connect-to-statsd"
)

type ServeCommand struct {
	Logger flags.LagerFlag

	Hostname string `long:"listen-hostname" description:"Hostname on which to listen for HTTP traffic" default:"0.0.0.0"`
	Port     int    `long:"listen-port" description:"Port on which to listen for HTTP traffic" default:"12228"`

	ConfigDir   string `long:"config-dir" description:"Directory in which to write generated node configuration files" required:"true"`
	ServicesDir string `long:"services-dir" description:"Directory in which to record managed service registrations" required:"true"`

	DecisionCacheTTL time.Duration `long:"decision-cache-ttl" description:"TTL for cached authorization decisions; 0 disables the cache" default:"0"`

	StatsDHostname string        `long:"statsd-hostname" description:"Hostname of the StatsD endpoint"`
	StatsDPort     int           `long:"statsd-port" description:"Port of the StatsD endpoint" default:"8125"`
	ProbeInterval  time.Duration `long:"probe-interval" description:"Interval between authorization self-checks" default:"30s"`

	SQL flags.DBFlag `group:"SQL" namespace:"sql"`
}

func (cmd ServeCommand) Execute([]string) error {
	logger, _ := cmd.Logger.Logger("omicron")
	logger = logger.Session("serve")

	ctx := context.Background()

	// The schema is validated eagerly; a cycle or dangling reference must
	// kill the process here, never a request later.
	registry, err := schema.NewRegistry(schema.DefaultTypes()...)
	if err != nil {
		logger.Error(errInvalidSchema, err)
		return err
	}
	logger.Info(messageSchemaLoaded, lager.Data{"types": registry.Types()})

	conn, err := cmd.SQL.Connect(ctx, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	store := db.NewStore(conn)
	clk := clock.NewClock()

	resolverOpts := []resolver.Option{
		resolver.WithBootstrapIdentity(schema.DefaultBootstrapActor(), schema.DefaultBootstrapGrant()),
	}
	if cmd.DecisionCacheTTL > 0 {
		// External writers cannot signal invalidation into this process,
		// so the TTL is the only freshness bound when enabled.
		resolverOpts = append(resolverOpts, resolver.WithDecisionCache(
			resolver.NewDecisionCache(clk, cmd.DecisionCacheTTL),
		))
	}

	engineResolver := resolver.NewResolver(registry, store, store, resolverOpts...)

	gatewayOpts := []gateway.Option{gateway.WithClock(clk)}

	var statsDClient statsd.Statter
	if cmd.StatsDHostname != "" {
		addr := fmt.Sprintf("%s:%d", cmd.StatsDHostname, cmd.StatsDPort)
		statsDClient, err = statsd.NewBufferedClient(addr, "omicron", time.Second, 0)
		if err != nil {
			logger.Error(errFailedToConnectToStatsD, err, lager.Data{"addr": addr})
			return err
		}
		defer statsDClient.Close()
	}

	var statter *monitor.Statter
	if statsDClient != nil {
		statter = &monitor.Statter{
			StatsD: statsDClient,
			Histogram: monitor.NewThreadSafeHistogram(
				monitor.DecisionHistogramWindow,
				time.Microsecond,
				time.Minute,
				monitor.SigFigs,
			),
		}
		gatewayOpts = append(gatewayOpts, gateway.WithStatter(statter))
	}

	engineGateway := gateway.NewGateway(registry, engineResolver, defaultActions(), gatewayOpts...)

	if statsDClient != nil {
		probe := monitor.NewProbe(engineGateway, statsDClient,
			monitor.ProbeCheck{
				Actor:    schema.DefaultBootstrapActor(),
				Action:   "db.query",
				Resource: schema.DefaultBootstrapGrant().Resource,
				Allowed:  true,
			},
			monitor.ProbeCheck{
				Actor:    authz.Actor{ID: "probe", Namespace: "system"},
				Action:   "db.query",
				Resource: schema.DefaultBootstrapGrant().Resource,
				Allowed:  false,
			},
		)
		go runProbe(ctx, logger, clk, probe, statter, cmd.ProbeInterval)
	}

	service := confgen.NewService(cmd.ConfigDir, confgen.NewFileRegistrar(cmd.ServicesDir))
	if err := ensureDirs(cmd.ConfigDir, cmd.ServicesDir); err != nil {
		logger.Error(errFailedToCreateDirs, err)
		return err
	}
	handler := confgen.NewHandler(logger, service)

	addr := fmt.Sprintf("%s:%d", cmd.Hostname, cmd.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error(errFailedToListen, err, lager.Data{"addr": addr})
		return err
	}

	logger.Info(messageStarting, lager.Data{"addr": addr})
	if err := http.Serve(listener, handler); err != nil {
		logger.Error(errFailedToServeHTTP, err)
		return err
	}

	return nil
}

// defaultActions is the action table this deployment exposes. The table is
// owned here, not by the authorization core.
func defaultActions() map[string]gateway.ActionMapping {
	return map[string]gateway.ActionMapping{
		"fleet.read":          {Permission: schema.PermRead, ResourceType: schema.TypeFleet},
		"fleet.modify":        {Permission: schema.PermModify, ResourceType: schema.TypeFleet},
		"organization.read":   {Permission: schema.PermRead, ResourceType: schema.TypeOrganization},
		"organization.modify": {Permission: schema.PermModify, ResourceType: schema.TypeOrganization},
		"project.read":        {Permission: schema.PermRead, ResourceType: schema.TypeProject},
		"project.modify":      {Permission: schema.PermModify, ResourceType: schema.TypeProject},
		"project.create":      {Permission: schema.PermCreateChild, ResourceType: schema.TypeOrganization},
		"db.query":            {Permission: schema.PermDBQuery, ResourceType: schema.TypeDatabase},
		"db.modify":           {Permission: schema.PermDBModify, ResourceType: schema.TypeDatabase},
	}
}

func runProbe(
	ctx context.Context,
	logger lager.Logger,
	clk clock.Clock,
	probe *monitor.Probe,
	statter *monitor.Statter,
	interval time.Duration,
) {
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			probe.Run(ctx, logger)
			statter.SendStats(logger)
		}
	}
}
