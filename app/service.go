package app

import (
	"context"
	"fmt"
	"time"

	"github.com/mtkallio/spotcharge/config"
	coremetrics "github.com/mtkallio/spotcharge/core/metrics"
	"github.com/mtkallio/spotcharge/core/orchestrator"
	"github.com/mtkallio/spotcharge/infra/entsoe"
	"github.com/mtkallio/spotcharge/infra/logger"
	"github.com/mtkallio/spotcharge/infra/mail"
	"github.com/mtkallio/spotcharge/infra/metrics"
	"github.com/mtkallio/spotcharge/infra/mqttcharger"
	"github.com/mtkallio/spotcharge/infra/zaptec"
)

// Service assembles the orchestrator and its collaborators from the
// configuration for a single invocation.
type Service struct {
	cfg  *config.Config
	orc  *orchestrator.Orchestrator
	sink coremetrics.Sink
	log  logger.Logger

	closeController func()
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	provider := entsoe.NewClient(cfg.Market.Entsoe)

	var controller orchestrator.Controller = orchestrator.NopController{}
	var closeController func()
	switch cfg.Charger.Vendor {
	case "zaptec":
		controller = zaptec.NewClient(cfg.Charger.Zaptec)
	case "mqtt":
		cli, err := mqttcharger.NewClient(cfg.Charger.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt charger: %w", err)
		}
		controller = cli
		closeController = cli.Close
	}

	var mailer orchestrator.Mailer = orchestrator.NopMailer{}
	if cfg.SMTP.Host != "" {
		mailer = mail.NewSender(cfg.SMTP)
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	if cfg.Metrics.PushgatewayEnabled {
		sinks = append(sinks, metrics.NewPushSink(cfg.Metrics))
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = coremetrics.NewMultiSink(sinks...)
	}

	orc, err := orchestrator.New(provider, controller, mailer, sink, logg, cfg.Charger.CommandRetries)
	if err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, orc: orc, sink: sink, log: logg, closeController: closeController}, nil
}

// Run executes one plan-and-charge cycle for the configured market day.
func (s *Service) Run(ctx context.Context) (*orchestrator.RunResult, error) {
	loc, err := s.cfg.Market.Location()
	if err != nil {
		return nil, err
	}
	day, err := s.cfg.Market.Day(time.Now(), loc)
	if err != nil {
		return nil, err
	}
	constraints, err := s.cfg.Charge.Constraints(day)
	if err != nil {
		return nil, err
	}
	s.log.Infof("planning %s for zone %s", day.Format("2006-01-02"), s.cfg.Market.Zone)
	return s.orc.Run(ctx, day, s.cfg.Market.Zone, constraints)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.closeController != nil {
		s.closeController()
	}
	return s.sink.Close()
}
