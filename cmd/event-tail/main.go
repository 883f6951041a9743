package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/hackgods/opd-token-allocation/internal/config"
	"github.com/hackgods/opd-token-allocation/internal/events"
	"github.com/hackgods/opd-token-allocation/internal/kafkax"
	"github.com/hackgods/opd-token-allocation/internal/logging"
	"github.com/hackgods/opd-token-allocation/internal/telemetry"
)

const serviceName = "opd-event-tail"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New(serviceName, "prod", "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(serviceName, cfg.Env, cfg.LogLevel)
	if !cfg.KafkaEnabled() {
		logger.Fatal().Msg("KAFKA_BROKERS is required")
	}
	logger.Info().
		Strs("brokers", cfg.KafkaBrokers).
		Str("topic", cfg.KafkaTopic).
		Str("group_id", cfg.KafkaGroupID).
		Msg("event-tail starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(rootCtx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSamplingRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("telemetry setup error")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Error().Err(err).Msg("tracer shutdown error")
		}
	}()

	reader := kafkax.NewReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	kafkax.NewConsumer(reader, logEvent(logger), logger).Run(rootCtx)

	logger.Info().Msg("shutting down event-tail")
}

// logEvent prints each event as one structured line. Preemptions log at warn.
func logEvent(logger zerolog.Logger) kafkax.Handler {
	return func(_ context.Context, ev events.EventLog) error {
		lvl := zerolog.InfoLevel
		if ev.EventType == events.TokenPreempted {
			lvl = zerolog.WarnLevel
		}

		e := logger.WithLevel(lvl).
			Str("event_id", ev.EventID).
			Str("event_type", ev.EventType).
			Str("slot_id", ev.SlotID)
		if ev.TokenID != nil {
			e = e.Str("token_id", *ev.TokenID)
		}
		if len(ev.Payload) > 0 {
			e = e.RawJSON("payload", ev.Payload)
		}
		e.Msg("slot event")
		return nil
	}
}
