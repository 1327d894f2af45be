package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/alerting"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/database"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/enforcement"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/metrics"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/pipeline"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/repository"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/services"
)

// stack is the fully wired service graph.
type stack struct {
	pool     *pgxpool.Pool
	registry *prometheus.Registry
	security *security.SecurityConfig

	policies *services.PolicyService
	alerts   *services.AlertService
	audit    *repository.AuditRepository
	pipeline *pipeline.Pipeline

	closers []func() error
}

// buildStack connects to every backing service and wires the layers:
// repositories, recorder, enforcement, services and the analysis pipeline.
// NATS and Kafka are optional and only dialled when configured.
func buildStack(ctx context.Context, rt *cli) (*stack, error) {
	cfg, logger := rt.cfg, rt.logger
	st := &stack{
		registry: prometheus.NewRegistry(),
		security: cfg.Security(),
	}

	pool, err := database.Connect(ctx, database.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	st.pool = pool
	st.closers = append(st.closers, func() error { pool.Close(); return nil })

	st.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(st.registry)

	tp, err := newTracerProvider(ctx, cfg, os.Stdout)
	if err != nil {
		st.Close()
		return nil, err
	}
	otel.SetTracerProvider(tp)
	st.closers = append(st.closers, func() error { return tp.Shutdown(context.Background()) })

	policyRepo := repository.NewPolicyRepository(pool)
	alertRepo := repository.NewAlertRepository(pool)
	st.audit = repository.NewAuditRepository(pool)
	statsRepo := repository.NewStatsRepository(pool)

	var (
		recorderOpts []alerting.Option
		alerter      security.Alerter
	)
	if cfg.NATSURL != "" {
		conn, err := alerting.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.closers = append(st.closers, func() error { return drain(conn) })
		notifier := alerting.NewNATSNotifier(conn, cfg.NATSAlertSubject, logger)
		recorderOpts = append(recorderOpts, alerting.WithNotifier(notifier))
		alerter = notifier
	}
	if len(cfg.KafkaBrokers) > 0 {
		exporter := alerting.NewKafkaAuditExporter(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		st.closers = append(st.closers, exporter.Close)
		recorderOpts = append(recorderOpts, alerting.WithAuditExporter(exporter))
	}
	recorderOpts = append(recorderOpts, alerting.WithAuditTimeout(cfg.AuditTimeout))
	recorder := alerting.NewRecorder(alertRepo, st.audit, logger, m, recorderOpts...)

	vault, err := enforcement.NewVault(cfg.VaultSize)
	if err != nil {
		st.Close()
		return nil, err
	}
	encryptor, err := enforcement.NewAESEncryptor(cfg.EncryptionKey, cfg.EncryptionSalt, vault)
	if err != nil {
		st.Close()
		return nil, err
	}
	blocker := enforcement.NewBlocker(cfg.BlockerEnabled, cfg.BlockerURL, cfg.BlockerAPIKey, cfg.BlockerTimeout, logger)
	executor := enforcement.NewExecutor(blocker, encryptor, enforcement.Config{
		BlockTimeout:   cfg.BlockerTimeout,
		EncryptTimeout: cfg.EncryptorTimeout,
	}, logger, m)

	validator := security.NewValidationService(st.security)
	st.policies = services.NewPolicyService(policyRepo, validator, recorder, logger)
	st.alerts = services.NewAlertService(alertRepo, statsRepo, validator, recorder, logger)

	monitor := security.NewSecurityMonitor(logger, st.security, alerter)
	st.pipeline = pipeline.New(st.policies, executor, recorder, validator, logger,
		pipeline.WithMonitor(monitor),
		pipeline.WithMetrics(m),
		pipeline.WithTracerProvider(tp),
	)
	return st, nil
}

// Close releases resources in reverse order of acquisition.
func (st *stack) Close() error {
	var errs []error
	for i := len(st.closers) - 1; i >= 0; i-- {
		errs = append(errs, st.closers[i]())
	}
	st.closers = nil
	return errors.Join(errs...)
}

func drain(conn *nats.Conn) error {
	if conn.IsClosed() {
		return nil
	}
	return conn.Drain()
}
