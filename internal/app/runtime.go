// Package app wires configuration, telemetry and the HostBill, Redis and
// gateway clients shared by the middleware binaries.
package app

import (
	"context"
	"fmt"

	"cloudvps-middleware/internal/cache"
	"cloudvps-middleware/internal/config"
	"cloudvps-middleware/internal/gateway/comgate"
	"cloudvps-middleware/internal/gateway/payu"
	"cloudvps-middleware/internal/hostbill"
	"cloudvps-middleware/internal/models"
	"cloudvps-middleware/internal/payment"
	"cloudvps-middleware/internal/telemetry"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Runtime struct {
	Config  *config.Config
	Log     *zap.Logger
	Tracer  trace.Tracer
	Metrics *telemetry.Metrics

	shutdown func(context.Context)
}

// Start loads configuration and sets up telemetry for the named service.
func Start(ctx context.Context, service string) (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireHostBill(); err != nil {
		return nil, err
	}

	log, tracer, meter, shutdown, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: service,
		Endpoint:    cfg.OTLPEndpoint,
		Level:       zapcore.InfoLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}
	metrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		shutdown(ctx)
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	return &Runtime{
		Config:   cfg,
		Log:      log,
		Tracer:   tracer,
		Metrics:  metrics,
		shutdown: shutdown,
	}, nil
}

func (r *Runtime) Shutdown(ctx context.Context) {
	r.shutdown(ctx)
}

func (r *Runtime) HostBill() *hostbill.Client {
	hb := r.Config.HostBill
	return hostbill.New(hostbill.Config{
		BaseURL:    hb.BaseURL,
		APIID:      hb.APIID,
		APIKey:     hb.APIKey,
		Timeout:    hb.Timeout,
		RatePerSec: hb.RatePerSec,
		MaxRetries: hb.MaxRetries,
	},
		hostbill.WithLogger(r.Log),
		hostbill.WithTracer(r.Tracer),
		hostbill.WithMetrics(r.Metrics),
	)
}

func (r *Runtime) Redis() *cache.Cache {
	rc := r.Config.Redis
	return cache.NewCache(rc.Addr, rc.Username, rc.Password, rc.DB, rc.SessionTTL)
}

func (r *Runtime) Comgate() *comgate.Client {
	cg := r.Config.Comgate
	return comgate.New(comgate.Config{
		BaseURL:  cg.BaseURL,
		Merchant: cg.Merchant,
		Secret:   cg.Secret,
		Test:     cg.Test,
		Preauth:  cg.Preauth,
		Method:   cg.Method,
		Currency: cg.Currency,
	}, comgate.WithTracer(r.Tracer))
}

func (r *Runtime) PayU() *payu.Gateway {
	p := r.Config.PayU
	return payu.New(payu.Config{
		Key:        p.Key,
		Salt:       p.Salt,
		ActionURL:  p.ActionURL,
		SuccessURL: p.SuccessURL,
		FailureURL: p.FailureURL,
	})
}

// GatewayModules maps storefront gateway names to HostBill payment modules.
func (r *Runtime) GatewayModules() map[string]string {
	return map[string]string{
		models.GatewayComgate: r.Config.HostBill.ComgateModule,
		models.GatewayPayU:    r.Config.HostBill.PayUModule,
	}
}

// PaymentUseCase builds the payment use case over the given session store and
// event publisher.
func (r *Runtime) PaymentUseCase(hb *hostbill.Client, sessions payment.Sessions, events payment.Publisher) *payment.UseCase {
	return payment.NewUseCase(payment.Deps{
		HostBill:  hb,
		Comgate:   r.Comgate(),
		PayU:      r.PayU(),
		Sessions:  sessions,
		Publisher: events,
		Modules: payment.Modules{
			Comgate: r.Config.HostBill.ComgateModule,
			PayU:    r.Config.HostBill.PayUModule,
		},
		ResultURL: r.Config.StorefrontURL + "/payment/result",
		Metrics:   r.Metrics,
		Log:       r.Log,
		Tracer:    r.Tracer,
	})
}
