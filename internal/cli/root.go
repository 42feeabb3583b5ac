// Package cli implements hostbillctl, the operator tool for looking at and
// repairing billing state: invoices, orders, captures, PayU hashes and
// simulated gateway callbacks.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"cloudvps-middleware/internal/cache"
	"cloudvps-middleware/internal/config"
	"cloudvps-middleware/internal/hostbill"
	"cloudvps-middleware/internal/payment"
	"cloudvps-middleware/internal/telemetry"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Config
	log      *zap.Logger
	tracer   trace.Tracer
	shutdown func(context.Context)

	// sessions overrides the Redis session store.
	sessions payment.Sessions
}

func (a *app) hostbill() (*hostbill.Client, error) {
	if err := a.cfg.RequireHostBill(); err != nil {
		return nil, err
	}
	return hostbill.New(hostbill.Config{
		BaseURL:    a.cfg.HostBill.BaseURL,
		APIID:      a.cfg.HostBill.APIID,
		APIKey:     a.cfg.HostBill.APIKey,
		Timeout:    a.cfg.HostBill.Timeout,
		RatePerSec: a.cfg.HostBill.RatePerSec,
		MaxRetries: a.cfg.HostBill.MaxRetries,
	}, hostbill.WithLogger(a.log)), nil
}

// sessionStore returns the payment session store and a func releasing it.
func (a *app) sessionStore() (payment.Sessions, func()) {
	if a.sessions != nil {
		return a.sessions, func() {}
	}
	rc := a.cfg.Redis
	redis := cache.NewCache(rc.Addr, rc.Username, rc.Password, rc.DB, rc.SessionTTL)
	return cache.NewSessionStore(redis, rc.SessionTTL), func() { _ = redis.Close() }
}

func newRootCmd() *cobra.Command {
	return newRootCmdFor(&app{})
}

func newRootCmdFor(a *app) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:          "hostbillctl",
		Short:        "Inspect and repair CloudVPS billing state in HostBill",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			level := zapcore.WarnLevel
			if debug {
				level = zapcore.DebugLevel
			}
			log, tracer, _, shutdown, err := telemetry.Setup(cmd.Context(), telemetry.Options{
				ServiceName: "hostbillctl",
				Endpoint:    telemetry.EndpointDisabled,
				Level:       level,
				Output:      cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			a.cfg, a.log, a.tracer, a.shutdown = cfg, log, tracer, shutdown
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a.shutdown != nil {
				a.shutdown(cmd.Context())
			}
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "log every HostBill call to stderr")
	cmd.AddCommand(
		invoiceCmd(a),
		orderCmd(a),
		captureCmd(a),
		payuCmd(a),
		simulateCmd(a),
		catalogCmd(a),
		comgateCmd(a),
		modulesCmd(a),
	)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
