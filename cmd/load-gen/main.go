package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloudvps-middleware/internal/models"
	"cloudvps-middleware/internal/telemetry"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var products = []string{"vps-start", "vps-standard", "vps-pro"}
var cycles = []string{"monthly", "quarterly", "annually"}
var addons = [][]string{
	nil,
	{"backup"},
	{"backup", "extra-ip"},
	{"managed"},
}
var gateways = []string{models.GatewayComgate, models.GatewayPayU}

func middlewareAddr() string {
	if v := os.Getenv("MIDDLEWARE_ADDR"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, _, _, shutdown, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: "load-gen",
		Endpoint:    telemetry.EndpointDisabled,
		Level:       zapcore.InfoLevel,
	})
	if err != nil {
		panic("failed to initialize telemetry: " + err.Error())
	}
	defer shutdown(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down load-gen...")
		cancel()
	}()

	interval := 2 * time.Second
	if v := os.Getenv("INTERVAL_MS"); v != "" {
		if ms, err := time.ParseDuration(v + "ms"); err == nil {
			interval = ms
		}
	}

	addr := middlewareAddr()
	client := &http.Client{Timeout: 30 * time.Second}

	log.Info("load-gen started",
		zap.String("target", addr),
		zap.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			placeOrder(ctx, client, addr, log)
		}
	}
}

func placeOrder(ctx context.Context, client *http.Client, addr string, log *zap.Logger) {
	suffix := uuid.NewString()[:8]
	req := models.OrderRequest{
		Client: &models.Client{
			FirstName: "Load",
			LastName:  "Test " + suffix,
			Email:     fmt.Sprintf("load-%s@example.com", suffix),
			Country:   "CZ",
			Password:  uuid.NewString(),
		},
		ProductID: products[rand.IntN(len(products))],
		Cycle:     cycles[rand.IntN(len(cycles))],
		Addons:    addons[rand.IntN(len(addons))],
		Hostname:  "vps-" + suffix + ".example.com",
		Gateway:   gateways[rand.IntN(len(gateways))],
	}

	var created struct {
		Order models.Order `json:"order"`
	}
	status, err := postJSON(ctx, client, addr+"/orders", req, &created)
	if err != nil {
		log.Warn("order request failed", zap.Error(err))
		return
	}
	log.Info("order sent",
		zap.String("product", req.ProductID),
		zap.String("cycle", req.Cycle),
		zap.Strings("addons", req.Addons),
		zap.String("gateway", req.Gateway),
		zap.Int("http_status", status),
		zap.String("order_id", created.Order.ID),
		zap.String("invoice_id", created.Order.InvoiceID),
	)
	if status != http.StatusCreated || created.Order.InvoiceID == "" {
		return
	}

	var checkout struct {
		Checkout models.Checkout `json:"checkout"`
	}
	status, err = postJSON(ctx, client, addr+"/payments", map[string]string{
		"invoice_id": created.Order.InvoiceID,
		"order_id":   created.Order.ID,
		"gateway":    req.Gateway,
		"email":      req.Client.Email,
	}, &checkout)
	if err != nil {
		log.Warn("payment request failed", zap.Error(err))
		return
	}
	log.Info("payment initiated",
		zap.String("invoice_id", created.Order.InvoiceID),
		zap.Int("http_status", status),
		zap.String("transaction_id", checkout.Checkout.TransactionID),
	)
}

func postJSON(ctx context.Context, client *http.Client, url string, body, dst any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(dst)
	}
	return resp.StatusCode, nil
}
