package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloudvps-middleware/internal/gateway/comgate"
	"cloudvps-middleware/internal/gateway/payu"
	"cloudvps-middleware/internal/models"

	"github.com/spf13/cobra"
)

func simulateCmd(a *app) *cobra.Command {
	var target string

	c := &cobra.Command{
		Use:   "simulate",
		Short: "Post a signed gateway callback to a running middleware",
	}
	c.PersistentFlags().StringVar(&target, "url", "", "middleware base URL (default: PUBLIC_URL)")
	base := func() string {
		if target != "" {
			return strings.TrimRight(target, "/")
		}
		return a.cfg.PublicURL
	}
	c.AddCommand(simulateComgateCmd(a, base), simulatePayUCmd(a, base))
	return c
}

func simulateComgateCmd(a *app, base func() string) *cobra.Command {
	var (
		invoice  string
		status   string
		price    string
		currency string
	)

	cmd := &cobra.Command{
		Use:   "comgate <trans-id>",
		Short: "Send a Comgate status notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cg := comgate.New(comgate.Config{
				Merchant: a.cfg.Comgate.Merchant,
				Secret:   a.cfg.Comgate.Secret,
				Test:     a.cfg.Comgate.Test,
				Currency: a.cfg.Comgate.Currency,
			})
			if !cg.Configured() {
				return comgate.ErrNotConfigured
			}
			cents, err := models.ParseCents(price)
			if err != nil {
				return fmt.Errorf("--price: %w", err)
			}
			form := cg.CallbackForm(args[0], invoice, strings.ToUpper(status), cents, currency)
			return postForm(cmd.Context(), cmd.OutOrStdout(), base()+"/callbacks/comgate", form)
		},
	}

	cmd.Flags().StringVar(&invoice, "invoice", "", "invoice ID sent as refId")
	cmd.Flags().StringVar(&status, "status", comgate.StatusPaid, "PAID, AUTHORIZED, CANCELLED or PENDING")
	cmd.Flags().StringVar(&price, "price", "", "amount, e.g. 242.00")
	cmd.Flags().StringVar(&currency, "currency", "", "currency (default: COMGATE_CURRENCY)")
	_ = cmd.MarkFlagRequired("invoice")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func simulatePayUCmd(a *app, base func() string) *cobra.Command {
	var (
		invoice     string
		order       string
		amount      string
		status      string
		productInfo string
		firstName   string
		email       string
	)

	cmd := &cobra.Command{
		Use:   "payu <txnid>",
		Short: "Send a PayU success or failure response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw := payu.New(payu.Config{Key: a.cfg.PayU.Key, Salt: a.cfg.PayU.Salt})
			if !gw.Configured() {
				return payu.ErrNotConfigured
			}
			cents, err := models.ParseCents(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}

			form := url.Values{}
			form.Set("txnid", args[0])
			form.Set("mihpayid", fmt.Sprintf("SIM%d", time.Now().Unix()))
			form.Set("status", status)
			form.Set("amount", models.FormatCents(cents))
			form.Set("productinfo", productInfo)
			form.Set("firstname", firstName)
			form.Set("email", email)
			form.Set("udf1", invoice)
			form.Set("udf2", order)
			gw.SignResponse(form)

			path := "/callbacks/payu/success"
			if !strings.EqualFold(status, payu.StatusSuccess) {
				path = "/callbacks/payu/failure"
			}
			return postForm(cmd.Context(), cmd.OutOrStdout(), base()+path, form)
		},
	}

	cmd.Flags().StringVar(&invoice, "invoice", "", "invoice ID (udf1)")
	cmd.Flags().StringVar(&order, "order", "", "order ID (udf2)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount, e.g. 242.00")
	cmd.Flags().StringVar(&status, "status", payu.StatusSuccess, "success or failure")
	cmd.Flags().StringVar(&productInfo, "productinfo", "CloudVPS", "product description")
	cmd.Flags().StringVar(&firstName, "firstname", "Test", "customer first name")
	cmd.Flags().StringVar(&email, "email", "test@example.com", "customer email")
	_ = cmd.MarkFlagRequired("invoice")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func postForm(ctx context.Context, out io.Writer, target string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	// PayU callbacks answer with a redirect; show it instead of following it.
	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	fmt.Fprintf(out, "%s %s\n", resp.Status, target)
	if loc := resp.Header.Get("Location"); loc != "" {
		fmt.Fprintf(out, "Location: %s\n", loc)
	}
	if len(body) > 0 {
		fmt.Fprintln(out, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("middleware answered %s", resp.Status)
	}
	return nil
}
