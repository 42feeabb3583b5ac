package payment

import (
	"errors"
	"net/url"

	"cloudvps-middleware/internal/gateway/comgate"
	"cloudvps-middleware/internal/hostbill"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Controller struct {
	useCase *UseCase
	log     *zap.Logger
	tracer  trace.Tracer
}

func NewController(useCase *UseCase, log *zap.Logger, tracer trace.Tracer) *Controller {
	return &Controller{useCase: useCase, log: log, tracer: tracer}
}

func (ct *Controller) Register(r fiber.Router) {
	r.Post("/payments", ct.Initiate)
	r.Get("/payments/:transId", ct.Status)
	r.Post("/payments/:transId/capture", ct.Capture)
	r.Post("/callbacks/comgate", ct.ComgateCallback)
	r.Post("/callbacks/payu/success", ct.PayUReturn)
	r.Post("/callbacks/payu/failure", ct.PayUReturn)
}

func (ct *Controller) Initiate(c *fiber.Ctx) error {
	ctx, span := ct.tracer.Start(c.UserContext(), "Controller.InitiatePayment",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	var req InitiateRequest
	if err := c.BodyParser(&req); err != nil {
		span.SetStatus(codes.Error, "invalid body")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid body"})
	}
	if req.InvoiceID == "" || req.Gateway == "" {
		span.SetStatus(codes.Error, "missing required fields")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invoice_id and gateway are required"})
	}

	checkout, err := ct.useCase.Initiate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ct.fail(c, "failed to initiate payment", err)
	}
	span.SetStatus(codes.Ok, "")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "checkout": checkout})
}

func (ct *Controller) Status(c *fiber.Ctx) error {
	ctx, span := ct.tracer.Start(c.UserContext(), "Controller.PaymentStatus",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	sess, err := ct.useCase.Session(ctx, c.Params("transId"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ct.fail(c, "failed to load payment session", err)
	}
	span.SetStatus(codes.Ok, "")
	return c.JSON(fiber.Map{"success": true, "payment": sess})
}

// Capture is the manual "capture payment" action.
func (ct *Controller) Capture(c *fiber.Ctx) error {
	ctx, span := ct.tracer.Start(c.UserContext(), "Controller.CapturePayment",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	res, err := ct.useCase.CaptureTransaction(ctx, c.Params("transId"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ct.fail(c, "failed to capture payment", err)
	}
	span.SetStatus(codes.Ok, "")
	return c.JSON(fiber.Map{"success": true, "result": res})
}

// ComgateCallback answers in Comgate's urlencoded format; a non-zero code makes
// Comgate retry the notification.
func (ct *Controller) ComgateCallback(c *fiber.Ctx) error {
	ctx, span := ct.tracer.Start(c.UserContext(), "Controller.ComgateCallback",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	form, err := url.ParseQuery(string(c.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "invalid body")
		return c.Status(fiber.StatusBadRequest).SendString("code=1&message=invalid+body")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	if _, err := ct.useCase.HandleComgateCallback(ctx, form); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		status := statusFor(err)
		ct.log.Warn("comgate callback rejected", zap.Int("status", status), zap.Error(err))
		q := url.Values{}
		q.Set("code", "1")
		q.Set("message", err.Error())
		return c.Status(status).SendString(q.Encode())
	}
	span.SetStatus(codes.Ok, "")
	return c.SendString(comgate.CallbackAck)
}

// PayUReturn handles the customer's browser posting back from PayU and sends
// them on to the storefront result page.
func (ct *Controller) PayUReturn(c *fiber.Ctx) error {
	ctx, span := ct.tracer.Start(c.UserContext(), "Controller.PayUReturn",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	form, err := url.ParseQuery(string(c.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "invalid body")
		return c.Redirect(ct.useCase.ResultURL(nil), fiber.StatusSeeOther)
	}

	sess, err := ct.useCase.HandlePayUResponse(ctx, form)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ct.log.Warn("payu response rejected", zap.String("txnid", form.Get("txnid")), zap.Error(err))
		if errors.Is(err, ErrInvalidCallback) {
			sess = nil
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return c.Redirect(ct.useCase.ResultURL(sess), fiber.StatusSeeOther)
}

func (ct *Controller) fail(c *fiber.Ctx, msg string, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		ct.log.Error(msg, zap.Error(err))
	} else {
		ct.log.Warn(msg, zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"success": false, "error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedGateway), errors.Is(err, ErrInvalidCallback):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, hostbill.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrAlreadyPaid), errors.Is(err, ErrInvoiceCancelled),
		errors.Is(err, ErrNotCapturable), errors.Is(err, ErrAmountMismatch):
		return fiber.StatusConflict
	case errors.Is(err, ErrGatewayNotConfigured):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusBadGateway
}
