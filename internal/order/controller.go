package order

import (
	"errors"

	"cloudvps-middleware/internal/catalog"
	"cloudvps-middleware/internal/hostbill"
	"cloudvps-middleware/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/baggage"
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
	r.Post("/orders", ct.Create)
	r.Get("/orders/:id", ct.Get)
	r.Post("/orders/:id/cancel", ct.Cancel)
	r.Get("/invoices/:id", ct.Invoice)
}

func (ct *Controller) Create(c *fiber.Ctx) error {
	ctx, span := ct.tracer.Start(c.UserContext(), "Controller.CreateOrder",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	var req models.OrderRequest
	if err := c.BodyParser(&req); err != nil {
		span.SetStatus(codes.Error, "invalid body")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid body"})
	}

	if req.ClientID != "" {
		member, _ := baggage.NewMember("client_id", req.ClientID)
		bag, _ := baggage.New(member)
		ctx = baggage.ContextWithBaggage(ctx, bag)
	}

	order, err := ct.useCase.PlaceOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ct.fail(c, "failed to place order", err)
	}
	span.SetStatus(codes.Ok, "")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "order": order})
}

func (ct *Controller) Get(c *fiber.Ctx) error {
	ctx, span := ct.tracer.Start(c.UserContext(), "Controller.GetOrder",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	order, err := ct.useCase.GetOrder(ctx, c.Params("id"))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ct.fail(c, "failed to get order", err)
	}
	span.SetStatus(codes.Ok, "")
	return c.JSON(fiber.Map{"success": true, "order": order})
}

func (ct *Controller) Cancel(c *fiber.Ctx) error {
	ctx, span := ct.tracer.Start(c.UserContext(), "Controller.CancelOrder",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	order, err := ct.useCase.CancelOrder(ctx, c.Params("id"))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ct.fail(c, "failed to cancel order", err)
	}
	span.SetStatus(codes.Ok, "")
	return c.JSON(fiber.Map{"success": true, "order": order})
}

func (ct *Controller) Invoice(c *fiber.Ctx) error {
	ctx, span := ct.tracer.Start(c.UserContext(), "Controller.GetInvoice",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	inv, err := ct.useCase.GetInvoice(ctx, c.Params("id"))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ct.fail(c, "failed to get invoice", err)
	}
	span.SetStatus(codes.Ok, "")
	return c.JSON(fiber.Map{"success": true, "invoice": inv})
}

func (ct *Controller) fail(c *fiber.Ctx, msg string, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		ct.log.Error(msg, zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"success": false, "error": "billing backend error"})
	}
	ct.log.Warn(msg, zap.Error(err))
	return c.Status(status).JSON(fiber.Map{"success": false, "error": err.Error()})
}

func statusFor(err error) int {
	var apiErr *hostbill.APIError
	switch {
	case errors.Is(err, ErrInvalidOrder),
		errors.Is(err, catalog.ErrUnknownProduct),
		errors.Is(err, catalog.ErrUnknownAddon),
		errors.Is(err, catalog.ErrUnknownCycle):
		return fiber.StatusBadRequest
	case errors.Is(err, hostbill.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrOrderActive):
		return fiber.StatusConflict
	case errors.As(err, &apiErr):
		// HostBill rejected the request itself (validation, duplicate email).
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusBadGateway
}
