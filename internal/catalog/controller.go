package catalog

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Controller struct {
	service *Service
	log     *zap.Logger
	tracer  trace.Tracer
}

func NewController(service *Service, log *zap.Logger, tracer trace.Tracer) *Controller {
	return &Controller{service: service, log: log, tracer: tracer}
}

func (ct *Controller) Register(r fiber.Router) {
	r.Get("/catalog/products", ct.List)
	r.Get("/catalog/products/:id", ct.Get)
}

func (ct *Controller) List(c *fiber.Ctx) error {
	ctx, span := ct.tracer.Start(c.UserContext(), "Controller.ListProducts",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	products, err := ct.service.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ct.log.Error("failed to list products", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "error": "catalog unavailable"})
	}
	span.SetStatus(codes.Ok, "")
	return c.JSON(fiber.Map{"success": true, "products": products})
}

func (ct *Controller) Get(c *fiber.Ctx) error {
	ctx, span := ct.tracer.Start(c.UserContext(), "Controller.GetProduct",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	product, err := ct.service.Get(ctx, c.Params("id"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrUnknownProduct) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": err.Error()})
		}
		ct.log.Error("failed to get product", zap.String("product_id", c.Params("id")), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "error": "catalog unavailable"})
	}
	span.SetStatus(codes.Ok, "")
	return c.JSON(fiber.Map{"success": true, "product": product})
}
