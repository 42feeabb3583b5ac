package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloudvps-middleware/internal/cache"
	"cloudvps-middleware/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	listCacheKey       = "catalog:products"
	productCachePrefix = "catalog:product:"
)

// ProductSource is the part of the HostBill client the catalog reads from.
type ProductSource interface {
	GetProducts(ctx context.Context, categoryID string) ([]models.Product, error)
	GetProductDetails(ctx context.Context, id string) (*models.Product, error)
}

type Store interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetTTL(ctx context.Context, key string, value any, ttl time.Duration) error
}

type Service struct {
	mapping *Mapping
	source  ProductSource
	store   Store
	ttl     time.Duration
	log     *zap.Logger
	tracer  trace.Tracer
}

// NewService builds the catalog. store may be nil to disable caching.
func NewService(mapping *Mapping, source ProductSource, store Store, ttl time.Duration, log *zap.Logger, tracer trace.Tracer) *Service {
	return &Service{mapping: mapping, source: source, store: store, ttl: ttl, log: log, tracer: tracer}
}

func (s *Service) Mapping() *Mapping { return s.mapping }

// List returns the visible HostBill products that have a storefront ID, keyed
// by storefront ID and sorted by it.
func (s *Service) List(ctx context.Context) ([]models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "Catalog.List")
	defer span.End()

	var products []models.Product
	if s.cached(ctx, listCacheKey, &products) {
		span.SetAttributes(attribute.Bool("catalog.cache_hit", true))
		return products, nil
	}

	products = []models.Product{}
	for _, category := range s.mapping.Categories {
		items, err := s.source.GetProducts(ctx, category)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("list products of category %s: %w", category, err)
		}
		for _, p := range items {
			id, ok := s.mapping.StorefrontProductID(p.HostBillID)
			if !ok || !p.Visible {
				continue
			}
			p.ID = id
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })

	s.remember(ctx, listCacheKey, products)
	span.SetAttributes(attribute.Int("catalog.products", len(products)))
	span.SetStatus(codes.Ok, "")
	return products, nil
}

// Get returns one product with its mapped addons.
func (s *Service) Get(ctx context.Context, storefrontID string) (*models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "Catalog.Get", trace.WithAttributes(attribute.String("catalog.product_id", storefrontID)))
	defer span.End()

	hbID, ok := s.mapping.HostBillProductID(storefrontID)
	if !ok {
		span.SetStatus(codes.Error, "unknown product")
		return nil, fmt.Errorf("%w: %q", ErrUnknownProduct, storefrontID)
	}

	var product models.Product
	if s.cached(ctx, productCachePrefix+storefrontID, &product) {
		span.SetAttributes(attribute.Bool("catalog.cache_hit", true))
		return &product, nil
	}

	p, err := s.source.GetProductDetails(ctx, hbID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("product %s: %w", storefrontID, err)
	}
	p.ID = storefrontID
	addons := p.Addons[:0]
	for _, a := range p.Addons {
		if id, ok := s.mapping.StorefrontAddonID(a.HostBillID); ok {
			a.ID = id
			addons = append(addons, a)
		}
	}
	p.Addons = addons

	s.remember(ctx, productCachePrefix+storefrontID, p)
	span.SetStatus(codes.Ok, "")
	return p, nil
}

func (s *Service) cached(ctx context.Context, key string, dst any) bool {
	if s.store == nil {
		return false
	}
	err := s.store.GetJSON(ctx, key, dst)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.log.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
	}
	return false
}

func (s *Service) remember(ctx context.Context, key string, value any) {
	if s.store == nil {
		return
	}
	if err := s.store.SetTTL(ctx, key, value, s.ttl); err != nil {
		s.log.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}
