package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/apartment-hub/internal/core/domain"
	"github.com/rl1809/apartment-hub/internal/port"
)

type CatalogService struct {
	store port.Store
	log   *slog.Logger
}

func NewCatalogService(store port.Store, log *slog.Logger) *CatalogService {
	return &CatalogService{store: store, log: log}
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, domain.NotFoundError("product")
	}
	return product, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, p domain.Principal, in domain.ProductInput) (*domain.Product, error) {
	if !p.IsStaff() {
		return nil, fmt.Errorf("%w: only staff can add products", domain.ErrForbidden)
	}
	if err := in.Validate(true); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	product.Apply(in)

	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	s.log.InfoContext(ctx, "product created", "product_id", product.ID, "by", p.ResidentID)
	return &product, nil
}

// UpdateProduct changes live catalog data only. Order lines already carry
// their own copy of the price.
func (s *CatalogService) UpdateProduct(ctx context.Context, p domain.Principal, id string, in domain.ProductInput) (*domain.Product, error) {
	if !p.IsStaff() {
		return nil, fmt.Errorf("%w: only staff can change products", domain.ErrForbidden)
	}
	if err := in.Validate(false); err != nil {
		return nil, err
	}

	var updated domain.Product
	err := s.store.RunInTx(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		product, err := repo.GetProduct(ctx, id)
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}
		if product == nil {
			return domain.NotFoundError("product")
		}
		product.Apply(in)
		product.UpdatedAt = time.Now().UTC()
		if err := repo.UpdateProduct(ctx, *product); err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		updated = *product
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
