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

// CartService maintains the single active basket of each resident.
type CartService struct {
	store port.Store
	log   *slog.Logger
}

var errQuantityTooLarge = domain.ValidationError(fmt.Sprintf("quantity must not exceed %d", domain.MaxLineQuantity))

func NewCartService(store port.Store, log *slog.Logger) *CartService {
	return &CartService{store: store, log: log}
}

// AddLine puts quantity units of a product into the resident's cart,
// creating the cart on first use. A product already in the cart has its
// quantity increased instead of getting a second line.
func (s *CartService) AddLine(ctx context.Context, p domain.Principal, productID string, quantity int) (*domain.Cart, error) {
	if productID == "" {
		return nil, domain.ValidationError("product_id is required")
	}
	if quantity < 1 {
		return nil, domain.ValidationError("quantity must be at least 1")
	}
	if quantity > domain.MaxLineQuantity {
		return nil, errQuantityTooLarge
	}

	var cart *domain.Cart
	err := s.store.RunInTx(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		product, err := repo.GetProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}
		if product == nil {
			return domain.NotFoundError("product")
		}

		current, err := getOrCreateCart(ctx, repo, p.ResidentID)
		if err != nil {
			return err
		}

		if line, ok := current.LineForProduct(productID); ok {
			if line.Quantity > domain.MaxLineQuantity-quantity {
				return errQuantityTooLarge
			}
			err = repo.UpdateCartLineQuantity(ctx, line.ID, line.Quantity+quantity)
		} else {
			err = repo.InsertCartLine(ctx, domain.CartLine{
				ID:        uuid.NewString(),
				CartID:    current.ID,
				ProductID: productID,
				Quantity:  quantity,
			})
		}
		if err != nil {
			return fmt.Errorf("save cart line: %w", err)
		}

		cart, err = repo.GetCartByResident(ctx, p.ResidentID, false)
		if err != nil {
			return fmt.Errorf("reload cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// SetLineQuantity overwrites the quantity of the line holding productID.
// A quantity of zero or less removes the line.
func (s *CartService) SetLineQuantity(ctx context.Context, p domain.Principal, productID string, quantity int) (*domain.Cart, error) {
	if productID == "" {
		return nil, domain.ValidationError("product_id is required")
	}
	if quantity > domain.MaxLineQuantity {
		return nil, errQuantityTooLarge
	}

	var cart *domain.Cart
	err := s.store.RunInTx(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		current, err := repo.GetCartByResident(ctx, p.ResidentID, true)
		if err != nil {
			return fmt.Errorf("get cart: %w", err)
		}
		if current == nil {
			return domain.NotFoundError("cart")
		}
		line, ok := current.LineForProduct(productID)
		if !ok {
			return domain.NotFoundError("cart line")
		}

		if quantity <= 0 {
			err = repo.DeleteCartLine(ctx, line.ID)
		} else {
			err = repo.UpdateCartLineQuantity(ctx, line.ID, quantity)
		}
		if err != nil {
			return fmt.Errorf("save cart line: %w", err)
		}

		cart, err = repo.GetCartByResident(ctx, p.ResidentID, false)
		if err != nil {
			return fmt.Errorf("reload cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) RemoveLine(ctx context.Context, p domain.Principal, lineID string) error {
	return s.store.RunInTx(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		cart, err := repo.GetCartByResident(ctx, p.ResidentID, true)
		if err != nil {
			return fmt.Errorf("get cart: %w", err)
		}
		if cart == nil {
			return domain.NotFoundError("cart line")
		}
		line, err := repo.GetCartLine(ctx, lineID)
		if err != nil {
			return fmt.Errorf("get cart line: %w", err)
		}
		if line == nil || line.CartID != cart.ID {
			return domain.NotFoundError("cart line")
		}
		if err := repo.DeleteCartLine(ctx, lineID); err != nil {
			return fmt.Errorf("delete cart line: %w", err)
		}
		return nil
	})
}

func (s *CartService) Summarize(ctx context.Context, p domain.Principal) (*domain.Cart, error) {
	cart, err := s.store.GetCartByResident(ctx, p.ResidentID, false)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if cart == nil {
		return nil, domain.NotFoundError("cart")
	}
	return cart, nil
}

func getOrCreateCart(ctx context.Context, repo port.DatabaseRepository, residentID string) (*domain.Cart, error) {
	cart, err := repo.GetCartByResident(ctx, residentID, true)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if cart != nil {
		return cart, nil
	}

	err = repo.CreateCart(ctx, domain.Cart{
		ID:         uuid.NewString(),
		ResidentID: residentID,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	// a concurrent first add may have won the insert; read back whichever row exists
	cart, err = repo.GetCartByResident(ctx, residentID, true)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if cart == nil {
		return nil, fmt.Errorf("create cart: cart for %s missing after insert", residentID)
	}
	return cart, nil
}
