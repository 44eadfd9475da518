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

type BillService struct {
	store    port.Store
	verifier port.PaymentVerifier
	events   port.EventPublisher
	log      *slog.Logger
}

// NewBillService builds the billing ledger. verifier may be nil, in which
// case payment confirmations are not signature checked.
func NewBillService(store port.Store, verifier port.PaymentVerifier, events port.EventPublisher, log *slog.Logger) *BillService {
	return &BillService{
		store:    store,
		verifier: verifier,
		events:   events,
		log:      log,
	}
}

func (s *BillService) Issue(ctx context.Context, p domain.Principal, in domain.BillInput) (*domain.Bill, error) {
	if !p.IsStaff() {
		return nil, fmt.Errorf("%w: only staff can issue bills", domain.ErrForbidden)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	bill := domain.Bill{
		ID:            uuid.NewString(),
		ResidentID:    in.ResidentID,
		Amount:        in.Amount,
		IssueDate:     in.IssueDate,
		DueDate:       in.DueDate,
		BillType:      in.BillType,
		PaymentStatus: domain.PaymentStatusUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateBill(ctx, bill); err != nil {
		return nil, fmt.Errorf("create bill: %w", err)
	}
	s.log.InfoContext(ctx, "bill issued", "bill_id", bill.ID, "resident_id", bill.ResidentID, "type", bill.BillType)
	return &bill, nil
}

// List returns the caller's bills, or every bill for an admin. status is
// optional and case-insensitive.
func (s *BillService) List(ctx context.Context, p domain.Principal, status string) ([]domain.Bill, error) {
	var filter domain.BillFilter
	if !p.IsAdmin() {
		filter.ResidentID = p.ResidentID
	}
	if status != "" {
		st, err := domain.ParsePaymentStatus(status)
		if err != nil {
			return nil, err
		}
		filter.PaymentStatus = st
	}

	bills, err := s.store.ListBills(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	return bills, nil
}

func (s *BillService) Get(ctx context.Context, p domain.Principal, id string) (*domain.Bill, error) {
	bill, err := s.store.GetBill(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get bill: %w", err)
	}
	if bill == nil || (bill.ResidentID != p.ResidentID && !p.IsAdmin()) {
		return nil, domain.NotFoundError("bill")
	}
	return bill, nil
}

// ConfirmPayment marks the resident's bill as PAID. Nothing supplied by the
// caller besides the gateway signature is consulted. Confirming a bill that
// is already paid returns it unchanged.
func (s *BillService) ConfirmPayment(ctx context.Context, p domain.Principal, billID, signature string) (*domain.Bill, error) {
	var (
		bill    *domain.Bill
		changed bool
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		changed = false
		var err error
		bill, err = repo.GetBill(ctx, billID)
		if err != nil {
			return fmt.Errorf("get bill: %w", err)
		}
		if bill == nil || bill.ResidentID != p.ResidentID {
			return domain.NotFoundError("bill")
		}
		if bill.PaymentStatus == domain.PaymentStatusPaid {
			return nil
		}

		if s.verifier != nil {
			if err := s.verifier.Verify(bill.ID, bill.Amount, signature); err != nil {
				return fmt.Errorf("%w: payment signature rejected: %v", domain.ErrForbidden, err)
			}
		}

		changed, err = repo.MarkBillPaid(ctx, bill.ID)
		if err != nil {
			return fmt.Errorf("mark bill paid: %w", err)
		}
		// losing the race to a concurrent confirmation still leaves the bill paid
		bill.PaymentStatus = domain.PaymentStatusPaid
		if changed {
			bill.UpdatedAt = time.Now().UTC()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.log.InfoContext(ctx, "bill paid", "bill_id", bill.ID, "resident_id", bill.ResidentID, "amount", bill.Amount.String())
		publishEvent(ctx, s.events, s.log, domain.Event{
			Type:       domain.EventBillPaid,
			ResidentID: bill.ResidentID,
			EntityID:   bill.ID,
			Payload:    map[string]any{"amount": bill.Amount, "bill_type": bill.BillType},
			OccurredAt: bill.UpdatedAt,
		})
	}
	return bill, nil
}
