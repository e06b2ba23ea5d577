package domain_test

import (
	"errors"
	"math"
	"testing"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

// helper для создания валидного черновика с одной позицией.
func makeDraft() domain.OrderDraft {
	return domain.OrderDraft{
		BuyerName:       "Ana",
		ContactInfo:     "ana@x.com",
		DeliveryAddress: "12 Elm St",
		Lines: []domain.OrderLine{
			{ProductID: 1, Quantity: 10},
		},
	}
}

func TestOrderDraftValidateInvariants_Ok(t *testing.T) {
	draft := makeDraft()
	if errs := draft.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderDraftValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(d *domain.OrderDraft)
		want error
	}{
		{
			name: "no buyer",
			mut:  func(d *domain.OrderDraft) { d.BuyerName = "" },
			want: domain.ErrBuyerNameRequired,
		},
		{
			name: "blank buyer",
			mut:  func(d *domain.OrderDraft) { d.BuyerName = "   " },
			want: domain.ErrBuyerNameRequired,
		},
		{
			name: "no contact",
			mut:  func(d *domain.OrderDraft) { d.ContactInfo = "" },
			want: domain.ErrContactInfoRequired,
		},
		{
			name: "no address",
			mut:  func(d *domain.OrderDraft) { d.DeliveryAddress = "\t" },
			want: domain.ErrDeliveryAddressRequired,
		},
		{
			name: "no items",
			mut:  func(d *domain.OrderDraft) { d.Lines = nil },
			want: domain.ErrItemsRequired,
		},
		{
			name: "missing product id",
			mut:  func(d *domain.OrderDraft) { d.Lines[0].ProductID = 0 },
			want: domain.ErrItemProductRequired,
		},
		{
			name: "zero quantity",
			mut:  func(d *domain.OrderDraft) { d.Lines[0].Quantity = 0 },
			want: domain.ErrItemQtyInvalid,
		},
		{
			name: "quantity above int32",
			mut:  func(d *domain.OrderDraft) { d.Lines[0].Quantity = math.MaxInt32 + 1 },
			want: domain.ErrItemQtyInvalid,
		},
		{
			name: "negative quantity in second line",
			mut: func(d *domain.OrderDraft) {
				d.Lines = append(d.Lines, domain.OrderLine{ProductID: 2, Quantity: -3})
			},
			want: domain.ErrItemQtyInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			draft := makeDraft()
			tc.mut(&draft)

			errs := draft.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatalf("expected validation errors, got none")
			}
			if !errors.Is(errors.Join(errs...), tc.want) {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestOrderDraftNormalize(t *testing.T) {
	draft := domain.OrderDraft{BuyerName: "  Ana ", ContactInfo: " a@b.c", DeliveryAddress: "Elm St  "}
	got := draft.Normalize()

	if got.BuyerName != "Ana" || got.ContactInfo != "a@b.c" || got.DeliveryAddress != "Elm St" {
		t.Fatalf("unexpected normalized draft: %+v", got)
	}
}

func TestParseOrderStatus(t *testing.T) {
	for _, raw := range []string{"Pending", "In Progress", "Delivered"} {
		status, err := domain.ParseOrderStatus(raw)
		if err != nil {
			t.Fatalf("ParseOrderStatus(%q) returned error: %v", raw, err)
		}
		if string(status) != raw {
			t.Fatalf("ParseOrderStatus(%q) = %q", raw, status)
		}
	}

	for _, raw := range []string{"", "Shipped", "pending", "in progress", " Delivered", "Canceled"} {
		if _, err := domain.ParseOrderStatus(raw); !errors.Is(err, domain.ErrInvalidStatus) {
			t.Fatalf("ParseOrderStatus(%q) error = %v, want ErrInvalidStatus", raw, err)
		}
	}
}

func TestCanTransition_AnyToAny(t *testing.T) {
	for _, from := range domain.OrderStatuses() {
		for _, to := range domain.OrderStatuses() {
			if !domain.CanTransition(from, to) {
				t.Fatalf("expected transition %s -> %s to be allowed", from, to)
			}
		}
	}

	if domain.CanTransition(domain.OrderStatusPending, "Shipped") {
		t.Fatal("transition into unknown status must be rejected")
	}
	if domain.CanTransition("Shipped", domain.OrderStatusPending) {
		t.Fatal("transition from unknown status must be rejected")
	}
}

func TestOrderDraftValidateInvariants_MaxInt32Quantity(t *testing.T) {
	draft := makeDraft()
	draft.Lines[0].Quantity = math.MaxInt32
	if errs := draft.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("quantity equal to MaxInt32 must be accepted, got %v", errs)
	}
}

func TestValidateLines(t *testing.T) {
	if err := domain.ValidateLines([]domain.OrderLine{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: math.MaxInt32}}); err != nil {
		t.Fatalf("expected valid lines, got %v", err)
	}
	if err := domain.ValidateLines(nil); !errors.Is(err, domain.ErrItemsRequired) {
		t.Fatalf("expected ErrItemsRequired, got %v", err)
	}
	for _, qty := range []int{0, -1, math.MaxInt32 + 1} {
		err := domain.ValidateLines([]domain.OrderLine{{ProductID: 1, Quantity: qty}})
		if !errors.Is(err, domain.ErrItemQtyInvalid) {
			t.Fatalf("quantity %d: expected ErrItemQtyInvalid, got %v", qty, err)
		}
	}
}
