package domain_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
)

func TestNormalizeProduct(t *testing.T) {
	p := domain.NormalizeProduct(domain.Product{
		Name:      "  Carrots ",
		UnitPrice: decimal.RequireFromString("2.505"),
	})

	if p.Name != "Carrots" {
		t.Fatalf("expected trimmed name, got %q", p.Name)
	}
	if p.UnitPrice.StringFixed(2) != "2.51" {
		t.Fatalf("expected price rounded to 2.51, got %s", p.UnitPrice.String())
	}
}

func TestProductValidateInvariants(t *testing.T) {
	cases := []struct {
		name  string
		price string
		pname string
		want  error
	}{
		{name: "ok", pname: "Carrots", price: "2.50"},
		{name: "max price", pname: "Truffles", price: "99999999.99"},
		{name: "empty name", pname: " ", price: "1", want: domain.ErrProductNameRequired},
		{name: "zero price", pname: "Beets", price: "0", want: domain.ErrProductPriceInvalid},
		{name: "negative price", pname: "Beets", price: "-1.25", want: domain.ErrProductPriceInvalid},
		{name: "too large", pname: "Gold", price: "100000000", want: domain.ErrProductPriceInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := domain.Product{Name: tc.pname, UnitPrice: decimal.RequireFromString(tc.price)}
			errs := p.ValidateInvariants()

			if tc.want == nil {
				if len(errs) != 0 {
					t.Fatalf("expected no errors, got %v", errs)
				}
				return
			}
			if !errors.Is(errors.Join(errs...), tc.want) {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
			if !domain.IsValidation(errors.Join(errs...)) {
				t.Fatal("product invariant errors must be validation errors")
			}
		})
	}
}
