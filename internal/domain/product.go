package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PriceScale: число знаков после запятой для цены (NUMERIC(10,2)).
const PriceScale = 2

// MaxUnitPrice: верхняя граница цены, помещающаяся в NUMERIC(10,2).
var MaxUnitPrice = decimal.RequireFromString("99999999.99")

// Product: карточка товара каталога.
type Product struct {
	ID        int64
	Name      string
	UnitPrice decimal.Decimal
}

// NormalizeProduct обрезает пробелы в названии и округляет цену до копеек.
func NormalizeProduct(p Product) Product {
	p.Name = strings.TrimSpace(p.Name)
	p.UnitPrice = p.UnitPrice.Round(PriceScale)
	return p
}

// ValidateInvariants проверяет название и цену товара.
func (p Product) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if !p.UnitPrice.IsPositive() || p.UnitPrice.GreaterThan(MaxUnitPrice) {
		errs = append(errs, ErrProductPriceInvalid)
	}

	return errs
}
