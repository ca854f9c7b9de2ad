package domain

import "github.com/shopspring/decimal"

// DefaultTaxRate is applied to the item subtotal when configuration does not override it.
var DefaultTaxRate = decimal.RequireFromString("0.05")

const moneyPlaces = 2

// OrderTotals holds the priced snapshot of an order in major currency units.
type OrderTotals struct {
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	DeliveryFee decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
}

// Subtotal sums the line totals of items.
func Subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Amount())
	}
	return sum.Round(moneyPlaces)
}

// ComputeTotals prices an order: total = subtotal + tax + fee - discount, never below zero.
func ComputeTotals(subtotal, taxRate, deliveryFee, discount decimal.Decimal) OrderTotals {
	subtotal = subtotal.Round(moneyPlaces)
	tax := subtotal.Mul(taxRate).Round(moneyPlaces)
	total := subtotal.Add(tax).Add(deliveryFee).Sub(discount).Round(moneyPlaces)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return OrderTotals{
		Subtotal:    subtotal,
		Tax:         tax,
		DeliveryFee: deliveryFee.Round(moneyPlaces),
		Discount:    discount.Round(moneyPlaces),
		Total:       total,
	}
}
