package domain

import (
	"fmt"
	"time"
)

// TrackingNumber derives the shipment tracking reference for an order.
func TrackingNumber(orderID string, at time.Time) string {
	return fmt.Sprintf("TRACK-%s-%d", orderID, at.UnixMilli())
}

// InvoiceNumber derives the unique invoice reference for an order's invoice.
// Each superseding invoice gets a fresh number because the timestamp advances.
func InvoiceNumber(orderID string, at time.Time) string {
	return fmt.Sprintf("INV-%s-%d", orderID, at.UnixMilli())
}

// LineTotal computes the extended price of a line.
func LineTotal(unitPrice, quantity int64) int64 {
	return unitPrice * quantity
}

// OrderTotal sums all line totals. The delivery fee is carried on the order
// as its own field and never folds into the total, so an order's total always
// equals its invoice's pre-discount total.
func OrderTotal(lines []OrderLine) int64 {
	var total int64
	for _, line := range lines {
		total += line.Total
	}
	return total
}

// InvoiceTotal sums all line totals minus the discount, floored at zero.
func InvoiceTotal(lines []OrderLine, discount int64) int64 {
	var total int64
	for _, line := range lines {
		total += line.Total
	}
	total -= discount
	if total < 0 {
		total = 0
	}
	return total
}
