package invoice

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// dueDateTerm is the default payment term applied when no explicit due date
// is supplied.
const dueDateTerm = 30 * 24 * time.Hour

// numberPrefix starts every invoice number; the full format is
// FV<year><6-digit sequence>, e.g. FV2024000042.
const (
	numberPrefix = "FV"
	sequenceLen  = 6
)

// LineError indicates an invalid line item, by position.
type LineError struct {
	Line      int
	ProductID string
	Reason    string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (product %s): %s", e.Line, e.ProductID, e.Reason)
}

// ComputeTotals derives every line's subtotal and tax value and the invoice
// aggregates. Aggregates are summed first, then rounded half-up to 2 decimal
// places once each, so repeated recomputation cannot drift. The input slice
// is not modified; the returned lines carry the derived values.
func ComputeTotals(items []LineItem, shipping decimal.Decimal) ([]LineItem, Totals, error) {
	if len(items) == 0 {
		return nil, Totals{}, ErrNoLineItems
	}
	if shipping.IsNegative() {
		return nil, Totals{}, errors.New("shipping cost must not be negative")
	}

	out := make([]LineItem, len(items))
	subtotal := decimal.Zero
	discount := decimal.Zero
	tax := decimal.Zero

	for i, item := range items {
		switch {
		case item.Quantity < 1:
			return nil, Totals{}, &LineError{Line: i, ProductID: item.ProductID, Reason: "quantity must be at least 1"}
		case item.UnitPrice.IsNegative():
			return nil, Totals{}, &LineError{Line: i, ProductID: item.ProductID, Reason: "unit price must not be negative"}
		case item.Discount.IsNegative():
			return nil, Totals{}, &LineError{Line: i, ProductID: item.ProductID, Reason: "discount must not be negative"}
		case item.TaxRate.IsNegative():
			return nil, Totals{}, &LineError{Line: i, ProductID: item.ProductID, Reason: "tax rate must not be negative"}
		}

		qty := decimal.NewFromInt(int64(item.Quantity))
		lineSubtotal := qty.Mul(item.UnitPrice).Sub(item.Discount)
		if lineSubtotal.IsNegative() {
			return nil, Totals{}, &LineError{Line: i, ProductID: item.ProductID, Reason: "discount exceeds line amount"}
		}
		lineTax := lineSubtotal.Mul(item.TaxRate).Div(hundred)

		out[i] = item
		out[i].Subtotal = lineSubtotal
		out[i].TaxValue = lineTax

		subtotal = subtotal.Add(lineSubtotal)
		discount = discount.Add(item.Discount)
		tax = tax.Add(lineTax)
	}

	totals := Totals{
		Subtotal: subtotal.Round(2),
		Discount: discount.Round(2),
		Tax:      tax.Round(2),
		Shipping: shipping,
	}
	totals.GrandTotal = totals.Subtotal.Add(totals.Tax).Add(shipping).Round(2)
	return out, totals, nil
}

// FormatNumber renders an invoice number for a year and sequence.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("%s%d%0*d", numberPrefix, year, sequenceLen, seq)
}

// NextNumber computes the invoice number following last for the given year.
// last is the greatest existing number with the year's prefix, or "" when the
// year has no invoices yet, in which case the sequence starts at 1.
func NextNumber(last string, year int) (string, error) {
	if last == "" {
		return FormatNumber(year, 1), nil
	}
	prefix := fmt.Sprintf("%s%d", numberPrefix, year)
	suffix, ok := strings.CutPrefix(last, prefix)
	if !ok {
		return "", errors.Errorf("invoice number %q does not match prefix %q", last, prefix)
	}
	seq, err := strconv.Atoi(suffix)
	if err != nil {
		return "", errors.Wrapf(err, "parse sequence of invoice number %q", last)
	}
	return FormatNumber(year, seq+1), nil
}

// DefaultDueDate returns the payment deadline for an invoice issued at the
// given time: 30 days after issue.
func DefaultDueDate(issuedAt time.Time) time.Time {
	return issuedAt.Add(dueDateTerm)
}
