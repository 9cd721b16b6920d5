package commission

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Sentinel errors for formula parameter validation.
var (
	ErrPercentageOutOfRange = errors.New("percentage must be between 0 and 100")
	ErrNegativeFixedAmount  = errors.New("fixed amount must not be negative")
	ErrNegativeNetAmount    = errors.New("net amount must not be negative")
)

// Formula is a commission formula variant. The set of variants is closed:
// implementations live in this package only.
type Formula interface {
	// Amount returns the unrounded commission for the given net sale amount.
	Amount(net decimal.Decimal) decimal.Decimal

	sealed()
}

// Percentage earns rate% of the net amount.
type Percentage struct {
	Rate decimal.Decimal
}

func (f Percentage) Amount(net decimal.Decimal) decimal.Decimal {
	return net.Mul(f.Rate).Div(hundred)
}

func (Percentage) sealed() {}

// Fixed earns a flat amount.
type Fixed struct {
	Value decimal.Decimal
}

func (f Fixed) Amount(decimal.Decimal) decimal.Decimal {
	return f.Value
}

func (Fixed) sealed() {}

// Mixed combines a flat amount with a percentage: their sum when ApplyBoth
// is set, otherwise whichever alternative is larger.
type Mixed struct {
	Value     decimal.Decimal
	Rate      decimal.Decimal
	ApplyBoth bool
}

func (f Mixed) Amount(net decimal.Decimal) decimal.Decimal {
	pct := net.Mul(f.Rate).Div(hundred)
	if f.ApplyBoth {
		return f.Value.Add(pct)
	}
	return decimal.Max(f.Value, pct)
}

func (Mixed) sealed() {}

// NewFormula builds the formula variant for the stored type and config,
// validating the parameters.
func NewFormula(t Type, cfg Config) (Formula, error) {
	if cfg.Percentage.IsNegative() || cfg.Percentage.GreaterThan(hundred) {
		return nil, ErrPercentageOutOfRange
	}
	if cfg.FixedAmount.IsNegative() {
		return nil, ErrNegativeFixedAmount
	}

	switch t {
	case TypePercentage:
		return Percentage{Rate: cfg.Percentage}, nil
	case TypeFixed:
		return Fixed{Value: cfg.FixedAmount}, nil
	case TypeMixed:
		return Mixed{Value: cfg.FixedAmount, Rate: cfg.Percentage, ApplyBoth: cfg.ApplyBoth}, nil
	default:
		return nil, errors.Errorf("unsupported commission type: %q", t)
	}
}

// Compute applies the formula for the given type and config to a net sale
// amount, rounded half-up at the cent.
func Compute(t Type, cfg Config, net decimal.Decimal) (decimal.Decimal, error) {
	if net.IsNegative() {
		return decimal.Zero, ErrNegativeNetAmount
	}
	f, err := NewFormula(t, cfg)
	if err != nil {
		return decimal.Zero, err
	}
	return f.Amount(net).Round(2), nil
}
