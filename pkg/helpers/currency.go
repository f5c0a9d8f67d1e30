// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Asset identifies one of the two fungible asset classes exchanged in a swap.
type Asset string

const (
	AssetSiacoin Asset = "SC"
	AssetSiafund Asset = "SF"
)

// MinerFee is the fixed fee carried by every swap transaction, in siacoins.
const MinerFee = 5

var (
	ErrEmptyAmount     = errors.New("empty amount")
	ErrMissingUnits    = errors.New("must specify units of currency")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrNotInteger      = errors.New("currency must be an integer")
	ErrInvalidPair     = errors.New("invalid swap: must specify one SC value and one SF value")
)

// siacoinUnits are ordered so that unit i is worth 10^(24+3*(i-4)) hastings.
var siacoinUnits = []string{"pS", "nS", "uS", "mS", "SC", "KS", "MS", "GS", "TS"}

// Currency is a parsed amount. Siacoin values are in hastings, siafund
// values are whole funds.
type Currency struct {
	Asset Asset
	Value decimal.Decimal
}

// String renders the amount in a form ParseCurrency accepts.
func (c Currency) String() string {
	if c.Asset == AssetSiafund {
		return c.Value.String() + "SF"
	}
	return c.Value.String() + "H"
}

// ParseCurrency parses an amount with a unit suffix such as "10SC",
// "1.5KS", "250mS", "1000000H" or "3SF".
func ParseCurrency(amount string) (Currency, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return Currency{}, ErrEmptyAmount
	}

	if strings.HasSuffix(amount, "SF") || strings.HasSuffix(amount, "H") {
		asset := AssetSiacoin
		if strings.HasSuffix(amount, "SF") {
			asset = AssetSiafund
		}
		value, err := decimal.NewFromString(strings.TrimSpace(strings.TrimRight(amount, "SFH")))
		if err != nil {
			return Currency{}, fmt.Errorf("%w: %s", ErrInvalidCurrency, amount)
		}
		if !value.Equal(value.Truncate(0)) {
			return Currency{}, fmt.Errorf("%w: %s", ErrNotInteger, amount)
		}
		if value.IsNegative() {
			return Currency{}, fmt.Errorf("%w: %s", ErrInvalidCurrency, amount)
		}
		return Currency{Asset: asset, Value: value}, nil
	}

	for i, unit := range siacoinUnits {
		if !strings.HasSuffix(amount, unit) {
			continue
		}
		value, err := decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(amount, unit)))
		if err != nil || value.IsNegative() {
			return Currency{}, fmt.Errorf("%w: %s", ErrInvalidCurrency, amount)
		}
		hastings := value.Shift(int32(24 + 3*(i-4)))
		if !hastings.Equal(hastings.Truncate(0)) {
			return Currency{}, fmt.Errorf("%w: %s", ErrNotInteger, amount)
		}
		return Currency{Asset: AssetSiacoin, Value: hastings}, nil
	}

	return Currency{}, fmt.Errorf("%w: %s", ErrMissingUnits, amount)
}

// ParsePair parses the offer and receive side of a new swap. Exactly one of
// them must be a siafund amount.
func ParsePair(offer, receive string) (Currency, Currency, error) {
	o, err := ParseCurrency(offer)
	if err != nil {
		return Currency{}, Currency{}, fmt.Errorf("offer: %w", err)
	}
	r, err := ParseCurrency(receive)
	if err != nil {
		return Currency{}, Currency{}, fmt.Errorf("receive: %w", err)
	}
	if (o.Asset == AssetSiafund) == (r.Asset == AssetSiafund) {
		return Currency{}, Currency{}, ErrInvalidPair
	}
	return o, r, nil
}

// FormatSiacoins renders a hastings amount using the largest unit that keeps
// the integer part below 1000, e.g. "1.5 KS". Amounts below one pS are
// printed in hastings.
func FormatSiacoins(hastings decimal.Decimal) string {
	if hastings.Abs().LessThan(decimal.New(1, 12)) {
		return hastings.String() + " H"
	}
	unit := 0
	value := hastings.Shift(-12)
	for unit < len(siacoinUnits)-1 && value.Abs().GreaterThanOrEqual(decimal.NewFromInt(1000)) {
		value = value.Shift(-3)
		unit++
	}
	return value.StringFixed(3) + " " + siacoinUnits[unit]
}

// FormatSiafunds renders a siafund amount.
func FormatSiafunds(funds decimal.Decimal) string {
	return funds.String() + " SF"
}

// ShortID returns the first n characters of id, or id itself when shorter.
func ShortID(id string, n int) string {
	if len(id) > n {
		return id[:n]
	}
	return id
}
