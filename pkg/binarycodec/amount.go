package binarycodec

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DropsPerXRP is the number of drops in one unit of the native currency.
const DropsPerXRP = 1000000

var (
	// ErrInvalidAmount ...
	ErrInvalidAmount = errors.New("amount must be a positive number with at most 6 decimals")

	dropsPerXRP = decimal.New(DropsPerXRP, 0)
)

// DropsToXRP renders an amount of drops as a fixed 6 decimal string.
func DropsToXRP(drops uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(drops), -6).StringFixed(6)
}

// ParseXRP parses a human amount of the native currency into drops.
func ParseXRP(amount string) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, ErrInvalidAmount
	}
	drops := d.Mul(dropsPerXRP)
	if !drops.IsPositive() || !drops.Equal(drops.Truncate(0)) {
		return 0, ErrInvalidAmount
	}
	if drops.GreaterThan(decimal.New(int64(MaxDrops), 0)) {
		return 0, ErrAmountOutOfRange
	}
	return uint64(drops.IntPart()), nil
}

// Preview returns the human readable summary of a decoded payment. It must
// be rendered from the decoded signed blob so that what is shown is exactly
// what was signed.
func Preview(p *Payment, hash []byte) string {
	var b strings.Builder
	b.WriteString("Payment\n")
	fmt.Fprintf(&b, "  From:            %s\n", p.Account)
	fmt.Fprintf(&b, "  To:              %s\n", p.Destination)
	if p.DestinationTag != nil {
		fmt.Fprintf(&b, "  Destination tag: %d\n", *p.DestinationTag)
	}
	fmt.Fprintf(&b, "  Amount:          %s XRP\n", DropsToXRP(p.Amount))
	fmt.Fprintf(&b, "  Fee:             %s XRP\n", DropsToXRP(p.Fee))
	fmt.Fprintf(&b, "  Sequence:        %d\n", p.Sequence)
	if len(hash) > 0 {
		fmt.Fprintf(&b, "  Hash:            %s\n", strings.ToUpper(hexString(hash)))
	}
	return b.String()
}
