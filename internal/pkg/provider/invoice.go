package provider

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var errMalformedInvoice = errors.New("malformed invoice")

// msat per unit of each BOLT11 amount multiplier; 0 is "no multiplier" (BTC).
var hrpMultipliers = map[byte]int64{
	0:   100_000_000_000,
	'm': 100_000_000,
	'u': 100_000,
	'n': 100,
}

// hrpAmountMsat reads the amount from an invoice's human-readable part
// (ln + currency + amount + multiplier). Amountless invoices return 0. The
// data part and checksum are not inspected.
func hrpAmountMsat(invoice string) (int64, error) {
	invoice = strings.ToLower(strings.TrimSpace(invoice))
	sep := strings.LastIndexByte(invoice, '1')
	if !strings.HasPrefix(invoice, "ln") || sep < 2 {
		return 0, errMalformedInvoice
	}
	hrp := invoice[2:sep]

	i := 0
	for i < len(hrp) && hrp[i] >= 'a' && hrp[i] <= 'z' {
		i++
	}
	if i == 0 {
		return 0, errMalformedInvoice
	}
	amount := hrp[i:]
	if amount == "" {
		return 0, nil
	}

	var mult byte
	if last := amount[len(amount)-1]; last < '0' || last > '9' {
		mult = last
		amount = amount[:len(amount)-1]
	}
	n, err := strconv.ParseInt(amount, 10, 64)
	if err != nil || n <= 0 {
		return 0, errMalformedInvoice
	}

	if mult == 'p' {
		if n%10 != 0 {
			return 0, errMalformedInvoice
		}
		return n / 10, nil
	}
	factor, ok := hrpMultipliers[mult]
	if !ok || n > math.MaxInt64/factor {
		return 0, errMalformedInvoice
	}
	return n * factor, nil
}
