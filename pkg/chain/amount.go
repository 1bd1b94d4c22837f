package chain

import (
	"math/big"
	"strings"

	qerr "github.com/mrz1836/quorum/pkg/errors"
)

// ParseAmount converts a human-readable native-token amount ("0.25") on the
// chain into its smallest unit using the chain's decimals.
func (id ID) ParseAmount(amount string) (*big.Int, error) {
	info, ok := id.Info()
	if !ok {
		return nil, qerr.ErrUnknownChain
	}
	return ParseDecimal(amount, info.Decimals)
}

// FormatAmount renders a smallest-unit amount as a decimal string in the
// chain's native token, e.g. 1500000000000000000 -> "1.5".
func (id ID) FormatAmount(amount *big.Int) string {
	decimals := 18
	if info, ok := id.Info(); ok {
		decimals = info.Decimals
	}
	return FormatDecimal(amount, decimals)
}

// ParseDecimal parses a non-negative decimal string scaled by decimals.
// Extra fractional digits beyond decimals are truncated.
func ParseDecimal(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	invalid := qerr.WithDetails(qerr.ErrInvalidInput, map[string]string{"amount": amount})

	if amount == "" || strings.HasPrefix(amount, "-") {
		return nil, invalid
	}

	intPart, fracPart, hasFrac := strings.Cut(amount, ".")
	if hasFrac && strings.Contains(fracPart, ".") {
		return nil, invalid
	}
	if intPart == "" {
		intPart = "0"
	}

	intVal, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, invalid
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	result := new(big.Int).Mul(intVal, scale)

	if fracPart == "" {
		return result, nil
	}
	for _, c := range fracPart {
		if c < '0' || c > '9' {
			return nil, invalid
		}
	}
	if len(fracPart) > decimals {
		fracPart = fracPart[:decimals]
	}
	fracPart += strings.Repeat("0", decimals-len(fracPart))
	if fracPart == "" {
		return result, nil
	}

	fracVal, ok := new(big.Int).SetString(fracPart, 10)
	if !ok {
		return nil, invalid
	}
	return result.Add(result, fracVal), nil
}

// FormatDecimal renders amount with decimals places, trimming trailing zeros.
func FormatDecimal(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	if amount.Sign() < 0 {
		return "-" + FormatDecimal(new(big.Int).Abs(amount), decimals)
	}

	str := amount.String()
	if decimals == 0 {
		return str
	}
	if len(str) <= decimals {
		str = strings.Repeat("0", decimals-len(str)+1) + str
	}

	pos := len(str) - decimals
	frac := strings.TrimRight(str[pos:], "0")
	if frac == "" {
		return str[:pos]
	}
	return str[:pos] + "." + frac
}
