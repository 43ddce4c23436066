// Package money converts between the gateway's decimal pound amounts and
// the integer piaster amounts stored in the database.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid_amount")

// ParseString parses a decimal pound amount ("100", "100.5", "100.50")
// into piasters. Amounts with more than two fractional digits are rejected
// rather than rounded; a gateway sending sub-piaster precision is a payload
// we do not understand.
func ParseString(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, ErrInvalidAmount
	}

	negative := false
	if strings.HasPrefix(value, "-") {
		negative = true
		value = value[1:]
	}

	whole := value
	frac := ""
	if idx := strings.IndexByte(value, '.'); idx >= 0 {
		whole = value[:idx]
		frac = value[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, ErrInvalidAmount
	}
	for len(frac) < 2 {
		frac += "0"
	}

	pounds, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if pounds > (math.MaxInt64-cents)/100 {
		return 0, ErrInvalidAmount
	}

	minor := pounds*100 + cents
	if negative {
		minor = -minor
	}
	return minor, nil
}

// Parse accepts the amount shapes observed in gateway payloads: strings,
// JSON numbers, and plain integers.
func Parse(value any) (int64, error) {
	switch typed := value.(type) {
	case string:
		return ParseString(typed)
	case json.Number:
		return ParseString(typed.String())
	case float64:
		return ParseString(strconv.FormatFloat(typed, 'f', -1, 64))
	case float32:
		return ParseString(strconv.FormatFloat(float64(typed), 'f', -1, 32))
	case int64:
		return poundsToMinor(typed)
	case int:
		return poundsToMinor(int64(typed))
	default:
		return 0, ErrInvalidAmount
	}
}

func poundsToMinor(pounds int64) (int64, error) {
	if pounds > math.MaxInt64/100 || pounds < math.MinInt64/100 {
		return 0, ErrInvalidAmount
	}
	return pounds * 100, nil
}

// Format renders piasters as a decimal pound string for the gateway.
func Format(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// Pounds renders piasters for human-readable descriptions, dropping the
// fraction when it is zero.
func Pounds(minor int64) string {
	if minor%100 == 0 {
		return strconv.FormatInt(minor/100, 10)
	}
	return Format(minor)
}
