package chart

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// toFloat reads a numeric cell. Postgres NUMERIC arrives as text through the
// pgx stdlib driver, so numeric strings are accepted too.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case *big.Int:
		if v == nil {
			return 0, false
		}
		f, _ := new(big.Float).SetInt(v).Float64()
		return f, true
	case interface{ Float64() float64 }:
		return v.Float64(), true
	case []byte:
		return parseFloat(string(v))
	case string:
		return parseFloat(v)
	}
	return 0, false
}

func parseFloat(raw string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// FormatKPI abbreviates a tile value: 1.2M, 3.4K or 5.6.
func FormatKPI(value float64) string {
	abs := math.Abs(value)
	switch {
	case abs >= 1e6:
		return strconv.FormatFloat(value/1e6, 'f', 1, 64) + "M"
	case abs >= 1e3:
		return strconv.FormatFloat(value/1e3, 'f', 1, 64) + "K"
	default:
		return strconv.FormatFloat(value, 'f', 1, 64)
	}
}

// keyOf renders a dimension value for grouping.
func keyOf(value any) string {
	switch v := value.(type) {
	case nil:
		return "\x00nil"
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(v)
	}
	return fmt.Sprint(value)
}

// compareValues orders two cells of the same column. Mixed or unknown kinds
// fall back to their string form.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(keyOf(a), keyOf(b))
}

// NumericValue reads value as a float the way numeric chart columns are read.
func NumericValue(value any) (float64, bool) {
	return toFloat(value)
}
