package store

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// exactPrec is the mantissa precision used for exact numeric comparisons.
// Any decimal with an integer part of int64 range and a practical fraction
// fits without rounding.
const exactPrec = 1024

// NextID returns one more than the largest numeric id of |seq|, or 1 if
// |seq| holds no numeric id. Ids which are numeric strings (eg "7") count.
// Arithmetic is exact, and ErrIDOverflow is returned if the next id doesn't
// fit an int64.
func NextID(seq []Record) (int64, error) {
	var max *big.Int
	for _, rec := range seq {
		if n, ok := exact(rec["id"], true); ok {
			if f := floor(n); max == nil || f.Cmp(max) > 0 {
				max = f
			}
		}
	}
	if max == nil {
		return 1, nil
	}
	var next = max.Add(max, big.NewInt(1))
	if !next.IsInt64() {
		return 0, ErrIDOverflow
	}
	return next.Int64(), nil
}

// SameID reports whether the stored id |v| loosely equals the path
// parameter |id|: either their string forms match, or both are numbers of
// equal value (so 5, "5" and "5.0" are one identity).
func SameID(v any, id string) bool {
	if v == nil {
		return false
	}
	if s, ok := stringify(v); ok && s == id {
		return true
	}
	return sameNumber(v, id, true)
}

// sameNumber reports whether |v| and the text |s| are both finite numbers
// of exactly equal value. Strings |v| count only if |lenient|.
func sameNumber(v any, s string, lenient bool) bool {
	var a, aok = exact(v, lenient)
	if !aok {
		return false
	}
	var b, bok = parseExact(s)
	return bok && a.Cmp(b) == 0
}

// stringify coerces a scalar JSON value to its string form. Objects and
// arrays render as compact JSON. It returns false if |v| cannot be encoded.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "null", true
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		var b, err = json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

// numeric returns the value of a JSON number. If |lenient| is set, strings
// which parse as finite numbers are accepted too. It's used for ordering,
// where float64 precision suffices.
func numeric(v any, lenient bool) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		return parseFinite(t.String())
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		if lenient {
			return parseFinite(t)
		}
	}
	return 0, false
}

func parseFinite(s string) (float64, bool) {
	var f, err = strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// exact is like numeric, but returns the value without rounding.
func exact(v any, lenient bool) (*big.Float, bool) {
	switch t := v.(type) {
	case json.Number:
		return parseExact(t.String())
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, false
		}
		return new(big.Float).SetPrec(exactPrec).SetFloat64(t), true
	case float32:
		return exact(float64(t), lenient)
	case int:
		return new(big.Float).SetPrec(exactPrec).SetInt64(int64(t)), true
	case int64:
		return new(big.Float).SetPrec(exactPrec).SetInt64(t), true
	case string:
		if lenient {
			return parseExact(t)
		}
	}
	return nil, false
}

// parseExact parses decimal text as a finite number.
func parseExact(s string) (*big.Float, bool) {
	if strings.ContainsRune(s, '_') {
		return nil, false
	}
	var f, ok = new(big.Float).SetPrec(exactPrec).SetString(s)
	if !ok || f.IsInf() {
		return nil, false
	}
	return f, true
}

// floor returns the largest integer not above |f|.
func floor(f *big.Float) *big.Int {
	var i, acc = f.Int(nil)
	if acc == big.Above {
		// Int truncates toward zero, which rounds negative fractions up.
		i.Sub(i, big.NewInt(1))
	}
	return i
}
