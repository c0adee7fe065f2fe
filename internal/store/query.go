package store

import (
	"encoding/json"
	"sort"
	"strings"
)

// Query selects and orders the records returned by Store.List.
type Query struct {
	// Filters maps a field name to its expected value. A record matches when
	// every listed field is present and either its string form equals the
	// value, or it's a number equal in value to the numeric value.
	Filters map[string]string
	// Sort, if non-nil, orders matched records.
	Sort *Sort
	// Limit bounds the number of returned records. Zero means no limit.
	Limit int
}

// Sort orders records by a single field.
type Sort struct {
	Field string
	Desc  bool
}

// ParseOrder maps an "_order" value onto a descending flag. Anything other
// than "desc" (case-insensitive) is ascending.
func ParseOrder(order string) bool {
	return strings.EqualFold(strings.TrimSpace(order), "desc")
}

func (q Query) matches(rec Record) bool {
	for field, want := range q.Filters {
		var v, ok = rec[field]
		if !ok {
			return false
		}
		if got, ok := stringify(v); ok && got == want {
			continue
		} else if !sameNumber(v, want, false) {
			return false
		}
	}
	return true
}

// sortRecords stably orders |recs| by |by|. Ties keep their relative order
// in both directions.
func sortRecords(recs []Record, by Sort) {
	sort.SliceStable(recs, func(i, j int) bool {
		var c = Compare(recs[i][by.Field], recs[j][by.Field])
		if by.Desc {
			return c > 0
		}
		return c < 0
	})
}

// Rank of a value's kind within the sort order.
const (
	rankNull = iota
	rankBool
	rankNumber
	rankString
	rankOther
)

// Compare orders two JSON values. Numbers compare numerically and strings
// byte-wise. Values of different kinds order by kind: missing or null,
// then booleans (false < true), numbers, strings, and finally objects and
// arrays, which compare by their JSON encoding.
func Compare(a, b any) int {
	var ra, rb = rankOf(a), rankOf(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case rankNull:
		return 0
	case rankBool:
		var x, y = a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case rankNumber:
		var x, _ = numeric(a, false)
		var y, _ = numeric(b, false)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case rankString:
		return strings.Compare(a.(string), b.(string))
	default:
		var x, _ = json.Marshal(a)
		var y, _ = json.Marshal(b)
		return strings.Compare(string(x), string(y))
	}
}

func rankOf(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case string:
		return rankString
	}
	if _, ok := numeric(v, false); ok {
		return rankNumber
	}
	return rankOther
}
