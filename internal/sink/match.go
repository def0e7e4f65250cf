package sink

import (
	"fmt"
	"strconv"
	"strings"
)

// Filter reports whether a payload should be sent.
type Filter func(p EventPayload) bool

// CompileFilter parses match expressions into one filter; every expression
// must hold. Supported operators: ==, !=, >, <, >=, <=, in, contains.
// Fields: kind, batch, name, actor, block, tx, log_index.
// Examples:
//
//	"kind in created,completed"
//	"block >= 1_000_000"
//	"name contains Ashwagandha"
//
// An empty list matches everything.
func CompileFilter(exprs []string) (Filter, error) {
	var preds []Filter
	for _, raw := range exprs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, err := compile(raw)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return func(p EventPayload) bool {
		for _, pred := range preds {
			if !pred(p) {
				return false
			}
		}
		return true
	}, nil
}

func field(p EventPayload, name string) (string, bool) {
	switch name {
	case "kind":
		return p.Kind, true
	case "batch":
		return p.BatchID, true
	case "name":
		return p.BatchName, true
	case "actor":
		return strings.ToLower(p.Actor), true
	case "block":
		return strconv.FormatUint(p.Block, 10), true
	case "tx":
		return strings.ToLower(p.TxHash), true
	case "log_index":
		return strconv.FormatUint(uint64(p.LogIndex), 10), true
	default:
		return "", false
	}
}

func checkField(name, expr string) error {
	if _, ok := field(EventPayload{}, name); !ok {
		return fmt.Errorf("unknown field %q in %s", name, expr)
	}
	return nil
}

func compile(expr string) (Filter, error) {
	if strings.Contains(expr, " in ") {
		parts := strings.SplitN(expr, " in ", 2)
		name := strings.TrimSpace(parts[0])
		if err := checkField(name, expr); err != nil {
			return nil, err
		}
		values := map[string]struct{}{}
		for _, v := range strings.Split(parts[1], ",") {
			v = normalize(name, strings.TrimSpace(v))
			if v == "" {
				continue
			}
			values[v] = struct{}{}
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("empty list in %s", expr)
		}
		return func(p EventPayload) bool {
			v, _ := field(p, name)
			_, hit := values[v]
			return hit
		}, nil
	}

	if strings.Contains(expr, " contains ") {
		parts := strings.SplitN(expr, " contains ", 2)
		name := strings.TrimSpace(parts[0])
		if err := checkField(name, expr); err != nil {
			return nil, err
		}
		needle := normalize(name, strings.TrimSpace(parts[1]))
		return func(p EventPayload) bool {
			v, _ := field(p, name)
			return strings.Contains(v, needle)
		}, nil
	}

	var op string
	for _, candidate := range []string{"==", "!=", ">=", "<=", ">", "<"} {
		if strings.Contains(expr, candidate) {
			op = candidate
			break
		}
	}
	if op == "" {
		return nil, fmt.Errorf("unsupported expression: %s", expr)
	}

	parts := strings.SplitN(expr, op, 2)
	name := strings.TrimSpace(parts[0])
	if err := checkField(name, expr); err != nil {
		return nil, err
	}
	rhs := normalize(name, strings.TrimSpace(parts[1]))
	num, rhsIsNum := parseNumber(rhs)

	if op != "==" && op != "!=" && !rhsIsNum {
		return nil, fmt.Errorf("%s needs a numeric operand: %s", op, expr)
	}

	return func(p EventPayload) bool {
		v, _ := field(p, name)
		if rhsIsNum {
			lhs, ok := parseNumber(v)
			if !ok {
				return false
			}
			switch op {
			case "==":
				return lhs == num
			case "!=":
				return lhs != num
			case ">":
				return lhs > num
			case "<":
				return lhs < num
			case ">=":
				return lhs >= num
			case "<=":
				return lhs <= num
			}
		}
		if op == "==" {
			return v == rhs
		}
		return v != rhs
	}, nil
}

// normalize lowercases hex fields so addresses compare regardless of checksum.
func normalize(name, v string) string {
	if name == "actor" || name == "tx" {
		return strings.ToLower(v)
	}
	return v
}

// parseNumber accepts plain integers with optional _ separators.
func parseNumber(s string) (uint64, bool) {
	v, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 10, 64)
	return v, err == nil
}
