// Package filter evaluates declarative predicate trees against instrument
// snapshots. The wire format is JsonLogic-shaped: {"op": [args...]} nodes
// with {"var": "fieldName"} leaves for instrument-field references.
package filter

import (
	"encoding/json"
	"fmt"
	"time"
)

// Expr is one node of a predicate tree: an operator application, a field
// reference, or a literal.
type Expr struct {
	Op   string
	Args []*Expr
	Var  string
	Lit  any

	kind exprKind
}

type exprKind int

const (
	kindLiteral exprKind = iota
	kindVar
	kindOp
)

// Parse decodes a predicate tree from its JSON wire form.
func Parse(raw json.RawMessage) (*Expr, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var e Expr
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("malformed predicate: %w", err)
	}
	return &e, nil
}

// UnmarshalJSON decodes one node. An object with a single key is either a
// var leaf or an operator application; anything else is a literal.
func (e *Expr) UnmarshalJSON(data []byte) error {
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	obj, ok := probe.(map[string]any)
	if !ok {
		e.kind = kindLiteral
		e.Lit = probe
		return nil
	}
	if len(obj) != 1 {
		return fmt.Errorf("predicate node must have exactly one operator, has %d", len(obj))
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for op, argData := range raw {
		if op == "var" {
			var name string
			if err := json.Unmarshal(argData, &name); err != nil {
				return fmt.Errorf("var reference must name a field: %w", err)
			}
			e.kind = kindVar
			e.Var = name
			return nil
		}
		e.kind = kindOp
		e.Op = op
		var args []*Expr
		if err := json.Unmarshal(argData, &args); err != nil {
			// Single non-array operand, e.g. {"!": {...}}.
			var single Expr
			if serr := json.Unmarshal(argData, &single); serr != nil {
				return fmt.Errorf("operator %q: %w", op, err)
			}
			args = []*Expr{&single}
		}
		e.Args = args
	}
	return nil
}

// Match collapses evaluation to the boolean used at the dispatch gate: any
// evaluation error means no match. A nil expression admits everything.
func (e *Expr) Match(fields map[string]any) (bool, error) {
	if e == nil {
		return true, nil
	}
	v, err := e.eval(fields)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func (e *Expr) eval(fields map[string]any) (any, error) {
	switch e.kind {
	case kindLiteral:
		return e.Lit, nil
	case kindVar:
		v, ok := fields[e.Var]
		if !ok {
			return nil, fmt.Errorf("unknown field %q", e.Var)
		}
		return v, nil
	}

	switch e.Op {
	case "and":
		for _, arg := range e.Args {
			v, err := arg.eval(fields)
			if err != nil {
				return nil, err
			}
			if !truthy(v) {
				return false, nil
			}
		}
		return true, nil
	case "or":
		for _, arg := range e.Args {
			v, err := arg.eval(fields)
			if err != nil {
				return nil, err
			}
			if truthy(v) {
				return true, nil
			}
		}
		return false, nil
	case "!", "not":
		if len(e.Args) != 1 {
			return nil, fmt.Errorf("operator %q takes one operand", e.Op)
		}
		v, err := e.Args[0].eval(fields)
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil
	case "==", "!=", "<", "<=", ">", ">=":
		if len(e.Args) != 2 {
			return nil, fmt.Errorf("operator %q takes two operands", e.Op)
		}
		a, err := e.Args[0].eval(fields)
		if err != nil {
			return nil, err
		}
		b, err := e.Args[1].eval(fields)
		if err != nil {
			return nil, err
		}
		return compare(e.Op, a, b)
	case "in":
		if len(e.Args) != 2 {
			return nil, fmt.Errorf("operator in takes two operands")
		}
		needle, err := e.Args[0].eval(fields)
		if err != nil {
			return nil, err
		}
		haystack, err := e.Args[1].eval(fields)
		if err != nil {
			return nil, err
		}
		list, ok := haystack.([]any)
		if !ok {
			return nil, fmt.Errorf("operator in requires a list, got %T", haystack)
		}
		for _, item := range list {
			if eq, err := equal(needle, item); err == nil && eq {
				return true, nil
			}
		}
		return false, nil
	}
	return nil, fmt.Errorf("unsupported operator %q", e.Op)
}

func compare(op string, a, b any) (bool, error) {
	switch op {
	case "==":
		return equal(a, b)
	case "!=":
		eq, err := equal(a, b)
		return !eq, err
	}

	an, aNum := toNumber(a)
	bn, bNum := toNumber(b)
	if aNum && bNum {
		switch op {
		case "<":
			return an < bn, nil
		case "<=":
			return an <= bn, nil
		case ">":
			return an > bn, nil
		case ">=":
			return an >= bn, nil
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch op {
		case "<":
			return as < bs, nil
		case "<=":
			return as <= bs, nil
		case ">":
			return as > bs, nil
		case ">=":
			return as >= bs, nil
		}
	}
	return false, fmt.Errorf("operator %q: incomparable types %T and %T", op, a, b)
}

func equal(a, b any) (bool, error) {
	an, aNum := toNumber(a)
	bn, bNum := toNumber(b)
	if aNum && bNum {
		return an == bn, nil
	}
	if aNum != bNum {
		return false, fmt.Errorf("operator ==: incomparable types %T and %T", a, b)
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return false, fmt.Errorf("operator ==: incomparable types %T and %T", a, b)
		}
		return av == bv, nil
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return false, fmt.Errorf("operator ==: incomparable types %T and %T", a, b)
		}
		return av == bv, nil
	case nil:
		return b == nil, nil
	}
	return false, fmt.Errorf("operator ==: unsupported type %T", a)
}

// toNumber coerces numeric field values to float64. Timestamps compare by
// epoch millisecond.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case time.Time:
		return float64(n.UnixMilli()), true
	}
	return 0, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	case []any:
		return len(t) > 0
	}
	return true
}
