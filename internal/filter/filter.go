// Package filter evaluates boolean expressions against decoded resource items.
//
// Expressions use the expr language, e.g.
//
//	status == "final" && value > 5
//
// Every top-level field of an item is available as a variable. Fields an
// item does not carry evaluate to nil.
package filter

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

type Filter struct {
	source  string
	program *vm.Program
}

// Compile parses and type-checks an expression.
func Compile(source string) (*Filter, error) {
	program, err := expr.Compile(source, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compiling filter '%s': %w", source, err)
	}
	return &Filter{source: source, program: program}, nil
}

func (f *Filter) String() string {
	return f.source
}

// Match reports whether item satisfies the expression.
func (f *Filter) Match(item map[string]any) (bool, error) {
	out, err := expr.Run(f.program, item)
	if err != nil {
		return false, fmt.Errorf("evaluating filter '%s': %w", f.source, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("filter '%s' returned %T, expected bool", f.source, out)
	}
	return ok, nil
}

// Apply returns the items matching f, keeping their order. A nil filter
// matches everything.
func Apply(f *Filter, items []map[string]any) ([]map[string]any, error) {
	if f == nil {
		return items, nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		ok, err := f.Match(item)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}
