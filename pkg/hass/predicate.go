package hass

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// Predicate is a compiled CEL expression over an entity state. Expressions
// see `state` (the state string) and `attributes` (the attribute map):
//
//	state == "on"
//	double(state) > 21.5
//	state == "home" && attributes.battery_level >= 20
type Predicate struct {
	expr    string
	program cel.Program
}

// CompilePredicate compiles a CEL expression into a reusable predicate.
func CompilePredicate(expr string) (*Predicate, error) {
	env, err := cel.NewEnv(
		cel.Variable("state", cel.StringType),
		cel.Variable("attributes", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile condition %q: %w", expr, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("create program for condition %q: %w", expr, err)
	}

	return &Predicate{expr: expr, program: program}, nil
}

// Matches evaluates the predicate against an entity state.
func (p *Predicate) Matches(s *State) (bool, error) {
	attrs := s.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	out, _, err := p.program.Eval(map[string]any{
		"state":      s.State,
		"attributes": attrs,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", p.expr, err)
	}
	if out.Type() != types.BoolType {
		return false, fmt.Errorf("condition %q did not evaluate to a boolean", p.expr)
	}
	return out.Value().(bool), nil
}

func (p *Predicate) String() string {
	return p.expr
}
