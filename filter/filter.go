// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package filter evaluates user supplied CEL expressions against candidate
// organizations, e.g. `state == "CA" && subsection == 3`.
//
// Available variables: ein (int), name, city, state, zipcode, ntee_code,
// org_type (string), subsection (int) and has_embedding (bool).
package filter

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/cel-go/cel"
	"github.com/poiesic/donorfinder/core"
)

// ErrInvalidFilter indicates an expression that does not compile to a boolean.
var ErrInvalidFilter = errors.New("invalid filter expression")

// Program is a compiled filter expression. It is safe for concurrent use.
type Program struct {
	Expression string
	program    cel.Program
}

var env *cel.Env

func init() {
	var err error
	env, err = cel.NewEnv(
		cel.Variable("ein", cel.IntType),
		cel.Variable("name", cel.StringType),
		cel.Variable("city", cel.StringType),
		cel.Variable("state", cel.StringType),
		cel.Variable("zipcode", cel.StringType),
		cel.Variable("ntee_code", cel.StringType),
		cel.Variable("org_type", cel.StringType),
		cel.Variable("subsection", cel.IntType),
		cel.Variable("has_embedding", cel.BoolType),
	)
	if err != nil {
		panic(fmt.Sprintf("error creating CEL environment: %v", err))
	}
}

// Compile parses and type-checks expression.
func Compile(expression string) (*Program, error) {
	if expression == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidFilter)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, issues.Err())
	}
	if out := ast.OutputType(); out.String() != cel.BoolType.String() {
		return nil, fmt.Errorf("%w: expression yields %s, not bool", ErrInvalidFilter, out)
	}
	p, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return &Program{Expression: expression, program: p}, nil
}

// Matches evaluates the expression for org.
func (p *Program) Matches(org *core.Organization) (bool, error) {
	out, _, err := p.program.Eval(map[string]any{
		"ein":           int64(org.Id),
		"name":          org.Name,
		"city":          org.City,
		"state":         org.State,
		"zipcode":       org.Zipcode,
		"ntee_code":     org.NTEECode,
		"org_type":      string(org.OrgType),
		"subsection":    int64(org.Subsection),
		"has_embedding": org.HasEmbedding(),
	})
	if err != nil {
		return false, fmt.Errorf("error evaluating filter: %w", err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: non-boolean result %v", ErrInvalidFilter, out.Value())
	}
	return matched, nil
}

// Predicate returns Matches as a plain predicate. Organizations whose
// evaluation fails are rejected and counted in failed when it is non-nil.
func (p *Program) Predicate(failed *atomic.Int64) func(*core.Organization) bool {
	return func(org *core.Organization) bool {
		ok, err := p.Matches(org)
		if err != nil {
			if failed != nil {
				failed.Add(1)
			}
			return false
		}
		return ok
	}
}
