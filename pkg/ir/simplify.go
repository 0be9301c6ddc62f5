// Copyright Consensys Software Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0
package ir

import (
	"reflect"
	"sort"
)

// Simplify performs constant folding and linear cancellation on an
// expression.  Arithmetic over integer variables is canonicalised as a
// linear combination, so differences such as (x+1) - (x-1) reduce to
// constants.  This is not a general simplifier: it is exactly strong enough
// for the bound reasoning done by the storage-folding pass, which runs
// before full simplification.
func Simplify(e Expr) Expr {
	r := Rewriter{Expr: simplifyNode}
	return r.RewriteExpr(e)
}

// CanProve checks whether a condition simplifies to the constant true.
func CanProve(e Expr) bool {
	b, ok := Simplify(e).(*BoolImm)
	return ok && b.Value
}

// ConstDiff attempts to establish the constant difference a - b between two
// expressions, which succeeds whenever both are linear in the same variables.
func ConstDiff(a, b Expr) (int64, bool) {
	la, ok1 := linearize(a)
	lb, ok2 := linearize(b)
	//
	if !ok1 || !ok2 {
		return 0, false
	}
	//
	d := la.sub(lb)
	if len(d.coeffs) != 0 {
		return 0, false
	}
	//
	return d.constant, true
}

func simplifyNode(e Expr) Expr {
	switch v := e.(type) {
	case *Add, *Sub, *Mul:
		if l, ok := linearize(e); ok {
			return keepIfEqual(e, l.build())
		}
	case *Mod:
		a, aok := IsConstInt(v.A)
		b, bok := IsConstInt(v.B)
		//
		if bok && b == 1 {
			return NewInt(0)
		} else if aok && bok && b > 0 {
			// Euclidean remainder, matching the wraparound semantics of the
			// generated code.
			return NewInt(((a % b) + b) % b)
		}
	case *Min:
		if d, ok := ConstDiff(v.A, v.B); ok {
			if d <= 0 {
				return v.A
			}
			//
			return v.B
		}
	case *Max:
		if d, ok := ConstDiff(v.A, v.B); ok {
			if d >= 0 {
				return v.A
			}
			//
			return v.B
		}
	case *LT:
		if d, ok := ConstDiff(v.A, v.B); ok {
			return &BoolImm{d < 0}
		}
	case *LE:
		if d, ok := ConstDiff(v.A, v.B); ok {
			return &BoolImm{d <= 0}
		}
	case *GE:
		if d, ok := ConstDiff(v.A, v.B); ok {
			return &BoolImm{d >= 0}
		}
	case *And:
		if a, ok := v.A.(*BoolImm); ok {
			if !a.Value {
				return False()
			}
			//
			return v.B
		} else if b, ok := v.B.(*BoolImm); ok {
			if !b.Value {
				return False()
			}
			//
			return v.A
		}
	case *Select:
		if c, ok := v.Cond.(*BoolImm); ok {
			if c.Value {
				return v.TrueVal
			}
			//
			return v.FalseVal
		}
	}
	//
	return e
}

// keepIfEqual returns the original expression when the candidate is
// structurally identical, so that untouched trees keep their identity.
func keepIfEqual(original, candidate Expr) Expr {
	if reflect.DeepEqual(original, candidate) {
		return original
	}
	//
	return candidate
}

// ============================================================================
// Linear forms
// ============================================================================

// linearForm represents an integer expression as constant + sum of
// coefficient * variable terms.
type linearForm struct {
	coeffs   map[string]int64
	constant int64
}

func (l linearForm) sub(o linearForm) linearForm {
	out := linearForm{make(map[string]int64), l.constant - o.constant}
	//
	for k, c := range l.coeffs {
		out.coeffs[k] = c
	}
	//
	for k, c := range o.coeffs {
		if out.coeffs[k] -= c; out.coeffs[k] == 0 {
			delete(out.coeffs, k)
		}
	}
	//
	return out
}

// build reconstructs a canonical expression from the linear form, with terms
// ordered by variable name and the constant last.
func (l linearForm) build() Expr {
	names := make([]string, 0, len(l.coeffs))
	for k := range l.coeffs {
		names = append(names, k)
	}
	//
	sort.Strings(names)
	//
	var out Expr
	//
	for _, n := range names {
		var term Expr = NewVar(n)
		//
		if c := l.coeffs[n]; c != 1 {
			term = &Mul{NewInt(c), term}
		}
		//
		if out == nil {
			out = term
		} else {
			out = &Add{out, term}
		}
	}
	//
	if out == nil {
		return NewInt(l.constant)
	} else if l.constant > 0 {
		out = &Add{out, NewInt(l.constant)}
	} else if l.constant < 0 {
		out = &Sub{out, NewInt(-l.constant)}
	}
	//
	return out
}

func linearize(e Expr) (linearForm, bool) {
	switch v := e.(type) {
	case *IntImm:
		return linearForm{map[string]int64{}, v.Value}, true
	case *Var:
		if v.Kind == TInt32 {
			return linearForm{map[string]int64{v.Name: 1}, 0}, true
		}
	case *Add:
		if a, ok := linearize(v.A); ok {
			if b, ok := linearize(v.B); ok {
				return a.sub(b.negate()), true
			}
		}
	case *Sub:
		if a, ok := linearize(v.A); ok {
			if b, ok := linearize(v.B); ok {
				return a.sub(b), true
			}
		}
	case *Mul:
		// One side must be a pure constant.
		if a, ok := linearize(v.A); ok {
			if b, ok := linearize(v.B); ok {
				if len(a.coeffs) == 0 {
					return b.scale(a.constant), true
				} else if len(b.coeffs) == 0 {
					return a.scale(b.constant), true
				}
			}
		}
	}
	//
	return linearForm{}, false
}

func (l linearForm) negate() linearForm {
	return linearForm{map[string]int64{}, 0}.sub(l)
}

func (l linearForm) scale(by int64) linearForm {
	out := linearForm{make(map[string]int64), l.constant * by}
	//
	for k, c := range l.coeffs {
		if c*by != 0 {
			out.coeffs[k] = c * by
		}
	}
	//
	return out
}
