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

// Package bounds computes per-dimension interval estimates for the regions
// of a pipeline function touched by a statement.  Intervals are symbolic:
// endpoints are expressions over whichever loop variables remain free in the
// statement under analysis.
package bounds

import (
	"fmt"

	"github.com/darkbuck/fuse/pkg/ir"
)

// Interval is a symbolic [Min, Max] range for one dimension.  A nil endpoint
// means the corresponding bound could not be established.
type Interval struct {
	Min ir.Expr
	Max ir.Expr
}

// Bounded checks whether both endpoints were established.
func (p Interval) Bounded() bool {
	return p.Min != nil && p.Max != nil
}

// Box is an ordered sequence of intervals, one per dimension of the accessed
// function.
type Box []Interval

// Union computes the smallest interval enclosing both arguments.
func Union(a, b Interval) Interval {
	if !a.Bounded() || !b.Bounded() {
		return Interval{}
	}
	//
	return Interval{
		Min: ir.Simplify(&ir.Min{A: a.Min, B: b.Min}),
		Max: ir.Simplify(&ir.Max{A: a.Max, B: b.Max}),
	}
}

// BoxUnion computes the elementwise union of two boxes.  An empty box is the
// identity; otherwise the dimension counts must agree.
func BoxUnion(a, b Box) Box {
	if len(a) == 0 {
		return b
	} else if len(b) == 0 {
		return a
	} else if len(a) != len(b) {
		panic(fmt.Sprintf("dimension mismatch in box union (%d vs %d)", len(a), len(b)))
	}
	//
	out := make(Box, len(a))
	for i := range a {
		out[i] = Union(a[i], b[i])
	}
	//
	return out
}

// Contains checks whether box a provably encloses box b in every dimension.
// Unprovable or unbounded dimensions yield false.
func Contains(a, b Box) bool {
	if len(b) == 0 {
		return true
	} else if len(a) != len(b) {
		return false
	}
	//
	for i := range a {
		if !a[i].Bounded() || !b[i].Bounded() {
			return false
		}
		//
		lower := ir.CanProve(&ir.LE{A: a[i].Min, B: b[i].Min})
		upper := ir.CanProve(&ir.GE{A: a[i].Max, B: b[i].Max})
		//
		if !lower || !upper {
			return false
		}
	}
	//
	return true
}

// Provided computes the union of regions of fn written by Provide nodes
// within a statement.
func Provided(s ir.Stmt, fn string) Box {
	return regionTouched(s, fn, true)
}

// Required computes the union of regions of fn read by call nodes within a
// statement.
func Required(s ir.Stmt, fn string) Box {
	return regionTouched(s, fn, false)
}

// regionTouched walks the statement maintaining a scope of intervals for
// enclosing loop variables, accumulating the access windows of fn.  Loop
// variables bound outside the statement remain symbolic in the result.
func regionTouched(s ir.Stmt, fn string, provided bool) Box {
	w := walker{fn: fn, provided: provided, scope: make(map[string]Interval)}
	w.stmt(s)
	//
	return w.box
}

type walker struct {
	fn       string
	provided bool
	scope    map[string]Interval
	box      Box
}

func (w *walker) stmt(s ir.Stmt) {
	switch v := s.(type) {
	case *ir.LetStmt:
		// Bind the let value as a degenerate interval.
		w.push(v.Name, Interval{v.Value, v.Value})
		w.stmt(v.Body)
		w.pop(v.Name)
	case *ir.AssertStmt:
		// No accesses of interest.
	case *ir.Block:
		for _, t := range v.Stmts {
			w.stmt(t)
		}
	case *ir.For:
		last := ir.Simplify(&ir.Add{A: v.Min, B: &ir.Sub{A: v.Extent, B: ir.NewInt(1)}})
		w.push(v.Name, Interval{v.Min, last})
		w.stmt(v.Body)
		w.pop(v.Name)
	case *ir.Provide:
		if w.provided && v.Name == w.fn {
			w.access(v.Args)
		}
		// Values may contain reads.
		if !w.provided {
			for _, e := range v.Values {
				w.expr(e)
			}
			//
			for _, e := range v.Args {
				w.expr(e)
			}
		}
	case *ir.Realize:
		w.stmt(v.Body)
	case *ir.ProducerConsumer:
		w.stmt(v.Body)
	case *ir.Acquire:
		w.stmt(v.Body)
	case *ir.Evaluate:
		if !w.provided {
			w.expr(v.Value)
		}
	default:
		panic(fmt.Sprintf("unknown statement encountered: %s", s))
	}
}

func (w *walker) expr(e ir.Expr) {
	ir.WalkExpr(e, func(e ir.Expr) bool {
		if c, ok := e.(*ir.Call); ok && c.CallType == ir.CallFunc && c.Name == w.fn {
			w.access(c.Args)
		}
		//
		return true
	})
}

func (w *walker) access(args []ir.Expr) {
	box := make(Box, len(args))
	for i, a := range args {
		box[i] = w.intervalOf(a)
	}
	//
	w.box = BoxUnion(w.box, box)
}

func (w *walker) push(name string, i Interval) {
	// Shadowing of loop variables does not occur in lowered pipelines.
	w.scope[name] = i
}

func (w *walker) pop(name string) {
	delete(w.scope, name)
}

// intervalOf evaluates the interval an index expression ranges over, given
// intervals for the in-scope loop variables.
func (w *walker) intervalOf(e ir.Expr) Interval {
	switch v := e.(type) {
	case *ir.IntImm:
		return Interval{v, v}
	case *ir.Var:
		if i, ok := w.scope[v.Name]; ok {
			return i
		}
		// Free variable: symbolic point interval.
		return Interval{v, v}
	case *ir.Add:
		a, b := w.intervalOf(v.A), w.intervalOf(v.B)
		if !a.Bounded() || !b.Bounded() {
			return Interval{}
		}
		//
		return Interval{
			Min: ir.Simplify(&ir.Add{A: a.Min, B: b.Min}),
			Max: ir.Simplify(&ir.Add{A: a.Max, B: b.Max}),
		}
	case *ir.Sub:
		a, b := w.intervalOf(v.A), w.intervalOf(v.B)
		if !a.Bounded() || !b.Bounded() {
			return Interval{}
		}
		//
		return Interval{
			Min: ir.Simplify(&ir.Sub{A: a.Min, B: b.Max}),
			Max: ir.Simplify(&ir.Sub{A: a.Max, B: b.Min}),
		}
	case *ir.Mul:
		return w.intervalOfMul(v)
	case *ir.Mod:
		if c, ok := ir.IsConstInt(v.B); ok && c > 0 {
			return Interval{ir.NewInt(0), ir.NewInt(c - 1)}
		}
		//
		return Interval{}
	case *ir.Min:
		a, b := w.intervalOf(v.A), w.intervalOf(v.B)
		if !a.Bounded() || !b.Bounded() {
			return Interval{}
		}
		//
		return Interval{
			Min: ir.Simplify(&ir.Min{A: a.Min, B: b.Min}),
			Max: ir.Simplify(&ir.Min{A: a.Max, B: b.Max}),
		}
	case *ir.Max:
		a, b := w.intervalOf(v.A), w.intervalOf(v.B)
		if !a.Bounded() || !b.Bounded() {
			return Interval{}
		}
		//
		return Interval{
			Min: ir.Simplify(&ir.Max{A: a.Min, B: b.Min}),
			Max: ir.Simplify(&ir.Max{A: a.Max, B: b.Max}),
		}
	case *ir.Select:
		return Union(w.intervalOf(v.TrueVal), w.intervalOf(v.FalseVal))
	case *ir.Call:
		if v.CallType == ir.CallIntrinsic && v.Name == "likely" && len(v.Args) == 1 {
			return w.intervalOf(v.Args[0])
		}
		//
		return Interval{}
	default:
		return Interval{}
	}
}

func (w *walker) intervalOfMul(v *ir.Mul) Interval {
	if c, ok := ir.IsConstInt(v.A); ok {
		return scaleInterval(w.intervalOf(v.B), c)
	} else if c, ok := ir.IsConstInt(v.B); ok {
		return scaleInterval(w.intervalOf(v.A), c)
	}
	//
	return Interval{}
}

func scaleInterval(i Interval, by int64) Interval {
	if !i.Bounded() {
		return Interval{}
	}
	//
	lo := ir.Simplify(&ir.Mul{A: ir.NewInt(by), B: i.Min})
	hi := ir.Simplify(&ir.Mul{A: ir.NewInt(by), B: i.Max})
	//
	if by < 0 {
		lo, hi = hi, lo
	}
	//
	return Interval{lo, hi}
}
