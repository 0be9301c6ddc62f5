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
package fold

import (
	"testing"

	"github.com/darkbuck/fuse/pkg/ir"
	"github.com/stretchr/testify/assert"
)

// stencil builds the canonical producer/consumer pipeline over a single
// serial loop:
//
//	realize f([0, size]) {
//	  for x in [0, n) {
//	    produce f { f(produceIdx) = 0 }
//	    consume f { eval(f(consumeIdx_0) + ... + f(consumeIdx_k)) }
//	  }
//	}
func stencil(kind ir.ForKind, size, n int64, produceIdx ir.Expr, consumeIdx ...ir.Expr) *ir.Realize {
	produce := &ir.ProducerConsumer{
		Name:       "f",
		IsProducer: true,
		Body: &ir.Provide{
			Name:   "f",
			Values: []ir.Expr{ir.NewInt(0)},
			Args:   []ir.Expr{produceIdx},
		},
	}
	//
	var sum ir.Expr
	for _, idx := range consumeIdx {
		load := &ir.Call{Kind: ir.TInt32, Name: "f", CallType: ir.CallFunc, Args: []ir.Expr{idx}}
		if sum == nil {
			sum = load
		} else {
			sum = &ir.Add{A: sum, B: load}
		}
	}
	//
	consume := &ir.ProducerConsumer{
		Name: "f",
		Body: &ir.Evaluate{Value: sum},
	}
	//
	return &ir.Realize{
		Name:   "f",
		Bounds: []ir.Range{{Min: ir.NewInt(0), Extent: ir.NewInt(size)}},
		Cond:   ir.True(),
		Body: &ir.For{
			Name:   "x",
			Min:    ir.NewInt(0),
			Extent: ir.NewInt(n),
			Kind:   kind,
			Body:   &ir.Block{Stmts: []ir.Stmt{produce, consume}},
		},
	}
}

// findRealize locates the (unique) allocation of fn in a statement tree.
func findRealize(t *testing.T, s ir.Stmt, fn string) *ir.Realize {
	var found *ir.Realize
	//
	ir.WalkStmt(s, func(s ir.Stmt) bool {
		if r, ok := s.(*ir.Realize); ok && r.Name == fn {
			found = r
		}
		//
		return true
	}, nil)
	//
	if found == nil {
		t.Fatalf("no realize node for %s in %s", fn, s)
	}
	//
	return found
}

// accessIndices collects the first index of every read and write of fn.
func accessIndices(s ir.Stmt, fn string) []ir.Expr {
	var out []ir.Expr
	//
	ir.WalkStmt(s, func(s ir.Stmt) bool {
		if p, ok := s.(*ir.Provide); ok && p.Name == fn {
			out = append(out, p.Args[0])
		}
		//
		return true
	}, func(e ir.Expr) bool {
		if c, ok := e.(*ir.Call); ok && c.CallType == ir.CallFunc && c.Name == fn {
			out = append(out, c.Args[0])
		}
		//
		return true
	})
	//
	return out
}

// countExternCalls counts calls to the given runtime function.
func countExternCalls(s ir.Stmt, name string) int {
	var count int
	//
	ir.WalkStmt(s, nil, func(e ir.Expr) bool {
		if c, ok := e.(*ir.Call); ok && c.CallType == ir.CallExtern && c.Name == name {
			count++
		}
		//
		return true
	})
	//
	return count
}

func assertWrapped(t *testing.T, s ir.Stmt, fn string, factor int64) {
	indices := accessIndices(s, fn)
	assert.NotEmpty(t, indices)
	//
	for _, idx := range indices {
		if factor == 1 {
			v, ok := ir.IsConstInt(idx)
			assert.True(t, ok, "index %s not rewritten to zero", idx)
			assert.Equal(t, int64(0), v)
		} else if m, ok := idx.(*ir.Mod); assert.True(t, ok, "index %s not wrapped", idx) {
			v, ok := ir.IsConstInt(m.B)
			assert.True(t, ok)
			assert.Equal(t, factor, v, "wrong wrap factor in %s", idx)
		}
	}
}

func TestFold_Stencil(t *testing.T) {
	x := ir.NewVar("x")
	// f(x-1) + f(x) + f(x+1) has a window of three elements, hence a fold
	// factor of four.
	s := stencil(ir.Serial, 12, 10, x,
		&ir.Sub{A: x, B: ir.NewInt(1)}, x, &ir.Add{A: x, B: ir.NewInt(1)})
	//
	out, err := Fold(s, map[string]*Func{"f": {Name: "f"}})
	assert.NoError(t, err)
	//
	r := findRealize(t, out, "f")
	// Allocation shrinks to [0, 4)
	lo, _ := ir.IsConstInt(r.Bounds[0].Min)
	ext, _ := ir.IsConstInt(r.Bounds[0].Extent)
	assert.Equal(t, int64(0), lo)
	assert.Equal(t, int64(4), ext)
	// Every access wraps modulo the factor
	assertWrapped(t, out, "f", 4)
}

func TestFold_SingleElementWindow(t *testing.T) {
	x := ir.NewVar("x")
	// A window of one element folds to a single slot, whose index is simply
	// zero.
	s := stencil(ir.Serial, 10, 10, x, x)
	//
	out, err := Fold(s, map[string]*Func{"f": {Name: "f"}})
	assert.NoError(t, err)
	//
	r := findRealize(t, out, "f")
	ext, _ := ir.IsConstInt(r.Bounds[0].Extent)
	assert.Equal(t, int64(1), ext)
	//
	assertWrapped(t, out, "f", 1)
}

func TestFold_ParallelLoop(t *testing.T) {
	x := ir.NewVar("x")
	s := stencil(ir.Parallel, 12, 10, x, x)
	//
	out, err := Fold(s, map[string]*Func{"f": {Name: "f"}})
	assert.NoError(t, err)
	// Nothing changes across a parallel loop
	assert.True(t, ir.Stmt(s) == out)
}

func TestFold_NonMonotonic(t *testing.T) {
	x := ir.NewVar("x")
	// The access direction flips halfway, hence no automatic fold.
	idx := &ir.Select{
		Cond:     &ir.LT{A: x, B: ir.NewInt(5)},
		TrueVal:  x,
		FalseVal: &ir.Sub{A: ir.NewInt(10), B: x},
	}
	s := stencil(ir.Serial, 12, 10, idx, idx)
	//
	out, err := Fold(s, map[string]*Func{"f": {Name: "f"}})
	assert.NoError(t, err)
	assert.True(t, ir.Stmt(s) == out)
}

func TestFold_ExplicitFactor(t *testing.T) {
	x := ir.NewVar("x")
	// Extent five versus declared factor two: folded at the declared
	// factor, with a runtime check in place of the static proof.
	fn := &Func{
		Name: "f",
		Dims: []StorageDim{{Var: "x", FoldFactor: ir.NewInt(2), FoldForward: true}},
	}
	s := stencil(ir.Serial, 14, 10, x,
		&ir.Sub{A: x, B: ir.NewInt(2)}, x, &ir.Add{A: x, B: ir.NewInt(2)})
	//
	out, err := Fold(s, map[string]*Func{"f": fn})
	assert.NoError(t, err)
	//
	r := findRealize(t, out, "f")
	ext, _ := ir.IsConstInt(r.Bounds[0].Extent)
	assert.Equal(t, int64(2), ext)
	//
	assertWrapped(t, out, "f", 2)
	// The factor cannot be verified statically against the extent, hence
	// the runtime check.
	assert.Equal(t, 1, countExternCalls(out, "halide_error_fold_factor_too_small"))
	// Monotonicity itself was proven, hence no direction check.
	assert.Equal(t, 0, countExternCalls(out, "halide_error_bad_fold"))
}

func TestFold_ExplicitUnprovenDirection(t *testing.T) {
	x := ir.NewVar("x")
	// The index defeats the monotonicity analysis, but the schedule
	// insists: folding proceeds with a runtime direction check.
	idx := &ir.Select{
		Cond:     &ir.LT{A: x, B: ir.NewInt(5)},
		TrueVal:  x,
		FalseVal: &ir.Sub{A: ir.NewInt(10), B: x},
	}
	fn := &Func{
		Name: "f",
		Dims: []StorageDim{{Var: "x", FoldFactor: ir.NewInt(8), FoldForward: true}},
	}
	s := stencil(ir.Serial, 12, 10, idx, idx)
	//
	out, err := Fold(s, map[string]*Func{"f": fn})
	assert.NoError(t, err)
	//
	assertWrapped(t, out, "f", 8)
	assert.Equal(t, 1, countExternCalls(out, "halide_error_bad_fold"))
}

func TestFold_BufferHandleEscapes(t *testing.T) {
	x := ir.NewVar("x")
	s := stencil(ir.Serial, 12, 10, x, x)
	// Pass the raw buffer to an extern stage within the allocation.
	escape := &ir.Evaluate{Value: &ir.Call{
		Kind:     ir.TInt32,
		Name:     "some_extern_stage",
		CallType: ir.CallExtern,
		Args:     []ir.Expr{ir.NewHandle("f.buffer")},
	}}
	s = &ir.Realize{
		Name:   "f",
		Bounds: s.Bounds,
		Cond:   s.Cond,
		Body:   &ir.Block{Stmts: []ir.Stmt{s.Body, escape}},
	}
	// Without an explicit factor the function is quietly left unfolded
	out, err := Fold(s, map[string]*Func{"f": {Name: "f"}})
	assert.NoError(t, err)
	assert.True(t, ir.Stmt(s) == out)
	// With an explicit factor, this is an error
	fn := &Func{Name: "f", Dims: []StorageDim{{Var: "x", FoldFactor: ir.NewInt(2)}}}
	_, err = Fold(s, map[string]*Func{"f": fn})
	assert.Error(t, err)
}

func TestFold_MultipleProducers(t *testing.T) {
	x := ir.NewVar("x")
	s := stencil(ir.Serial, 12, 10, x, x)
	// Duplicate the producer stage
	loop := s.Body.(*ir.For)
	block := loop.Body.(*ir.Block)
	body := &ir.Block{Stmts: []ir.Stmt{block.Stmts[0], block.Stmts[0], block.Stmts[1]}}
	s = &ir.Realize{
		Name:   "f",
		Bounds: s.Bounds,
		Cond:   s.Cond,
		Body:   &ir.For{Name: loop.Name, Min: loop.Min, Extent: loop.Extent, Kind: loop.Kind, Body: body},
	}
	// Automatic folding declines multiple producers
	out, err := Fold(s, map[string]*Func{"f": {Name: "f"}})
	assert.NoError(t, err)
	assert.True(t, ir.Stmt(s) == out)
}

func TestFold_Async(t *testing.T) {
	x := ir.NewVar("x")
	// Asynchronous producer one element ahead of its consumer.
	fn := &Func{Name: "f", Async: true}
	s := stencil(ir.Serial, 12, 10, x, &ir.Sub{A: x, B: ir.NewInt(1)}, x)
	//
	out, err := Fold(s, map[string]*Func{"f": fn})
	assert.NoError(t, err)
	// The fold gains a semaphore, initialised outside the allocation.
	let, ok := out.(*ir.LetStmt)
	assert.True(t, ok, "expected semaphore let around %s", out)
	//
	call, ok := let.Value.(*ir.Call)
	assert.True(t, ok)
	assert.Equal(t, "halide_make_semaphore", call.Name)
	//
	assertWrapped(t, out, "f", 2)
	// The producer acquires one slot per iteration and releases retired
	// slots for reuse.
	var acquired *ir.Acquire
	//
	ir.WalkStmt(out, func(s ir.Stmt) bool {
		if a, ok := s.(*ir.Acquire); ok {
			acquired = a
		}
		//
		return true
	}, nil)
	//
	if assert.NotNil(t, acquired) {
		count, ok := ir.IsConstInt(acquired.Count)
		assert.True(t, ok)
		assert.Equal(t, int64(1), count)
	}
	//
	assert.Equal(t, 1, countExternCalls(out, "halide_semaphore_release"))
}

func TestFold_Idempotent(t *testing.T) {
	x := ir.NewVar("x")
	s := stencil(ir.Serial, 12, 10, x,
		&ir.Sub{A: x, B: ir.NewInt(1)}, x, &ir.Add{A: x, B: ir.NewInt(1)})
	//
	once, err := Fold(s, map[string]*Func{"f": {Name: "f"}})
	assert.NoError(t, err)
	// A second application finds windows already wrapped at the fold factor
	// and leaves the allocation alone.
	twice, err := Fold(once, map[string]*Func{"f": {Name: "f"}})
	assert.NoError(t, err)
	//
	r := findRealize(t, twice, "f")
	ext, _ := ir.IsConstInt(r.Bounds[0].Extent)
	assert.Equal(t, int64(4), ext)
}
