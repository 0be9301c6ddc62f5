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

// Package fold implements the storage-folding pass.  The pass shrinks the
// allocation of a pipeline function to a circular buffer whenever the window
// of elements live across an enclosing serial loop provably slides
// monotonically, rewriting every access in the folded dimension to wrap via
// a power-of-two modulus.  For asynchronous producers it additionally emits
// the semaphore handshake bounding how far the producer may run ahead of its
// consumer.
package fold

import (
	"fmt"

	"github.com/darkbuck/fuse/pkg/ir"
	log "github.com/sirupsen/logrus"
)

// StorageDim is the schedule directive for one storage dimension of a
// function.
type StorageDim struct {
	// Var names the dimension, for error reporting.
	Var string
	// FoldFactor is the explicitly requested fold factor, or nil when
	// folding is left to the compiler.
	FoldFactor ir.Expr
	// FoldForward gives the declared fold direction for an explicit fold
	// whose monotonicity cannot be established at compile time.
	FoldForward bool
}

// Func is the schedule metadata of a pipeline function, as consumed by this
// pass.
type Func struct {
	Name string
	Dims []StorageDim
	// Async marks the producer as running in its own thread, ahead of its
	// consumer.
	Async bool
}

// Automatic folding gives up beyond this extent, since very large circular
// buffers defeat the purpose of folding.
const maxAutoFold = 1024

// Fold rewrites every foldable allocation in a statement tree, given the
// per-function schedule metadata.  Requesting an explicit fold on a function
// whose buffer handle escapes to extern stages is a user error.
func Fold(s ir.Stmt, env map[string]*Func) (ir.Stmt, error) {
	// Folding runs before general simplification, so substitute in constant
	// lets first.
	cs := constSubst{scope: make(map[string]ir.Expr)}
	s = cs.stmt(s)
	//
	f := folder{env: env}
	r := ir.Rewriter{Stmt: f.visit}
	s = r.RewriteStmt(s)
	//
	return s, f.err
}

// folder looks for folding opportunities at each allocation site.
type folder struct {
	env map[string]*Func
	err error
}

func (f *folder) visit(s ir.Stmt) ir.Stmt {
	v, ok := s.(*ir.Realize)
	if !ok {
		return s
	}
	// The rewriter is leaf-first, so v.Body has already been folded where
	// nested allocations allowed it.
	fn := f.env[v.Name]
	if fn == nil {
		fn = &Func{Name: v.Name}
	}
	//
	if usesBufferHandle(v, v.Name) {
		for _, d := range fn.Dims {
			if d.FoldFactor != nil && f.err == nil {
				f.err = fmt.Errorf(
					"dimension %s of %s cannot be folded because it is accessed by extern or device stages",
					d.Var, v.Name)
			}
		}
		//
		log.Debugf("not attempting to fold %s because its buffer is used", v.Name)
		//
		return s
	}
	// Automatic folding is unsafe with multiple producer nodes, since the
	// per-producer windows interleave.
	explicitOnly := countProducers(v.Body, v.Name) != 1
	//
	log.Debugf("attempting to fold %s", v.Name)
	//
	a := attempt{fn: fn, explicitOnly: explicitOnly}
	body := a.stmt(v.Body)
	//
	if a.err != nil {
		if f.err == nil {
			f.err = a.err
		}
		//
		return s
	}
	//
	if len(a.folds) == 0 {
		if body != v.Body {
			return &ir.Realize{Name: v.Name, Bounds: v.Bounds, Cond: v.Cond, Body: body}
		}
		//
		return s
	}
	// Shrink the declared bounds of every folded dimension.
	newBounds := make([]ir.Range, len(v.Bounds))
	copy(newBounds, v.Bounds)
	//
	for _, fd := range a.folds {
		if fd.dim < 0 || fd.dim >= len(newBounds) {
			panic(fmt.Sprintf("folded dimension %d out of range for %s", fd.dim, v.Name))
		}
		//
		newBounds[fd.dim] = ir.Range{Min: ir.NewInt(0), Extent: fd.factor}
	}
	//
	var out ir.Stmt = &ir.Realize{Name: v.Name, Bounds: newBounds, Cond: v.Cond, Body: body}
	// Each fold may carry a semaphore needing one-time initialisation.
	for _, fd := range a.folds {
		if fd.sema != nil {
			space := &ir.Call{
				Kind:     ir.THandle,
				Name:     "halide_make_semaphore",
				CallType: ir.CallExtern,
				Args:     []ir.Expr{fd.sema.init},
			}
			out = &ir.LetStmt{Name: fd.sema.name, Value: space, Body: out}
		}
	}
	//
	return out
}

// usesBufferHandle checks whether the raw buffer handle of a function is
// referenced anywhere under its allocation, which happens when the buffer
// escapes to extern or device stages.
func usesBufferHandle(s ir.Stmt, fn string) bool {
	handle := fn + ".buffer"
	//
	var found bool
	//
	ir.WalkStmt(s, nil, func(e ir.Expr) bool {
		if v, ok := e.(*ir.Var); ok && v.Kind == ir.THandle && v.Name == handle {
			found = true
		}
		//
		return !found
	})
	//
	return found
}

// countProducers counts producer nodes for a function, without descending
// into matching producers.
func countProducers(s ir.Stmt, fn string) int {
	var count int
	//
	ir.WalkStmt(s, func(s ir.Stmt) bool {
		if pc, ok := s.(*ir.ProducerConsumer); ok && pc.IsProducer && pc.Name == fn {
			count++
			return false
		}
		//
		return true
	}, nil)
	//
	return count
}

// ============================================================================
// Constant let substitution
// ============================================================================

// constSubst substitutes constant-valued lets throughout the tree and
// simplifies the right-hand side of every let, so that bound expressions
// seen by the folding analysis are as concrete as possible.
type constSubst struct {
	scope map[string]ir.Expr
}

func (c *constSubst) stmt(s ir.Stmt) ir.Stmt {
	switch v := s.(type) {
	case *ir.LetStmt:
		value := ir.Simplify(c.expr(v.Value))
		//
		var body ir.Stmt
		//
		if _, ok := ir.IsConstInt(value); ok {
			c.scope[v.Name] = value
			body = c.stmt(v.Body)
			delete(c.scope, v.Name)
		} else {
			body = c.stmt(v.Body)
		}
		//
		if body != v.Body || value != v.Value {
			return &ir.LetStmt{Name: v.Name, Value: value, Body: body}
		}
	case *ir.AssertStmt:
		cond, err := c.expr(v.Cond), c.expr(v.Err)
		if cond != v.Cond || err != v.Err {
			return &ir.AssertStmt{Cond: cond, Err: err}
		}
	case *ir.Block:
		var changed bool
		//
		stmts := make([]ir.Stmt, len(v.Stmts))
		for i, t := range v.Stmts {
			stmts[i] = c.stmt(t)
			changed = changed || stmts[i] != t
		}
		//
		if changed {
			return &ir.Block{Stmts: stmts}
		}
	case *ir.For:
		min, extent := c.expr(v.Min), c.expr(v.Extent)
		body := c.stmt(v.Body)
		//
		if min != v.Min || extent != v.Extent || body != v.Body {
			return &ir.For{Name: v.Name, Min: min, Extent: extent, Kind: v.Kind, Body: body}
		}
	case *ir.Provide:
		values, vch := c.exprs(v.Values)
		args, ach := c.exprs(v.Args)
		//
		if vch || ach {
			return &ir.Provide{Name: v.Name, Values: values, Args: args}
		}
	case *ir.Realize:
		var changed bool
		//
		rbounds := make([]ir.Range, len(v.Bounds))
		for i, b := range v.Bounds {
			rbounds[i] = ir.Range{Min: c.expr(b.Min), Extent: c.expr(b.Extent)}
			changed = changed || rbounds[i] != b
		}
		//
		cond := c.expr(v.Cond)
		body := c.stmt(v.Body)
		//
		if changed || cond != v.Cond || body != v.Body {
			return &ir.Realize{Name: v.Name, Bounds: rbounds, Cond: cond, Body: body}
		}
	case *ir.ProducerConsumer:
		if body := c.stmt(v.Body); body != v.Body {
			return &ir.ProducerConsumer{Name: v.Name, IsProducer: v.IsProducer, Body: body}
		}
	case *ir.Acquire:
		sema, count := c.expr(v.Sema), c.expr(v.Count)
		body := c.stmt(v.Body)
		//
		if sema != v.Sema || count != v.Count || body != v.Body {
			return &ir.Acquire{Sema: sema, Count: count, Body: body}
		}
	case *ir.Evaluate:
		if value := c.expr(v.Value); value != v.Value {
			return &ir.Evaluate{Value: value}
		}
	default:
		panic(fmt.Sprintf("unknown statement encountered: %s", s))
	}
	//
	return s
}

func (c *constSubst) expr(e ir.Expr) ir.Expr {
	r := ir.Rewriter{
		Expr: func(e ir.Expr) ir.Expr {
			if v, ok := e.(*ir.Var); ok {
				if value, ok := c.scope[v.Name]; ok {
					return value
				}
			}
			//
			return e
		},
	}
	//
	return r.RewriteExpr(e)
}

func (c *constSubst) exprs(es []ir.Expr) ([]ir.Expr, bool) {
	var changed bool
	//
	out := make([]ir.Expr, len(es))
	for i, e := range es {
		out[i] = c.expr(e)
		changed = changed || out[i] != e
	}
	//
	return out, changed
}

// ============================================================================
// Index rewriting
// ============================================================================

// rewriteAccesses replaces the index of every read and write of fn in the
// given dimension with its wrapped form.
func rewriteAccesses(fn string, dim int, factor ir.Expr, s ir.Stmt) ir.Stmt {
	wrap := func(args []ir.Expr) []ir.Expr {
		if dim >= len(args) {
			panic(fmt.Sprintf("dimension %d out of range for access to %s", dim, fn))
		}
		//
		out := make([]ir.Expr, len(args))
		copy(out, args)
		//
		if ir.IsOne(factor) {
			out[dim] = ir.NewInt(0)
		} else {
			out[dim] = &ir.Mod{A: args[dim], B: factor}
		}
		//
		return out
	}
	//
	r := ir.Rewriter{
		Expr: func(e ir.Expr) ir.Expr {
			if c, ok := e.(*ir.Call); ok && c.CallType == ir.CallFunc && c.Name == fn {
				return &ir.Call{Kind: c.Kind, Name: c.Name, CallType: c.CallType, Args: wrap(c.Args)}
			}
			//
			return e
		},
		Stmt: func(s ir.Stmt) ir.Stmt {
			if p, ok := s.(*ir.Provide); ok && p.Name == fn {
				return &ir.Provide{Name: p.Name, Values: p.Values, Args: wrap(p.Args)}
			}
			//
			return s
		},
	}
	//
	return r.RewriteStmt(s)
}

// uniqueNames distinguishes the semaphores of multiple folds within one
// compilation.
var uniqueNames int

func uniqueName() string {
	uniqueNames++
	return fmt.Sprintf("_%d", uniqueNames)
}
