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
	"github.com/darkbuck/fuse/pkg/ir"
	"github.com/darkbuck/fuse/pkg/ir/bounds"
	"github.com/darkbuck/fuse/pkg/util/math"
	log "github.com/sirupsen/logrus"
)

// semaphore is the counting gate emitted for an asynchronous fold: Created
// once outside the loop with the given initial count, acquired before each
// iteration produces into the circular buffer and released once entries can
// be reused.
type semaphore struct {
	name string
	init ir.Expr
}

// dimFold records one successfully folded dimension.
type dimFold struct {
	dim    int
	factor ir.Expr
	sema   *semaphore
}

// attempt drives the folding of a single function's storage within its
// allocation body.
type attempt struct {
	fn           *Func
	explicitOnly bool
	folds        []dimFold
	err          error
}

func (a *attempt) stmt(s ir.Stmt) ir.Stmt {
	switch v := s.(type) {
	case *ir.ProducerConsumer:
		// Never proceed into the pipeline stage of the function itself.
		if v.Name == a.fn.Name {
			return s
		}
		//
		if body := a.stmt(v.Body); body != v.Body {
			return &ir.ProducerConsumer{Name: v.Name, IsProducer: v.IsProducer, Body: body}
		}
	case *ir.For:
		return a.forLoop(v)
	case *ir.LetStmt:
		if body := a.stmt(v.Body); body != v.Body {
			return &ir.LetStmt{Name: v.Name, Value: v.Value, Body: body}
		}
	case *ir.Block:
		var changed bool
		//
		stmts := make([]ir.Stmt, len(v.Stmts))
		for i, t := range v.Stmts {
			stmts[i] = a.stmt(t)
			changed = changed || stmts[i] != t
		}
		//
		if changed {
			return &ir.Block{Stmts: stmts}
		}
	case *ir.Realize:
		if body := a.stmt(v.Body); body != v.Body {
			return &ir.Realize{Name: v.Name, Bounds: v.Bounds, Cond: v.Cond, Body: body}
		}
	case *ir.Acquire:
		if body := a.stmt(v.Body); body != v.Body {
			return &ir.Acquire{Sema: v.Sema, Count: v.Count, Body: body}
		}
	}
	// Remaining statement kinds have no statement children.
	return s
}

// forLoop is the heart of the pass: it decides, dimension by dimension from
// the outermost in, whether the access window of the function slides
// monotonically across this loop, and folds the storage when it does.
func (a *attempt) forLoop(op *ir.For) ir.Stmt {
	if op.Kind != ir.Serial && op.Kind != ir.Unrolled {
		// Cannot proceed into a parallel loop: folding across threads would
		// need a proof that iterations share no data.
		return op
	}
	//
	var (
		body     = op.Body
		provided = bounds.Provided(body, a.fn.Name)
		required = bounds.Required(body, a.fn.Name)
		box      = bounds.BoxUnion(provided, required)
		loopVar  = ir.NewVar(op.Name)
		loopMin  = ir.Simplify(op.Min)
		next     = &ir.Add{A: loopVar, B: ir.NewInt(1)}
	)
	// Try each dimension in turn, outermost first.
	for d := len(box) - 1; d >= 0; d-- {
		if !box[d].Bounded() {
			continue
		}
		//
		var (
			min = ir.Simplify(box[d].Min)
			max = ir.Simplify(box[d].Max)
			//
			minProvided, maxProvided = endpoints(provided, d)
			minRequired, maxRequired = endpoints(required, d)
		)
		// An explicit fold factor only applies when the fold is relevant for
		// this loop; otherwise the injected asserts would be too
		// conservative.
		var explicitFactor ir.Expr
		//
		dim := a.storageDim(d)
		if dim != nil && (ir.UsesVar(min, op.Name) || ir.UsesVar(max, op.Name)) {
			explicitFactor = dim.FoldFactor
		}
		//
		log.Debugf("considering folding %s over loop %s: min=%s max=%s", a.fn.Name, op.Name, min, max)
		//
		canForwards, canBackwards := false, false
		//
		if !a.explicitOnly {
			// Data read later must not be clobbered and, for async
			// producers, slots already released must never be re-acquired
			// (the semaphore cannot take negative counts).
			canForwards = ir.Monotonic(min, op.Name) == ir.Increasing
			canBackwards = ir.Monotonic(max, op.Name) == ir.Decreasing
			//
			if a.fn.Async {
				canForwards = canForwards && maxProvided != nil && minRequired != nil &&
					ir.Monotonic(maxProvided, op.Name) == ir.Increasing
				canBackwards = canBackwards && minProvided != nil && maxRequired != nil &&
					ir.Monotonic(minProvided, op.Name) == ir.Decreasing
			}
		}
		//
		if !canForwards && !canBackwards && explicitFactor != nil {
			// Monotonicity is unproven but the schedule demands a fold:
			// trust the declared direction and verify it at run time.
			var condition ir.Expr
			//
			if dim.FoldForward {
				minNext := ir.Substitute(op.Name, next, min)
				condition = &ir.GE{A: minNext, B: min}
				//
				if a.fn.Async && maxProvided != nil {
					maxNext := ir.Substitute(op.Name, next, maxProvided)
					condition = &ir.And{A: condition, B: &ir.GE{A: maxNext, B: maxProvided}}
				}
				//
				canForwards = true
			} else {
				maxNext := ir.Substitute(op.Name, next, max)
				condition = &ir.LE{A: maxNext, B: max}
				//
				if a.fn.Async && minProvided != nil {
					minNext := ir.Substitute(op.Name, next, minProvided)
					condition = &ir.And{A: condition, B: &ir.LE{A: minNext, B: minProvided}}
				}
				//
				canBackwards = true
			}
			//
			badFold := errorCall("halide_error_bad_fold",
				&ir.StringImm{Value: a.fn.Name}, &ir.StringImm{Value: dim.Var}, &ir.StringImm{Value: op.Name})
			body = prepend(&ir.AssertStmt{Cond: condition, Err: badFold}, body)
		}
		//
		if !canForwards && !canBackwards {
			log.Debugf("not folding %s: loop min/max not monotonic in %s (min=%s, max=%s)",
				a.fn.Name, op.Name, min, max)
			//
			continue
		}
		//
		extent := ir.Simplify(&ir.Add{A: &ir.Sub{A: max, B: min}, B: ir.NewInt(1)})
		//
		var factor ir.Expr
		//
		if explicitFactor != nil {
			tooSmall := errorCall("halide_error_fold_factor_too_small",
				&ir.StringImm{Value: a.fn.Name}, &ir.StringImm{Value: dim.Var},
				explicitFactor, &ir.StringImm{Value: op.Name}, extent)
			body = prepend(&ir.AssertStmt{Cond: &ir.LE{A: extent, B: explicitFactor}, Err: tooSmall}, body)
			factor = explicitFactor
		} else {
			// The extent must be bounded by a constant over the loop's whole
			// iteration range.
			scope := make(map[string]bounds.ConstRange)
			//
			if lo, ok := ir.IsConstInt(loopMin); ok {
				if ext, ok := ir.IsConstInt(ir.Simplify(op.Extent)); ok && ext > 0 {
					scope[op.Name] = bounds.NewConstRange(lo, lo+ext-1)
				}
			}
			//
			if maxExtent, ok := bounds.ConstantUpperBound(extent, scope); ok && maxExtent <= maxAutoFold {
				// Wraparound is an index modulus, so pick a power of two to
				// make it a bitmask.
				factor = ir.NewInt(math.NextPowerOfTwo(maxExtent))
			} else {
				log.Debugf("not folding %s: extent %s not bounded by a constant at most %d",
					a.fn.Name, extent, maxAutoFold)
			}
		}
		//
		if factor == nil {
			continue
		}
		//
		log.Debugf("folding %s dimension %d over %s with factor %s", a.fn.Name, d, op.Name, factor)
		//
		a.folds = append(a.folds, dimFold{dim: d, factor: factor})
		body = rewriteAccesses(a.fn.Name, d, factor, body)
		//
		if a.fn.Async {
			body = a.synthesizeSemaphore(op, body, factor, extent, loopMin,
				canForwards, minProvided, maxProvided, minRequired, maxRequired)
		}
		// If the next iteration's window starts beyond this one, iterations
		// share no data and further dimensions can still fold at this level.
		minNext := ir.Substitute(op.Name, next, min)
		//
		if ir.CanProve(&ir.LT{A: max, B: minNext}) {
			continue
		} else if body != op.Body {
			return &ir.For{Name: op.Name, Min: op.Min, Extent: op.Extent, Kind: op.Kind, Body: body}
		}
		//
		return op
	}
	// With no values carried between iterations, inner loops can be folded
	// independently.
	if bounds.Contains(provided, required) {
		body = a.stmt(body)
	}
	//
	if body == op.Body {
		return op
	}
	//
	return &ir.For{Name: op.Name, Min: op.Min, Extent: op.Extent, Kind: op.Kind, Body: body}
}

// synthesizeSemaphore emits the producer/consumer handshake for an
// asynchronous fold: the producer acquires the slots it is about to touch
// for the first time and releases those which will never be read again.
func (a *attempt) synthesizeSemaphore(op *ir.For, body ir.Stmt, factor, extent, loopMin ir.Expr,
	forwards bool, minProvided, maxProvided, minRequired, maxRequired ir.Expr) ir.Stmt {
	var (
		loopVar = ir.NewVar(op.Name)
		next    = &ir.Add{A: loopVar, B: ir.NewInt(1)}
		prev    = &ir.Sub{A: loopVar, B: ir.NewInt(1)}
		//
		sema = semaphore{
			name: a.fn.Name + ".folding_semaphore." + uniqueName(),
			init: factor,
		}
		semaVar = ir.NewHandle(sema.name)
		//
		toAcquire, toRelease ir.Expr
	)
	//
	if forwards {
		// Entries are first used when the provided max reaches them, and
		// last used when the required min passes them.
		maxProvidedPrev := ir.Substitute(op.Name, prev, maxProvided)
		minRequiredNext := ir.Substitute(op.Name, next, minRequired)
		toAcquire = ir.Simplify(&ir.Sub{A: maxProvided, B: maxProvidedPrev})
		toRelease = ir.Simplify(&ir.Sub{A: minRequiredNext, B: minRequired})
	} else {
		minProvidedPrev := ir.Substitute(op.Name, prev, minProvided)
		maxRequiredNext := ir.Substitute(op.Name, next, maxRequired)
		toAcquire = ir.Simplify(&ir.Sub{A: minProvidedPrev, B: minProvided})
		toRelease = ir.Simplify(&ir.Sub{A: maxRequired, B: maxRequiredNext})
	}
	// Logically the first iteration acquires the entire extent.  Where that
	// correction is a constant it is folded into the initial count instead,
	// so the loop body needs no special case.
	fudge := ir.Simplify(ir.Substitute(op.Name, loopMin, &ir.Sub{A: extent, B: toAcquire}))
	//
	if c, ok := ir.IsConstInt(fudge); ok {
		sema.init = ir.Simplify(&ir.Sub{A: factor, B: ir.NewInt(c)})
	} else {
		toAcquire = &ir.Select{
			Cond:     &ir.LT{A: loopMin, B: loopVar},
			TrueVal:  ir.Likely(toAcquire),
			FalseVal: extent,
		}
	}
	//
	release := errorCall("halide_semaphore_release", semaVar, toRelease)
	body = &ir.Block{Stmts: []ir.Stmt{body, &ir.Evaluate{Value: release}}}
	body = &ir.Acquire{Sema: semaVar, Count: toAcquire, Body: body}
	//
	a.folds[len(a.folds)-1].sema = &sema
	//
	return body
}

func (a *attempt) storageDim(d int) *StorageDim {
	if d < len(a.fn.Dims) {
		return &a.fn.Dims[d]
	}
	//
	return nil
}

func endpoints(b bounds.Box, d int) (ir.Expr, ir.Expr) {
	if d < len(b) && b[d].Bounded() {
		return ir.Simplify(b[d].Min), ir.Simplify(b[d].Max)
	}
	//
	return nil, nil
}

func errorCall(name string, args ...ir.Expr) *ir.Call {
	return &ir.Call{Kind: ir.TInt32, Name: name, CallType: ir.CallExtern, Args: args}
}

func prepend(s ir.Stmt, body ir.Stmt) ir.Stmt {
	return &ir.Block{Stmts: []ir.Stmt{s, body}}
}
