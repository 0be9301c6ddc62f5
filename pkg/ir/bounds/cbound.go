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
package bounds

import (
	"github.com/darkbuck/fuse/pkg/ir"
)

// ConstRange is a constant integer interval, where either endpoint may be an
// infinity.
type ConstRange struct {
	Lo, Hi       int64
	LoInf, HiInf bool
}

// Infinite is the range enclosing every integer.
var Infinite = ConstRange{LoInf: true, HiInf: true}

// NewConstRange constructs a finite constant range.
func NewConstRange(lo, hi int64) ConstRange {
	if lo > hi {
		panic("invalid constant range")
	}
	//
	return ConstRange{Lo: lo, Hi: hi}
}

// ConstantUpperBound attempts to establish a constant upper bound for an
// expression, given constant ranges for some of its free variables.
// Variables absent from the scope are unbounded.  The second result is false
// when no finite bound exists.
func ConstantUpperBound(e ir.Expr, scope map[string]ConstRange) (int64, bool) {
	r := constRangeOf(ir.Simplify(e), scope)
	//
	if r.HiInf {
		return 0, false
	}
	//
	return r.Hi, true
}

func constRangeOf(e ir.Expr, scope map[string]ConstRange) ConstRange {
	switch v := e.(type) {
	case *ir.IntImm:
		return ConstRange{Lo: v.Value, Hi: v.Value}
	case *ir.Var:
		if r, ok := scope[v.Name]; ok {
			return r
		}
		//
		return Infinite
	case *ir.Add:
		return addRange(constRangeOf(v.A, scope), constRangeOf(v.B, scope))
	case *ir.Sub:
		return addRange(constRangeOf(v.A, scope), negRange(constRangeOf(v.B, scope)))
	case *ir.Mul:
		if c, ok := ir.IsConstInt(v.A); ok {
			return scaleRange(constRangeOf(v.B, scope), c)
		} else if c, ok := ir.IsConstInt(v.B); ok {
			return scaleRange(constRangeOf(v.A, scope), c)
		}
		//
		return Infinite
	case *ir.Mod:
		if c, ok := ir.IsConstInt(v.B); ok && c > 0 {
			return ConstRange{Lo: 0, Hi: c - 1}
		}
		//
		return Infinite
	case *ir.Min:
		a, b := constRangeOf(v.A, scope), constRangeOf(v.B, scope)
		return ConstRange{
			Lo:    min64(a.Lo, b.Lo),
			Hi:    pickMin(a.Hi, a.HiInf, b.Hi, b.HiInf),
			LoInf: a.LoInf || b.LoInf,
			HiInf: a.HiInf && b.HiInf,
		}
	case *ir.Max:
		a, b := constRangeOf(v.A, scope), constRangeOf(v.B, scope)
		return ConstRange{
			Lo:    pickMax(a.Lo, a.LoInf, b.Lo, b.LoInf),
			Hi:    max64(a.Hi, b.Hi),
			LoInf: a.LoInf && b.LoInf,
			HiInf: a.HiInf || b.HiInf,
		}
	case *ir.Select:
		a, b := constRangeOf(v.TrueVal, scope), constRangeOf(v.FalseVal, scope)
		return ConstRange{
			Lo:    min64(a.Lo, b.Lo),
			Hi:    max64(a.Hi, b.Hi),
			LoInf: a.LoInf || b.LoInf,
			HiInf: a.HiInf || b.HiInf,
		}
	case *ir.Call:
		if v.CallType == ir.CallIntrinsic && v.Name == "likely" && len(v.Args) == 1 {
			return constRangeOf(v.Args[0], scope)
		}
		//
		return Infinite
	default:
		return Infinite
	}
}

func addRange(a, b ConstRange) ConstRange {
	return ConstRange{
		Lo:    a.Lo + b.Lo,
		Hi:    a.Hi + b.Hi,
		LoInf: a.LoInf || b.LoInf,
		HiInf: a.HiInf || b.HiInf,
	}
}

func negRange(a ConstRange) ConstRange {
	return ConstRange{Lo: -a.Hi, Hi: -a.Lo, LoInf: a.HiInf, HiInf: a.LoInf}
}

func scaleRange(a ConstRange, by int64) ConstRange {
	if by < 0 {
		return negRange(scaleRange(a, -by))
	}
	//
	return ConstRange{Lo: a.Lo * by, Hi: a.Hi * by, LoInf: a.LoInf, HiInf: a.HiInf}
}

// pickMin selects the smaller of two upper bounds, ignoring infinite sides.
func pickMin(a int64, aInf bool, b int64, bInf bool) int64 {
	switch {
	case aInf:
		return b
	case bInf:
		return a
	default:
		return min64(a, b)
	}
}

// pickMax selects the larger of two lower bounds, ignoring infinite sides.
func pickMax(a int64, aInf bool, b int64, bInf bool) int64 {
	switch {
	case aInf:
		return b
	case bInf:
		return a
	default:
		return max64(a, b)
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	//
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	//
	return b
}
