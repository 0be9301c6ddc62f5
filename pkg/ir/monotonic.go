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

// Monotonicity classifies how an expression varies as a given variable
// increases.
type Monotonicity uint8

const (
	// Constant means the expression does not depend on the variable.
	Constant Monotonicity = iota
	// Increasing means the expression is non-decreasing in the variable.
	Increasing
	// Decreasing means the expression is non-increasing in the variable.
	Decreasing
	// Unknown means no relationship could be established.
	Unknown
)

// String implementation for the Stringer interface.
func (m Monotonicity) String() string {
	switch m {
	case Constant:
		return "constant"
	case Increasing:
		return "increasing"
	case Decreasing:
		return "decreasing"
	default:
		return "unknown"
	}
}

// Monotonic classifies the behaviour of an expression with respect to the
// named variable.  The result is conservative: Increasing and Decreasing are
// only reported when provable, and anything else degrades to Unknown.
func Monotonic(e Expr, name string) Monotonicity {
	switch v := e.(type) {
	case *IntImm, *StringImm, *BoolImm:
		return Constant
	case *Var:
		if v.Name == name {
			return Increasing
		}
		//
		return Constant
	case *Add:
		return unify(Monotonic(v.A, name), Monotonic(v.B, name))
	case *Sub:
		return unify(Monotonic(v.A, name), flip(Monotonic(v.B, name)))
	case *Mul:
		return monotonicMul(v, name)
	case *Mod:
		if Monotonic(v.A, name) == Constant && Monotonic(v.B, name) == Constant {
			return Constant
		}
		//
		return Unknown
	case *Min:
		return unify(Monotonic(v.A, name), Monotonic(v.B, name))
	case *Max:
		return unify(Monotonic(v.A, name), Monotonic(v.B, name))
	case *Select:
		if Monotonic(v.Cond, name) == Constant {
			return unify(Monotonic(v.TrueVal, name), Monotonic(v.FalseVal, name))
		}
		//
		return Unknown
	case *Call:
		// "likely" is an identity hint; other calls are opaque unless all of
		// their arguments are invariant.
		if v.CallType == CallIntrinsic && v.Name == "likely" && len(v.Args) == 1 {
			return Monotonic(v.Args[0], name)
		}
		//
		for _, a := range v.Args {
			if Monotonic(a, name) != Constant {
				return Unknown
			}
		}
		//
		return Constant
	default:
		if !UsesVar(e, name) {
			return Constant
		}
		//
		return Unknown
	}
}

func monotonicMul(v *Mul, name string) Monotonicity {
	a, b := Monotonic(v.A, name), Monotonic(v.B, name)
	// Only multiplication by an invariant constant of known sign is handled.
	if c, ok := IsConstInt(v.A); ok && a == Constant {
		if c >= 0 {
			return b
		}
		//
		return flip(b)
	}
	//
	if c, ok := IsConstInt(v.B); ok && b == Constant {
		if c >= 0 {
			return a
		}
		//
		return flip(a)
	}
	//
	if a == Constant && b == Constant {
		return Constant
	}
	//
	return Unknown
}

// unify combines classifications of two subexpressions under an operation
// which preserves direction (addition, min, max).
func unify(a, b Monotonicity) Monotonicity {
	switch {
	case a == Constant:
		return b
	case b == Constant:
		return a
	case a == b:
		return a
	default:
		return Unknown
	}
}

func flip(m Monotonicity) Monotonicity {
	switch m {
	case Increasing:
		return Decreasing
	case Decreasing:
		return Increasing
	default:
		return m
	}
}
