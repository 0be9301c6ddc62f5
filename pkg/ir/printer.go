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
	"fmt"
	"strings"
)

// String implementation for IntImm.
func (p *IntImm) String() string { return fmt.Sprintf("%d", p.Value) }

// String implementation for StringImm.
func (p *StringImm) String() string { return fmt.Sprintf("%q", p.Value) }

// String implementation for BoolImm.
func (p *BoolImm) String() string { return fmt.Sprintf("%t", p.Value) }

// String implementation for Var.
func (p *Var) String() string { return p.Name }

// String implementation for Add.
func (p *Add) String() string { return binop(p.A, "+", p.B) }

// String implementation for Sub.
func (p *Sub) String() string { return binop(p.A, "-", p.B) }

// String implementation for Mul.
func (p *Mul) String() string { return binop(p.A, "*", p.B) }

// String implementation for Mod.
func (p *Mod) String() string { return binop(p.A, "%", p.B) }

// String implementation for Min.
func (p *Min) String() string { return fmt.Sprintf("min(%s, %s)", p.A, p.B) }

// String implementation for Max.
func (p *Max) String() string { return fmt.Sprintf("max(%s, %s)", p.A, p.B) }

// String implementation for LT.
func (p *LT) String() string { return binop(p.A, "<", p.B) }

// String implementation for LE.
func (p *LE) String() string { return binop(p.A, "<=", p.B) }

// String implementation for GE.
func (p *GE) String() string { return binop(p.A, ">=", p.B) }

// String implementation for And.
func (p *And) String() string { return binop(p.A, "&&", p.B) }

// String implementation for Select.
func (p *Select) String() string {
	return fmt.Sprintf("select(%s, %s, %s)", p.Cond, p.TrueVal, p.FalseVal)
}

// String implementation for Call.
func (p *Call) String() string {
	args := make([]string, len(p.Args))
	for i, a := range p.Args {
		args[i] = a.String()
	}
	//
	return fmt.Sprintf("%s(%s)", p.Name, strings.Join(args, ", "))
}

func binop(a Expr, op string, b Expr) string {
	return fmt.Sprintf("(%s %s %s)", a, op, b)
}

// String implementation for LetStmt.
func (p *LetStmt) String() string {
	return fmt.Sprintf("let %s = %s in %s", p.Name, p.Value, p.Body)
}

// String implementation for AssertStmt.
func (p *AssertStmt) String() string {
	return fmt.Sprintf("assert(%s, %s)", p.Cond, p.Err)
}

// String implementation for Block.
func (p *Block) String() string {
	stmts := make([]string, len(p.Stmts))
	for i, s := range p.Stmts {
		stmts[i] = s.String()
	}
	//
	return fmt.Sprintf("{ %s }", strings.Join(stmts, "; "))
}

// String implementation for For.
func (p *For) String() string {
	var kind string
	//
	switch p.Kind {
	case Serial:
		kind = "for"
	case Unrolled:
		kind = "unrolled"
	case Parallel:
		kind = "parallel"
	case Vectorized:
		kind = "vectorized"
	}
	//
	return fmt.Sprintf("%s (%s, %s, %s) %s", kind, p.Name, p.Min, p.Extent, p.Body)
}

// String implementation for Provide.
func (p *Provide) String() string {
	args := make([]string, len(p.Args))
	for i, a := range p.Args {
		args[i] = a.String()
	}
	//
	values := make([]string, len(p.Values))
	for i, v := range p.Values {
		values[i] = v.String()
	}
	//
	return fmt.Sprintf("%s(%s) = %s", p.Name, strings.Join(args, ", "), strings.Join(values, ", "))
}

// String implementation for Realize.
func (p *Realize) String() string {
	bounds := make([]string, len(p.Bounds))
	for i, b := range p.Bounds {
		bounds[i] = fmt.Sprintf("[%s, %s)", b.Min, b.Extent)
	}
	//
	return fmt.Sprintf("realize %s(%s) %s", p.Name, strings.Join(bounds, ", "), p.Body)
}

// String implementation for ProducerConsumer.
func (p *ProducerConsumer) String() string {
	if p.IsProducer {
		return fmt.Sprintf("produce %s %s", p.Name, p.Body)
	}
	//
	return fmt.Sprintf("consume %s %s", p.Name, p.Body)
}

// String implementation for Acquire.
func (p *Acquire) String() string {
	return fmt.Sprintf("acquire(%s, %s) %s", p.Sema, p.Count, p.Body)
}

// String implementation for Evaluate.
func (p *Evaluate) String() string {
	return fmt.Sprintf("evaluate(%s)", p.Value)
}
