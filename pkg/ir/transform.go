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

import "fmt"

// Rewriter transforms a tree leaf-first.  Children are rewritten before the
// callbacks see their (possibly rebuilt) parent, and a node whose children
// are all unchanged is returned as-is, so callers can detect modification by
// pointer comparison.  A nil callback is the identity.
type Rewriter struct {
	// Expr is applied to every expression after its children.
	Expr func(Expr) Expr
	// Stmt is applied to every statement after its children.
	Stmt func(Stmt) Stmt
}

// RewriteExpr applies the rewriter to an expression tree.
func (r *Rewriter) RewriteExpr(e Expr) Expr {
	e = r.rewriteChildren(e)
	//
	if r.Expr != nil {
		e = r.Expr(e)
	}
	//
	return e
}

// RewriteStmt applies the rewriter to a statement tree.
func (r *Rewriter) RewriteStmt(s Stmt) Stmt {
	s = r.rewriteStmtChildren(s)
	//
	if r.Stmt != nil {
		s = r.Stmt(s)
	}
	//
	return s
}

func (r *Rewriter) rewriteChildren(e Expr) Expr {
	switch v := e.(type) {
	case *IntImm, *StringImm, *BoolImm, *Var:
		return e
	case *Add:
		if a, b := r.RewriteExpr(v.A), r.RewriteExpr(v.B); a != v.A || b != v.B {
			return &Add{a, b}
		}
	case *Sub:
		if a, b := r.RewriteExpr(v.A), r.RewriteExpr(v.B); a != v.A || b != v.B {
			return &Sub{a, b}
		}
	case *Mul:
		if a, b := r.RewriteExpr(v.A), r.RewriteExpr(v.B); a != v.A || b != v.B {
			return &Mul{a, b}
		}
	case *Mod:
		if a, b := r.RewriteExpr(v.A), r.RewriteExpr(v.B); a != v.A || b != v.B {
			return &Mod{a, b}
		}
	case *Min:
		if a, b := r.RewriteExpr(v.A), r.RewriteExpr(v.B); a != v.A || b != v.B {
			return &Min{a, b}
		}
	case *Max:
		if a, b := r.RewriteExpr(v.A), r.RewriteExpr(v.B); a != v.A || b != v.B {
			return &Max{a, b}
		}
	case *LT:
		if a, b := r.RewriteExpr(v.A), r.RewriteExpr(v.B); a != v.A || b != v.B {
			return &LT{a, b}
		}
	case *LE:
		if a, b := r.RewriteExpr(v.A), r.RewriteExpr(v.B); a != v.A || b != v.B {
			return &LE{a, b}
		}
	case *GE:
		if a, b := r.RewriteExpr(v.A), r.RewriteExpr(v.B); a != v.A || b != v.B {
			return &GE{a, b}
		}
	case *And:
		if a, b := r.RewriteExpr(v.A), r.RewriteExpr(v.B); a != v.A || b != v.B {
			return &And{a, b}
		}
	case *Select:
		c := r.RewriteExpr(v.Cond)
		t := r.RewriteExpr(v.TrueVal)
		f := r.RewriteExpr(v.FalseVal)
		//
		if c != v.Cond || t != v.TrueVal || f != v.FalseVal {
			return &Select{c, t, f}
		}
	case *Call:
		if args, changed := r.rewriteExprs(v.Args); changed {
			return &Call{v.Kind, v.Name, v.CallType, args}
		}
	default:
		panic(fmt.Sprintf("unknown expression encountered: %s", e))
	}
	//
	return e
}

func (r *Rewriter) rewriteStmtChildren(s Stmt) Stmt {
	switch v := s.(type) {
	case *LetStmt:
		value := r.RewriteExpr(v.Value)
		body := r.RewriteStmt(v.Body)
		//
		if value != v.Value || body != v.Body {
			return &LetStmt{v.Name, value, body}
		}
	case *AssertStmt:
		cond := r.RewriteExpr(v.Cond)
		err := r.RewriteExpr(v.Err)
		//
		if cond != v.Cond || err != v.Err {
			return &AssertStmt{cond, err}
		}
	case *Block:
		var changed bool
		//
		stmts := make([]Stmt, len(v.Stmts))
		for i, t := range v.Stmts {
			stmts[i] = r.RewriteStmt(t)
			changed = changed || stmts[i] != t
		}
		//
		if changed {
			return &Block{stmts}
		}
	case *For:
		min := r.RewriteExpr(v.Min)
		extent := r.RewriteExpr(v.Extent)
		body := r.RewriteStmt(v.Body)
		//
		if min != v.Min || extent != v.Extent || body != v.Body {
			return &For{v.Name, min, extent, v.Kind, body}
		}
	case *Provide:
		values, vchanged := r.rewriteExprs(v.Values)
		args, achanged := r.rewriteExprs(v.Args)
		//
		if vchanged || achanged {
			return &Provide{v.Name, values, args}
		}
	case *Realize:
		var changed bool
		//
		bounds := make([]Range, len(v.Bounds))
		for i, b := range v.Bounds {
			bounds[i].Min = r.RewriteExpr(b.Min)
			bounds[i].Extent = r.RewriteExpr(b.Extent)
			changed = changed || bounds[i] != b
		}
		//
		cond := r.RewriteExpr(v.Cond)
		body := r.RewriteStmt(v.Body)
		//
		if changed || cond != v.Cond || body != v.Body {
			return &Realize{v.Name, bounds, cond, body}
		}
	case *ProducerConsumer:
		if body := r.RewriteStmt(v.Body); body != v.Body {
			return &ProducerConsumer{v.Name, v.IsProducer, body}
		}
	case *Acquire:
		sema := r.RewriteExpr(v.Sema)
		count := r.RewriteExpr(v.Count)
		body := r.RewriteStmt(v.Body)
		//
		if sema != v.Sema || count != v.Count || body != v.Body {
			return &Acquire{sema, count, body}
		}
	case *Evaluate:
		if value := r.RewriteExpr(v.Value); value != v.Value {
			return &Evaluate{value}
		}
	default:
		panic(fmt.Sprintf("unknown statement encountered: %s", s))
	}
	//
	return s
}

func (r *Rewriter) rewriteExprs(es []Expr) ([]Expr, bool) {
	var changed bool
	//
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = r.RewriteExpr(e)
		changed = changed || out[i] != e
	}
	//
	return out, changed
}

// ============================================================================
// Walking
// ============================================================================

// WalkExpr visits every node of an expression tree in preorder.  If the
// callback returns false, children of that node are skipped.
func WalkExpr(e Expr, f func(Expr) bool) {
	if !f(e) {
		return
	}
	//
	switch v := e.(type) {
	case *IntImm, *StringImm, *BoolImm, *Var:
		// leaf
	case *Add:
		WalkExpr(v.A, f)
		WalkExpr(v.B, f)
	case *Sub:
		WalkExpr(v.A, f)
		WalkExpr(v.B, f)
	case *Mul:
		WalkExpr(v.A, f)
		WalkExpr(v.B, f)
	case *Mod:
		WalkExpr(v.A, f)
		WalkExpr(v.B, f)
	case *Min:
		WalkExpr(v.A, f)
		WalkExpr(v.B, f)
	case *Max:
		WalkExpr(v.A, f)
		WalkExpr(v.B, f)
	case *LT:
		WalkExpr(v.A, f)
		WalkExpr(v.B, f)
	case *LE:
		WalkExpr(v.A, f)
		WalkExpr(v.B, f)
	case *GE:
		WalkExpr(v.A, f)
		WalkExpr(v.B, f)
	case *And:
		WalkExpr(v.A, f)
		WalkExpr(v.B, f)
	case *Select:
		WalkExpr(v.Cond, f)
		WalkExpr(v.TrueVal, f)
		WalkExpr(v.FalseVal, f)
	case *Call:
		for _, a := range v.Args {
			WalkExpr(a, f)
		}
	default:
		panic(fmt.Sprintf("unknown expression encountered: %s", e))
	}
}

// WalkStmt visits every statement and expression of a statement tree in
// preorder.  Either callback may be nil.  If fs returns false, children of
// that statement are skipped.
func WalkStmt(s Stmt, fs func(Stmt) bool, fe func(Expr) bool) {
	if fs != nil && !fs(s) {
		return
	}
	//
	expr := func(e Expr) {
		if fe != nil {
			WalkExpr(e, fe)
		}
	}
	//
	switch v := s.(type) {
	case *LetStmt:
		expr(v.Value)
		WalkStmt(v.Body, fs, fe)
	case *AssertStmt:
		expr(v.Cond)
		expr(v.Err)
	case *Block:
		for _, t := range v.Stmts {
			WalkStmt(t, fs, fe)
		}
	case *For:
		expr(v.Min)
		expr(v.Extent)
		WalkStmt(v.Body, fs, fe)
	case *Provide:
		for _, e := range v.Values {
			expr(e)
		}
		//
		for _, e := range v.Args {
			expr(e)
		}
	case *Realize:
		for _, b := range v.Bounds {
			expr(b.Min)
			expr(b.Extent)
		}
		//
		expr(v.Cond)
		WalkStmt(v.Body, fs, fe)
	case *ProducerConsumer:
		WalkStmt(v.Body, fs, fe)
	case *Acquire:
		expr(v.Sema)
		expr(v.Count)
		WalkStmt(v.Body, fs, fe)
	case *Evaluate:
		expr(v.Value)
	default:
		panic(fmt.Sprintf("unknown statement encountered: %s", s))
	}
}

// ============================================================================
// Substitution
// ============================================================================

// Substitute replaces every free occurrence of the named variable within an
// expression.
func Substitute(name string, repl Expr, e Expr) Expr {
	r := Rewriter{
		Expr: func(e Expr) Expr {
			if v, ok := e.(*Var); ok && v.Name == name {
				return repl
			}
			//
			return e
		},
	}
	//
	return r.RewriteExpr(e)
}

// SubstituteStmt replaces every free occurrence of the named variable within
// a statement tree.
func SubstituteStmt(name string, repl Expr, s Stmt) Stmt {
	r := Rewriter{
		Expr: func(e Expr) Expr {
			if v, ok := e.(*Var); ok && v.Name == name {
				return repl
			}
			//
			return e
		},
	}
	//
	return r.RewriteStmt(s)
}

// UsesVar checks whether an expression references the named variable.
func UsesVar(e Expr, name string) bool {
	var found bool
	//
	WalkExpr(e, func(e Expr) bool {
		if v, ok := e.(*Var); ok && v.Name == name {
			found = true
		}
		//
		return !found
	})
	//
	return found
}

// StmtUsesVar checks whether any expression within a statement tree
// references the named variable.
func StmtUsesVar(s Stmt, name string) bool {
	var found bool
	//
	WalkStmt(s, nil, func(e Expr) bool {
		if v, ok := e.(*Var); ok && v.Name == name {
			found = true
		}
		//
		return !found
	})
	//
	return found
}
