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

// Type identifies the value type carried by an expression.  The scheduled
// pipeline language is deliberately small: loop indices and buffer
// coordinates are 32-bit integers, conditions are booleans, and opaque
// runtime resources (buffer pointers, semaphores) are handles.
type Type uint8

const (
	// TInt32 is the type of loop indices, coordinates and counts.
	TInt32 Type = iota
	// TBool is the type of conditions.
	TBool
	// THandle is the type of opaque runtime pointers (buffers, semaphores).
	THandle
	// TString is the type of string literals passed to runtime error calls.
	TString
)

// Expr is implemented by every expression node.  The set of expression kinds
// is closed: passes dispatch over it with a type switch and may panic on any
// unknown implementation, since that indicates a logic bug in an earlier
// phase.
type Expr interface {
	// Type returns the value type this expression evaluates to.
	Type() Type
	// String returns a human-readable rendering, used for debug output.
	String() string
	//
	exprNode()
}

// Stmt is implemented by every statement node.  Like Expr, the kind set is
// closed.
type Stmt interface {
	// String returns a human-readable rendering, used for debug output.
	String() string
	//
	stmtNode()
}

// ============================================================================
// Expressions
// ============================================================================

// IntImm is a 32-bit integer constant.
type IntImm struct {
	Value int64
}

// StringImm is a string constant, only ever used as an argument to runtime
// error constructors.
type StringImm struct {
	Value string
}

// BoolImm is a boolean constant.
type BoolImm struct {
	Value bool
}

// Var is a reference to a named value bound by an enclosing loop or let.
type Var struct {
	Name string
	Kind Type
}

// Add is integer addition.
type Add struct{ A, B Expr }

// Sub is integer subtraction.
type Sub struct{ A, B Expr }

// Mul is integer multiplication.
type Mul struct{ A, B Expr }

// Mod is the Euclidean remainder.  Storage folding relies on this being the
// wraparound operation: for power-of-two divisors it lowers to a bitmask.
type Mod struct{ A, B Expr }

// Min is the binary integer minimum.
type Min struct{ A, B Expr }

// Max is the binary integer maximum.
type Max struct{ A, B Expr }

// LT is the integer comparison a < b.
type LT struct{ A, B Expr }

// LE is the integer comparison a <= b.
type LE struct{ A, B Expr }

// GE is the integer comparison a >= b.
type GE struct{ A, B Expr }

// And is boolean conjunction.
type And struct{ A, B Expr }

// Select evaluates Cond and yields TrueVal or FalseVal accordingly.
type Select struct {
	Cond     Expr
	TrueVal  Expr
	FalseVal Expr
}

// CallType distinguishes the three flavours of call expression.
type CallType uint8

const (
	// CallFunc reads a value of a pipeline function at a coordinate.
	CallFunc CallType = iota
	// CallExtern invokes a runtime routine (error constructors, semaphore
	// operations) resolved by the loader.
	CallExtern
	// CallIntrinsic invokes a compiler intrinsic such as "likely".
	CallIntrinsic
)

// Call is a call expression.  For CallFunc the arguments are the coordinate
// of the element being read, one per dimension.
type Call struct {
	Kind     Type
	Name     string
	CallType CallType
	Args     []Expr
}

func (p *IntImm) exprNode()    {}
func (p *StringImm) exprNode() {}
func (p *BoolImm) exprNode()   {}
func (p *Var) exprNode()       {}
func (p *Add) exprNode()       {}
func (p *Sub) exprNode()       {}
func (p *Mul) exprNode()       {}
func (p *Mod) exprNode()       {}
func (p *Min) exprNode()       {}
func (p *Max) exprNode()       {}
func (p *LT) exprNode()        {}
func (p *LE) exprNode()        {}
func (p *GE) exprNode()        {}
func (p *And) exprNode()       {}
func (p *Select) exprNode()    {}
func (p *Call) exprNode()      {}

// Type implementation for IntImm.
func (p *IntImm) Type() Type { return TInt32 }

// Type implementation for StringImm.
func (p *StringImm) Type() Type { return TString }

// Type implementation for BoolImm.
func (p *BoolImm) Type() Type { return TBool }

// Type implementation for Var.
func (p *Var) Type() Type { return p.Kind }

// Type implementation for Add.
func (p *Add) Type() Type { return p.A.Type() }

// Type implementation for Sub.
func (p *Sub) Type() Type { return p.A.Type() }

// Type implementation for Mul.
func (p *Mul) Type() Type { return p.A.Type() }

// Type implementation for Mod.
func (p *Mod) Type() Type { return p.A.Type() }

// Type implementation for Min.
func (p *Min) Type() Type { return p.A.Type() }

// Type implementation for Max.
func (p *Max) Type() Type { return p.A.Type() }

// Type implementation for LT.
func (p *LT) Type() Type { return TBool }

// Type implementation for LE.
func (p *LE) Type() Type { return TBool }

// Type implementation for GE.
func (p *GE) Type() Type { return TBool }

// Type implementation for And.
func (p *And) Type() Type { return TBool }

// Type implementation for Select.
func (p *Select) Type() Type { return p.TrueVal.Type() }

// Type implementation for Call.
func (p *Call) Type() Type { return p.Kind }

// ============================================================================
// Statements
// ============================================================================

// ForKind determines how iterations of a For loop are executed.
type ForKind uint8

const (
	// Serial loops execute iterations in order on one thread.
	Serial ForKind = iota
	// Unrolled loops are serial loops the backend flattens.
	Unrolled
	// Parallel loops distribute iterations across threads.
	Parallel
	// Vectorized loops execute all iterations as a single vector operation.
	Vectorized
)

// Range is a (min, extent) pair describing one dimension of an allocation.
type Range struct {
	Min    Expr
	Extent Expr
}

// LetStmt binds Name to Value within Body.
type LetStmt struct {
	Name  string
	Value Expr
	Body  Stmt
}

// AssertStmt evaluates Cond at run time and, if false, evaluates Err (an
// extern error-constructor call) and aborts the pipeline.  Passes use this to
// inject checks that must happen during execution of the compiled program,
// not during compilation.
type AssertStmt struct {
	Cond Expr
	Err  Expr
}

// Block executes its statements in order.
type Block struct {
	Stmts []Stmt
}

// For executes Body once for each value of Name in [Min, Min+Extent).
type For struct {
	Name   string
	Min    Expr
	Extent Expr
	Kind   ForKind
	Body   Stmt
}

// Provide stores Values into the function Name at the coordinate given by
// Args (one index expression per dimension).
type Provide struct {
	Name   string
	Values []Expr
	Args   []Expr
}

// Realize allocates storage for the function Name over the given per
// dimension bounds for the duration of Body.
type Realize struct {
	Name   string
	Bounds []Range
	Cond   Expr
	Body   Stmt
}

// ProducerConsumer marks Body as either the producing or consuming side of
// the pipeline stage for Name.
type ProducerConsumer struct {
	Name       string
	IsProducer bool
	Body       Stmt
}

// Acquire blocks until Count slots are available on the semaphore Sema, then
// executes Body.  It is the structured form of the runtime's blocking
// semaphore-acquire call.
type Acquire struct {
	Sema  Expr
	Count Expr
	Body  Stmt
}

// Evaluate executes Value for its side effects and discards the result.
type Evaluate struct {
	Value Expr
}

func (p *LetStmt) stmtNode()          {}
func (p *AssertStmt) stmtNode()       {}
func (p *Block) stmtNode()            {}
func (p *For) stmtNode()              {}
func (p *Provide) stmtNode()          {}
func (p *Realize) stmtNode()          {}
func (p *ProducerConsumer) stmtNode() {}
func (p *Acquire) stmtNode()          {}
func (p *Evaluate) stmtNode()         {}

// ============================================================================
// Constructors
// ============================================================================

// NewInt constructs an integer constant.
func NewInt(v int64) *IntImm {
	return &IntImm{v}
}

// NewVar constructs an integer-typed variable reference.
func NewVar(name string) *Var {
	return &Var{name, TInt32}
}

// NewHandle constructs a handle-typed variable reference.
func NewHandle(name string) *Var {
	return &Var{name, THandle}
}

// True is the boolean constant true.
func True() *BoolImm {
	return &BoolImm{true}
}

// False is the boolean constant false.
func False() *BoolImm {
	return &BoolImm{false}
}

// Likely wraps an expression in the "likely" intrinsic, a branch-prediction
// hint which evaluates to its sole argument.
func Likely(e Expr) *Call {
	return &Call{e.Type(), "likely", CallIntrinsic, []Expr{e}}
}

// IsConstInt checks whether an expression is an integer constant, returning
// its value if so.
func IsConstInt(e Expr) (int64, bool) {
	if c, ok := e.(*IntImm); ok {
		return c.Value, true
	}
	//
	return 0, false
}

// IsOne checks whether an expression is the integer constant one.
func IsOne(e Expr) bool {
	c, ok := IsConstInt(e)
	return ok && c == 1
}
