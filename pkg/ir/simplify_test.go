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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimplify_ConstFold(t *testing.T) {
	tests := []struct {
		name     string
		expr     Expr
		expected int64
	}{
		{"add", &Add{NewInt(1), NewInt(2)}, 3},
		{"sub", &Sub{NewInt(5), NewInt(7)}, -2},
		{"mul", &Mul{NewInt(3), NewInt(4)}, 12},
		{"min", &Min{NewInt(3), NewInt(4)}, 3},
		{"max", &Max{NewInt(3), NewInt(4)}, 4},
		{"mod", &Mod{NewInt(7), NewInt(4)}, 3},
		{"mod_negative", &Mod{NewInt(-1), NewInt(4)}, 3},
		{"mod_one", &Mod{NewVar("x"), NewInt(1)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := IsConstInt(Simplify(tt.expr))
			assert.True(t, ok)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestSimplify_Cancellation(t *testing.T) {
	x := NewVar("x")
	// (x+1) - (x-1) == 2
	e := &Sub{&Add{x, NewInt(1)}, &Sub{x, NewInt(1)}}
	v, ok := IsConstInt(Simplify(e))
	assert.True(t, ok)
	assert.Equal(t, int64(2), v)
}

func TestSimplify_PreservesIdentity(t *testing.T) {
	// Nothing to simplify, hence the same node must come back.
	e := &Add{NewVar("x"), NewVar("y")}
	assert.True(t, e == Simplify(e))
}

func TestCanProve(t *testing.T) {
	x := NewVar("x")
	// x + 1 <= x + 2
	assert.True(t, CanProve(&LE{&Add{x, NewInt(1)}, &Add{x, NewInt(2)}}))
	// x < x - 1 is false, hence not provable
	assert.False(t, CanProve(&LT{x, &Sub{x, NewInt(1)}}))
	// x < y involves two variables, hence unknown
	assert.False(t, CanProve(&LT{x, NewVar("y")}))
}

func TestConstDiff(t *testing.T) {
	x := NewVar("x")
	//
	d, ok := ConstDiff(&Add{x, NewInt(3)}, x)
	assert.True(t, ok)
	assert.Equal(t, int64(3), d)
	//
	_, ok = ConstDiff(x, NewVar("y"))
	assert.False(t, ok)
}

func TestSubstitute(t *testing.T) {
	x := NewVar("x")
	e := Substitute("x", NewInt(2), &Add{x, NewInt(1)})
	//
	v, ok := IsConstInt(Simplify(e))
	assert.True(t, ok)
	assert.Equal(t, int64(3), v)
	// substituting an unused name returns the original
	assert.True(t, UsesVar(e, "x") == false)
}
