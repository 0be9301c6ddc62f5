package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonotonic(t *testing.T) {
	x := NewVar("x")
	y := NewVar("y")
	//
	tests := []struct {
		name     string
		expr     Expr
		expected Monotonicity
	}{
		{"const", NewInt(3), Constant},
		{"other_var", y, Constant},
		{"self", x, Increasing},
		{"add_const", &Add{x, NewInt(1)}, Increasing},
		{"negated", &Sub{NewInt(0), x}, Decreasing},
		{"scaled", &Mul{x, NewInt(2)}, Increasing},
		{"scaled_negative", &Mul{x, NewInt(-2)}, Decreasing},
		{"opposing", &Sub{x, &Mul{x, NewInt(2)}}, Unknown},
		{"min", &Min{&Add{x, NewInt(1)}, &Add{x, NewInt(5)}}, Increasing},
		{"mixed_min", &Min{x, &Sub{NewInt(0), x}}, Unknown},
		{"likely", Likely(&Add{x, NewInt(1)}), Increasing},
		{"select_const_cond", &Select{&LT{y, NewInt(0)}, x, &Add{x, NewInt(1)}}, Increasing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Monotonic(tt.expr, "x"))
		})
	}
}
