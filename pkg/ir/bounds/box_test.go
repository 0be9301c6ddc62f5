package bounds

import (
	"testing"

	"github.com/darkbuck/fuse/pkg/ir"
	"github.com/stretchr/testify/assert"
)

// Builds a loop over x in [0, n) whose body stores f(x) and then loads
// f(x-1), f(x) and f(x+1).
func stencilLoop(n int64) ir.Stmt {
	x := ir.NewVar("x")
	produce := &ir.Provide{
		Name:   "f",
		Values: []ir.Expr{ir.NewInt(0)},
		Args:   []ir.Expr{x},
	}
	consume := &ir.Evaluate{Value: &ir.Add{
		A: &ir.Add{
			A: &ir.Call{Kind: ir.TInt32, Name: "f", CallType: ir.CallFunc, Args: []ir.Expr{&ir.Sub{A: x, B: ir.NewInt(1)}}},
			B: &ir.Call{Kind: ir.TInt32, Name: "f", CallType: ir.CallFunc, Args: []ir.Expr{x}},
		},
		B: &ir.Call{Kind: ir.TInt32, Name: "f", CallType: ir.CallFunc, Args: []ir.Expr{&ir.Add{A: x, B: ir.NewInt(1)}}},
	}}
	//
	return &ir.For{
		Name:   "x",
		Min:    ir.NewInt(0),
		Extent: ir.NewInt(n),
		Kind:   ir.Serial,
		Body:   &ir.Block{Stmts: []ir.Stmt{produce, consume}},
	}
}

func TestProvided(t *testing.T) {
	box := Provided(stencilLoop(10), "f")
	assert.Equal(t, 1, len(box))
	// Loop variable spans [0, 9]
	lo, ok := ir.IsConstInt(ir.Simplify(box[0].Min))
	assert.True(t, ok)
	assert.Equal(t, int64(0), lo)
	//
	hi, ok := ir.IsConstInt(ir.Simplify(box[0].Max))
	assert.True(t, ok)
	assert.Equal(t, int64(9), hi)
}

func TestRequired(t *testing.T) {
	box := Required(stencilLoop(10), "f")
	assert.Equal(t, 1, len(box))
	// Stencil reaches one element either side of the loop range
	lo, ok := ir.IsConstInt(ir.Simplify(box[0].Min))
	assert.True(t, ok)
	assert.Equal(t, int64(-1), lo)
	//
	hi, ok := ir.IsConstInt(ir.Simplify(box[0].Max))
	assert.True(t, ok)
	assert.Equal(t, int64(10), hi)
}

func TestContains(t *testing.T) {
	iv := func(lo, hi int64) Interval {
		return Interval{Min: ir.NewInt(lo), Max: ir.NewInt(hi)}
	}
	//
	assert.True(t, Contains(Box{iv(-1, 10)}, Box{iv(0, 9)}))
	assert.False(t, Contains(Box{iv(0, 9)}, Box{iv(-1, 10)}))
	// unbounded provided never contains
	assert.False(t, Contains(Box{{Min: ir.NewInt(0)}}, Box{iv(0, 9)}))
}

func TestConstantUpperBound(t *testing.T) {
	x := ir.NewVar("x")
	scope := map[string]ConstRange{"x": NewConstRange(0, 9)}
	//
	ub, ok := ConstantUpperBound(&ir.Add{A: x, B: ir.NewInt(1)}, scope)
	assert.True(t, ok)
	assert.Equal(t, int64(10), ub)
	//
	ub, ok = ConstantUpperBound(&ir.Min{A: x, B: ir.NewInt(3)}, scope)
	assert.True(t, ok)
	assert.Equal(t, int64(3), ub)
	// unbounded variable has no constant bound
	_, ok = ConstantUpperBound(ir.NewVar("y"), scope)
	assert.False(t, ok)
}
