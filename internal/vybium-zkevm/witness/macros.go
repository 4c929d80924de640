package witness

import (
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/core"
)

var (
	one      = uint256.NewInt(1)
	halfWord = new(uint256.Int).Lsh(uint256.NewInt(1), 255)
)

// Inverse returns h with h·x = 1. For x = 0 no h exists and the circuit
// becomes unsatisfiable.
func (c *Circuit) Inverse(x *uint256.Int) *uint256.Int {
	h := c.hint(HintInverse, x)
	c.AssertEqual("inverse", c.field.Mul(h, x), one)
	return c.field.Reduce(h)
}

// Div returns x / y as x · inverse(y)
func (c *Circuit) Div(x, y *uint256.Int) *uint256.Int {
	q := c.field.Mul(x, c.Inverse(y))
	c.AssertEqual("div", c.field.Mul(q, y), x)
	return q
}

// Sqrt returns a hint h together with the flag h^2 == x. The flag alone does
// not prove x is a non-residue when false; callers that branch on it must
// also call AssertNonResidue on the false branch.
func (c *Circuit) Sqrt(x *uint256.Int) (*uint256.Int, bool) {
	h := c.hint(HintSqrt, x)
	c.AssertTrue("sqrt/canonical", h.Lt(c.field.Modulus()))
	ok := c.field.Square(h).Eq(c.field.Reduce(x))
	return h, ok
}

// AssertNonResidue certifies that x has no square root by verifying a root of
// g·x for the field's fixed non-residue g, and returns that root. If x were
// a non-zero residue, g·x would be a non-residue and no hint could pass.
func (c *Circuit) AssertNonResidue(x *uint256.Int) *uint256.Int {
	c.AssertTrue("non_residue/nonzero", !c.field.Reduce(x).IsZero())
	gx := c.field.Mul(c.field.NonResidue(), x)
	w := c.hint(HintSqrt, gx)
	c.AssertEqual("non_residue", c.field.Square(w), gx)
	return w
}

// SqrtOrNonResidue returns a root of x and true, or the root of g·x and
// false. Either branch is sound.
func (c *Circuit) SqrtOrNonResidue(x *uint256.Int) (*uint256.Int, bool) {
	h, ok := c.Sqrt(x)
	if !ok {
		return c.AssertNonResidue(x), false
	}
	return h, true
}

// Parity returns the low bit of h through the hinted split h = 2q + b
func (c *Circuit) Parity(h *uint256.Int) uint64 {
	q := c.hint(HintHalf, h)
	c.AssertTrue("parity/range", q.Lt(halfWord))
	twoQ := new(uint256.Int).Lsh(q, 1)
	b, underflow := new(uint256.Int).SubOverflow(h, twoQ)
	c.AssertTrue("parity/split", !underflow && b.Lt(uint256.NewInt(2)))
	return b.Uint64() & 1
}

// RecoverPoint returns y with y^2 = x^3 + B and the requested parity, plus
// the root-exists flag. y is meaningful only when the caller also asserts the
// flag.
func (c *Circuit) RecoverPoint(curve *core.Curve, x *uint256.Int, parity uint64) (*uint256.Int, bool) {
	if curve.Base.Name() != c.field.Name() {
		c.Fail("recover/field")
		return new(uint256.Int), false
	}
	c.AssertTrue("recover/x_range", x.Lt(c.field.Modulus()))
	c.AssertTrue("recover/parity_bit", parity <= 1)

	rhs := curve.RHS(x)
	h, sqrtOk := c.Sqrt(rhs)
	hb := c.Parity(h)

	// sel = hb xor parity; y = h + sel·(N - 2h)
	sel := hb + parity - 2*hb*parity
	neg := c.field.Sub(new(uint256.Int), h)
	y := c.field.Add(h, c.field.Mul(uint256.NewInt(sel), c.field.Sub(neg, h)))
	return y, sqrtOk
}

// AssertOnCurve checks (x, y) with the curve library's membership test
func (c *Circuit) AssertOnCurve(curve *core.Curve, x, y *uint256.Int) {
	c.AssertTrue("on_curve", curve.IsOnCurve(x, y))
}
