package core

import (
	"fmt"
	"sort"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	bn254fp "github.com/consensys/gnark-crypto/ecc/bn254/fp"
	bn254fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/secp256k1"
	secpfp "github.com/consensys/gnark-crypto/ecc/secp256k1/fp"
	secpfr "github.com/consensys/gnark-crypto/ecc/secp256k1/fr"
	"github.com/holiman/uint256"
)

// Curve is a short Weierstrass curve y^2 = x^3 + B over a HintField
type Curve struct {
	Name string
	Base HintField
	B    *uint256.Int

	onCurve func(x, y *uint256.Int) bool
}

// NewCurve builds a curve whose membership test is evaluated with the base
// field arithmetic.
func NewCurve(name string, base HintField, b uint64) *Curve {
	c := &Curve{Name: name, Base: base, B: uint256.NewInt(b)}
	c.onCurve = c.onCurveArith
	return c
}

// RHS returns x^3 + B
func (c *Curve) RHS(x *uint256.Int) *uint256.Int {
	f := c.Base
	return f.Add(f.Mul(f.Square(x), x), c.B)
}

// IsOnCurve reports whether (x, y) satisfies the curve equation
func (c *Curve) IsOnCurve(x, y *uint256.Int) bool {
	return c.onCurve(x, y)
}

func (c *Curve) onCurveArith(x, y *uint256.Int) bool {
	return c.Base.Square(y).Eq(c.RHS(x))
}

var (
	Secp256k1Base   HintField = newGnarkField[secpfp.Element]("secp256k1_base", secpfp.Modulus())
	Secp256k1Scalar HintField = newGnarkField[secpfr.Element]("secp256k1_scalar", secpfr.Modulus())
	BN254Base       HintField = newGnarkField[bn254fp.Element]("bn254_base", bn254fp.Modulus())
	BN254Scalar     HintField = newGnarkField[bn254fr.Element]("bn254_scalar", bn254fr.Modulus())
)

// Secp256k1 is y^2 = x^3 + 7; membership goes through gnark-crypto's affine check.
var Secp256k1 = &Curve{
	Name: "secp256k1",
	Base: Secp256k1Base,
	B:    uint256.NewInt(7),
	onCurve: func(x, y *uint256.Int) bool {
		var p secp256k1.G1Affine
		p.X.SetBigInt(x.ToBig())
		p.Y.SetBigInt(y.ToBig())
		return p.IsOnCurve()
	},
}

// BN254 is y^2 = x^3 + 3
var BN254 = &Curve{
	Name: "bn254",
	Base: BN254Base,
	B:    uint256.NewInt(3),
	onCurve: func(x, y *uint256.Int) bool {
		var p bn254.G1Affine
		p.X.SetBigInt(x.ToBig())
		p.Y.SetBigInt(y.ToBig())
		return p.IsOnCurve()
	},
}

var fields = map[string]HintField{
	Secp256k1Base.Name():   Secp256k1Base,
	Secp256k1Scalar.Name(): Secp256k1Scalar,
	BN254Base.Name():       BN254Base,
	BN254Scalar.Name():     BN254Scalar,
}

var curves = map[string]*Curve{
	Secp256k1.Name: Secp256k1,
	BN254.Name:     BN254,
}

// LookupField returns the registered field with the given name
func LookupField(name string) (HintField, error) {
	f, ok := fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return f, nil
}

// LookupCurve returns the registered curve with the given name
func LookupCurve(name string) (*Curve, error) {
	c, ok := curves[name]
	if !ok {
		return nil, fmt.Errorf("unknown curve %q", name)
	}
	return c, nil
}

// FieldNames lists the registered fields in sorted order
func FieldNames() []string {
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
