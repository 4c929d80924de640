package core

import (
	"math/big"

	"github.com/holiman/uint256"
)

// element is the method set shared by every gnark-crypto generated field
// element type.
type element[E any] interface {
	*E
	SetBigInt(v *big.Int) *E
	BigInt(res *big.Int) *big.Int
	Add(x, y *E) *E
	Sub(x, y *E) *E
	Mul(x, y *E) *E
	Square(x *E) *E
	Inverse(x *E) *E
	Sqrt(x *E) *E
	Legendre() int
	IsZero() bool
}

// gnarkField adapts a gnark-crypto field package to HintField
type gnarkField[E any, P element[E]] struct {
	name       string
	modulus    *big.Int
	nonResidue *uint256.Int
}

func newGnarkField[E any, P element[E]](name string, modulus *big.Int) *gnarkField[E, P] {
	f := &gnarkField[E, P]{name: name, modulus: modulus}
	f.nonResidue = findNonResidue(f)
	return f
}

func (f *gnarkField[E, P]) load(v *uint256.Int) *E {
	var e E
	P(&e).SetBigInt(v.ToBig())
	return &e
}

func (f *gnarkField[E, P]) store(e *E) *uint256.Int {
	return uint256.MustFromBig(P(e).BigInt(new(big.Int)))
}

func (f *gnarkField[E, P]) Name() string { return f.name }

func (f *gnarkField[E, P]) Modulus() *uint256.Int { return uint256.MustFromBig(f.modulus) }

func (f *gnarkField[E, P]) Reduce(a *uint256.Int) *uint256.Int { return f.store(f.load(a)) }

func (f *gnarkField[E, P]) Add(a, b *uint256.Int) *uint256.Int {
	var r E
	P(&r).Add(f.load(a), f.load(b))
	return f.store(&r)
}

func (f *gnarkField[E, P]) Sub(a, b *uint256.Int) *uint256.Int {
	var r E
	P(&r).Sub(f.load(a), f.load(b))
	return f.store(&r)
}

func (f *gnarkField[E, P]) Mul(a, b *uint256.Int) *uint256.Int {
	var r E
	P(&r).Mul(f.load(a), f.load(b))
	return f.store(&r)
}

func (f *gnarkField[E, P]) Square(a *uint256.Int) *uint256.Int {
	var r E
	P(&r).Square(f.load(a))
	return f.store(&r)
}

func (f *gnarkField[E, P]) Inverse(a *uint256.Int) (*uint256.Int, bool) {
	x := f.load(a)
	if P(x).IsZero() {
		return new(uint256.Int), false
	}
	var r E
	P(&r).Inverse(x)
	return f.store(&r), true
}

func (f *gnarkField[E, P]) Sqrt(a *uint256.Int) (*uint256.Int, bool) {
	var r E
	if P(&r).Sqrt(f.load(a)) == nil {
		return new(uint256.Int), false
	}
	return f.store(&r), true
}

func (f *gnarkField[E, P]) Legendre(a *uint256.Int) int {
	return P(f.load(a)).Legendre()
}

func (f *gnarkField[E, P]) NonResidue() *uint256.Int { return f.nonResidue.Clone() }
