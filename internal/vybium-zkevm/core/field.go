package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// ErrUnknownField is returned when a hint names a field that is not registered
var ErrUnknownField = errors.New("unknown hint field")

// HintField is a prime field whose elements fit in one EVM word. Hints are
// requested and verified over a HintField; the trace itself lives in the
// Goldilocks field.
type HintField interface {
	Name() string
	Modulus() *uint256.Int

	// Reduce maps an arbitrary word into [0, modulus)
	Reduce(a *uint256.Int) *uint256.Int

	Add(a, b *uint256.Int) *uint256.Int
	Sub(a, b *uint256.Int) *uint256.Int
	Mul(a, b *uint256.Int) *uint256.Int
	Square(a *uint256.Int) *uint256.Int

	// Inverse returns false for zero
	Inverse(a *uint256.Int) (*uint256.Int, bool)
	// Sqrt returns false when a is not a quadratic residue
	Sqrt(a *uint256.Int) (*uint256.Int, bool)
	// Legendre returns 1, 0 or -1
	Legendre(a *uint256.Int) int

	// NonResidue is a fixed quadratic non-residue g. For a non-residue x,
	// g·x is a residue, which lets a prover certify that x has no root.
	NonResidue() *uint256.Int
}

// PrimeField is a HintField over a modulus below 2^63, backed by math/big.
// It exists so tests can sweep every element.
type PrimeField struct {
	name       string
	modulus    *big.Int
	nonResidue *uint256.Int
}

// NewPrimeField creates a small odd prime field
func NewPrimeField(name string, modulus uint64) (*PrimeField, error) {
	if modulus <= 2 || modulus >= 1<<63 {
		return nil, fmt.Errorf("modulus %d out of range", modulus)
	}
	m := new(big.Int).SetUint64(modulus)
	if !m.ProbablyPrime(20) {
		return nil, fmt.Errorf("modulus %d is not prime", modulus)
	}
	f := &PrimeField{name: name, modulus: m}
	f.nonResidue = findNonResidue(f)
	return f, nil
}

// Name returns the registry name of the field
func (f *PrimeField) Name() string { return f.name }

// Modulus returns the field modulus
func (f *PrimeField) Modulus() *uint256.Int { return uint256.MustFromBig(f.modulus) }

// Size returns the modulus as a uint64
func (f *PrimeField) Size() uint64 { return f.modulus.Uint64() }

func (f *PrimeField) wrap(v *big.Int) *uint256.Int {
	return uint256.MustFromBig(v.Mod(v, f.modulus))
}

// Reduce maps a into the field
func (f *PrimeField) Reduce(a *uint256.Int) *uint256.Int { return f.wrap(a.ToBig()) }

// Add returns a + b
func (f *PrimeField) Add(a, b *uint256.Int) *uint256.Int {
	return f.wrap(new(big.Int).Add(a.ToBig(), b.ToBig()))
}

// Sub returns a - b
func (f *PrimeField) Sub(a, b *uint256.Int) *uint256.Int {
	return f.wrap(new(big.Int).Sub(a.ToBig(), b.ToBig()))
}

// Mul returns a * b
func (f *PrimeField) Mul(a, b *uint256.Int) *uint256.Int {
	return f.wrap(new(big.Int).Mul(a.ToBig(), b.ToBig()))
}

// Square returns a^2
func (f *PrimeField) Square(a *uint256.Int) *uint256.Int { return f.Mul(a, a) }

// Inverse returns a^-1
func (f *PrimeField) Inverse(a *uint256.Int) (*uint256.Int, bool) {
	inv := new(big.Int).ModInverse(f.Reduce(a).ToBig(), f.modulus)
	if inv == nil {
		return new(uint256.Int), false
	}
	return uint256.MustFromBig(inv), true
}

// Sqrt returns one square root of a
func (f *PrimeField) Sqrt(a *uint256.Int) (*uint256.Int, bool) {
	root := new(big.Int).ModSqrt(f.Reduce(a).ToBig(), f.modulus)
	if root == nil {
		return new(uint256.Int), false
	}
	return uint256.MustFromBig(root), true
}

// Legendre returns the Legendre symbol of a
func (f *PrimeField) Legendre(a *uint256.Int) int {
	return big.Jacobi(f.Reduce(a).ToBig(), f.modulus)
}

// NonResidue returns the fixed non-residue
func (f *PrimeField) NonResidue() *uint256.Int { return f.nonResidue.Clone() }

// findNonResidue returns the smallest g >= 2 with Legendre symbol -1
func findNonResidue(f HintField) *uint256.Int {
	g := uint256.NewInt(2)
	one := uint256.NewInt(1)
	for f.Legendre(g) != -1 {
		g = new(uint256.Int).Add(g, one)
	}
	return g
}
