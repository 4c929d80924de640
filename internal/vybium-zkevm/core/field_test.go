package core

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrimeField(t *testing.T) {
	tests := []struct {
		name    string
		modulus uint64
		wantErr bool
	}{
		{"two", 2, true},
		{"composite", 91, true},
		{"small prime", 103, false},
		{"1 mod 4 prime", 97, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPrimeField(tt.name, tt.modulus)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func allFields(t *testing.T) []HintField {
	small, err := NewPrimeField("f97", 97)
	require.NoError(t, err)
	out := []HintField{small}
	for _, name := range FieldNames() {
		f, err := LookupField(name)
		require.NoError(t, err)
		out = append(out, f)
	}
	return out
}

func TestHintFieldArithmetic(t *testing.T) {
	for _, f := range allFields(t) {
		t.Run(f.Name(), func(t *testing.T) {
			a := uint256.NewInt(12345)
			b := uint256.NewInt(678)

			sum := f.Add(a, b)
			assert.True(t, f.Sub(sum, b).Eq(f.Reduce(a)))

			inv, ok := f.Inverse(b)
			require.True(t, ok)
			assert.True(t, f.Mul(inv, b).Eq(uint256.NewInt(1)))

			_, ok = f.Inverse(new(uint256.Int))
			assert.False(t, ok)

			_, ok = f.Inverse(f.Modulus())
			assert.False(t, ok, "modulus reduces to zero")

			sq := f.Square(a)
			root, ok := f.Sqrt(sq)
			require.True(t, ok)
			assert.True(t, f.Square(root).Eq(sq))

			g := f.NonResidue()
			assert.Equal(t, -1, f.Legendre(g))
			_, ok = f.Sqrt(g)
			assert.False(t, ok)
		})
	}
}

func TestLookupField(t *testing.T) {
	f, err := LookupField("secp256k1_base")
	require.NoError(t, err)
	assert.Equal(t, "secp256k1_base", f.Name())

	_, err = LookupField("goldilocks")
	assert.ErrorIs(t, err, ErrUnknownField)

	assert.Equal(t, []string{"bn254_base", "bn254_scalar", "secp256k1_base", "secp256k1_scalar"}, FieldNames())
}

func TestSecp256k1Generator(t *testing.T) {
	gx, err := uint256.FromHex("0x79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")
	require.NoError(t, err)
	gy, err := uint256.FromHex("0x483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8")
	require.NoError(t, err)

	assert.True(t, Secp256k1.IsOnCurve(gx, gy))
	assert.True(t, Secp256k1.onCurveArith(gx, gy))
	assert.False(t, Secp256k1.IsOnCurve(gx, new(uint256.Int).AddUint64(gy, 1)))
}

func TestBN254Generator(t *testing.T) {
	one := uint256.NewInt(1)
	two := uint256.NewInt(2)
	assert.True(t, BN254.IsOnCurve(one, two))
	assert.False(t, BN254.IsOnCurve(one, one))
}

func TestSmallCurve(t *testing.T) {
	f, err := NewPrimeField("f103", 103)
	require.NoError(t, err)
	c := NewCurve("toy", f, 7)

	points := 0
	for x := uint64(0); x < 103; x++ {
		for y := uint64(0); y < 103; y++ {
			if c.IsOnCurve(uint256.NewInt(x), uint256.NewInt(y)) {
				points++
			}
		}
	}
	// every x contributes 0, 1 or 2 points and there is at least one
	assert.Greater(t, points, 0)
	assert.LessOrEqual(t, points, 2*103)
}
