package vybiumzkevm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/core"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/cpu"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/generation"
)

func newZKEVM(t *testing.T, cfg *Config) *ZKEVM {
	t.Helper()
	z, err := NewZKEVM(cfg, zerolog.Nop())
	require.NoError(t, err)
	return z
}

func TestZKEVMCreation(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		z := newZKEVM(t, nil)
		assert.Equal(t, uint64(21000), z.Config().GasAllocation)
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		_, err := NewZKEVM(DefaultConfig().WithGasAllocation(1<<32), zerolog.Nop())
		assert.ErrorIs(t, err, &VMError{Code: ErrInvalidConfig})
	})

	t.Run("LoadConfig", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "zkevm.toml")
		require.NoError(t, os.WriteFile(path, []byte("GasAllocation = 100\nMaxStackLen = 16\n"), 0o600))
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), cfg.GasAllocation)
		assert.Equal(t, 16, cfg.MaxStackLen)

		_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
		assert.ErrorIs(t, err, &VMError{Code: ErrInvalidConfig})
	})
}

func TestZKEVMExecution(t *testing.T) {
	z := newZKEVM(t, nil)
	ctx := context.Background()

	t.Run("Execute", func(t *testing.T) {
		trace, err := z.Execute(ctx, []byte{cpu.OpPush1, 2, cpu.OpPush1, 3, cpu.OpMul, cpu.OpStop})
		require.NoError(t, err)
		assert.Equal(t, OutcomeStop, trace.Outcome)
		assert.Equal(t, 4, trace.CycleCount)
		assert.Len(t, trace.Rows, 8)
		assert.Equal(t, uint64(3+3+5), trace.GasUsed)
		require.Len(t, trace.Stack, 1)
		assert.Equal(t, uint64(6), trace.Stack[0].Uint64())
	})

	t.Run("OutOfGas", func(t *testing.T) {
		z := newZKEVM(t, DefaultConfig().WithGasAllocation(4))
		trace, err := z.Execute(ctx, []byte{cpu.OpPush0, cpu.OpPush0, cpu.OpPush0})
		require.NoError(t, err)
		assert.Equal(t, OutcomeOutOfGas, trace.Outcome)
		assert.Equal(t, "out_of_gas", trace.Outcome.String())
	})

	t.Run("Hints", func(t *testing.T) {
		trace, err := z.Execute(ctx, []byte{cpu.OpPush1, 5, generation.SysInverse, cpu.OpStop})
		require.NoError(t, err)
		require.Len(t, trace.Hints, 1)
		assert.Equal(t, "inverse", trace.Hints[0].Routine)
		assert.True(t, trace.Hints[0].Exists)
		require.Len(t, trace.Stack, 2)
		assert.True(t, trace.Stack[0].Eq(trace.Hints[0].Output))
		assert.Equal(t, uint64(1), trace.Stack[1].Uint64())
		assert.NotEqual(t, [32]byte{}, trace.TranscriptDigest)
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := z.Execute(ctx, nil)
		assert.ErrorIs(t, err, &VMError{Code: ErrInvalidInput})

		_, err = z.Execute(ctx, []byte{0x0c})
		assert.ErrorIs(t, err, &VMError{Code: ErrTraceGeneration})
		assert.ErrorIs(t, err, generation.ErrInvalidOpcode)
	})
}

func TestZKEVMVerify(t *testing.T) {
	z := newZKEVM(t, nil)
	trace, err := z.Execute(context.Background(), []byte{cpu.OpPush1, 9, cpu.OpIszero, cpu.OpStop})
	require.NoError(t, err)

	res, err := z.Verify(trace)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Violations)

	root, err := z.Commitment(trace)
	require.NoError(t, err)
	assert.Equal(t, root, res.Root)

	// claim 9 is zero
	trace.Rows[2].Top()[0] = field.One
	res, err = z.Verify(trace)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Violations)

	tampered, err := z.Commitment(trace)
	require.NoError(t, err)
	assert.NotEqual(t, root, tampered)

	_, err = z.Verify(&ExecutionTrace{})
	assert.ErrorIs(t, err, &VMError{Code: ErrInvalidInput})
}

func TestRecoverPoint(t *testing.T) {
	gx, err := uint256.FromHex("0x79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")
	require.NoError(t, err)
	gy, err := uint256.FromHex("0x483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8")
	require.NoError(t, err)

	y, err := RecoverPoint("secp256k1", gx, gy.Uint64()&1)
	require.NoError(t, err)
	assert.True(t, y.Eq(gy))

	_, err = RecoverPoint("ed25519", gx, 0)
	assert.ErrorIs(t, err, &VMError{Code: ErrInvalidInput})

	// x = 1 on bn254 needs a root of 4
	y, err = RecoverPoint("bn254", uint256.NewInt(1), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), y.Uint64())

	t.Run("malformed_input", func(t *testing.T) {
		curve, err := core.LookupCurve("secp256k1")
		require.NoError(t, err)
		above := new(uint256.Int).Add(curve.Base.Modulus(), gx)

		for name, call := range map[string]func() (*uint256.Int, error){
			"x_at_modulus":   func() (*uint256.Int, error) { return RecoverPoint("secp256k1", curve.Base.Modulus(), 0) },
			"x_above":        func() (*uint256.Int, error) { return RecoverPoint("secp256k1", above, 0) },
			"parity_two":     func() (*uint256.Int, error) { return RecoverPoint("secp256k1", gx, 2) },
			"nil_coordinate": func() (*uint256.Int, error) { return RecoverPoint("secp256k1", nil, 0) },
		} {
			_, err := call()
			var vmErr *VMError
			require.ErrorAs(t, err, &vmErr, name)
			assert.Equal(t, ErrInvalidInput, vmErr.Code, name)
		}
	})
}

func TestVerificationResultErr(t *testing.T) {
	assert.NoError(t, (&VerificationResult{Valid: true}).Err())

	err := (&VerificationResult{Violations: []string{"gas/charge"}}).Err()
	assert.ErrorIs(t, err, &VMError{Code: ErrConstraintViolation})
	assert.Contains(t, err.Error(), "gas/charge")
}
