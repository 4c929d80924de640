package generation

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/core"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/cpu"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/protocols"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/utils"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/witness"
)

func newGenerator(t *testing.T, cfg *utils.Config, opts ...Option) *Generator {
	t.Helper()
	g, err := NewGenerator(cfg, opts...)
	require.NoError(t, err)
	return g
}

func run(t *testing.T, g *Generator, code []byte) *Result {
	t.Helper()
	res, err := g.Run(context.Background(), code)
	require.NoError(t, err)
	require.NoError(t, g.AIR().Verify(res.Trace.Rows, 0))
	require.True(t, utils.IsPowerOfTwo(res.Trace.Len()))
	return res
}

func words(vs ...uint64) []uint256.Int {
	out := make([]uint256.Int, len(vs))
	for i, v := range vs {
		out[i].SetUint64(v)
	}
	return out
}

func violatedNames(vs []protocols.Violation) map[string]bool {
	out := make(map[string]bool)
	for _, v := range vs {
		out[v.Constraint] = true
	}
	return out
}

func TestRunArithmetic(t *testing.T) {
	g := newGenerator(t, nil)
	code := []byte{
		cpu.OpPush1, 7, cpu.OpPush1, 2, cpu.OpPush1, 3,
		cpu.OpAdd, // 3 + 2
		cpu.OpMul, // 5 * 7
		cpu.OpPush1, 35,
		cpu.OpEq,     // 35 == 35
		cpu.OpIszero, // 0
		cpu.OpNot,    // 2^256 - 1
		cpu.OpPush0,
		cpu.OpLt, // 0 < 2^256 - 1
		cpu.OpPc,
		cpu.OpSub, // 15 - 1
		cpu.OpStop,
	}
	res := run(t, g, code)

	assert.Equal(t, OutcomeStop, res.Outcome)
	assert.Equal(t, words(14), res.Stack)
	// 3+3+3 push, add 3, mul 5, push 3, eq 3, iszero 3, not 3, push0 2, lt 3, pc 2, sub 3
	assert.Equal(t, uint64(39), res.Gas)
	assert.Equal(t, 14, res.Cycles)
	assert.Equal(t, 16, res.Trace.Len())
}

func TestRunAddmodMulmod(t *testing.T) {
	g := newGenerator(t, nil)
	code := []byte{
		cpu.OpPush1, 0, cpu.OpPush1, 9, cpu.OpPush1, 8, cpu.OpAddmod, // (8 + 9) mod 0
		cpu.OpPush1, 7, cpu.OpPush1, 6, cpu.OpPush1, 5, cpu.OpMulmod, // (5 * 6) mod 7
		cpu.OpStop,
	}
	res := run(t, g, code)
	assert.Equal(t, words(0, 2), res.Stack)
}

func TestRunJumps(t *testing.T) {
	g := newGenerator(t, nil)
	code := []byte{
		cpu.OpPush1, 1, cpu.OpPush1, 7, cpu.OpJumpi, // taken
		0x0c, 0x0c, // never executed
		cpu.OpJumpdest, // 7
		cpu.OpPush0, cpu.OpPush1, 15, cpu.OpJumpi, // not taken
		cpu.OpPush1, 16, cpu.OpJump,
		0x0c,
		cpu.OpJumpdest, // 16
		cpu.OpStop,
	}
	res := run(t, g, code)
	assert.Equal(t, OutcomeStop, res.Outcome)
	assert.Empty(t, res.Stack)
	// 3+3+10 +1 +2+3+10 +3+8 +1
	assert.Equal(t, uint64(44), res.Gas)
}

func TestRunRejectsInvalidJump(t *testing.T) {
	g := newGenerator(t, nil)
	_, err := g.Run(context.Background(), []byte{cpu.OpPush1, 3, cpu.OpJump, cpu.OpStop})
	assert.ErrorIs(t, err, ErrInvalidJump)
}

func TestRunRejectsInvalidOpcode(t *testing.T) {
	g := newGenerator(t, nil)
	_, err := g.Run(context.Background(), []byte{0x0c})
	assert.ErrorIs(t, err, ErrInvalidOpcode)

	_, err = g.Run(context.Background(), []byte{cpu.OpProverInput})
	assert.ErrorIs(t, err, ErrInvalidOpcode)

	_, err = g.Run(context.Background(), []byte{0x3f})
	assert.ErrorIs(t, err, ErrInvalidOpcode)
}

func TestGasMeterScenarios(t *testing.T) {
	t.Run("within_allocation", func(t *testing.T) {
		m := NewGasMeter(21000)
		for _, c := range []uint64{3, 3, 10, 5} {
			require.NoError(t, m.Charge(c))
		}
		assert.Equal(t, uint64(21), m.Used())
		assert.Equal(t, uint64(20979), m.Remaining())
	})

	t.Run("exact_boundary", func(t *testing.T) {
		m := NewGasMeter(10)
		require.NoError(t, m.Charge(10))
		assert.False(t, m.Fits(1))
		assert.ErrorIs(t, m.Charge(1), ErrOutOfGas)
		assert.Equal(t, uint64(10), m.Used())
	})

	t.Run("overflow", func(t *testing.T) {
		m := NewGasMeter(^uint64(0))
		require.NoError(t, m.Charge(^uint64(0)-1))
		assert.False(t, m.Fits(2))
		assert.ErrorIs(t, m.Charge(2), ErrGasOverflow)
	})
}

func TestRunOutOfGasAtBoundary(t *testing.T) {
	cfg := utils.DefaultConfig().WithGasAllocation(16)
	g := newGenerator(t, cfg)
	code := []byte{cpu.OpPush0, cpu.OpPush1, 0, cpu.OpPush1, 0, cpu.OpJumpi, cpu.OpJumpdest, cpu.OpStop}
	// push0 2 + push 3 + push 3 = 8; jumpi 10 would make 18
	res := run(t, g, code)
	assert.Equal(t, OutcomeOutOfGas, res.Outcome)
	assert.Equal(t, uint64(8), res.Gas)

	last := res.Trace.Rows[res.Cycles-1]
	assert.Equal(t, field.One, last.Op.ExcOutOfGas)
	assert.Equal(t, uint64(10), last.PendingCost.Value())
	assert.Equal(t, uint64(1), last.GasExcess.Value())

	t.Run("exact_fit_does_not_redirect", func(t *testing.T) {
		cfg := utils.DefaultConfig().WithGasAllocation(18)
		res := run(t, newGenerator(t, cfg), code)
		assert.Equal(t, OutcomeOutOfGas, res.Outcome)
		assert.Equal(t, uint64(18), res.Gas, "jumpi fits exactly, the jumpdest does not")
	})

	t.Run("false_premise", func(t *testing.T) {
		// the same handler row checked against a larger allocation
		air, err := cpu.BuildAIR(cpu.Params{GasAllocation: 20, MaxStackLen: 1024, MaxDegree: 3})
		require.NoError(t, err)
		names := violatedNames(air.Check(res.Trace.Rows, 1))
		assert.True(t, names["exc/out_of_gas/exceeds"])
	})
}

func TestRunStackFaults(t *testing.T) {
	t.Run("underflow", func(t *testing.T) {
		res := run(t, newGenerator(t, nil), []byte{cpu.OpPush0, cpu.OpAdd})
		assert.Equal(t, OutcomeStackUnderflow, res.Outcome)
		assert.Equal(t, words(0), res.Stack)
		assert.Equal(t, uint64(2), res.Gas)
	})

	t.Run("overflow", func(t *testing.T) {
		cfg := utils.DefaultConfig().WithMaxStackLen(2)
		res := run(t, newGenerator(t, cfg), []byte{cpu.OpPush0, cpu.OpPush0, cpu.OpPush0})
		assert.Equal(t, OutcomeStackOverflow, res.Outcome)
		assert.Len(t, res.Stack, 2)
	})

	t.Run("underflow_before_out_of_gas", func(t *testing.T) {
		cfg := utils.DefaultConfig().WithGasAllocation(1)
		res := run(t, newGenerator(t, cfg), []byte{cpu.OpPop})
		assert.Equal(t, OutcomeStackUnderflow, res.Outcome)
	})
}

func TestRunInverseSyscall(t *testing.T) {
	g := newGenerator(t, nil)
	res := run(t, g, []byte{cpu.OpPush1, 5, SysInverse, cpu.OpStop})

	assert.Equal(t, OutcomeStop, res.Outcome)
	assert.Equal(t, uint64(3+20), res.Gas)

	require.Len(t, res.Hints, 1)
	h := res.Hints[0]
	assert.True(t, h.Exists)
	f, err := core.LookupField("secp256k1_base")
	require.NoError(t, err)
	assert.True(t, f.Mul(h.Output, uint256.NewInt(5)).Eq(uint256.NewInt(1)))
	assert.Len(t, res.Transcript, 1)

	// the caller gets the inverse under an ok flag
	require.Len(t, res.Stack, 2)
	assert.True(t, res.Stack[0].Eq(h.Output))
	assert.Equal(t, uint64(1), res.Stack[1].Uint64())

	t.Run("zero_input", func(t *testing.T) {
		res := run(t, g, []byte{cpu.OpPush0, SysInverse, cpu.OpStop})
		require.Len(t, res.Hints, 1)
		assert.False(t, res.Hints[0].Exists)
		assert.Empty(t, res.Transcript, "the zero test needs no hint")
		assert.Equal(t, words(0, 0), res.Stack)
	})

	t.Run("modulus_is_zero", func(t *testing.T) {
		code := append([]byte{cpu.OpPush32}, f.Modulus().Bytes()...)
		res := run(t, g, append(code, SysInverse, cpu.OpStop))
		assert.Equal(t, words(0, 0), res.Stack)
		assert.True(t, res.Hints[0].Input.IsZero())
	})

	t.Run("caller_branches_on_ok", func(t *testing.T) {
		code := []byte{
			cpu.OpPush0, SysInverse, cpu.OpPush1, 8, cpu.OpJumpi, // 0 has no inverse
			cpu.OpPush1, 0xaa, cpu.OpStop,
			cpu.OpJumpdest, cpu.OpStop, // 8
		}
		res := run(t, g, code)
		assert.Equal(t, words(0, 0xaa), res.Stack)
	})

	t.Run("underflow", func(t *testing.T) {
		res := run(t, g, []byte{SysInverse})
		assert.Equal(t, OutcomeStackUnderflow, res.Outcome)
		assert.Empty(t, res.Hints)
	})
}

// replaceWord swaps every channel value equal to from, keeping the trace
// consistent with a prover that answered to instead
func replaceWord(rows []cpu.ExecutionRow, from, to *uint256.Int) int {
	a, b := cpu.WordFromUint256(from), cpu.WordFromUint256(to)
	n := 0
	swap := func(w *cpu.Word) {
		if *w == a {
			*w = b
			n++
		}
	}
	for i := range rows {
		for c := range rows[i].MemChannels {
			swap(&rows[i].MemChannels[c].Value)
		}
		swap(&rows[i].PartialChannel.Value)
	}
	return n
}

func TestForgedHintIsUnsatisfiable(t *testing.T) {
	g := newGenerator(t, nil)
	res := run(t, g, []byte{cpu.OpPush1, 5, SysInverse, cpu.OpStop})
	h := res.Hints[0].Output

	forged := new(uint256.Int).AddUint64(h, 1)
	require.Positive(t, replaceWord(res.Trace.Rows, h, forged))
	err := g.AIR().Verify(res.Trace.Rows, 0)
	require.ErrorIs(t, err, protocols.ErrUnsatisfiable)
	assert.Contains(t, err.Error(), "arith/table")

	t.Run("sqrt", func(t *testing.T) {
		f103, err := core.NewPrimeField("f103", 103)
		require.NoError(t, err)
		g := newGenerator(t, nil, WithHintField(f103))
		res := run(t, g, []byte{cpu.OpPush1, 16, SysSqrt, cpu.OpStop})

		// the roots of 16 are 4 and 99; 5 fails the square check
		root := res.Hints[0].Output
		require.Positive(t, replaceWord(res.Trace.Rows, root, uint256.NewInt(5)))
		assert.ErrorIs(t, g.AIR().Verify(res.Trace.Rows, 0), protocols.ErrUnsatisfiable)
	})
}

func TestRunSqrtSyscall(t *testing.T) {
	f103, err := core.NewPrimeField("f103", 103)
	require.NoError(t, err)
	g := newGenerator(t, nil, WithHintField(f103))

	res := run(t, g, []byte{cpu.OpPush1, 4, SysSqrt, cpu.OpPush1, 102, SysSqrt, cpu.OpStop})
	require.Len(t, res.Hints, 2)

	assert.True(t, res.Hints[0].Exists)
	assert.True(t, f103.Square(res.Hints[0].Output).Eq(uint256.NewInt(4)))

	// 103 = 3 mod 4, so -1 is a non-residue
	assert.False(t, res.Hints[1].Exists)
	assert.True(t, res.Hints[1].Output.IsZero())
	assert.Len(t, res.Transcript, 3, "one root request, then the root and the certificate")

	require.Len(t, res.Stack, 4)
	assert.True(t, res.Stack[0].Eq(res.Hints[0].Output))
	assert.Equal(t, words(1, 0, 0), res.Stack[1:])

	t.Run("input_reduced", func(t *testing.T) {
		// 107 = 4 mod 103
		res := run(t, g, []byte{cpu.OpPush1, 107, SysSqrt, cpu.OpStop})
		assert.Equal(t, uint64(4), res.Hints[0].Input.Uint64())
		assert.True(t, res.Hints[0].Exists)
	})

	t.Run("zero", func(t *testing.T) {
		res := run(t, g, []byte{cpu.OpPush0, SysSqrt, cpu.OpStop})
		assert.True(t, res.Hints[0].Exists)
		assert.Equal(t, words(0, 1), res.Stack)
	})
}

func TestRunRejectsLyingProvider(t *testing.T) {
	liar := witness.ProviderFunc(func(req witness.HintRequest) (*uint256.Int, error) {
		return uint256.NewInt(7), nil
	})
	g := newGenerator(t, nil, WithHintProvider(liar))
	_, err := g.Run(context.Background(), []byte{cpu.OpPush1, 5, SysInverse, cpu.OpStop})
	assert.ErrorIs(t, err, witness.ErrUnsatisfiable)
}

func TestRunKernelOutOfGas(t *testing.T) {
	cfg := utils.DefaultConfig().WithGasAllocation(25)
	g := newGenerator(t, cfg)
	res := run(t, g, []byte{cpu.OpPush1, 5, SysCharge, cpu.OpStop})

	assert.Equal(t, OutcomeOutOfGas, res.Outcome)
	assert.Equal(t, uint64(3), res.Gas)
	last := res.Trace.Rows[res.Cycles-1]
	assert.Equal(t, field.One, last.IsKernelMode)
	assert.Equal(t, uint64(cpu.OpExitKernel), last.Opcode.Value())
	assert.Equal(t, uint64(40), last.PendingCost.Value())

	t.Run("enough_gas", func(t *testing.T) {
		res := run(t, newGenerator(t, utils.DefaultConfig().WithGasAllocation(43)), []byte{cpu.OpPush1, 5, SysCharge, cpu.OpStop})
		assert.Equal(t, OutcomeStop, res.Outcome)
		assert.Equal(t, uint64(43), res.Gas)
	})
}

func TestTranscriptReplayReproducesTrace(t *testing.T) {
	code := []byte{cpu.OpPush1, 9, SysInverse, cpu.OpPush1, 9, SysSqrt, cpu.OpStop}
	res := run(t, newGenerator(t, nil), code)

	replayer := witness.NewReplayer(res.Transcript)
	again := run(t, newGenerator(t, nil, WithHintProvider(replayer)), code)
	assert.Zero(t, replayer.Remaining())

	a, err := res.Trace.Commit()
	require.NoError(t, err)
	b, err := again.Trace.Commit()
	require.NoError(t, err)
	assert.Equal(t, a.Root(), b.Root())
	assert.Equal(t, witness.TranscriptDigest(res.Transcript), witness.TranscriptDigest(again.Transcript))
}

func TestTamperedTraceIsUnsatisfiable(t *testing.T) {
	g := newGenerator(t, nil)
	res := run(t, g, []byte{cpu.OpPush1, 2, cpu.OpPush1, 3, cpu.OpAdd, cpu.OpStop})

	// claim 3 + 2 = 6
	res.Trace.Rows[3].MemChannels[0].Value[0] = field.New(6)
	res.Trace.Rows[3].PartialChannel.Value[0] = field.New(6)
	err := g.AIR().Verify(res.Trace.Rows, 0)
	require.ErrorIs(t, err, protocols.ErrUnsatisfiable)
	assert.Contains(t, err.Error(), "arith/table")
}

func TestRunTraceTooLong(t *testing.T) {
	cfg := utils.DefaultConfig().WithMaxTraceLength(64)
	g := newGenerator(t, cfg)
	loop := []byte{cpu.OpJumpdest, cpu.OpPush0, cpu.OpJump}
	_, err := g.Run(context.Background(), loop)
	assert.ErrorIs(t, err, ErrTraceTooLong)
}

func TestRunHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newGenerator(t, nil).Run(ctx, []byte{cpu.OpStop})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAssembleKernel(t *testing.T) {
	k, err := AssembleKernel(core.Secp256k1Base, DefaultRoutines...)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), k.Entries[SysInverse])
	assert.Less(t, k.Entries[SysInverse], k.Entries[SysSqrt])
	assert.Equal(t, cpu.OpExitKernel, k.Code[len(k.Code)-1])
	for op, entry := range k.Entries {
		assert.NotEqual(t, cpu.OpJumpdest, k.Code[entry], "entry of 0x%02x must not be a jump target", op)
	}
	assert.Equal(t, map[byte]cpu.SyscallEffect{
		SysInverse: {Pops: 1, Pushes: 2},
		SysSqrt:    {Pops: 1, Pushes: 2},
		SysCharge:  {},
	}, k.Effects())

	// every label reference lands on a JUMPDEST or a routine entry
	tables := cpu.NewKernelCodeTables(k.Code)
	for pc := 0; pc < len(k.Code); pc++ {
		if k.Code[pc] != cpu.OpPush2 || !tables.Code.Contains([]field.Element{field.New(uint64(pc)), field.New(uint64(cpu.OpPush2))}) {
			continue
		}
		dest := uint64(k.Code[pc+1])<<8 | uint64(k.Code[pc+2])
		isEntry := false
		for _, entry := range k.Entries {
			isEntry = isEntry || entry == dest
		}
		assert.True(t, isEntry || k.Code[dest] == cpu.OpJumpdest, "pc %d jumps to %d", pc, dest)
	}

	_, err = AssembleKernel(core.Secp256k1Base, Routine{Opcode: cpu.OpAdd, Name: "bad"})
	assert.Error(t, err)
	_, err = AssembleKernel(core.Secp256k1Base, Routine{Opcode: SysCharge, Name: "a"}, Routine{Opcode: SysCharge, Name: "b"})
	assert.Error(t, err)
	_, err = AssembleKernel(nil, DefaultRoutines...)
	assert.Error(t, err)
}

func TestKernelFieldMustMatch(t *testing.T) {
	k, err := AssembleKernel(core.Secp256k1Base, DefaultRoutines...)
	require.NoError(t, err)
	f103, err := core.NewPrimeField("f103", 103)
	require.NoError(t, err)
	_, err = NewGenerator(nil, WithKernel(k), WithHintField(f103))
	assert.Error(t, err)
}
