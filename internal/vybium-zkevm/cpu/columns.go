package cpu

import (
	"github.com/holiman/uint256"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"
)

const (
	// NumLimbs is the number of 32-bit limbs in a 256-bit word
	NumLimbs = 8
	// NumOpcodeBits is the width of the opcode decomposition
	NumOpcodeBits = 8
	// NumChannels is the number of memory channels per row. Channel 0 holds
	// the cached stack top, channels 1-3 read deeper operands and channel 4 is
	// the general load/store channel.
	NumChannels = 5
	// GeneralChannel is the index of the load/store channel
	GeneralChannel = NumChannels - 1
)

// Memory segments addressed by channels
const (
	SegmentCode uint64 = iota
	SegmentStack
	SegmentKernelGeneral
)

// Word is a 256-bit value as little-endian 32-bit limbs
type Word [NumLimbs]field.Element

// WordFromUint256 splits v into limbs
func WordFromUint256(v *uint256.Int) Word {
	var w Word
	for i := range w {
		w[i] = field.New((v[i/2] >> (32 * (i % 2))) & 0xffffffff)
	}
	return w
}

// WordFromUint64 builds a word with only the low 64 bits set
func WordFromUint64(v uint64) Word {
	return WordFromUint256(uint256.NewInt(v))
}

// ZeroWord returns the all-zero word
func ZeroWord() Word {
	var w Word
	for i := range w {
		w[i] = field.Zero
	}
	return w
}

// Uint256 joins the limbs back into a word. ok is false if a limb is not
// below 2^32.
func (w Word) Uint256() (*uint256.Int, bool) {
	var v uint256.Int
	for i, limb := range w {
		x := limb.Value()
		if x >= 1<<32 {
			return nil, false
		}
		v[i/2] |= x << (32 * (i % 2))
	}
	return &v, true
}

// LimbSum returns the sum of the limbs. With range-checked limbs it is zero
// exactly when the word is zero.
func (w Word) LimbSum() field.Element {
	s := field.Zero
	for _, limb := range w {
		s = s.Add(limb)
	}
	return s
}

// MemoryChannel is one memory access slot of a row
type MemoryChannel struct {
	Used        field.Element
	IsRead      field.Element
	AddrContext field.Element
	AddrSegment field.Element
	AddrVirtual field.Element
	Value       Word
}

// PartialChannel carries its own flags and address; its value is
// constrained equal to channel 0's value in the same row.
type PartialChannel struct {
	Used        field.Element
	IsRead      field.Element
	AddrContext field.Element
	AddrSegment field.Element
	AddrVirtual field.Element
	Value       Word
}

// OperationFlagSet holds one boolean per instruction family and per
// exception handler. At most one is set in a row.
type OperationFlagSet struct {
	Stop         field.Element
	Add          field.Element
	Mul          field.Element
	Sub          field.Element
	AddmodMulmod field.Element
	LtGt         field.Element
	EqIszero     field.Element
	Not          field.Element
	Syscall      field.Element
	ProverInput  field.Element
	Pop          field.Element
	Jumps        field.Element
	Pc           field.Element
	Jumpdest     field.Element
	Push0        field.Element
	Push         field.Element
	MOpGeneral   field.Element
	ExitKernel   field.Element

	ExcOutOfGas       field.Element
	ExcStackUnderflow field.Element
	ExcStackOverflow  field.Element
}

// Flag identifies one member of OperationFlagSet
type Flag int

const (
	FlagStop Flag = iota
	FlagAdd
	FlagMul
	FlagSub
	FlagAddmodMulmod
	FlagLtGt
	FlagEqIszero
	FlagNot
	FlagSyscall
	FlagProverInput
	FlagPop
	FlagJumps
	FlagPc
	FlagJumpdest
	FlagPush0
	FlagPush
	FlagMOpGeneral
	FlagExitKernel
	FlagExcOutOfGas
	FlagExcStackUnderflow
	FlagExcStackOverflow

	NumFlags
)

var flagNames = [NumFlags]string{
	"stop", "add", "mul", "sub", "addmod_mulmod", "lt_gt", "eq_iszero", "not",
	"syscall", "prover_input", "pop", "jumps", "pc", "jumpdest", "push0", "push",
	"m_op_general", "exit_kernel",
	"exc_out_of_gas", "exc_stack_underflow", "exc_stack_overflow",
}

// String returns the flag name
func (f Flag) String() string {
	if f < 0 || f >= NumFlags {
		return "unknown"
	}
	return flagNames[f]
}

// IsException reports whether f marks a handler entry row
func (f Flag) IsException() bool {
	return f == FlagExcOutOfGas || f == FlagExcStackUnderflow || f == FlagExcStackOverflow
}

// IsTerminal reports whether a row with flag f is followed by padding
func (f Flag) IsTerminal() bool {
	return f == FlagStop || f.IsException()
}

// Ptr returns the column for flag f
func (op *OperationFlagSet) Ptr(f Flag) *field.Element {
	switch f {
	case FlagStop:
		return &op.Stop
	case FlagAdd:
		return &op.Add
	case FlagMul:
		return &op.Mul
	case FlagSub:
		return &op.Sub
	case FlagAddmodMulmod:
		return &op.AddmodMulmod
	case FlagLtGt:
		return &op.LtGt
	case FlagEqIszero:
		return &op.EqIszero
	case FlagNot:
		return &op.Not
	case FlagSyscall:
		return &op.Syscall
	case FlagProverInput:
		return &op.ProverInput
	case FlagPop:
		return &op.Pop
	case FlagJumps:
		return &op.Jumps
	case FlagPc:
		return &op.Pc
	case FlagJumpdest:
		return &op.Jumpdest
	case FlagPush0:
		return &op.Push0
	case FlagPush:
		return &op.Push
	case FlagMOpGeneral:
		return &op.MOpGeneral
	case FlagExitKernel:
		return &op.ExitKernel
	case FlagExcOutOfGas:
		return &op.ExcOutOfGas
	case FlagExcStackUnderflow:
		return &op.ExcStackUnderflow
	case FlagExcStackOverflow:
		return &op.ExcStackOverflow
	}
	panic("cpu: unknown flag")
}

// Get returns the value of flag f
func (op *OperationFlagSet) Get(f Flag) field.Element { return *op.Ptr(f) }

// Sum returns the sum of every flag; on a cycle row it is one
func (op *OperationFlagSet) Sum() field.Element {
	s := field.Zero
	for f := Flag(0); f < NumFlags; f++ {
		s = s.Add(op.Get(f))
	}
	return s
}

// Active returns the set flag, or false on a padding row
func (op *OperationFlagSet) Active() (Flag, bool) {
	for f := Flag(0); f < NumFlags; f++ {
		if op.Get(f).Equal(field.One) {
			return f, true
		}
	}
	return 0, false
}

// ExecutionRow is the register file of one cycle
type ExecutionRow struct {
	IsCpuCycle     field.Element
	ProgramCounter field.Element
	Gas            field.Element
	StackLen       field.Element
	Context        field.Element
	IsKernelMode   field.Element
	Opcode         field.Element
	OpcodeBits     [NumOpcodeBits]field.Element

	Op OperationFlagSet

	MemChannels    [NumChannels]MemoryChannel
	PartialChannel PartialChannel

	// Boundary certificate for push-only and pop-only shapes
	StackInv    field.Element
	StackInvAux field.Element

	// JUMPI condition zero test
	CondInv    field.Element
	CondAux    field.Element
	ShouldJump field.Element

	// EQ / ISZERO certificate
	DiffPinv [NumLimbs]field.Element

	// Handler entry re-validation
	PendingCost   field.Element
	PendingPops   field.Element
	PendingPushes field.Element
	GasSlack      field.Element
	GasExcess     field.Element
	StackExcess   field.Element
}

// NewExecutionRow returns a row with every column zero
func NewExecutionRow() ExecutionRow {
	var r ExecutionRow
	r.forEach(func(e *field.Element) { *e = field.Zero })
	return r
}

// Top returns the cached stack top
func (r *ExecutionRow) Top() *Word { return &r.MemChannels[0].Value }

// Bit returns opcode bit i as a field element
func (r *ExecutionRow) Bit(i int) field.Element { return r.OpcodeBits[i] }

func (c *MemoryChannel) forEach(fn func(*field.Element)) {
	fn(&c.Used)
	fn(&c.IsRead)
	fn(&c.AddrContext)
	fn(&c.AddrSegment)
	fn(&c.AddrVirtual)
	for i := range c.Value {
		fn(&c.Value[i])
	}
}

// forEach visits every column in layout order
func (r *ExecutionRow) forEach(fn func(*field.Element)) {
	fn(&r.IsCpuCycle)
	fn(&r.ProgramCounter)
	fn(&r.Gas)
	fn(&r.StackLen)
	fn(&r.Context)
	fn(&r.IsKernelMode)
	fn(&r.Opcode)
	for i := range r.OpcodeBits {
		fn(&r.OpcodeBits[i])
	}
	for f := Flag(0); f < NumFlags; f++ {
		fn(r.Op.Ptr(f))
	}
	for i := range r.MemChannels {
		r.MemChannels[i].forEach(fn)
	}
	p := &r.PartialChannel
	fn(&p.Used)
	fn(&p.IsRead)
	fn(&p.AddrContext)
	fn(&p.AddrSegment)
	fn(&p.AddrVirtual)
	for i := range p.Value {
		fn(&p.Value[i])
	}
	fn(&r.StackInv)
	fn(&r.StackInvAux)
	fn(&r.CondInv)
	fn(&r.CondAux)
	fn(&r.ShouldJump)
	for i := range r.DiffPinv {
		fn(&r.DiffPinv[i])
	}
	fn(&r.PendingCost)
	fn(&r.PendingPops)
	fn(&r.PendingPushes)
	fn(&r.GasSlack)
	fn(&r.GasExcess)
	fn(&r.StackExcess)
}

// Columns flattens the row in layout order
func (r *ExecutionRow) Columns() []field.Element {
	out := make([]field.Element, 0, NumColumns)
	r.forEach(func(e *field.Element) { out = append(out, *e) })
	return out
}

// NumColumns is the width of a flattened row
const NumColumns = 7 + NumOpcodeBits + int(NumFlags) +
	NumChannels*(5+NumLimbs) + (5 + NumLimbs) +
	2 + 3 + NumLimbs + 6
