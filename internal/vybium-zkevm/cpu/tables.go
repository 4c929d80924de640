package cpu

import (
	"sort"

	"github.com/holiman/uint256"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/protocols"
)

// SyscallEffect is what a syscall does to its caller's stack once the
// kernel has returned
type SyscallEffect struct {
	Pops   uint64
	Pushes uint64
}

// NewOpcodeTable lists every user-mode opcode with its declared cost and
// stack effect as (opcode, cost, pops, pushes). Syscalls listed in effects
// carry the routine's effect instead of the syscall row's own shape.
func NewOpcodeTable(effects map[byte]SyscallEffect) *protocols.TupleTable {
	t := protocols.NewTupleTable("opcodes", 4)
	for op := 0; op < 256; op++ {
		v, err := Decode(byte(op), false)
		if err != nil {
			continue
		}
		s := v.ShapeFor(byte(op))
		pops, pushes := uint64(s.Pops), uint64(0)
		if s.Pushes {
			pushes = 1
		}
		if e, ok := effects[byte(op)]; ok && v.Flag == FlagSyscall {
			pops, pushes = e.Pops, e.Pushes
		}
		t.Insert(field.New(uint64(op)), field.New(v.DeclaredCost(byte(op))), field.New(pops), field.New(pushes))
	}
	return t
}

// KernelCodeTables is the kernel program split into instruction starts as
// (pc, opcode) and push immediates as (pc, limb0..limb7). Offsets inside an
// immediate are not instruction starts.
type KernelCodeTables struct {
	Code       *protocols.TupleTable
	Immediates *protocols.TupleTable
}

// NewKernelCodeTables disassembles code. Immediates running past the end
// read as zero bytes.
func NewKernelCodeTables(code []byte) *KernelCodeTables {
	k := &KernelCodeTables{
		Code:       protocols.NewTupleTable("kernel_code", 2),
		Immediates: protocols.NewTupleTable("kernel_immediates", 1+NumLimbs),
	}
	for pc := 0; pc < len(code); {
		op := code[pc]
		k.Code.Insert(field.New(uint64(pc)), field.New(uint64(op)))
		if op < OpPush1 || op > OpPush32 {
			pc++
			continue
		}
		n := int(op - OpPush0)
		buf := make([]byte, n)
		copy(buf, code[pc+1:])
		imm := WordFromUint256(new(uint256.Int).SetBytes(buf))
		k.Immediates.Insert(append([]field.Element{field.New(uint64(pc))}, imm[:]...)...)
		pc += 1 + n
	}
	return k
}

// NewJumpTable maps syscall opcodes to their kernel entry points as
// (opcode, entry pc).
func NewJumpTable(entries map[byte]uint64) *protocols.TupleTable {
	ops := make([]int, 0, len(entries))
	for op := range entries {
		ops = append(ops, int(op))
	}
	sort.Ints(ops)

	t := protocols.NewTupleTable("jumptable", 2)
	for _, op := range ops {
		t.Insert(field.New(uint64(op)), field.New(entries[byte(op)]))
	}
	return t
}
