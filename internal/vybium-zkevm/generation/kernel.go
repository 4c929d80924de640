package generation

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/core"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/cpu"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/witness"
)

// Syscall opcodes served by the default kernel
const (
	SysInverse byte = 0x30
	SysSqrt    byte = 0x31
	SysCharge  byte = 0x32
)

// Kernel general memory slots used by the hint routines
const (
	slotReturn uint64 = iota
	slotArg
	slotHint
)

// Routine is one kernel syscall body. A hint routine pops the caller's top
// x, reduces it into the hint field and asks the prover about it; the answer
// is checked by the routine's own instructions before it pushes the result
// and an ok flag (ok on top) for the caller. A failed check jumps to the
// routine entry, which is not a JUMPDEST, so no valid trace continues past
// it. Every routine ends by adding Cost to the gas limb of the return word
// and returning.
type Routine struct {
	Opcode  byte
	Name    string
	Cost    uint64
	HasHint bool
	Hint    witness.HintKind
}

// Effect is the routine's net effect on the caller's stack
func (r Routine) Effect() cpu.SyscallEffect {
	if r.HasHint {
		return cpu.SyscallEffect{Pops: 1, Pushes: 2}
	}
	return cpu.SyscallEffect{}
}

// DefaultRoutines is the kernel shipped with the generator
var DefaultRoutines = []Routine{
	{Opcode: SysInverse, Name: "inverse", Cost: 20, HasHint: true, Hint: witness.HintInverse},
	{Opcode: SysSqrt, Name: "sqrt", Cost: 30, HasHint: true, Hint: witness.HintSqrt},
	{Opcode: SysCharge, Name: "charge", Cost: 40},
}

// Kernel is assembled kernel code plus its jump table
type Kernel struct {
	Code     []byte
	Entries  map[byte]uint64
	field    core.HintField
	routines map[byte]Routine
}

// AssembleKernel lays the routines out back to back in opcode order. Hint
// routines check their answers in f.
func AssembleKernel(f core.HintField, routines ...Routine) (*Kernel, error) {
	k := &Kernel{Entries: make(map[byte]uint64), field: f, routines: make(map[byte]Routine)}
	sorted := append([]Routine(nil), routines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Opcode < sorted[j].Opcode })

	a := newAssembler()
	for _, r := range sorted {
		v, err := cpu.Decode(r.Opcode, false)
		if err != nil || v.Flag != cpu.FlagSyscall {
			return nil, fmt.Errorf("routine %q: opcode 0x%02x is not a syscall", r.Name, r.Opcode)
		}
		if _, dup := k.routines[r.Opcode]; dup {
			return nil, fmt.Errorf("routine %q: syscall 0x%02x assigned twice", r.Name, r.Opcode)
		}
		if r.HasHint && f == nil {
			return nil, fmt.Errorf("routine %q: hint routines need a field", r.Name)
		}
		k.Entries[r.Opcode] = uint64(len(a.code))
		k.routines[r.Opcode] = r
		if err := a.routine(r, f); err != nil {
			return nil, fmt.Errorf("routine %q: %w", r.Name, err)
		}
	}
	code, err := a.link()
	if err != nil {
		return nil, err
	}
	k.Code = code
	return k, nil
}

// Routine returns the routine behind a syscall opcode
func (k *Kernel) Routine(opcode byte) (Routine, bool) {
	r, ok := k.routines[opcode]
	return r, ok
}

// Field returns the field hint routines check their answers in
func (k *Kernel) Field() core.HintField { return k.field }

// Effects returns the caller-side stack effect of every syscall
func (k *Kernel) Effects() map[byte]cpu.SyscallEffect {
	out := make(map[byte]cpu.SyscallEffect, len(k.routines))
	for op, r := range k.routines {
		out[op] = r.Effect()
	}
	return out
}

// assembler emits kernel code with PUSH2 references to named labels
type assembler struct {
	code   []byte
	labels map[string]int
	refs   map[int]string
}

func newAssembler() *assembler {
	return &assembler{labels: make(map[string]int), refs: make(map[int]string)}
}

func (a *assembler) op(ops ...byte) { a.code = append(a.code, ops...) }

// push emits the shortest push of v
func (a *assembler) push(v *uint256.Int) {
	if v.IsZero() {
		a.op(cpu.OpPush0)
		return
	}
	b := v.Bytes()
	a.op(cpu.OpPush0 + byte(len(b)))
	a.op(b...)
}

func (a *assembler) pushUint(v uint64) { a.push(uint256.NewInt(v)) }

// pushLabel emits PUSH2 of a label resolved at link time
func (a *assembler) pushLabel(name string) {
	a.op(cpu.OpPush2)
	a.refs[len(a.code)] = name
	a.op(0, 0)
}

// mark binds name to the current offset without emitting anything
func (a *assembler) mark(name string) error {
	if _, dup := a.labels[name]; dup {
		return fmt.Errorf("label %s defined twice", name)
	}
	a.labels[name] = len(a.code)
	return nil
}

// dest emits a JUMPDEST bound to name
func (a *assembler) dest(name string) error {
	if err := a.mark(name); err != nil {
		return err
	}
	a.op(cpu.OpJumpdest)
	return nil
}

// store pops the top into a kernel general slot
func (a *assembler) store(slot uint64) {
	a.pushUint(slot)
	a.pushUint(cpu.SegmentKernelGeneral)
	a.op(cpu.OpPush0, cpu.OpMstoreGen)
}

// load pushes a kernel general slot
func (a *assembler) load(slot uint64) {
	a.pushUint(slot)
	a.pushUint(cpu.SegmentKernelGeneral)
	a.op(cpu.OpPush0, cpu.OpMloadGeneral)
}

// reduced pushes the slot's value reduced mod n
func (a *assembler) reduced(slot uint64, n *uint256.Int) {
	a.push(n)
	a.op(cpu.OpPush0)
	a.load(slot)
	a.op(cpu.OpAddmod)
}

// square pushes slot·slot mod n
func (a *assembler) square(slot uint64, n *uint256.Int) {
	a.push(n)
	a.load(slot)
	a.load(slot)
	a.op(cpu.OpMulmod)
}

// failUnlessZero pops the top and jumps to the failure target if non-zero
func (a *assembler) failUnlessZero(fail string) {
	a.pushLabel(fail)
	a.op(cpu.OpJumpi)
}

func (a *assembler) link() ([]byte, error) {
	for at, name := range a.refs {
		pc, ok := a.labels[name]
		if !ok {
			return nil, fmt.Errorf("undefined label %s", name)
		}
		if pc > 0xffff {
			return nil, fmt.Errorf("label %s at %d does not fit a PUSH2", name, pc)
		}
		a.code[at] = byte(pc >> 8)
		a.code[at+1] = byte(pc)
	}
	return a.code, nil
}

func (a *assembler) routine(r Routine, f core.HintField) error {
	label := func(s string) string { return r.Name + "/" + s }
	if err := a.mark(label("fail")); err != nil {
		return err
	}
	if r.HasHint {
		n := f.Modulus()
		// [.., x, ret] -> [..] with ret and x mod n saved
		a.store(slotReturn)
		a.store(slotArg)
		a.reduced(slotArg, n)
		a.store(slotArg)

		var err error
		switch r.Hint {
		case witness.HintInverse:
			err = a.inverseBody(label, n)
		case witness.HintSqrt:
			err = a.sqrtBody(label, n, f.NonResidue())
		default:
			err = fmt.Errorf("unsupported hint %s", r.Hint)
		}
		if err != nil {
			return err
		}
		if err := a.dest(label("done")); err != nil {
			return err
		}
		a.load(slotReturn)
	}
	// the cost lands in the gas limb of the return word
	a.push(new(uint256.Int).Lsh(uint256.NewInt(r.Cost), 32*cpu.ReturnLimbGas))
	a.op(cpu.OpAdd, cpu.OpExitKernel)
	return nil
}

// inverseBody leaves [.., h, 1] with x·h = 1, or [.., 0, 0] for x = 0
func (a *assembler) inverseBody(label func(string) string, n *uint256.Int) error {
	a.load(slotArg)
	a.op(cpu.OpIszero)
	a.pushLabel(label("zero"))
	a.op(cpu.OpJumpi)

	a.op(cpu.OpProverInput)
	a.store(slotHint)
	// x·h - 1 must vanish
	a.op(cpu.OpPush1, 1)
	a.push(n)
	a.load(slotHint)
	a.load(slotArg)
	a.op(cpu.OpMulmod, cpu.OpSub)
	a.failUnlessZero(label("fail"))

	a.reduced(slotHint, n)
	a.op(cpu.OpPush1, 1)
	a.pushLabel(label("done"))
	a.op(cpu.OpJump)

	if err := a.dest(label("zero")); err != nil {
		return err
	}
	a.op(cpu.OpPush0, cpu.OpPush0)
	return nil
}

// sqrtBody asks for a branch bit b and a root h. With b set it leaves
// [.., h, 1] with h^2 = x; otherwise it leaves [.., 0, 0] after checking
// x != 0 and h^2 = g·x for the field's non-residue g.
func (a *assembler) sqrtBody(label func(string) string, n, g *uint256.Int) error {
	a.op(cpu.OpProverInput, cpu.OpProverInput)
	a.store(slotHint)
	a.pushLabel(label("root"))
	a.op(cpu.OpJumpi)

	a.load(slotArg)
	a.op(cpu.OpIszero)
	a.failUnlessZero(label("fail"))
	a.push(n)
	a.load(slotArg)
	a.push(g)
	a.op(cpu.OpMulmod)
	a.square(slotHint, n)
	a.op(cpu.OpSub)
	a.failUnlessZero(label("fail"))
	a.op(cpu.OpPush0, cpu.OpPush0)
	a.pushLabel(label("done"))
	a.op(cpu.OpJump)

	if err := a.dest(label("root")); err != nil {
		return err
	}
	a.square(slotHint, n)
	a.load(slotArg)
	a.op(cpu.OpSub)
	a.failUnlessZero(label("fail"))
	a.reduced(slotHint, n)
	a.op(cpu.OpPush1, 1)
	return nil
}
