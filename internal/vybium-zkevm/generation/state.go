package generation

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/cpu"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/witness"
)

// memKey addresses the kernel general memory
type memKey struct {
	ctx, seg, virt uint64
}

// topAccess is the channel 0 access the next row must carry
type topAccess struct {
	set  bool
	used bool
	virt field.Element
}

// state is the machine state of one run. Rows are produced synchronously,
// one per executed instruction.
type state struct {
	g    *Generator
	user []byte

	pc     uint64
	gas    uint64
	kernel bool
	stack  []uint256.Int

	// cached top register and the access that refills it
	top  cpu.Word
	next topAccess

	mem     map[memKey]uint256.Int
	meter   *GasMeter
	circuit *witness.Circuit
	routine *Routine
	// prover_input answers of the active routine, in push order
	answers []*uint256.Int

	rows  []cpu.ExecutionRow
	hints []HintRecord
}

func newState(g *Generator, code []byte, circuit *witness.Circuit) *state {
	return &state{
		g:       g,
		user:    code,
		top:     cpu.ZeroWord(),
		mem:     make(map[memKey]uint256.Int),
		meter:   NewGasMeter(g.cfg.GasAllocation),
		circuit: circuit,
	}
}

func flag(b bool) field.Element {
	if b {
		return field.One
	}
	return field.Zero
}

func limb(v *uint256.Int, i int) uint64 {
	return (v[i/2] >> (32 * (i % 2))) & 0xffffffff
}

// fetch reads the current code segment; past the end every byte is STOP
func (s *state) fetch(pc uint64) byte {
	code := s.user
	if s.kernel {
		code = s.g.kernel.Code
	}
	if pc >= uint64(len(code)) {
		return cpu.OpStop
	}
	return code[pc]
}

func (s *state) immediate(pc uint64, n int) *uint256.Int {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = s.fetch(pc + 1 + uint64(i))
	}
	return new(uint256.Int).SetBytes(buf)
}

// newRow snapshots the registers into a fresh row
func (s *state) newRow() cpu.ExecutionRow {
	r := cpu.NewExecutionRow()
	r.ProgramCounter = field.New(s.pc)
	r.Gas = field.New(s.gas)
	r.StackLen = field.New(uint64(len(s.stack)))
	r.IsKernelMode = flag(s.kernel)

	if s.next.set {
		cpu.SetStackRead(&r.MemChannels[0], s.next.used, field.Zero, s.next.virt, s.top)
	} else {
		r.MemChannels[0].Value = s.top
	}
	r.PartialChannel.Value = s.top
	s.next = topAccess{}
	return r
}

// operands returns the k topmost stack words, top first, reading all but
// the top through channels 1..k-1
func (s *state) operands(r *cpu.ExecutionRow, k int) []uint256.Int {
	n := len(s.stack)
	ops := make([]uint256.Int, k)
	for i := 0; i < k; i++ {
		ops[i] = s.stack[n-1-i]
		if i > 0 {
			cpu.SetStackRead(&r.MemChannels[i], true, field.Zero, field.New(uint64(n-1-i)), cpu.WordFromUint256(&ops[i]))
		}
	}
	return ops
}

// apply finishes a generically constrained instruction: boundary
// certificate, spill or refill, and the stack update.
func (s *state) apply(r *cpu.ExecutionRow, beh cpu.StackBehavior, result *uint256.Int) {
	n := len(s.stack)
	k := beh.Pops
	switch beh.Shape() {
	case cpu.ShapePushOnly:
		cpu.SetBoundary(r, field.New(uint64(n)))
		cpu.SetSpill(r)
	case cpu.ShapePopOnly:
		s.refill(r, field.New(uint64(n-k)), n-k != 0)
	}
	s.stack = s.stack[:n-k]
	if beh.Pushes {
		s.stack = append(s.stack, *result)
	}
	s.settle(beh.Pops > 0 || beh.Pushes)
}

// refill certifies the remaining length and schedules the next top read
func (s *state) refill(r *cpu.ExecutionRow, remaining field.Element, used bool) {
	cpu.SetBoundary(r, remaining)
	s.next = topAccess{set: true, used: used, virt: remaining.Sub(field.One)}
}

// settle reloads the cached top after the stack changed
func (s *state) settle(changed bool) {
	if !changed {
		return
	}
	if n := len(s.stack); n > 0 {
		s.top = cpu.WordFromUint256(&s.stack[n-1])
	} else {
		s.top = cpu.ZeroWord()
	}
}

func (s *state) emit(r cpu.ExecutionRow) {
	s.rows = append(s.rows, r)
}

// precheck returns the handler a user-mode instruction must be redirected
// to, in the order underflow, overflow, out of gas.
func (s *state) precheck(v *cpu.Variant, opcode byte) (cpu.Flag, cpu.Pending, bool) {
	p := s.pendingOf(v, opcode)
	n := uint64(len(s.stack))
	switch {
	case n < p.Pops:
		return cpu.FlagExcStackUnderflow, p, true
	case n-p.Pops+p.Pushes > uint64(s.g.cfg.MaxStackLen):
		return cpu.FlagExcStackOverflow, p, true
	case !v.SelfReported && !s.meter.Fits(p.Cost):
		return cpu.FlagExcOutOfGas, p, true
	}
	return 0, p, false
}

// pendingOf is the opcode table entry of a user-mode instruction
func (s *state) pendingOf(v *cpu.Variant, opcode byte) cpu.Pending {
	beh := v.ShapeFor(opcode)
	p := cpu.Pending{Pops: uint64(beh.Pops)}
	if beh.Pushes {
		p.Pushes = 1
	}
	if r, ok := s.g.kernel.Routine(opcode); ok && v.Flag == cpu.FlagSyscall {
		e := r.Effect()
		p.Pops, p.Pushes = e.Pops, e.Pushes
	}
	if !v.SelfReported {
		p.Cost = v.DeclaredCost(opcode)
	}
	return p
}

// raise emits the handler entry row; handler rows are terminal
func (s *state) raise(r *cpu.ExecutionRow, f cpu.Flag, opcode byte, p cpu.Pending) {
	cpu.SetException(r, f, opcode, p, s.g.cfg.GasAllocation, uint64(s.g.cfg.MaxStackLen))
	s.emit(*r)
	s.g.logger.Info().Str("handler", f.String()).Uint64("pc", s.pc).Bool("kernel", s.kernel).
		Uint64("gas", s.gas).Uint64("pending_cost", p.Cost).Msg("redirect to exception handler")
}

// step executes one instruction. It reports the flag of the emitted row and
// whether that row was terminal.
func (s *state) step() (cpu.Flag, bool, error) {
	opcode := s.fetch(s.pc)
	r := s.newRow()

	v, err := cpu.Decode(opcode, s.kernel)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrInvalidOpcode, err)
	}
	if v.Flag == cpu.FlagSyscall {
		if _, ok := s.g.kernel.Routine(opcode); !ok {
			return 0, false, fmt.Errorf("%w: syscall 0x%02x has no kernel routine", ErrInvalidOpcode, opcode)
		}
	}
	beh := v.ShapeFor(opcode)

	if !s.kernel {
		if f, p, redirect := s.precheck(v, opcode); redirect {
			s.raise(&r, f, opcode, p)
			return f, true, nil
		}
	} else if len(s.stack) < beh.Pops {
		return 0, false, fmt.Errorf("%w: %s needs %d operands, stack has %d", ErrKernelFault, v.Flag, beh.Pops, len(s.stack))
	}

	nextPC := s.pc + 1
	switch v.Flag {
	case cpu.FlagStop:
		cpu.FillOpcode(&r, opcode, v.Flag)
		cpu.SetCheckpoint(&r, s.g.cfg.GasAllocation)
		s.emit(r)
		return v.Flag, true, nil

	case cpu.FlagAdd, cpu.FlagMul, cpu.FlagSub, cpu.FlagAddmodMulmod, cpu.FlagLtGt, cpu.FlagNot:
		cpu.FillOpcode(&r, opcode, v.Flag)
		ops := s.operands(&r, beh.Pops)
		var args [3]uint256.Int
		copy(args[:], ops)
		res, err := cpu.Evaluate(opcode, &args[0], &args[1], &args[2])
		if err != nil {
			return 0, false, err
		}
		s.apply(&r, beh, res)

	case cpu.FlagEqIszero:
		cpu.FillOpcode(&r, opcode, v.Flag)
		ops := s.operands(&r, beh.Pops)
		var b uint256.Int
		if len(ops) > 1 {
			b = ops[1]
		}
		cpu.SetEqCertificate(&r)
		res := new(uint256.Int)
		if ops[0].Eq(&b) {
			res.SetOne()
		}
		s.apply(&r, beh, res)

	case cpu.FlagPop, cpu.FlagJumpdest:
		cpu.FillOpcode(&r, opcode, v.Flag)
		s.operands(&r, beh.Pops)
		s.apply(&r, beh, nil)

	case cpu.FlagPc:
		cpu.FillOpcode(&r, opcode, v.Flag)
		s.apply(&r, beh, uint256.NewInt(s.pc))

	case cpu.FlagPush0:
		cpu.FillOpcode(&r, opcode, v.Flag)
		s.apply(&r, beh, new(uint256.Int))

	case cpu.FlagPush:
		n := int(opcode-cpu.OpPush0)
		cpu.FillOpcode(&r, opcode, v.Flag)
		s.apply(&r, beh, s.immediate(s.pc, n))
		nextPC = s.pc + 1 + uint64(n)

	case cpu.FlagProverInput:
		h, err := s.proverInput()
		if err != nil {
			return 0, false, err
		}
		cpu.FillOpcode(&r, opcode, v.Flag)
		s.apply(&r, beh, h)

	case cpu.FlagSyscall:
		routine, _ := s.g.kernel.Routine(opcode)
		ret := returnWord(s.pc+1, s.kernel, s.gas)
		cpu.FillOpcode(&r, opcode, v.Flag)
		s.apply(&r, beh, ret)
		s.routine = &routine
		s.answers = nil
		s.kernel = true
		nextPC = s.g.kernel.Entries[opcode]
		s.g.logger.Debug().Str("routine", routine.Name).Uint64("entry", nextPC).Msg("syscall")

	case cpu.FlagExitKernel:
		return s.exitKernel(&r, opcode, v, beh)

	case cpu.FlagJumps:
		pc, err := s.jump(&r, opcode)
		if err != nil {
			return 0, false, err
		}
		nextPC = pc

	case cpu.FlagMOpGeneral:
		s.generalMemory(&r, opcode)

	default:
		return 0, false, fmt.Errorf("%w: no executor for %s", ErrInvalidOpcode, v.Flag)
	}

	if !s.kernel && !v.SelfReported {
		if err := s.meter.Charge(v.DeclaredCost(opcode)); err != nil {
			return 0, false, err
		}
		s.gas = s.meter.Used()
	}
	s.emit(r)
	s.pc = nextPC
	return v.Flag, false, nil
}

// returnWord packs pc, the privilege flag and gas into the syscall return word
func returnWord(pc uint64, kernel bool, gas uint64) *uint256.Int {
	var w uint256.Int
	w[0] = pc & 0xffffffff
	if kernel {
		w[0] |= 1 << 32
	}
	w[cpu.ReturnLimbGas/2] = gas & 0xffffffff
	return &w
}

// exitKernel installs the gas the routine reported, or raises out of gas if
// the reported charge does not fit.
func (s *state) exitKernel(r *cpu.ExecutionRow, opcode byte, v *cpu.Variant, beh cpu.StackBehavior) (cpu.Flag, bool, error) {
	ret := s.stack[len(s.stack)-1]
	newPC := limb(&ret, cpu.ReturnLimbPC)
	newKernel := limb(&ret, cpu.ReturnLimbKernel)
	newGas := limb(&ret, cpu.ReturnLimbGas)
	if newKernel > 1 {
		return 0, false, fmt.Errorf("%w: return word privilege flag %d", ErrKernelFault, newKernel)
	}
	if newGas < s.gas {
		return 0, false, fmt.Errorf("%w: reported gas %d below %d at entry", ErrKernelFault, newGas, s.gas)
	}

	reported := newGas - s.gas
	if !s.meter.Fits(reported) {
		s.raise(r, cpu.FlagExcOutOfGas, opcode, cpu.Pending{Cost: reported, Pops: 1})
		return cpu.FlagExcOutOfGas, true, nil
	}
	if err := s.meter.Charge(reported); err != nil {
		return 0, false, err
	}

	if s.routine != nil && s.routine.HasHint {
		s.record()
	}
	cpu.FillOpcode(r, opcode, v.Flag)
	s.apply(r, beh, nil)
	s.emit(*r)

	s.pc = newPC
	s.kernel = newKernel == 1
	s.gas = s.meter.Used()
	s.routine = nil
	return v.Flag, false, nil
}

// proverInput pops the next answer of the active routine. The answers are
// computed at the first prover_input from the argument the routine saved,
// and verified in the hint field before any is pushed.
func (s *state) proverInput() (*uint256.Int, error) {
	if s.routine == nil || !s.routine.HasHint {
		return nil, fmt.Errorf("%w: prover_input outside a hint routine", ErrKernelFault)
	}
	if s.answers == nil {
		x := s.load(slotArg)
		switch s.routine.Hint {
		case witness.HintInverse:
			s.answers = []*uint256.Int{s.circuit.Inverse(&x)}
		case witness.HintSqrt:
			h, exists := s.circuit.SqrtOrNonResidue(&x)
			b := new(uint256.Int)
			if exists {
				b.SetOne()
			}
			s.answers = []*uint256.Int{b, h}
		default:
			return nil, fmt.Errorf("%w: routine %s requests unsupported hint %s", ErrKernelFault, s.routine.Name, s.routine.Hint)
		}
		if err := s.circuit.Err(); err != nil {
			return nil, fmt.Errorf("prover_input for %s: %w", s.routine.Name, err)
		}
	}
	if len(s.answers) == 0 {
		return nil, fmt.Errorf("%w: routine %s asked for more answers than it has", ErrKernelFault, s.routine.Name)
	}
	h := s.answers[0]
	s.answers = s.answers[1:]
	return h, nil
}

// record notes what a hint routine hands back: [.., result, ok, ret]
func (s *state) record() {
	n := len(s.stack)
	if n < 3 {
		return
	}
	x := s.load(slotArg)
	s.hints = append(s.hints, HintRecord{
		Routine: s.routine.Name,
		Kind:    s.routine.Hint,
		Input:   &x,
		Output:  s.stack[n-3].Clone(),
		Exists:  s.stack[n-2].Eq(uint256.NewInt(1)),
	})
}

func (s *state) load(slot uint64) uint256.Int {
	return s.mem[memKey{seg: cpu.SegmentKernelGeneral, virt: slot}]
}

// jump executes JUMP (bit 0 clear) and JUMPI (bit 0 set)
func (s *state) jump(r *cpu.ExecutionRow, opcode byte) (uint64, error) {
	isJumpi := opcode&1 == 1
	n := len(s.stack)
	dest := s.stack[n-1]

	cpu.FillOpcode(r, opcode, cpu.FlagJumps)
	condVirt := field.New(uint64(n)).Sub(field.New(2))
	var cond uint256.Int
	if isJumpi {
		cond = s.stack[n-2]
		cpu.SetStackRead(&r.MemChannels[1], true, field.Zero, condVirt, cpu.WordFromUint256(&cond))
	} else {
		cpu.SetStackRead(&r.MemChannels[1], false, field.Zero, condVirt, cpu.ZeroWord())
	}
	cpu.SetJumpCondition(r, isJumpi)

	pops := 1
	if isJumpi {
		pops = 2
	}
	remaining := n - pops
	s.refill(r, field.New(uint64(remaining)), remaining != 0)
	s.stack = s.stack[:remaining]
	s.settle(true)

	taken := !isJumpi || !cond.IsZero()
	if !taken {
		return s.pc + 1, nil
	}
	if !dest.IsUint64() || dest.Uint64() >= 1<<32 || s.fetch(dest.Uint64()) != cpu.OpJumpdest {
		return 0, fmt.Errorf("%w: %s", ErrInvalidJump, dest.Hex())
	}
	return dest.Uint64(), nil
}

// generalMemory executes the kernel's general load (bit 0 clear) and store
func (s *state) generalMemory(r *cpu.ExecutionRow, opcode byte) {
	isStore := opcode&1 == 1
	n := len(s.stack)
	cpu.FillOpcode(r, opcode, cpu.FlagMOpGeneral)

	ctx := s.stack[n-1]
	seg := s.stack[n-2]
	virt := s.stack[n-3]
	cpu.SetStackRead(&r.MemChannels[1], true, field.Zero, field.New(uint64(n-2)), cpu.WordFromUint256(&seg))
	cpu.SetStackRead(&r.MemChannels[2], true, field.Zero, field.New(uint64(n-3)), cpu.WordFromUint256(&virt))

	valueVirt := field.New(uint64(n)).Sub(field.New(4))
	var value uint256.Int
	if isStore {
		value = s.stack[n-4]
		cpu.SetStackRead(&r.MemChannels[3], true, field.Zero, valueVirt, cpu.WordFromUint256(&value))
	} else {
		cpu.SetStackRead(&r.MemChannels[3], false, field.Zero, valueVirt, cpu.ZeroWord())
	}

	key := memKey{ctx: limb(&ctx, 0), seg: limb(&seg, 0), virt: limb(&virt, 0)}
	if isStore {
		s.mem[key] = value
	} else {
		value = s.mem[key]
	}
	gen := &r.MemChannels[cpu.GeneralChannel]
	gen.Used = field.One
	gen.IsRead = flag(!isStore)
	gen.AddrContext = field.New(key.ctx)
	gen.AddrSegment = field.New(key.seg)
	gen.AddrVirtual = field.New(key.virt)
	gen.Value = cpu.WordFromUint256(&value)

	// the boundary certificate is taken on n - 4 for both members
	s.refill(r, valueVirt, isStore && n != 4)
	if isStore {
		s.stack = s.stack[:n-4]
	} else {
		s.stack = append(s.stack[:n-3], value)
	}
	s.settle(true)
}
