package cpu

import (
	"fmt"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/protocols"
)

// Availability restricts a block of opcodes to one privilege level
type Availability int

const (
	All Availability = iota
	User
	Kernel
)

// StackBehavior is the (pops, push?) signature of an instruction
type StackBehavior struct {
	Pops   int
	Pushes bool
}

// Shape names the channel discipline selected by a stack behavior
type Shape int

const (
	ShapeNone Shape = iota
	ShapePopPush
	ShapePushOnly
	ShapePopOnly
)

// Shape classifies the behavior
func (s StackBehavior) Shape() Shape {
	switch {
	case s.Pops > 0 && s.Pushes:
		return ShapePopPush
	case s.Pushes:
		return ShapePushOnly
	case s.Pops > 0:
		return ShapePopOnly
	}
	return ShapeNone
}

// BodyDegree is the highest degree of the generic stack constraints for this
// behavior, before multiplying by the filter. The push-only and pop-only
// shapes carry the degree-2 boundary certificate.
func (s StackBehavior) BodyDegree() int {
	switch s.Shape() {
	case ShapePushOnly, ShapePopOnly:
		return 2
	}
	return 1
}

// Variant is one row of the instruction variant table. A variant is either
// handled by the generic stack routine (with the flag as filter, or with
// flag·selector per merged member), or has hand-written constraints.
type Variant struct {
	Flag         Flag
	Start        byte
	LogLen       int // the block covers 2^LogLen opcodes
	Availability Availability

	// Shapes[b] applies when opcode bit 0 is b; equal unless Merged
	Shapes [2]StackBehavior
	Merged bool

	// Override marks families whose channels are constrained by hand
	Override bool

	// Native costs; SelfReported variants charge through the return word
	Cost         uint64
	CostBit0     uint64
	SelfReported bool
}

func same(s StackBehavior) [2]StackBehavior { return [2]StackBehavior{s, s} }

var (
	none    = StackBehavior{}
	pushOne = StackBehavior{Pushes: true}
	unary   = StackBehavior{Pops: 1, Pushes: true}
	binary  = StackBehavior{Pops: 2, Pushes: true}
	ternary = StackBehavior{Pops: 3, Pushes: true}
	popOne  = StackBehavior{Pops: 1}
)

// Variants is the instruction variant table
var Variants = []Variant{
	{Flag: FlagStop, Start: 0x00, Shapes: same(none), Cost: 0},
	{Flag: FlagAdd, Start: 0x01, Shapes: same(binary), Cost: 3},
	{Flag: FlagMul, Start: 0x02, Shapes: same(binary), Cost: 5},
	{Flag: FlagSub, Start: 0x03, Shapes: same(binary), Cost: 3},
	{Flag: FlagAddmodMulmod, Start: 0x08, LogLen: 1, Shapes: same(ternary), Cost: 8},
	{Flag: FlagLtGt, Start: 0x10, LogLen: 1, Shapes: same(binary), Cost: 3},
	{Flag: FlagEqIszero, Start: 0x14, LogLen: 1, Shapes: [2]StackBehavior{binary, unary}, Merged: true, Cost: 3},
	{Flag: FlagNot, Start: 0x19, Shapes: same(unary), Cost: 3},
	{Flag: FlagSyscall, Start: 0x30, LogLen: 4, Availability: User, Shapes: same(pushOne), SelfReported: true},
	{Flag: FlagProverInput, Start: 0x49, Availability: Kernel, Shapes: same(pushOne)},
	{Flag: FlagPop, Start: 0x50, Shapes: same(popOne), Cost: 2},
	{Flag: FlagJumps, Start: 0x56, LogLen: 1, Shapes: [2]StackBehavior{popOne, {Pops: 2}}, Merged: true, Override: true, Cost: 8, CostBit0: 2},
	{Flag: FlagPc, Start: 0x58, Shapes: same(pushOne), Cost: 2},
	{Flag: FlagJumpdest, Start: 0x5b, Shapes: same(none), Cost: 1},
	{Flag: FlagPush0, Start: 0x5f, Shapes: same(pushOne), Cost: 2},
	{Flag: FlagPush, Start: 0x60, LogLen: 5, Shapes: same(pushOne), Cost: 3},
	{Flag: FlagMOpGeneral, Start: 0xee, LogLen: 1, Availability: Kernel, Shapes: [2]StackBehavior{ternary, {Pops: 4}}, Merged: true, Override: true},
	{Flag: FlagExitKernel, Start: 0xf9, Availability: Kernel, Shapes: same(popOne), SelfReported: true},
}

// Opcodes used by the generator and the kernel assembler
const (
	OpStop         byte = 0x00
	OpAdd          byte = 0x01
	OpMul          byte = 0x02
	OpSub          byte = 0x03
	OpAddmod       byte = 0x08
	OpMulmod       byte = 0x09
	OpLt           byte = 0x10
	OpGt           byte = 0x11
	OpEq           byte = 0x14
	OpIszero       byte = 0x15
	OpNot          byte = 0x19
	OpSyscallBase  byte = 0x30
	OpProverInput  byte = 0x49
	OpPop          byte = 0x50
	OpJump         byte = 0x56
	OpJumpi        byte = 0x57
	OpPc           byte = 0x58
	OpJumpdest     byte = 0x5b
	OpPush0        byte = 0x5f
	OpPush1        byte = 0x60
	OpPush2        byte = 0x61
	OpPush32       byte = 0x7f
	OpMloadGeneral byte = 0xee
	OpMstoreGen    byte = 0xef
	OpExitKernel   byte = 0xf9
)

var variantByFlag = func() map[Flag]*Variant {
	m := make(map[Flag]*Variant, len(Variants))
	for i := range Variants {
		m[Variants[i].Flag] = &Variants[i]
	}
	return m
}()

// VariantOf returns the table entry for an instruction flag
func VariantOf(f Flag) (*Variant, bool) {
	v, ok := variantByFlag[f]
	return v, ok
}

// Contains reports whether opcode lies in the variant's block
func (v *Variant) Contains(opcode byte) bool {
	mask := byte(0xff << v.LogLen)
	return opcode&mask == v.Start
}

// Available reports whether the variant decodes at the given privilege level
func (v *Variant) Available(kernel bool) bool {
	switch v.Availability {
	case User:
		return !kernel
	case Kernel:
		return kernel
	}
	return true
}

// ShapeFor returns the stack behavior for a concrete opcode of the family
func (v *Variant) ShapeFor(opcode byte) StackBehavior {
	return v.Shapes[opcode&1]
}

// DeclaredCost returns the native cost for a concrete opcode of the family
func (v *Variant) DeclaredCost(opcode byte) uint64 {
	return v.Cost + v.CostBit0*uint64(opcode&1)
}

// Decode returns the variant an opcode decodes to at a privilege level
func Decode(opcode byte, kernel bool) (*Variant, error) {
	for i := range Variants {
		v := &Variants[i]
		if v.Contains(opcode) && v.Available(kernel) {
			return v, nil
		}
	}
	mode := "user"
	if kernel {
		mode = "kernel"
	}
	return nil, fmt.Errorf("opcode 0x%02x is not valid in %s mode", opcode, mode)
}

// DeclaredCost is the native charge of a row as a pure function of its
// decoded flags and opcode bit 0.
func DeclaredCost(op *OperationFlagSet, bit0 field.Element) field.Element {
	cost := field.Zero
	for i := range Variants {
		v := &Variants[i]
		if v.SelfReported {
			continue
		}
		f := op.Get(v.Flag)
		cost = cost.Add(f.Mul(field.New(v.Cost)))
		if v.CostBit0 != 0 {
			cost = cost.Add(f.Mul(bit0).Mul(field.New(v.CostBit0)))
		}
	}
	return cost
}

// FillOpcode writes the opcode, its bits and the decoded flag into a row
func FillOpcode(r *ExecutionRow, opcode byte, f Flag) {
	r.Opcode = field.New(uint64(opcode))
	for i := range r.OpcodeBits {
		r.OpcodeBits[i] = field.New(uint64(opcode>>i) & 1)
	}
	*r.Op.Ptr(f) = field.One
	r.IsCpuCycle = field.One
}

// evalDecode adds the flag decoder constraints
func evalDecode(air *protocols.AIRConstraints[ExecutionRow]) {
	air.AddConsistencyConstraint("decode/cycle_bool", 2, func(lv *ExecutionRow) field.Element {
		return isBool(lv.IsCpuCycle)
	})
	air.AddConsistencyConstraint("decode/kernel_bool", 2, func(lv *ExecutionRow) field.Element {
		return isBool(lv.IsKernelMode)
	})
	for f := Flag(0); f < NumFlags; f++ {
		air.AddConsistencyConstraint("decode/"+f.String()+"_bool", 2, func(lv *ExecutionRow) field.Element {
			return isBool(lv.Op.Get(f))
		})
	}
	// a cycle row sets exactly one flag; padding rows set none
	air.AddConsistencyConstraint("decode/one_flag", 1, func(lv *ExecutionRow) field.Element {
		return lv.Op.Sum().Sub(lv.IsCpuCycle)
	})
	for i := 0; i < NumOpcodeBits; i++ {
		air.AddConsistencyConstraint(fmt.Sprintf("decode/bit%d_bool", i), 2, func(lv *ExecutionRow) field.Element {
			return isBool(lv.OpcodeBits[i])
		})
	}
	air.AddConsistencyConstraint("decode/opcode_bits", 1, func(lv *ExecutionRow) field.Element {
		acc := field.Zero
		for i := NumOpcodeBits - 1; i >= 0; i-- {
			acc = acc.Add(acc).Add(lv.OpcodeBits[i])
		}
		return lv.Opcode.Sub(acc)
	})

	for i := range Variants {
		v := &Variants[i]
		name := "decode/" + v.Flag.String()
		for bit := v.LogLen; bit < NumOpcodeBits; bit++ {
			expected := field.New(uint64(v.Start>>bit) & 1)
			air.AddConsistencyConstraint(fmt.Sprintf("%s/bit%d", name, bit), 2, func(lv *ExecutionRow) field.Element {
				return lv.Op.Get(v.Flag).Mul(lv.OpcodeBits[bit].Sub(expected))
			})
		}
		switch v.Availability {
		case User:
			air.AddConsistencyConstraint(name+"/user_only", 2, func(lv *ExecutionRow) field.Element {
				return lv.Op.Get(v.Flag).Mul(lv.IsKernelMode)
			})
		case Kernel:
			air.AddConsistencyConstraint(name+"/kernel_only", 2, func(lv *ExecutionRow) field.Element {
				return lv.Op.Get(v.Flag).Mul(field.One.Sub(lv.IsKernelMode))
			})
		}
	}
}

func isBool(x field.Element) field.Element {
	return x.Mul(x.Sub(field.One))
}
