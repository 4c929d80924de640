package cpu

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/protocols"
)

// arithmeticFlags are certified by the arithmetic table
var arithmeticFlags = []Flag{FlagAdd, FlagMul, FlagSub, FlagAddmodMulmod, FlagLtGt, FlagNot}

// ArithmeticTupleLen is opcode plus three operands and the result
const ArithmeticTupleLen = 1 + 4*NumLimbs

// Evaluate computes the result of an arithmetic opcode on words
func Evaluate(opcode byte, a, b, c *uint256.Int) (*uint256.Int, error) {
	z := new(uint256.Int)
	switch opcode {
	case OpAdd:
		return z.Add(a, b), nil
	case OpMul:
		return z.Mul(a, b), nil
	case OpSub:
		return z.Sub(a, b), nil
	case OpAddmod:
		return z.AddMod(a, b, c), nil
	case OpMulmod:
		return z.MulMod(a, b, c), nil
	case OpLt:
		if a.Lt(b) {
			z.SetOne()
		}
		return z, nil
	case OpGt:
		if a.Gt(b) {
			z.SetOne()
		}
		return z, nil
	case OpNot:
		return z.Not(a), nil
	}
	return nil, fmt.Errorf("opcode 0x%02x is not an arithmetic operation", opcode)
}

// ArithmeticTable is evaluated natively: a tuple is a member when the result
// limbs equal the operation applied to the operand limbs.
var ArithmeticTable = protocols.NewFuncTable("arithmetic", func(tuple []field.Element) bool {
	if len(tuple) != ArithmeticTupleLen || tuple[0].Value() > 0xff {
		return false
	}
	var words [4]*uint256.Int
	for w := range words {
		var limbs Word
		copy(limbs[:], tuple[1+w*NumLimbs:1+(w+1)*NumLimbs])
		v, ok := limbs.Uint256()
		if !ok {
			return false
		}
		words[w] = v
	}
	want, err := Evaluate(byte(tuple[0].Value()), words[0], words[1], words[2])
	return err == nil && want.Eq(words[3])
})

func arithmeticTuple(lv, nv *ExecutionRow) []field.Element {
	t := make([]field.Element, 0, ArithmeticTupleLen)
	t = append(t, lv.Opcode)
	t = append(t, lv.MemChannels[0].Value[:]...)
	t = append(t, lv.MemChannels[1].Value[:]...)
	t = append(t, lv.MemChannels[2].Value[:]...)
	t = append(t, nv.Top()[:]...)
	return t
}

// evalLogic adds value constraints for families that compute their result
// in the CPU or through the arithmetic table.
func evalLogic(air *protocols.AIRConstraints[ExecutionRow]) {
	air.AddLookup("arith/table", 1, ArithmeticTable, func(lv, nv *ExecutionRow) (field.Element, []field.Element) {
		flt := field.Zero
		for _, f := range arithmeticFlags {
			flt = flt.Add(lv.Op.Get(f))
		}
		return flt, arithmeticTuple(lv, nv)
	})

	evalEqIszero(air)

	pc := gated{air: air, flt: flagFilter(FlagPc), name: "pc"}
	pc.add("value", 1, func(lv, nv *ExecutionRow) field.Element {
		return nv.Top()[0].Sub(lv.ProgramCounter)
	})
	for i := 1; i < NumLimbs; i++ {
		pc.add(fmt.Sprintf("value_limb%d", i), 1, func(lv, nv *ExecutionRow) field.Element {
			return nv.Top()[i]
		})
	}

	push0 := gated{air: air, flt: flagFilter(FlagPush0), name: "push0"}
	for i := 0; i < NumLimbs; i++ {
		push0.add(fmt.Sprintf("value_limb%d", i), 1, func(lv, nv *ExecutionRow) field.Element {
			return nv.Top()[i]
		})
	}
}

// evalEqIszero: out = 1 iff a == b, with b forced to zero for ISZERO. The
// certificate is Σ (a_i - b_i)·DiffPinv_i = 1 - out and out·(a_i - b_i) = 0.
func evalEqIszero(air *protocols.AIRConstraints[ExecutionRow]) {
	g := gated{air: air, flt: flagFilter(FlagEqIszero), name: "eq_iszero"}
	diff := func(lv *ExecutionRow, i int) field.Element {
		return lv.MemChannels[0].Value[i].Sub(lv.MemChannels[1].Value[i])
	}
	out := func(nv *ExecutionRow) field.Element { return nv.Top()[0] }

	for i := 0; i < NumLimbs; i++ {
		g.add(fmt.Sprintf("iszero_b%d", i), 2, func(lv, nv *ExecutionRow) field.Element {
			return lv.OpcodeBits[0].Mul(lv.MemChannels[1].Value[i])
		})
		g.add(fmt.Sprintf("equal_limb%d", i), 2, func(lv, nv *ExecutionRow) field.Element {
			return out(nv).Mul(diff(lv, i))
		})
	}
	g.add("unequal", 2, func(lv, nv *ExecutionRow) field.Element {
		s := field.Zero
		for i := 0; i < NumLimbs; i++ {
			s = s.Add(diff(lv, i).Mul(lv.DiffPinv[i]))
		}
		return s.Sub(field.One).Add(out(nv))
	})
	g.add("out_bool", 2, func(lv, nv *ExecutionRow) field.Element {
		return isBool(out(nv))
	})
	for i := 1; i < NumLimbs; i++ {
		g.add(fmt.Sprintf("out_limb%d", i), 1, func(lv, nv *ExecutionRow) field.Element {
			return nv.Top()[i]
		})
	}
}

// SetEqCertificate fills DiffPinv for the operands in channels 0 and 1
func SetEqCertificate(r *ExecutionRow) {
	for i := range r.DiffPinv {
		r.DiffPinv[i] = field.Zero
	}
	for i := 0; i < NumLimbs; i++ {
		d := r.MemChannels[0].Value[i].Sub(r.MemChannels[1].Value[i])
		if !d.IsZero() {
			r.DiffPinv[i] = d.Inverse()
			return
		}
	}
}
