package cpu

import (
	"fmt"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/protocols"
)

// evalMOpGeneral holds the hand-written constraints for the kernel's general
// load (pop context, segment, virtual; push value) and store (pop context,
// segment, virtual, value). The store is pop-only and needs the boundary
// certificate, which cannot sit under the flag·bit0 selector within the
// degree ceiling; the certificate is therefore asserted for both members on
// stack_len - 4 and only its consequence is selected.
func evalMOpGeneral(air *protocols.AIRConstraints[ExecutionRow]) {
	g := gated{air: air, flt: flagFilter(FlagMOpGeneral), name: "m_op_general"}
	bit0 := func(lv *ExecutionRow) field.Element { return lv.OpcodeBits[0] }

	// segment and virtual address operands
	for i := 1; i <= 2; i++ {
		suffix := fmt.Sprintf("ch%d", i)
		g.used(suffix, opChannel(i), constant(field.One))
		g.stackAccess(suffix, opChannel(i), minus(uint64(i)+1))
	}
	// value operand, store only
	g.used("ch3", opChannel(3), bit0)
	g.stackAccess("ch3", opChannel(3), minus(4))
	g.disabled("spill", spillChannel)

	// the general access itself
	gen := func(lv *ExecutionRow) *MemoryChannel { return &lv.MemChannels[GeneralChannel] }
	g.add("general/used", 1, func(lv, nv *ExecutionRow) field.Element {
		return gen(lv).Used.Sub(field.One)
	})
	g.add("general/is_read", 1, func(lv, nv *ExecutionRow) field.Element {
		return gen(lv).IsRead.Sub(field.One.Sub(lv.OpcodeBits[0]))
	})
	g.add("general/ctx", 1, func(lv, nv *ExecutionRow) field.Element {
		return gen(lv).AddrContext.Sub(lv.Top()[0])
	})
	g.add("general/seg", 1, func(lv, nv *ExecutionRow) field.Element {
		return gen(lv).AddrSegment.Sub(lv.MemChannels[1].Value[0])
	})
	g.add("general/virt", 1, func(lv, nv *ExecutionRow) field.Element {
		return gen(lv).AddrVirtual.Sub(lv.MemChannels[2].Value[0])
	})
	for i := 0; i < NumLimbs; i++ {
		g.add(fmt.Sprintf("store/value%d", i), 2, func(lv, nv *ExecutionRow) field.Element {
			return lv.OpcodeBits[0].Mul(gen(lv).Value[i].Sub(lv.MemChannels[3].Value[i]))
		})
		g.add(fmt.Sprintf("load/value%d", i), 2, func(lv, nv *ExecutionRow) field.Element {
			return field.One.Sub(lv.OpcodeBits[0]).Mul(nv.Top()[i].Sub(gen(lv).Value[i]))
		})
	}

	// load: n - 3 + 1, store: n - 4
	g.add("len", 1, func(lv, nv *ExecutionRow) field.Element {
		want := lv.StackLen.Sub(field.New(2)).Sub(lv.OpcodeBits[0].Add(lv.OpcodeBits[0]))
		return nv.StackLen.Sub(want)
	})

	g.certificate(minus(4))
	g.add("next_top/used", 2, func(lv, nv *ExecutionRow) field.Element {
		return nv.MemChannels[0].Used.Sub(lv.OpcodeBits[0].Mul(lv.StackInvAux))
	})
	g.stackAccess("next_top", nextTopChannel, minus(5))
}
