package cpu

import (
	"fmt"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/protocols"
)

// filter gates a group of constraints. degree is the degree of eval in the
// trace columns and is added to every constraint it multiplies.
type filter struct {
	name   string
	degree int
	eval   func(lv *ExecutionRow) field.Element
}

func flagFilter(f Flag) filter {
	return filter{name: f.String(), degree: 1, eval: func(lv *ExecutionRow) field.Element {
		return lv.Op.Get(f)
	}}
}

// selectorFilter is flag·bit0 when bit is 1 and flag·(1 - bit0) otherwise
func selectorFilter(f Flag, bit int) filter {
	return filter{name: fmt.Sprintf("%s[bit0=%d]", f, bit), degree: 2, eval: func(lv *ExecutionRow) field.Element {
		sel := lv.OpcodeBits[0]
		if bit == 0 {
			sel = field.One.Sub(sel)
		}
		return lv.Op.Get(f).Mul(sel)
	}}
}

// access is the address part of a channel
type access struct {
	Used, IsRead, Ctx, Seg, Virt field.Element
}

func channelAccess(ch *MemoryChannel) access {
	return access{ch.Used, ch.IsRead, ch.AddrContext, ch.AddrSegment, ch.AddrVirtual}
}

func partialAccess(p *PartialChannel) access {
	return access{p.Used, p.IsRead, p.AddrContext, p.AddrSegment, p.AddrVirtual}
}

// gated registers constraints of the form filter·body
type gated struct {
	air  *protocols.AIRConstraints[ExecutionRow]
	flt  filter
	name string
}

func (g gated) add(suffix string, degree int, body func(lv, nv *ExecutionRow) field.Element) {
	flt := g.flt
	g.air.AddTransitionConstraint(g.name+"/"+suffix, flt.degree+degree, func(lv, nv *ExecutionRow) field.Element {
		return flt.eval(lv).Mul(body(lv, nv))
	})
}

// stackAccess constrains a channel to read the stack of lv's context at virt
func (g gated) stackAccess(suffix string, ch func(lv, nv *ExecutionRow) access,
	virt func(lv *ExecutionRow) field.Element,
) {
	g.add(suffix+"/is_read", 1, func(lv, nv *ExecutionRow) field.Element {
		return ch(lv, nv).IsRead.Sub(field.One)
	})
	g.add(suffix+"/ctx", 1, func(lv, nv *ExecutionRow) field.Element {
		return ch(lv, nv).Ctx.Sub(lv.Context)
	})
	g.add(suffix+"/seg", 1, func(lv, nv *ExecutionRow) field.Element {
		return ch(lv, nv).Seg.Sub(field.New(SegmentStack))
	})
	g.add(suffix+"/virt", 1, func(lv, nv *ExecutionRow) field.Element {
		return ch(lv, nv).Virt.Sub(virt(lv))
	})
}

func (g gated) used(suffix string, ch func(lv, nv *ExecutionRow) access, want func(lv *ExecutionRow) field.Element) {
	g.add(suffix+"/used", 1, func(lv, nv *ExecutionRow) field.Element {
		return ch(lv, nv).Used.Sub(want(lv))
	})
}

func (g gated) disabled(suffix string, ch func(lv, nv *ExecutionRow) access) {
	g.add(suffix+"/used", 1, func(lv, nv *ExecutionRow) field.Element {
		return ch(lv, nv).Used
	})
}

// certificate adds the boundary zero test on diff using StackInv/StackInvAux
func (g gated) certificate(diff func(lv *ExecutionRow) field.Element) {
	g.add("boundary/inv", 2, func(lv, nv *ExecutionRow) field.Element {
		r, _ := ZeroTestResiduals(diff(lv), lv.StackInv, lv.StackInvAux)
		return r
	})
	g.add("boundary/aux", 2, func(lv, nv *ExecutionRow) field.Element {
		_, r := ZeroTestResiduals(diff(lv), lv.StackInv, lv.StackInvAux)
		return r
	})
}

func opChannel(i int) func(lv, nv *ExecutionRow) access {
	return func(lv, _ *ExecutionRow) access { return channelAccess(&lv.MemChannels[i]) }
}

func nextTopChannel(_, nv *ExecutionRow) access { return channelAccess(&nv.MemChannels[0]) }

func spillChannel(lv, _ *ExecutionRow) access { return partialAccess(&lv.PartialChannel) }

func minus(k uint64) func(lv *ExecutionRow) field.Element {
	return func(lv *ExecutionRow) field.Element { return lv.StackLen.Sub(field.New(k)) }
}

func constant(c field.Element) func(lv *ExecutionRow) field.Element {
	return func(*ExecutionRow) field.Element { return c }
}

func auxOf(lv *ExecutionRow) field.Element { return lv.StackInvAux }

// evalStackBehavior is the generic channel routine for one stack behavior.
// Operand i (0 is the top) lives at stack_len - 1 - i; operand 0 is already
// in the top register, operands 1..k-1 are read through channels 1..k-1.
func evalStackBehavior(air *protocols.AIRConstraints[ExecutionRow], flt filter, s StackBehavior) {
	g := gated{air: air, flt: flt, name: "stack/" + flt.name}
	k := uint64(s.Pops)

	for i := 1; i < s.Pops; i++ {
		suffix := fmt.Sprintf("ch%d", i)
		g.used(suffix, opChannel(i), constant(field.One))
		g.stackAccess(suffix, opChannel(i), minus(uint64(i)+1))
	}
	for i := max(s.Pops, 1); i < NumChannels; i++ {
		g.disabled(fmt.Sprintf("ch%d", i), opChannel(i))
	}

	delta := field.Zero.Sub(field.New(k))
	if s.Pushes {
		delta = delta.Add(field.One)
	}
	g.add("len", 1, func(lv, nv *ExecutionRow) field.Element {
		return nv.StackLen.Sub(lv.StackLen.Add(delta))
	})

	switch s.Shape() {
	case ShapePopPush:
		// the result goes straight into the next top register
		g.disabled("next_top", nextTopChannel)
		g.disabled("spill", spillChannel)

	case ShapePushOnly:
		// spill the old top unless the stack was empty
		g.certificate(minus(0))
		g.used("spill", spillChannel, auxOf)
		g.stackAccess("spill", spillChannel, minus(1))
		g.disabled("next_top", nextTopChannel)

	case ShapePopOnly:
		// fetch the new top unless the stack is now empty
		g.certificate(minus(k))
		g.used("next_top", nextTopChannel, auxOf)
		g.stackAccess("next_top", nextTopChannel, minus(k+1))
		g.disabled("spill", spillChannel)

	case ShapeNone:
		g.disabled("next_top", nextTopChannel)
		g.disabled("spill", spillChannel)
		for i := 0; i < NumLimbs; i++ {
			g.add(fmt.Sprintf("top_carry%d", i), 1, func(lv, nv *ExecutionRow) field.Element {
				return nv.Top()[i].Sub(lv.Top()[i])
			})
		}
	}
}

// evalStack applies the generic routine to every variant of the table that
// uses it. A merged family gets the routine once per selector, which costs
// one degree for the selector; families that cannot afford it must be
// overrides.
func evalStack(air *protocols.AIRConstraints[ExecutionRow], variants []Variant, maxDegree int) error {
	for i := range variants {
		v := &variants[i]
		if v.Override {
			continue
		}
		if !v.Merged {
			evalStackBehavior(air, flagFilter(v.Flag), v.Shapes[0])
			continue
		}
		for bit := 0; bit < 2; bit++ {
			flt := selectorFilter(v.Flag, bit)
			if d := flt.degree + v.Shapes[bit].BodyDegree(); d > maxDegree {
				return fmt.Errorf("%w: merged family %s reaches degree %d with the generic stack routine, needs hand-written constraints",
					protocols.ErrDegreeExceeded, v.Flag, d)
			}
			evalStackBehavior(air, flt, v.Shapes[bit])
		}
	}

	// the partial channel aliases the top register
	for i := 0; i < NumLimbs; i++ {
		air.AddConsistencyConstraint(fmt.Sprintf("stack/partial_value%d", i), 1, func(lv *ExecutionRow) field.Element {
			return lv.PartialChannel.Value[i].Sub(lv.MemChannels[0].Value[i])
		})
	}
	for i := 0; i < NumChannels; i++ {
		air.AddConsistencyConstraint(fmt.Sprintf("mem/ch%d_used_bool", i), 2, func(lv *ExecutionRow) field.Element {
			return isBool(lv.MemChannels[i].Used)
		})
		air.AddConsistencyConstraint(fmt.Sprintf("mem/ch%d_is_read_bool", i), 2, func(lv *ExecutionRow) field.Element {
			return isBool(lv.MemChannels[i].IsRead)
		})
	}
	air.AddConsistencyConstraint("mem/partial_used_bool", 2, func(lv *ExecutionRow) field.Element {
		return isBool(lv.PartialChannel.Used)
	})
	air.AddConsistencyConstraint("mem/partial_is_read_bool", 2, func(lv *ExecutionRow) field.Element {
		return isBool(lv.PartialChannel.IsRead)
	})
	return nil
}

// SetStackRead fills a channel as a stack read
func SetStackRead(ch *MemoryChannel, used bool, context, virt field.Element, value Word) {
	ch.Used = boolElem(used)
	ch.IsRead = field.One
	ch.AddrContext = context
	ch.AddrSegment = field.New(SegmentStack)
	ch.AddrVirtual = virt
	ch.Value = value
}

// SetSpill fills the partial channel for a push over a stack of length n
func SetSpill(r *ExecutionRow) {
	n := r.StackLen
	p := &r.PartialChannel
	p.Used = boolElem(!n.IsZero())
	p.IsRead = field.One
	p.AddrContext = r.Context
	p.AddrSegment = field.New(SegmentStack)
	p.AddrVirtual = n.Sub(field.One)
}

// SetBoundary fills the boundary certificate for diff
func SetBoundary(r *ExecutionRow, diff field.Element) {
	c := CertifyZero(diff)
	r.StackInv = c.Inv
	r.StackInvAux = c.Aux
}

func boolElem(b bool) field.Element {
	if b {
		return field.One
	}
	return field.Zero
}
