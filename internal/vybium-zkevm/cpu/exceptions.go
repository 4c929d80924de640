package cpu

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/protocols"
)

// evalExceptions adds the entry constraints of the handler rows. Each one
// re-derives the failure from the row itself; a handler entered on a false
// premise leaves some constraint non-zero.
func evalExceptions(air *protocols.AIRConstraints[ExecutionRow], opcodes protocols.LookupTable,
	allocation, maxStackLen uint64,
) {
	alloc := field.New(allocation)
	limit := field.New(maxStackLen)

	// handler rows touch no channel and leave the stack as it was
	for _, f := range []Flag{FlagExcOutOfGas, FlagExcStackUnderflow, FlagExcStackOverflow} {
		evalStackBehavior(air, flagFilter(f), StackBehavior{})
	}

	// out of gas: gas <= allocation holds through the terminal checkpoint,
	// and gas + pending > allocation here
	air.AddConsistencyConstraint("exc/out_of_gas/exceeds", 2, func(lv *ExecutionRow) field.Element {
		over := lv.Gas.Add(lv.PendingCost).Sub(alloc).Sub(field.One)
		return lv.Op.ExcOutOfGas.Mul(over.Sub(lv.GasExcess))
	})
	air.AddLookup("exc/out_of_gas/excess_u32", 1, protocols.U32Table, func(lv, nv *ExecutionRow) (field.Element, []field.Element) {
		return lv.Op.ExcOutOfGas, []field.Element{lv.GasExcess}
	})

	// stack faults are user-mode only; the kernel never over- or underflows
	air.AddConsistencyConstraint("exc/stack_underflow/user_only", 2, func(lv *ExecutionRow) field.Element {
		return lv.Op.ExcStackUnderflow.Mul(lv.IsKernelMode)
	})
	air.AddConsistencyConstraint("exc/stack_overflow/user_only", 2, func(lv *ExecutionRow) field.Element {
		return lv.Op.ExcStackOverflow.Mul(lv.IsKernelMode)
	})

	// underflow: pops > stack_len
	air.AddConsistencyConstraint("exc/stack_underflow/short", 2, func(lv *ExecutionRow) field.Element {
		short := lv.PendingPops.Sub(lv.StackLen).Sub(field.One)
		return lv.Op.ExcStackUnderflow.Mul(short.Sub(lv.StackExcess))
	})
	// overflow: stack_len - pops + pushes > limit
	air.AddConsistencyConstraint("exc/stack_overflow/long", 2, func(lv *ExecutionRow) field.Element {
		long := lv.StackLen.Add(lv.PendingPushes).Sub(lv.PendingPops).Sub(limit).Sub(field.One)
		return lv.Op.ExcStackOverflow.Mul(long.Sub(lv.StackExcess))
	})
	air.AddLookup("exc/stack_excess_u32", 1, protocols.U32Table, func(lv, nv *ExecutionRow) (field.Element, []field.Element) {
		return lv.Op.ExcStackUnderflow.Add(lv.Op.ExcStackOverflow), []field.Element{lv.StackExcess}
	})

	// in kernel mode the meter only moves at exit_kernel, so that is where
	// out of gas is raised; the pending cost is what the return word adds
	air.AddConsistencyConstraint("exc/out_of_gas/kernel_exit", 3, func(lv *ExecutionRow) field.Element {
		return lv.Op.ExcOutOfGas.Mul(lv.IsKernelMode).Mul(lv.Opcode.Sub(field.New(uint64(OpExitKernel))))
	})
	air.AddConsistencyConstraint("exc/out_of_gas/kernel_cost", 3, func(lv *ExecutionRow) field.Element {
		reported := lv.Top()[ReturnLimbGas].Sub(lv.Gas)
		return lv.Op.ExcOutOfGas.Mul(lv.IsKernelMode).Mul(lv.PendingCost.Sub(reported))
	})

	// pending cost and stack effect come from the opcode table in user mode
	air.AddLookup("exc/opcode_table", 2, opcodes, func(lv, nv *ExecutionRow) (field.Element, []field.Element) {
		user := field.One.Sub(lv.IsKernelMode)
		flt := lv.Op.ExcOutOfGas.Mul(user).Add(lv.Op.ExcStackUnderflow).Add(lv.Op.ExcStackOverflow)
		return flt, []field.Element{lv.Opcode, lv.PendingCost, lv.PendingPops, lv.PendingPushes}
	})
}

// Pending describes the instruction a handler row refused to execute
type Pending struct {
	Cost   uint64
	Pops   uint64
	Pushes uint64
}

// SetException turns r into a handler entry row for flag f. r must already
// hold the registers of the refused instruction.
func SetException(r *ExecutionRow, f Flag, opcode byte, p Pending, allocation, maxStackLen uint64) {
	FillOpcode(r, opcode, f)
	r.PendingCost = field.New(p.Cost)
	r.PendingPops = field.New(p.Pops)
	r.PendingPushes = field.New(p.Pushes)

	switch f {
	case FlagExcOutOfGas:
		r.GasExcess = r.Gas.Add(r.PendingCost).Sub(field.New(allocation)).Sub(field.One)
	case FlagExcStackUnderflow:
		r.StackExcess = r.PendingPops.Sub(r.StackLen).Sub(field.One)
	case FlagExcStackOverflow:
		r.StackExcess = r.StackLen.Add(r.PendingPushes).Sub(r.PendingPops).Sub(field.New(maxStackLen)).Sub(field.One)
	}
	SetCheckpoint(r, allocation)
}
