package cpu

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/protocols"
)

// Return word layout shared by syscall and exit_kernel
const (
	ReturnLimbPC     = 0
	ReturnLimbKernel = 1
	ReturnLimbGas    = 6
)

// evalGas adds the gas meter. Native rows charge their declared cost in user
// mode and nothing in kernel mode; syscalls and exit_kernel move gas through
// the return word and re-check it against 2^32; terminal rows check the
// allocation.
//
// Overflow: gas starts at 0, only grows, is below 2^32 after every
// exit_kernel and grows by at most MaxNativeCost per row otherwise, so it
// stays below 2^32 + rows·MaxNativeCost, far under the field modulus.
func evalGas(air *protocols.AIRConstraints[ExecutionRow], allocation uint64) {
	// charged rows: every variant except the self-reported ones
	var charged []Flag
	for i := range Variants {
		if !Variants[i].SelfReported {
			charged = append(charged, Variants[i].Flag)
		}
	}
	air.AddTransitionConstraint("gas/charge", 3, func(lv, nv *ExecutionRow) field.Element {
		active := field.Zero
		for _, f := range charged {
			active = active.Add(lv.Op.Get(f))
		}
		user := field.One.Sub(lv.IsKernelMode)
		cost := DeclaredCost(&lv.Op, lv.OpcodeBits[0])
		return active.Mul(nv.Gas.Sub(lv.Gas)).Sub(cost.Mul(user))
	})

	for _, f := range []Flag{FlagSyscall, FlagExcOutOfGas, FlagExcStackUnderflow, FlagExcStackOverflow} {
		g := gated{air: air, flt: flagFilter(f), name: "gas/" + f.String()}
		g.add("frozen", 1, func(lv, nv *ExecutionRow) field.Element {
			return nv.Gas.Sub(lv.Gas)
		})
	}

	air.AddTransitionConstraint("gas/padding", 2, func(lv, nv *ExecutionRow) field.Element {
		return field.One.Sub(lv.IsCpuCycle).Mul(nv.Gas.Sub(lv.Gas))
	})

	// syscall entry: gas < 2^32
	air.AddLookup("gas/syscall_entry_u32", 1, protocols.U32Table, func(lv, nv *ExecutionRow) (field.Element, []field.Element) {
		return lv.Op.Syscall, []field.Element{lv.Gas}
	})

	// exit_kernel installs the gas reported in the return word; the new
	// value is below 2^32 and not below the value at entry
	g := gated{air: air, flt: flagFilter(FlagExitKernel), name: "gas/exit_kernel"}
	g.add("install", 1, func(lv, nv *ExecutionRow) field.Element {
		return nv.Gas.Sub(lv.Top()[ReturnLimbGas])
	})
	air.AddLookup("gas/exit_kernel_u32", 1, protocols.U32Table, func(lv, nv *ExecutionRow) (field.Element, []field.Element) {
		return lv.Op.ExitKernel, []field.Element{nv.Gas}
	})
	air.AddLookup("gas/exit_kernel_monotone", 1, protocols.U32Table, func(lv, nv *ExecutionRow) (field.Element, []field.Element) {
		return lv.Op.ExitKernel, []field.Element{nv.Gas.Sub(lv.Gas)}
	})

	// every terminal row: gas + slack = allocation with slack < 2^32
	alloc := field.New(allocation)
	air.AddConsistencyConstraint("gas/checkpoint", 2, func(lv *ExecutionRow) field.Element {
		return terminalSum(&lv.Op).Mul(alloc.Sub(lv.Gas).Sub(lv.GasSlack))
	})
	air.AddLookup("gas/checkpoint_slack_u32", 1, protocols.U32Table, func(lv, nv *ExecutionRow) (field.Element, []field.Element) {
		return terminalSum(&lv.Op), []field.Element{lv.GasSlack}
	})
}

// SetCheckpoint fills the slack of a terminal row
func SetCheckpoint(r *ExecutionRow, allocation uint64) {
	r.GasSlack = field.New(allocation).Sub(r.Gas)
}
