package cpu

import (
	"fmt"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/protocols"
)

// evalSyscalls adds the privilege switch. A syscall pushes the return word
// (pc + 1, kernel flag, gas) and jumps to the kernel entry from the jump
// table; exit_kernel pops it and restores pc and the privilege flag.
func evalSyscalls(air *protocols.AIRConstraints[ExecutionRow], jumptable protocols.LookupTable) {
	sys := gated{air: air, flt: flagFilter(FlagSyscall), name: "syscall"}
	for i := 0; i < NumLimbs; i++ {
		sys.add(fmt.Sprintf("return_limb%d", i), 1, func(lv, nv *ExecutionRow) field.Element {
			var want field.Element
			switch i {
			case ReturnLimbPC:
				want = lv.ProgramCounter.Add(field.One)
			case ReturnLimbKernel:
				want = lv.IsKernelMode
			case ReturnLimbGas:
				want = lv.Gas
			default:
				want = field.Zero
			}
			return nv.Top()[i].Sub(want)
		})
	}
	sys.add("enter_kernel", 1, func(lv, nv *ExecutionRow) field.Element {
		return nv.IsKernelMode.Sub(field.One)
	})
	air.AddLookup("syscall/jumptable", 1, jumptable, func(lv, nv *ExecutionRow) (field.Element, []field.Element) {
		return lv.Op.Syscall, []field.Element{lv.Opcode, nv.ProgramCounter}
	})

	exit := gated{air: air, flt: flagFilter(FlagExitKernel), name: "exit_kernel"}
	exit.add("pc", 1, func(lv, nv *ExecutionRow) field.Element {
		return nv.ProgramCounter.Sub(lv.Top()[ReturnLimbPC])
	})
	exit.add("kernel", 1, func(lv, nv *ExecutionRow) field.Element {
		return nv.IsKernelMode.Sub(lv.Top()[ReturnLimbKernel])
	})
}

// evalKernelCode binds kernel rows to the kernel program: the opcode at
// every kernel pc, and the value of every kernel push.
func evalKernelCode(air *protocols.AIRConstraints[ExecutionRow], tables *KernelCodeTables) {
	air.AddLookup("kernel/code", 2, tables.Code, func(lv, nv *ExecutionRow) (field.Element, []field.Element) {
		return lv.IsKernelMode.Mul(lv.IsCpuCycle), []field.Element{lv.ProgramCounter, lv.Opcode}
	})
	air.AddLookup("kernel/immediate", 2, tables.Immediates, func(lv, nv *ExecutionRow) (field.Element, []field.Element) {
		top := nv.Top()
		return lv.IsKernelMode.Mul(lv.Op.Push), append([]field.Element{lv.ProgramCounter}, top[:]...)
	})
}
