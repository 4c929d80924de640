package cpu

import (
	"fmt"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/protocols"
)

// Params fixes the public inputs the CPU constraints depend on
type Params struct {
	GasAllocation uint64
	MaxStackLen   uint64
	MaxDegree     int

	// Syscalls maps each syscall opcode to its kernel entry point
	Syscalls map[byte]uint64
	// SyscallEffects is the stack effect each syscall has on its caller;
	// syscalls without an entry keep the shape of the syscall row
	SyscallEffects map[byte]SyscallEffect
	// KernelCode is the program every kernel-mode row executes
	KernelCode []byte
}

// AIR is the assembled CPU constraint system
type AIR struct {
	*protocols.AIRConstraints[ExecutionRow]
	Params Params
}

// BuildAIR assembles every CPU constraint family and checks the result
// against the degree ceiling.
func BuildAIR(params Params) (*AIR, error) {
	if params.MaxDegree == 0 {
		params.MaxDegree = 3
	}
	if params.GasAllocation >= 1<<32 {
		return nil, fmt.Errorf("gas allocation %d does not fit in 32 bits", params.GasAllocation)
	}

	air := protocols.NewAIRConstraints[ExecutionRow](params.MaxDegree)
	evalDecode(air)
	if err := evalStack(air, Variants, params.MaxDegree); err != nil {
		return nil, err
	}
	evalControlFlow(air)
	evalMOpGeneral(air)
	evalLogic(air)
	evalSyscalls(air, NewJumpTable(params.Syscalls))
	evalKernelCode(air, NewKernelCodeTables(params.KernelCode))
	evalGas(air, params.GasAllocation)
	evalExceptions(air, NewOpcodeTable(params.SyscallEffects), params.GasAllocation, params.MaxStackLen)

	if err := air.Validate(); err != nil {
		return nil, err
	}
	return &AIR{AIRConstraints: air, Params: params}, nil
}
