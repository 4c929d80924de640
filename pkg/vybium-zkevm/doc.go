// Package vybiumzkevm provides the execution core of an arithmetized EVM.
//
// A program runs on a CPU whose every cycle is one row of an execution
// trace. The rows satisfy a fixed set of polynomial constraints of degree at
// most three: operation flag decoding, a stack with its top cached in a
// register, memory channels, gas accounting against a 32-bit allocation, and
// the exceptions (out of gas, stack underflow and overflow) that end a
// transaction. Syscalls enter a small kernel whose routines ask the prover
// for hints (field inverses, square roots), check every answer with traced
// instructions and return the result with an ok flag. A trace carrying a
// wrong answer does not verify.
//
// # Quick Start
//
// Running a program and checking its trace:
//
//	zkevm, err := vybiumzkevm.NewZKEVM(vybiumzkevm.DefaultConfig(), zerolog.Nop())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// PUSH1 2, PUSH1 3, MUL, STOP
//	trace, err := zkevm.Execute(ctx, []byte{0x60, 0x02, 0x60, 0x03, 0x02, 0x00})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result, err := zkevm.Verify(trace)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if result.Valid {
//		fmt.Printf("%d cycles, %d gas, root %x\n", trace.CycleCount, trace.GasUsed, result.Root)
//	}
//
// # Configuration
//
// Configuration is read from TOML with LoadConfig. Keys are the exported
// field names of Config:
//
//	GasAllocation = 21000
//	MaxStackLen = 1024
//	HintField = "secp256k1_base"
//	HashFunction = "sha3"
//
// # Exceptions
//
// Out of gas and stack faults are not Go errors. They end the transaction
// with a terminal exception row and are reported by ExecutionTrace.Outcome.
// Errors are returned as *VMError and can be matched by code:
//
//	if errors.Is(err, &vybiumzkevm.VMError{Code: vybiumzkevm.ErrHintVerification}) {
//		// the prover returned a hint that failed its check
//	}
//
// # Point Recovery
//
// RecoverPoint computes the y coordinate of a curve point from x and a
// parity bit, verifying the square root hint it is built on:
//
//	y, err := vybiumzkevm.RecoverPoint("secp256k1", x, 0)
package vybiumzkevm
