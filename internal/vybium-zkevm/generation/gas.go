package generation

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	// ErrOutOfGas is returned when a charge would exceed the allocation
	ErrOutOfGas = errors.New("out of gas")

	// ErrGasOverflow is a fatal fault: the accumulator would wrap
	ErrGasOverflow = errors.New("gas accumulator overflow")
)

// GasMeter is the off-circuit gas accumulator. It decides ahead of each
// instruction whether the charge fits; the circuit only re-checks the
// decision.
type GasMeter struct {
	allocation uint64
	used       uint64
}

// NewGasMeter creates a meter with nothing used
func NewGasMeter(allocation uint64) *GasMeter {
	return &GasMeter{allocation: allocation}
}

// Allocation returns the gas allocation
func (m *GasMeter) Allocation() uint64 { return m.allocation }

// Used returns the gas consumed so far
func (m *GasMeter) Used() uint64 { return m.used }

// Remaining returns allocation - used
func (m *GasMeter) Remaining() uint64 { return m.allocation - m.used }

// Fits reports whether cost can be charged without exceeding the allocation
func (m *GasMeter) Fits(cost uint64) bool {
	sum, carry := bits.Add64(m.used, cost, 0)
	return carry == 0 && sum <= m.allocation
}

// Charge adds cost. It returns ErrOutOfGas, leaving the meter unchanged, if
// the result would exceed the allocation, and ErrGasOverflow if it would not
// even fit the accumulator.
func (m *GasMeter) Charge(cost uint64) error {
	sum, carry := bits.Add64(m.used, cost, 0)
	if carry != 0 {
		return fmt.Errorf("%w: %d + %d", ErrGasOverflow, m.used, cost)
	}
	if sum > m.allocation {
		return fmt.Errorf("%w: %d + %d > %d", ErrOutOfGas, m.used, cost, m.allocation)
	}
	m.used = sum
	return nil
}
