package vybiumzkevm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/core"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/cpu"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/generation"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/utils"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/witness"
)

// ZKEVM runs programs and checks the traces they produce
type ZKEVM struct {
	config    *Config
	generator *generation.Generator
	logger    zerolog.Logger
}

// NewZKEVM creates a zkEVM with the given configuration. A nil config uses
// DefaultConfig.
func NewZKEVM(config *Config, logger zerolog.Logger) (*ZKEVM, error) {
	if config == nil {
		config = DefaultConfig()
	}
	gen, err := generation.NewGenerator(config, generation.WithLogger(logger))
	if err != nil {
		return nil, newError(ErrInvalidConfig, "failed to create generator", err)
	}
	return &ZKEVM{config: config, generator: gen, logger: logger}, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return utils.DefaultConfig()
}

// LoadConfig reads a TOML configuration file
func LoadConfig(path string) (*Config, error) {
	cfg, err := utils.LoadConfig(path)
	if err != nil {
		return nil, newError(ErrInvalidConfig, "failed to load config", err)
	}
	return cfg, nil
}

// Config returns the configuration in use
func (z *ZKEVM) Config() *Config { return z.config }

// Execute runs code from an empty stack until it stops or faults. Faults
// that end a transaction (out of gas, stack underflow or overflow) are
// reported through the trace outcome, not as errors.
func (z *ZKEVM) Execute(ctx context.Context, code []byte) (*ExecutionTrace, error) {
	if len(code) == 0 {
		return nil, newError(ErrInvalidInput, "empty program", nil)
	}
	res, err := z.generator.Run(ctx, code)
	if err != nil {
		if errors.Is(err, witness.ErrUnsatisfiable) {
			return nil, newError(ErrHintVerification, "prover hint rejected", err)
		}
		return nil, newError(ErrTraceGeneration, "execution failed", err)
	}

	trace := &ExecutionTrace{
		Rows:             res.Trace.Rows,
		Outcome:          res.Outcome,
		CycleCount:       res.Cycles,
		GasUsed:          res.Gas,
		Stack:            make([]*uint256.Int, len(res.Stack)),
		Hints:            make([]Hint, len(res.Hints)),
		TranscriptDigest: witness.TranscriptDigest(res.Transcript),
	}
	for i := range res.Stack {
		trace.Stack[i] = res.Stack[i].Clone()
	}
	for i, h := range res.Hints {
		trace.Hints[i] = Hint{Routine: h.Routine, Kind: h.Kind.String(), Input: h.Input, Output: h.Output, Exists: h.Exists}
	}
	return trace, nil
}

// Verify checks every constraint on the trace and commits to its rows
func (z *ZKEVM) Verify(trace *ExecutionTrace) (*VerificationResult, error) {
	if trace == nil || len(trace.Rows) == 0 {
		return nil, newError(ErrInvalidInput, "empty trace", nil)
	}
	start := time.Now()
	air := z.generator.AIR()
	table := cpu.NewTraceTable(trace.Rows)

	violations := air.Check(table.Rows, z.config.Parallelism)
	composition, root, err := table.Composition(air, z.config.HashFunction)
	if err != nil {
		return nil, newError(ErrCommitment, "failed to evaluate composition", err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, v := range violations {
		if !seen[v.Constraint] {
			seen[v.Constraint] = true
			names = append(names, v.Constraint)
		}
	}
	sort.Strings(names)

	valid := len(names) == 0
	for i, c := range composition {
		if !c.IsZero() {
			valid = false
			z.logger.Debug().Int("row", i).Msg("composition does not vanish")
			break
		}
	}

	return &VerificationResult{
		Valid:              valid,
		Violations:         names,
		Root:               cpu.DigestBytes(root),
		VerificationTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// Commitment returns the Merkle root over the trace rows
func (z *ZKEVM) Commitment(trace *ExecutionTrace) ([]byte, error) {
	if trace == nil {
		return nil, newError(ErrInvalidInput, "nil trace", nil)
	}
	tree, err := cpu.NewTraceTable(trace.Rows).Commit()
	if err != nil {
		return nil, newError(ErrCommitment, "failed to commit to trace", err)
	}
	return cpu.DigestBytes(tree.Root()), nil
}

// RecoverPoint returns the y coordinate with the given parity of the point
// on the named curve at x. The result is checked in a witness circuit
// against the oracle's square root hint.
func RecoverPoint(curveName string, x *uint256.Int, parity uint64) (*uint256.Int, error) {
	curve, err := core.LookupCurve(curveName)
	if err != nil {
		return nil, newError(ErrInvalidInput, "unknown curve", err)
	}
	switch {
	case x == nil:
		return nil, newError(ErrInvalidInput, "nil x coordinate", nil)
	case !x.Lt(curve.Base.Modulus()):
		return nil, newError(ErrInvalidInput, fmt.Sprintf("x = %s is not below the %s base modulus", x.Hex(), curve.Name), nil)
	case parity > 1:
		return nil, newError(ErrInvalidInput, fmt.Sprintf("parity %d is not a bit", parity), nil)
	}
	c := witness.NewCircuit(curve.Base, witness.NewOracleProvider())
	y, ok := c.RecoverPoint(curve, x, parity)
	if err := c.Err(); err != nil {
		return nil, newError(ErrHintVerification, "point recovery rejected", err)
	}
	if !ok {
		return nil, newError(ErrInvalidInput, fmt.Sprintf("no point on %s with x = %s", curve.Name, x.Hex()), nil)
	}
	c.AssertOnCurve(curve, x, y)
	if err := c.Err(); err != nil {
		return nil, newError(ErrHintVerification, "recovered point is not on the curve", err)
	}
	return y, nil
}
